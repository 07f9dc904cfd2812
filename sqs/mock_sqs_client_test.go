//nolint:testpackage // Mock must be in sqs package to access unexported types
package sqs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/slackmgr/types"
)

// mockSQSClient is a mock implementation of the API interface for testing.
type mockSQSClient struct {
	sendMessageFunc             func(ctx context.Context, input *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	receiveMessageFunc          func(ctx context.Context, input *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	deleteMessageFunc           func(ctx context.Context, input *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	changeMessageVisibilityFunc func(ctx context.Context, input *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

func (m *mockSQSClient) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if m.sendMessageFunc != nil {
		return m.sendMessageFunc(ctx, params, optFns...)
	}
	return &sqs.SendMessageOutput{}, nil
}

func (m *mockSQSClient) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	if m.receiveMessageFunc != nil {
		return m.receiveMessageFunc(ctx, params, optFns...)
	}
	time.Sleep(time.Millisecond)
	return &sqs.ReceiveMessageOutput{}, nil
}

func (m *mockSQSClient) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	if m.deleteMessageFunc != nil {
		return m.deleteMessageFunc(ctx, params, optFns...)
	}
	return &sqs.DeleteMessageOutput{}, nil
}

func (m *mockSQSClient) ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error) {
	if m.changeMessageVisibilityFunc != nil {
		return m.changeMessageVisibilityFunc(ctx, params, optFns...)
	}
	return &sqs.ChangeMessageVisibilityOutput{}, nil
}

// scriptedReceive returns a receive func that hands out batches per queue URL
// once each, then empty results.
func scriptedReceive(batches map[string][][]sqstypes.Message) func(context.Context, *sqs.ReceiveMessageInput, ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	var mu sync.Mutex

	return func(_ context.Context, input *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
		mu.Lock()
		defer mu.Unlock()

		url := aws.ToString(input.QueueUrl)

		pending := batches[url]
		if len(pending) == 0 {
			time.Sleep(time.Millisecond)
			return &sqs.ReceiveMessageOutput{}, nil
		}

		batches[url] = pending[1:]

		return &sqs.ReceiveMessageOutput{Messages: pending[0]}, nil
	}
}

func sqsMessage(id, body string) sqstypes.Message {
	return sqstypes.Message{
		MessageId:     aws.String(id),
		ReceiptHandle: aws.String("rh-" + id),
		Body:          aws.String(body),
	}
}

// deleteRecorder records the receipt handles of deleted messages.
type deleteRecorder struct {
	mu      sync.Mutex
	handles []string
}

func (r *deleteRecorder) deleteMessage(_ context.Context, input *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handles = append(r.handles, aws.ToString(input.ReceiptHandle))

	return &sqs.DeleteMessageOutput{}, nil
}

func (r *deleteRecorder) deleted() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.handles...)
}

// runServer starts Listen in the background and returns a func that closes
// the server and waits for Listen to return.
func runServer(t *testing.T, server *Server) func() {
	t.Helper()

	done := make(chan error, 1)

	go func() {
		done <- server.Listen(t.Context())
	}()

	return func() {
		t.Helper()

		_ = server.Close()

		select {
		case err := <-done:
			if err != nil {
				t.Errorf("expected Listen to return nil, got %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Listen did not return after Close")
		}
	}
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)

	for time.Now().Before(deadline) {
		if cond() {
			return
		}

		time.Sleep(5 * time.Millisecond)
	}

	t.Fatalf("timed out waiting for %s", what)
}

// mockLogger is a no-op logger for testing.
// mockLogger records info and error messages. Loggers derived with
// WithField share the same record.
type mockLogger struct {
	mu    *sync.Mutex
	lines *[]string
}

//nolint:ireturn // Must return interface to implement types.Logger
func (m *mockLogger) WithField(_ string, _ any) types.Logger { return m }

//nolint:ireturn // Must return interface to implement types.Logger
func (m *mockLogger) WithFields(_ map[string]any) types.Logger { return m }
func (m *mockLogger) Debug(_ string)                           {}
func (m *mockLogger) Debugf(_ string, _ ...any)                {}
func (m *mockLogger) Info(msg string)                          { m.record(msg) }
func (m *mockLogger) Infof(format string, args ...any)         { m.record(fmt.Sprintf(format, args...)) }
func (m *mockLogger) Error(msg string)                         { m.record(msg) }
func (m *mockLogger) Errorf(format string, args ...any)        { m.record(fmt.Sprintf(format, args...)) }

func (m *mockLogger) record(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*m.lines = append(*m.lines, msg)
}

// logged reports whether any recorded message contains substr.
func (m *mockLogger) logged(substr string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, line := range *m.lines {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

func newRecordingLogger() *mockLogger {
	return &mockLogger{mu: &sync.Mutex{}, lines: &[]string{}}
}

//nolint:ireturn // Returns interface for convenience in tests
func newMockLogger() types.Logger {
	return newRecordingLogger()
}
