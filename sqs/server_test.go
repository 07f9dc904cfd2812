//nolint:paralleltest,testpackage // Tests use shared resources and need access to unexported functions
package sqs

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

const (
	queueA = "https://sqs.us-east-1.amazonaws.com/123456789012/a"
	queueB = "https://sqs.us-east-1.amazonaws.com/123456789012/b"
)

func newTestServer(t *testing.T, client API, registry *Registry, opts ...Option) *Server {
	t.Helper()

	opts = append([]Option{WithSQSClient(client), WithPollingInterval(10 * time.Millisecond)}, opts...)

	server, err := NewServer(&aws.Config{}, registry, newMockLogger(), opts...).Init(t.Context())
	if err != nil {
		t.Fatalf("expected no error from Init, got %v", err)
	}

	return server
}

func TestNewServer(t *testing.T) {
	registry := NewRegistry()
	server := NewServer(&aws.Config{}, registry, newMockLogger(), WithQueue(NewQueueConfig("p", queueA)))

	if server.initialized {
		t.Error("expected initialized to be false before Init()")
	}

	if len(server.opts.queues) != 1 {
		t.Errorf("expected 1 queue, got %d", len(server.opts.queues))
	}

	if server.Name() != "sqs" {
		t.Errorf("expected name 'sqs', got %q", server.Name())
	}
}

func TestInit_Success(t *testing.T) {
	registry := NewRegistry()
	registry.MustRegister("p", func(context.Context, *InboundMessage, *MessageContext) error { return nil })

	server := NewServer(&aws.Config{}, registry, newMockLogger(),
		WithSQSClient(&mockSQSClient{}),
		WithQueue(NewQueueConfig("p", queueA)),
	)

	result, err := server.Init(t.Context())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if result != server {
		t.Error("expected Init to return the same server")
	}

	if !server.initialized {
		t.Error("expected initialized to be true after Init()")
	}

	if err := registry.Register("q", func(context.Context, *InboundMessage, *MessageContext) error { return nil }); !errors.Is(err, ErrRegistrySealed) {
		t.Errorf("expected ErrRegistrySealed after Init, got %v", err)
	}

	if server.extender != nil {
		t.Error("expected no extender when visibility extension is disabled")
	}

	again, err := server.Init(t.Context())
	if err != nil || again != server {
		t.Errorf("expected second Init to be a no-op, got %v", err)
	}
}

func TestInit_Errors(t *testing.T) {
	tests := []struct {
		name     string
		registry *Registry
		opts     []Option
	}{
		{"nil registry", nil, []Option{WithQueue(NewQueueConfig("p", queueA))}},
		{"no queues", NewRegistry(), nil},
		{"invalid queue", NewRegistry(), []Option{WithQueue(QueueConfig{Pattern: "p", QueueURL: queueA})}},
		{"duplicate queue", NewRegistry(), []Option{WithQueues(NewQueueConfig("p", queueA), NewQueueConfig("q", queueA))}},
		{"polling interval too short", NewRegistry(), []Option{WithQueue(NewQueueConfig("p", queueA)), WithPollingInterval(time.Millisecond)}},
		{"nil aws config", NewRegistry(), []Option{WithQueue(NewQueueConfig("p", queueA))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.opts
			awsCfg := &aws.Config{}

			if tt.name == "nil aws config" {
				awsCfg = nil
			} else {
				opts = append(opts, WithSQSClient(&mockSQSClient{}))
			}

			if _, err := NewServer(awsCfg, tt.registry, newMockLogger(), opts...).Init(t.Context()); err == nil {
				t.Error("expected error from Init")
			}
		})
	}
}

func TestListen_NotInitialized(t *testing.T) {
	server := NewServer(&aws.Config{}, NewRegistry(), newMockLogger())

	if err := server.Listen(t.Context()); !errors.Is(err, errNotInitialized) {
		t.Errorf("expected errNotInitialized, got %v", err)
	}
}

func TestListen_RoutesByQueuePattern(t *testing.T) {
	client := &mockSQSClient{
		receiveMessageFunc: scriptedReceive(map[string][][]sqstypes.Message{
			queueA: {{sqsMessage("a1", "{}"), sqsMessage("a2", "{}")}},
			queueB: {{sqsMessage("b1", "{}")}},
		}),
	}

	var mu sync.Mutex
	seen := map[Pattern][]string{}

	record := func(p Pattern) Handler {
		return func(_ context.Context, msg *InboundMessage, _ *MessageContext) error {
			mu.Lock()
			defer mu.Unlock()
			seen[p] = append(seen[p], msg.ID)
			return nil
		}
	}

	registry := NewRegistry()
	registry.MustRegister("a", record("a"))
	registry.MustRegister("b", record("b"))

	server := newTestServer(t, client, registry, WithQueues(NewQueueConfig("a", queueA), NewQueueConfig("b", queueB)))
	stop := runServer(t, server)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen["a"]) == 2 && len(seen["b"]) == 1
	}, "all messages to be handled")

	stop()

	if !slices.Equal(seen["a"], []string{"a1", "a2"}) {
		t.Errorf("expected handler a to see [a1 a2] in order, got %v", seen["a"])
	}

	if !slices.Equal(seen["b"], []string{"b1"}) {
		t.Errorf("expected handler b to see [b1], got %v", seen["b"])
	}
}

func TestListen_AckPolicy(t *testing.T) {
	tests := []struct {
		name            string
		deleteOnSuccess bool
		requeueOnError  bool
		handlerErr      error
		wantDeleted     bool
	}{
		{"success deletes", true, true, nil, true},
		{"success kept when delete disabled", false, true, nil, false},
		{"failure requeued", true, true, errors.New("boom"), false},
		{"failure deleted when requeue disabled", true, false, errors.New("boom"), true},
		{"failure deleted even without delete on success", false, false, errors.New("boom"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := &deleteRecorder{}
			client := &mockSQSClient{
				receiveMessageFunc: scriptedReceive(map[string][][]sqstypes.Message{queueA: {{sqsMessage("m1", "{}")}}}),
				deleteMessageFunc:  recorder.deleteMessage,
			}

			var handled atomic.Bool

			registry := NewRegistry()
			registry.MustRegister("p", func(context.Context, *InboundMessage, *MessageContext) error {
				defer handled.Store(true)
				return tt.handlerErr
			})

			server := newTestServer(t, client, registry, WithQueue(NewQueueConfig("p", queueA,
				WithDeleteOnSuccess(tt.deleteOnSuccess),
				WithRequeueOnError(tt.requeueOnError),
			)))
			stop := runServer(t, server)

			waitFor(t, handled.Load, "handler to run")
			time.Sleep(20 * time.Millisecond)
			stop()

			deleted := recorder.deleted()
			if tt.wantDeleted && !slices.Equal(deleted, []string{"rh-m1"}) {
				t.Errorf("expected message to be deleted once, got %v", deleted)
			}

			if !tt.wantDeleted && len(deleted) != 0 {
				t.Errorf("expected message not to be deleted, got %v", deleted)
			}
		})
	}
}

func TestListen_UnregisteredPatternLeavesMessage(t *testing.T) {
	recorder := &deleteRecorder{}

	var receives atomic.Int32

	script := scriptedReceive(map[string][][]sqstypes.Message{queueA: {{sqsMessage("m1", "{}")}}})

	client := &mockSQSClient{
		receiveMessageFunc: func(ctx context.Context, input *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
			receives.Add(1)
			return script(ctx, input, optFns...)
		},
		deleteMessageFunc: recorder.deleteMessage,
	}

	logger := newRecordingLogger()

	server, err := NewServer(&aws.Config{}, NewRegistry(), logger,
		WithSQSClient(client),
		WithPollingInterval(10*time.Millisecond),
		WithQueue(NewQueueConfig("unknown", queueA)),
	).Init(t.Context())
	if err != nil {
		t.Fatalf("expected no error from Init, got %v", err)
	}

	if !logger.logged("No handler registered for pattern unknown, its messages will stay on the queue") {
		t.Error("expected Init to log the pattern without a handler")
	}

	stop := runServer(t, server)

	waitFor(t, func() bool { return receives.Load() > 2 }, "polling to continue")
	stop()

	if deleted := recorder.deleted(); len(deleted) != 0 {
		t.Errorf("expected no deletes for unregistered pattern, got %v", deleted)
	}

	if !logger.logged("No handler registered for pattern unknown, skipping message") {
		t.Error("expected the skipped message to be logged")
	}
}

func TestListen_ParseErrorFollowsFailurePolicy(t *testing.T) {
	recorder := &deleteRecorder{}
	client := &mockSQSClient{
		receiveMessageFunc: scriptedReceive(map[string][][]sqstypes.Message{queueA: {{sqsMessage("m1", "not json")}}}),
		deleteMessageFunc:  recorder.deleteMessage,
	}

	errCh := make(chan error, 1)

	registry := NewRegistry()
	registry.MustRegister("p", func(_ context.Context, msg *InboundMessage, _ *MessageContext) error {
		var v map[string]any
		err := DecodeJSON(msg, &v)
		errCh <- err
		return err
	})

	server := newTestServer(t, client, registry, WithQueue(NewQueueConfig("p", queueA)))
	stop := runServer(t, server)

	var err error
	select {
	case err = <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not called")
	}

	stop()

	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}

	if parseErr.MessageID != "m1" {
		t.Errorf("expected message id m1, got %q", parseErr.MessageID)
	}

	if deleted := recorder.deleted(); len(deleted) != 0 {
		t.Errorf("expected failed message to be requeued, got deletes %v", deleted)
	}
}

func TestListen_HandlerPanicIsAFailure(t *testing.T) {
	recorder := &deleteRecorder{}
	client := &mockSQSClient{
		receiveMessageFunc: scriptedReceive(map[string][][]sqstypes.Message{queueA: {{sqsMessage("m1", "{}")}, {sqsMessage("m2", "{}")}}}),
		deleteMessageFunc:  recorder.deleteMessage,
	}

	var calls atomic.Int32

	registry := NewRegistry()
	registry.MustRegister("p", func(_ context.Context, msg *InboundMessage, _ *MessageContext) error {
		calls.Add(1)
		if msg.ID == "m1" {
			panic("kaboom")
		}
		return nil
	})

	server := newTestServer(t, client, registry, WithQueue(NewQueueConfig("p", queueA, WithRequeueOnError(false))))
	stop := runServer(t, server)

	waitFor(t, func() bool { return len(recorder.deleted()) == 2 }, "both messages to be deleted")
	stop()

	if calls.Load() != 2 {
		t.Errorf("expected the loop to survive the panic and handle 2 messages, got %d", calls.Load())
	}
}

func TestListen_PollErrorBacksOffAndRecovers(t *testing.T) {
	var receives atomic.Int32
	var firstAt, secondAt atomic.Int64

	client := &mockSQSClient{
		receiveMessageFunc: func(_ context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
			switch receives.Add(1) {
			case 1:
				firstAt.Store(time.Now().UnixNano())
				return nil, errors.New("network down")
			case 2:
				secondAt.Store(time.Now().UnixNano())
				return &sqs.ReceiveMessageOutput{Messages: []sqstypes.Message{sqsMessage("m1", "{}")}}, nil
			default:
				time.Sleep(time.Millisecond)
				return &sqs.ReceiveMessageOutput{}, nil
			}
		},
	}

	var handled atomic.Bool

	registry := NewRegistry()
	registry.MustRegister("p", func(context.Context, *InboundMessage, *MessageContext) error {
		handled.Store(true)
		return nil
	})

	server := newTestServer(t, client, registry,
		WithQueue(NewQueueConfig("p", queueA)),
		WithPollingInterval(50*time.Millisecond),
	)
	stop := runServer(t, server)

	waitFor(t, handled.Load, "message after poll error")
	stop()

	if gap := time.Duration(secondAt.Load() - firstAt.Load()); gap < 50*time.Millisecond {
		t.Errorf("expected at least the polling interval between error and retry, got %v", gap)
	}
}

func TestListen_EmptyBatchRepollsImmediately(t *testing.T) {
	var receives atomic.Int32

	client := &mockSQSClient{
		receiveMessageFunc: func(_ context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
			receives.Add(1)
			time.Sleep(time.Millisecond)
			return &sqs.ReceiveMessageOutput{}, nil
		},
	}

	registry := NewRegistry()
	registry.MustRegister("p", func(context.Context, *InboundMessage, *MessageContext) error { return nil })

	// A long polling interval would make more than a couple of receives
	// impossible if it were applied after empty batches.
	server := newTestServer(t, client, registry,
		WithQueue(NewQueueConfig("p", queueA)),
		WithPollingInterval(time.Minute),
	)
	stop := runServer(t, server)

	waitFor(t, func() bool { return receives.Load() >= 10 }, "repeated receives")
	stop()
}

func TestListen_ReceiveInput(t *testing.T) {
	inputs := make(chan *sqs.ReceiveMessageInput, 100)

	client := &mockSQSClient{
		receiveMessageFunc: func(_ context.Context, input *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
			select {
			case inputs <- input:
			default:
			}
			time.Sleep(time.Millisecond)
			return &sqs.ReceiveMessageOutput{}, nil
		},
	}

	registry := NewRegistry()
	registry.MustRegister("p", func(context.Context, *InboundMessage, *MessageContext) error { return nil })

	server := newTestServer(t, client, registry, WithQueue(NewQueueConfig("p", queueA,
		WithBatchSize(7),
		WithWaitTimeSeconds(3),
		WithVisibilityTimeout(45),
	)))
	stop := runServer(t, server)

	input := <-inputs
	stop()

	if aws.ToString(input.QueueUrl) != queueA {
		t.Errorf("expected queue URL %s, got %s", queueA, aws.ToString(input.QueueUrl))
	}

	if input.MaxNumberOfMessages != 7 || input.WaitTimeSeconds != 3 || input.VisibilityTimeout != 45 {
		t.Errorf("unexpected receive parameters: max=%d wait=%d visibility=%d", input.MaxNumberOfMessages, input.WaitTimeSeconds, input.VisibilityTimeout)
	}

	if !slices.Equal(input.MessageAttributeNames, []string{"All"}) {
		t.Errorf("expected all message attributes, got %v", input.MessageAttributeNames)
	}

	if len(input.MessageSystemAttributeNames) != 1 || input.MessageSystemAttributeNames[0] != sqstypes.MessageSystemAttributeNameAll {
		t.Errorf("expected all system attributes, got %v", input.MessageSystemAttributeNames)
	}
}

func TestListen_ZeroWaitTimeDefersToQueue(t *testing.T) {
	inputs := make(chan *sqs.ReceiveMessageInput, 100)

	client := &mockSQSClient{
		receiveMessageFunc: func(_ context.Context, input *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
			select {
			case inputs <- input:
			default:
			}
			time.Sleep(time.Millisecond)
			return &sqs.ReceiveMessageOutput{}, nil
		},
	}

	registry := NewRegistry()
	registry.MustRegister("p", func(context.Context, *InboundMessage, *MessageContext) error { return nil })

	server := newTestServer(t, client, registry, WithQueue(NewQueueConfig("p", queueA, WithWaitTimeSeconds(0))))
	stop := runServer(t, server)

	input := <-inputs
	stop()

	// The SDK omits a zero WaitTimeSeconds from the request.
	if input.WaitTimeSeconds != 0 {
		t.Errorf("expected wait time 0, got %d", input.WaitTimeSeconds)
	}
}

func TestListen_InboundMessageFields(t *testing.T) {
	m := sqsMessage("m1", `{"a":1}`)
	m.Attributes = map[string]string{"ApproximateReceiveCount": "3"}
	m.MessageAttributes = map[string]sqstypes.MessageAttributeValue{
		"orderId": {DataType: aws.String("String"), StringValue: aws.String("o1")},
		"blob":    {DataType: aws.String("Binary"), BinaryValue: []byte{1}},
	}

	client := &mockSQSClient{
		receiveMessageFunc: scriptedReceive(map[string][][]sqstypes.Message{queueA: {{m}}}),
	}

	got := make(chan *InboundMessage, 1)

	registry := NewRegistry()
	registry.MustRegister("p", func(_ context.Context, msg *InboundMessage, mc *MessageContext) error {
		if mc.Message() != msg || mc.QueueURL() != queueA {
			t.Error("expected message context to describe the delivered message")
		}
		got <- msg
		return nil
	})

	server := newTestServer(t, client, registry, WithQueue(NewQueueConfig("p", queueA)))
	stop := runServer(t, server)

	msg := <-got
	stop()

	if msg.ID != "m1" || msg.ReceiptHandle != "rh-m1" || string(msg.Body) != `{"a":1}` {
		t.Errorf("unexpected message %+v", msg)
	}

	if msg.Attributes["ApproximateReceiveCount"] != "3" {
		t.Errorf("expected system attributes to be copied, got %v", msg.Attributes)
	}

	if msg.MessageAttributes["orderId"] != "o1" {
		t.Errorf("expected string message attributes to be copied, got %v", msg.MessageAttributes)
	}

	if _, ok := msg.MessageAttributes["blob"]; ok {
		t.Error("expected binary message attributes to be skipped")
	}
}

func TestClose_LetsInFlightHandlerFinish(t *testing.T) {
	recorder := &deleteRecorder{}
	client := &mockSQSClient{
		receiveMessageFunc: scriptedReceive(map[string][][]sqstypes.Message{queueA: {{sqsMessage("m1", "{}"), sqsMessage("m2", "{}")}}}),
		deleteMessageFunc:  recorder.deleteMessage,
	}

	started := make(chan struct{})
	release := make(chan struct{})

	registry := NewRegistry()
	registry.MustRegister("p", func(ctx context.Context, msg *InboundMessage, _ *MessageContext) error {
		if msg.ID == "m1" {
			close(started)
			<-release
		}
		return ctx.Err()
	})

	server := newTestServer(t, client, registry, WithQueue(NewQueueConfig("p", queueA)))

	done := make(chan error, 1)
	go func() {
		done <- server.Listen(t.Context())
	}()

	<-started

	_ = server.Close()

	select {
	case <-done:
		t.Fatal("Listen returned while a handler was still running")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected nil from Listen, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Listen did not return")
	}

	// The rest of the batch was handled with a live context and acknowledged.
	if deleted := recorder.deleted(); !slices.Equal(deleted, []string{"rh-m1", "rh-m2"}) {
		t.Errorf("expected both messages to be deleted, got %v", deleted)
	}
}

func TestListen_ContextCancelStops(t *testing.T) {
	registry := NewRegistry()
	registry.MustRegister("p", func(context.Context, *InboundMessage, *MessageContext) error { return nil })

	server := newTestServer(t, &mockSQSClient{}, registry, WithQueue(NewQueueConfig("p", queueA)))

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)

	go func() {
		done <- server.Listen(ctx)
	}()

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Listen did not return after cancel")
	}

	if err := server.Listen(t.Context()); err == nil {
		t.Error("expected error when listening twice")
	}
}

func TestListen_ExtendsVisibilityWhileHandlerRuns(t *testing.T) {
	var extensions atomic.Int32

	client := &mockSQSClient{
		receiveMessageFunc: scriptedReceive(map[string][][]sqstypes.Message{queueA: {{sqsMessage("m1", "{}")}}}),
		changeMessageVisibilityFunc: func(_ context.Context, input *sqs.ChangeMessageVisibilityInput, _ ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error) {
			if input.VisibilityTimeout != 10 {
				t.Errorf("expected visibility timeout 10, got %d", input.VisibilityTimeout)
			}
			extensions.Add(1)
			return &sqs.ChangeMessageVisibilityOutput{}, nil
		},
	}

	release := make(chan struct{})

	registry := NewRegistry()
	registry.MustRegister("p", func(context.Context, *InboundMessage, *MessageContext) error {
		<-release
		return nil
	})

	// Received a minute ago, so the first tick already finds it overdue.
	server := newTestServer(t, client, registry,
		WithQueue(NewQueueConfig("p", queueA, WithVisibilityTimeout(10))),
		WithVisibilityExtension(time.Hour),
		WithClock(func() time.Time { return time.Now().Add(-time.Minute) }),
	)

	if server.extender == nil {
		t.Fatal("expected extender to be created")
	}

	server.extender.checkInterval = 20 * time.Millisecond

	stop := runServer(t, server)

	waitFor(t, func() bool { return extensions.Load() > 0 }, "visibility extension")

	close(release)
	stop()

	if extensions.Load() == 0 {
		t.Error("expected at least one visibility extension while the handler ran")
	}
}
