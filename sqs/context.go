package sqs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/slackmgr/types"
)

const (
	// maxVisibilityTimeoutSeconds is the SQS upper bound (12 hours).
	maxVisibilityTimeoutSeconds = 43200

	settleTimeout = 5 * time.Second
)

// MessageContext gives a handler control over the lifecycle of the message
// it is processing. Both operations are no-ops when the message carries no
// receipt handle.
type MessageContext struct {
	api      API
	queueURL string
	msg      *InboundMessage
	logger   types.Logger

	mu      sync.Mutex
	deleted bool
}

// NewMessageContext creates a context for msg received from queueURL.
// The server creates one per delivery; handlers normally only construct
// their own in tests.
func NewMessageContext(api API, queueURL string, msg *InboundMessage, logger types.Logger) *MessageContext {
	return &MessageContext{
		api:      api,
		queueURL: queueURL,
		msg:      msg,
		logger:   logger,
	}
}

// Message returns the message being processed.
func (c *MessageContext) Message() *InboundMessage {
	return c.msg
}

// QueueURL returns the URL of the queue the message was received from.
func (c *MessageContext) QueueURL() string {
	return c.queueURL
}

// Deleted reports whether the message has been deleted through this context.
func (c *MessageContext) Deleted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.deleted
}

// Delete removes the message from the queue. Deleting twice is a no-op.
// The call is not cut short by cancellation of ctx; it is bounded by a
// short internal timeout instead.
func (c *MessageContext) Delete(ctx context.Context) error {
	if c.msg == nil || c.msg.ReceiptHandle == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.deleted {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	input := &sqs.DeleteMessageInput{
		QueueUrl:      &c.queueURL,
		ReceiptHandle: &c.msg.ReceiptHandle,
	}

	if _, err := c.api.DeleteMessage(ctx, input); err != nil {
		return fmt.Errorf("failed to delete SQS message %s: %w", c.msg.ID, err)
	}

	c.deleted = true

	c.logger.Debug("SQS message deleted")

	return nil
}

// ExtendVisibility sets the message's remaining visibility timeout to
// seconds, counted from now. Zero makes the message visible immediately.
func (c *MessageContext) ExtendVisibility(ctx context.Context, seconds int32) error {
	if c.msg == nil || c.msg.ReceiptHandle == "" {
		return nil
	}

	if seconds < 0 || seconds > maxVisibilityTimeoutSeconds {
		return errors.New("visibility timeout must be between 0 and 43200 seconds")
	}

	c.mu.Lock()
	deleted := c.deleted
	c.mu.Unlock()

	if deleted {
		return nil
	}

	input := &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          &c.queueURL,
		ReceiptHandle:     &c.msg.ReceiptHandle,
		VisibilityTimeout: seconds,
	}

	if _, err := c.api.ChangeMessageVisibility(ctx, input); err != nil {
		return fmt.Errorf("failed to change visibility of SQS message %s: %w", c.msg.ID, err)
	}

	c.logger.WithField("visibility_timeout_seconds", seconds).Debug("SQS message visibility changed")

	return nil
}
