package sqs

import (
	"errors"
	"fmt"

	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

const (
	// DefaultBatchSize is the number of messages requested per receive.
	DefaultBatchSize = 5

	// DefaultWaitTimeSeconds is the long-poll duration of each receive.
	DefaultWaitTimeSeconds = 20

	maxBatchSize       = 10
	maxWaitTimeSeconds = 20

	allAttributes = "All"
)

// QueueConfig binds one queue to one pattern and controls how it is polled.
// Build it with [NewQueueConfig] so the defaults are applied; the server
// treats it as immutable once [Server.Init] returns.
type QueueConfig struct {
	Pattern  Pattern
	QueueURL string

	// BatchSize is the maximum number of messages per receive, 1 to 10.
	BatchSize int32

	// WaitTimeSeconds is the long-poll duration, 0 to 20. Zero leaves the
	// parameter off the request, so the queue's ReceiveMessageWaitTimeSeconds
	// attribute applies.
	WaitTimeSeconds int32

	// VisibilityTimeoutSeconds is requested on every receive. Zero keeps the
	// queue's own default and disables automatic visibility extension.
	VisibilityTimeoutSeconds int32

	// AttributeNames lists the system attributes to fetch. Default: All.
	AttributeNames []string

	// MessageAttributeNames lists the message attributes to fetch. Default: All.
	MessageAttributeNames []string

	// DeleteOnSuccess deletes the message after the handler returns nil.
	DeleteOnSuccess bool

	// RequeueOnError leaves a failed message on the queue for redelivery.
	// When false, failed messages are deleted.
	RequeueOnError bool
}

// QueueOption customizes a [QueueConfig] built by [NewQueueConfig].
type QueueOption func(*QueueConfig)

// NewQueueConfig returns a queue config with batch size 5, a 20 second wait,
// all attributes requested, delete-on-success and requeue-on-error.
func NewQueueConfig(pattern Pattern, queueURL string, opts ...QueueOption) QueueConfig {
	cfg := QueueConfig{
		Pattern:               pattern,
		QueueURL:              queueURL,
		BatchSize:             DefaultBatchSize,
		WaitTimeSeconds:       DefaultWaitTimeSeconds,
		AttributeNames:        []string{allAttributes},
		MessageAttributeNames: []string{allAttributes},
		DeleteOnSuccess:       true,
		RequeueOnError:        true,
	}

	for _, o := range opts {
		o(&cfg)
	}

	return cfg
}

// WithBatchSize sets the receive batch size, clamped to 1..10.
func WithBatchSize(n int32) QueueOption {
	return func(q *QueueConfig) {
		q.BatchSize = min(max(n, 1), maxBatchSize)
	}
}

// WithWaitTimeSeconds sets the long-poll duration, clamped to 0..20. Zero
// defers to the queue's ReceiveMessageWaitTimeSeconds attribute.
func WithWaitTimeSeconds(seconds int32) QueueOption {
	return func(q *QueueConfig) {
		q.WaitTimeSeconds = min(max(seconds, 0), maxWaitTimeSeconds)
	}
}

// WithVisibilityTimeout sets the visibility timeout requested on receive.
func WithVisibilityTimeout(seconds int32) QueueOption {
	return func(q *QueueConfig) {
		q.VisibilityTimeoutSeconds = seconds
	}
}

// WithAttributeNames replaces the system attributes requested on receive.
func WithAttributeNames(names ...string) QueueOption {
	return func(q *QueueConfig) {
		q.AttributeNames = names
	}
}

// WithMessageAttributeNames replaces the message attributes requested on receive.
func WithMessageAttributeNames(names ...string) QueueOption {
	return func(q *QueueConfig) {
		q.MessageAttributeNames = names
	}
}

// WithDeleteOnSuccess controls deletion after a successful handler. Default: true.
func WithDeleteOnSuccess(enabled bool) QueueOption {
	return func(q *QueueConfig) {
		q.DeleteOnSuccess = enabled
	}
}

// WithRequeueOnError controls whether failed messages stay on the queue.
// Default: true.
func WithRequeueOnError(enabled bool) QueueOption {
	return func(q *QueueConfig) {
		q.RequeueOnError = enabled
	}
}

func (q QueueConfig) validate() error {
	if q.Pattern == "" {
		return errors.New("queue pattern cannot be empty")
	}

	if q.QueueURL == "" {
		return fmt.Errorf("queue URL for pattern %s cannot be empty", q.Pattern)
	}

	if q.BatchSize < 1 || q.BatchSize > maxBatchSize {
		return fmt.Errorf("batch size for queue %s must be between 1 and 10", q.QueueURL)
	}

	if q.WaitTimeSeconds < 0 || q.WaitTimeSeconds > maxWaitTimeSeconds {
		return fmt.Errorf("wait time for queue %s must be between 0 and 20 seconds", q.QueueURL)
	}

	if q.VisibilityTimeoutSeconds < 0 || q.VisibilityTimeoutSeconds > maxVisibilityTimeoutSeconds {
		return fmt.Errorf("visibility timeout for queue %s must be between 0 and 43200 seconds", q.QueueURL)
	}

	return nil
}

func (q QueueConfig) systemAttributeNames() []sqstypes.MessageSystemAttributeName {
	names := make([]sqstypes.MessageSystemAttributeName, 0, len(q.AttributeNames))

	for _, n := range q.AttributeNames {
		names = append(names, sqstypes.MessageSystemAttributeName(n))
	}

	return names
}
