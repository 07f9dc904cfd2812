package sqs

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Option is a functional option for configuring a [Server] or a [Publisher].
// Options are passed to the constructor and applied before Init is called.
// Queue related options only affect a [Server].
type Option func(*Options)

// Options holds the resolved configuration for a [Server] or [Publisher].
// All fields are set to sensible defaults by the constructors; use With*
// functions to override individual values.
type Options struct {
	queues                     []QueueConfig
	pollingInterval            time.Duration
	sqsAPIMaxRetryAttempts     int
	sqsAPIMaxRetryBackoffDelay time.Duration
	autoExtendVisibility       bool
	maxMessageExtension        time.Duration
	newDeduplicationID         func() string
	clock                      func() time.Time
	sqsClient                  API // Optional: injected SQS client for testing
}

func newOptions() *Options {
	return &Options{
		pollingInterval:            time.Second,
		sqsAPIMaxRetryAttempts:     5,
		sqsAPIMaxRetryBackoffDelay: 10 * time.Second,
		maxMessageExtension:        10 * time.Minute,
		newDeduplicationID:         uuid.NewString,
		clock:                      time.Now,
	}
}

func (o *Options) validateClient() error {
	if o.sqsAPIMaxRetryAttempts < 0 || o.sqsAPIMaxRetryAttempts > 10 {
		return errors.New("max SQS API retry attempts must be between 0 and 10")
	}

	if o.sqsAPIMaxRetryBackoffDelay < 1*time.Second || o.sqsAPIMaxRetryBackoffDelay > 30*time.Second {
		return errors.New("max SQS API retry backoff delay must be between 1 and 30 seconds")
	}

	if o.newDeduplicationID == nil {
		return errors.New("deduplication ID generator cannot be nil")
	}

	if o.clock == nil {
		return errors.New("clock cannot be nil")
	}

	return nil
}

func (o *Options) validate() error {
	if err := o.validateClient(); err != nil {
		return err
	}

	if len(o.queues) == 0 {
		return errors.New("at least one queue must be configured")
	}

	if o.pollingInterval < 10*time.Millisecond || o.pollingInterval > 5*time.Minute {
		return errors.New("polling interval must be between 10 milliseconds and 5 minutes")
	}

	if o.maxMessageExtension < 1*time.Minute || o.maxMessageExtension > 12*time.Hour {
		return errors.New("max message extension must be between 1 minute and 12 hours")
	}

	seen := make(map[string]struct{}, len(o.queues))

	for _, q := range o.queues {
		if err := q.validate(); err != nil {
			return err
		}

		if _, ok := seen[q.QueueURL]; ok {
			return fmt.Errorf("queue %s is configured more than once", q.QueueURL)
		}

		seen[q.QueueURL] = struct{}{}
	}

	return nil
}

// WithQueue adds a queue to poll. Each queue gets its own polling loop.
func WithQueue(cfg QueueConfig) Option {
	return func(o *Options) {
		o.queues = append(o.queues, cfg)
	}
}

// WithQueues adds several queues to poll.
func WithQueues(cfgs ...QueueConfig) Option {
	return func(o *Options) {
		o.queues = append(o.queues, cfgs...)
	}
}

// WithPollingInterval sets the delay before polling again after a failed
// receive. Empty receives are retried immediately. Must be between 10
// milliseconds and 5 minutes. Default: 1 second.
func WithPollingInterval(d time.Duration) Option {
	return func(o *Options) {
		o.pollingInterval = d
	}
}

// WithSqsAPIMaxRetryAttempts sets the maximum number of retry attempts for
// failed SQS API calls. Must be between 0 and 10. Default: 5.
func WithSqsAPIMaxRetryAttempts(n int) Option {
	return func(o *Options) {
		o.sqsAPIMaxRetryAttempts = n
	}
}

// WithSqsAPIMaxRetryBackoffDelay sets the maximum backoff delay between
// consecutive SQS API retry attempts. Must be between 1 second and 30 seconds.
// Default: 10 seconds.
func WithSqsAPIMaxRetryBackoffDelay(d time.Duration) Option {
	return func(o *Options) {
		o.sqsAPIMaxRetryBackoffDelay = d
	}
}

// WithVisibilityExtension enables automatic visibility extension while a
// handler runs, for queues with a positive visibility timeout. A message is
// never extended beyond maxExtension after it was received.
// maxExtension must be between 1 minute and 12 hours. Disabled by default.
func WithVisibilityExtension(maxExtension time.Duration) Option {
	return func(o *Options) {
		o.autoExtendVisibility = true
		o.maxMessageExtension = maxExtension
	}
}

// WithDeduplicationIDFunc replaces the generator of FIFO deduplication ids
// used by a [Publisher]. Default: random UUIDs.
func WithDeduplicationIDFunc(f func() string) Option {
	return func(o *Options) {
		o.newDeduplicationID = f
	}
}

// WithClock replaces the time source. Intended for testing.
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		o.clock = now
	}
}

// WithSQSClient replaces the default AWS SQS client with a custom
// implementation of [API]. This option is intended for testing with mock or
// stub clients.
func WithSQSClient(client API) Option {
	return func(o *Options) {
		o.sqsClient = client
	}
}
