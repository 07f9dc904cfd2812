package sqs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/slackmgr/types"
)

// Server consumes one or more SQS queues and routes every message to the
// handler registered for the queue's pattern.
//
// Each queue is polled by its own goroutine. Messages within one batch are
// handled one at a time, in the order SQS returned them. An empty receive is
// followed immediately by the next long poll; only a failed receive waits
// for the polling interval.
//
// Create a Server with [NewServer], call [Server.Init] once, then
// [Server.Listen].
type Server struct {
	client      API
	registry    *Registry
	awsCfg      *aws.Config
	opts        *Options
	extender    *visibilityExtender
	extenderCh  chan *inflightMessage
	logger      types.Logger
	initialized bool
	listening   atomic.Bool
	stopOnce    sync.Once
	stopCh      chan struct{}
}

// NewServer creates a Server dispatching to handlers in registry.
// Queues are added with [WithQueue] or [WithQueues].
// The logger is automatically enriched with a "plugin" field.
//
// NewServer does not connect to AWS. Call [Server.Init] before [Server.Listen].
func NewServer(awsCfg *aws.Config, registry *Registry, logger types.Logger, opts ...Option) *Server {
	options := newOptions()

	for _, o := range opts {
		o(options)
	}

	return &Server{
		awsCfg:     awsCfg,
		registry:   registry,
		opts:       options,
		extenderCh: make(chan *inflightMessage, 1000),
		logger:     logger.WithField("plugin", "sqs"),
		stopCh:     make(chan struct{}),
	}
}

// Init validates the options and every queue config, creates the SQS client
// and seals the registry. It returns the receiver so that initialization can
// be chained with [NewServer]:
//
//	server, err := sqs.NewServer(&awsCfg, registry, logger, sqs.WithQueue(cfg)).Init(ctx)
//
// Init is idempotent. It is not thread-safe and must be called once during
// application startup before any concurrent access.
func (s *Server) Init(_ context.Context) (*Server, error) {
	if s.initialized {
		return s, nil
	}

	if s.registry == nil {
		return nil, errors.New("handler registry cannot be nil")
	}

	if err := s.opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid SQS options: %w", err)
	}

	if s.opts.sqsClient != nil {
		s.client = s.opts.sqsClient
	} else {
		if s.awsCfg == nil {
			return nil, errors.New("AWS config cannot be nil")
		}

		s.client = newAPIClient(s.awsCfg, s.opts.sqsAPIMaxRetryAttempts, s.opts.sqsAPIMaxRetryBackoffDelay)
	}

	for _, q := range s.opts.queues {
		if _, ok := s.registry.Lookup(q.Pattern); !ok {
			s.logger.WithField("queue_url", q.QueueURL).Infof("No handler registered for pattern %s, its messages will stay on the queue", q.Pattern)
		}
	}

	if s.opts.autoExtendVisibility {
		s.extender = newVisibilityExtender(s.opts.queues, s.opts.maxMessageExtension, s.logger)
	}

	s.registry.seal()
	s.initialized = true

	return s, nil
}

// Name identifies the transport in logs.
func (s *Server) Name() string {
	return "sqs"
}

// Listen starts one polling loop per queue and blocks until ctx is cancelled
// or [Server.Close] is called. A receive or handler call already in progress
// when the stop signal arrives runs to completion, so Listen may return up
// to one long-poll duration (plus handler time) after the signal. Listen
// returns nil after a clean stop.
func (s *Server) Listen(ctx context.Context) error {
	if !s.initialized {
		return errNotInitialized
	}

	if !s.listening.CompareAndSwap(false, true) {
		return errors.New("SQS server is already listening")
	}

	// In-flight work must not be cut short by the stop signal.
	workCtx := context.WithoutCancel(ctx)

	extenderCtx, cancelExtender := context.WithCancel(workCtx)
	defer cancelExtender()

	extenderDone := make(chan struct{})

	if s.extender != nil {
		go func() {
			defer close(extenderDone)
			s.extender.run(extenderCtx, s.extenderCh)
		}()
	} else {
		close(extenderDone)
	}

	var wg sync.WaitGroup

	for _, q := range s.opts.queues {
		wg.Go(func() {
			s.poll(workCtx, q)
		})
	}

	select {
	case <-ctx.Done():
		s.logger.Info("Context cancelled, stopping SQS server")
	case <-s.stopCh:
		s.logger.Info("SQS server closed")
	}

	s.stop()
	wg.Wait()

	cancelExtender()
	<-extenderDone

	return nil
}

// Close signals every polling loop to stop. It does not wait; [Server.Listen]
// returns once the loops have exited.
func (s *Server) Close() error {
	s.stop()
	return nil
}

func (s *Server) stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

func (s *Server) stopping() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

// wait sleeps for d and reports false if the server was stopped meanwhile.
func (s *Server) wait(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-s.stopCh:
		return false
	case <-timer.C:
		return true
	}
}

func (s *Server) poll(ctx context.Context, q QueueConfig) {
	logger := s.logger.
		WithField("queue_url", q.QueueURL).
		WithField("pattern", q.Pattern.String())

	logger.Info("SQS polling loop started")
	defer logger.Info("SQS polling loop exited")

	for !s.stopping() {
		msgs, err := s.receive(ctx, q)
		if err != nil {
			logger.Error(err.Error())

			if !s.wait(s.opts.pollingInterval) {
				return
			}

			continue
		}

		for _, msg := range msgs {
			s.dispatch(ctx, q, msg, logger)
		}
	}
}

func (s *Server) receive(ctx context.Context, q QueueConfig) ([]*InboundMessage, error) {
	input := &sqs.ReceiveMessageInput{
		QueueUrl:                    &q.QueueURL,
		MaxNumberOfMessages:         q.BatchSize,
		WaitTimeSeconds:             q.WaitTimeSeconds,
		VisibilityTimeout:           q.VisibilityTimeoutSeconds,
		MessageSystemAttributeNames: q.systemAttributeNames(),
		MessageAttributeNames:       q.MessageAttributeNames,
	}

	output, err := s.client.ReceiveMessage(ctx, input)
	if err != nil {
		return nil, &PollError{QueueURL: q.QueueURL, Err: err}
	}

	now := s.opts.clock()
	msgs := make([]*InboundMessage, 0, len(output.Messages))

	for _, m := range output.Messages {
		msgs = append(msgs, newInboundMessage(m, now))
	}

	return msgs, nil
}

func (s *Server) dispatch(ctx context.Context, q QueueConfig, msg *InboundMessage, logger types.Logger) {
	logger = logger.WithField("message_id", msg.ID)

	handler, ok := s.registry.Lookup(q.Pattern)
	if !ok {
		logger.Infof("No handler registered for pattern %s, skipping message", q.Pattern)
		return
	}

	mc := NewMessageContext(s.client, q.QueueURL, msg, logger)

	tracked := s.track(ctx, q, msg, mc)

	err := invoke(ctx, handler, msg, mc)

	if tracked != nil {
		tracked.Settle()
	}

	if err == nil {
		if q.DeleteOnSuccess {
			if err := mc.Delete(ctx); err != nil {
				logger.Errorf("Failed to delete SQS message after successful handling: %v", err)
			}
		}

		logger.Debug("SQS message handled")

		return
	}

	logger.Error((&HandlerError{Pattern: q.Pattern, MessageID: msg.ID, Err: err}).Error())

	if q.RequeueOnError {
		return
	}

	if err := mc.Delete(ctx); err != nil {
		logger.Errorf("Failed to delete failed SQS message: %v", err)
	}
}

// track registers msg with the visibility extender, if enabled for q.
func (s *Server) track(ctx context.Context, q QueueConfig, msg *InboundMessage, mc *MessageContext) *inflightMessage {
	if s.extender == nil || q.VisibilityTimeoutSeconds <= 0 || msg.ReceiptHandle == "" {
		return nil
	}

	tracked := newInflightMessage(msg.ID, msg.ReceivedAt, q.VisibilityTimeoutSeconds, func(ctx context.Context) error {
		return mc.ExtendVisibility(ctx, q.VisibilityTimeoutSeconds)
	})

	if err := trySend(ctx, tracked, s.extenderCh); err != nil {
		return nil
	}

	return tracked
}

func invoke(ctx context.Context, handler Handler, msg *InboundMessage, mc *MessageContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	return handler(ctx, msg, mc)
}

func trySend[T any](ctx context.Context, msg T, sinkCh chan<- T) error {
	select {
	case sinkCh <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
