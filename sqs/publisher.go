package sqs

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/slackmgr/orderbus/queueconfig"
	"github.com/slackmgr/types"
)

// Attribute names set on every published message.
const (
	AttrEventID       = "eventId"
	AttrCorrelationID = "correlationId"
	AttrTimestamp     = "timestamp"
)

// Event is one logical event published to every destination.
type Event struct {
	// ID identifies the event, e.g. an order id.
	ID string

	// CorrelationID ties related events together, e.g. a customer id.
	// Required.
	CorrelationID string

	// PartitionKey orders events on FIFO destinations. Required when any
	// destination is FIFO.
	PartitionKey string

	// Timestamp defaults to the publisher's clock.
	Timestamp time.Time

	Body []byte

	// Attributes are added to the standard attributes on every destination.
	Attributes map[string]string

	// DeduplicationID overrides the generated FIFO deduplication id.
	DeduplicationID string
}

// Publisher fans an [Event] out to a fixed list of destinations.
//
// Create a Publisher with [NewPublisher] and call [Publisher.Init] once
// before publishing. Publish is safe for concurrent use after Init returns.
type Publisher struct {
	client       API
	awsCfg       *aws.Config
	destinations []queueconfig.Destination
	opts         *Options
	logger       types.Logger
	initialized  bool
}

// NewPublisher creates a Publisher for destinations. The logger is
// automatically enriched with a "plugin" field.
func NewPublisher(awsCfg *aws.Config, destinations []queueconfig.Destination, logger types.Logger, opts ...Option) *Publisher {
	options := newOptions()

	for _, o := range opts {
		o(options)
	}

	return &Publisher{
		awsCfg:       awsCfg,
		destinations: destinations,
		opts:         options,
		logger:       logger.WithField("plugin", "sqs"),
	}
}

// Init validates the destinations and creates the SQS client.
//
// Init is idempotent. It is not thread-safe and must be called once during
// application startup before any concurrent access.
func (p *Publisher) Init(_ context.Context) (*Publisher, error) {
	if p.initialized {
		return p, nil
	}

	if len(p.destinations) == 0 {
		return nil, errors.New("at least one destination must be configured")
	}

	for _, d := range p.destinations {
		if d.URL == "" {
			return nil, fmt.Errorf("destination %s has no queue URL", d.Name)
		}
	}

	if err := p.opts.validateClient(); err != nil {
		return nil, fmt.Errorf("invalid SQS options: %w", err)
	}

	if p.opts.sqsClient != nil {
		p.client = p.opts.sqsClient
	} else {
		if p.awsCfg == nil {
			return nil, errors.New("AWS config cannot be nil")
		}

		p.client = newAPIClient(p.awsCfg, p.opts.sqsAPIMaxRetryAttempts, p.opts.sqsAPIMaxRetryBackoffDelay)
	}

	p.initialized = true

	return p, nil
}

// Destinations returns the configured destinations.
func (p *Publisher) Destinations() []queueconfig.Destination {
	return p.destinations
}

// Publish sends ev to every destination concurrently and waits for all
// sends to finish. Destinations that accepted the message are not affected
// by failures elsewhere. If any send failed, Publish returns a
// [*PublishError] carrying the first failure in destination order.
func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	if !p.initialized {
		return errors.New("SQS publisher not initialized")
	}

	if len(ev.Body) == 0 {
		return errors.New("event body cannot be empty")
	}

	if ev.CorrelationID == "" {
		return fmt.Errorf("event %s has no correlation id", ev.ID)
	}

	if ev.Timestamp.IsZero() {
		ev.Timestamp = p.opts.clock()
	}

	errs := make([]error, len(p.destinations))

	var wg sync.WaitGroup

	for i, dest := range p.destinations {
		wg.Go(func() {
			errs[i] = p.send(ctx, dest, ev)
		})
	}

	wg.Wait()

	var publishErr *PublishError

	for i, err := range errs {
		if err == nil {
			continue
		}

		dest := p.destinations[i]

		p.logger.
			WithField("destination", dest.Name).
			WithField("queue_url", dest.URL).
			Errorf("Failed to publish event %s: %v", ev.ID, err)

		if publishErr == nil {
			publishErr = &PublishError{Destination: dest.Name, Err: err}
		}

		publishErr.Failed = append(publishErr.Failed, dest.Name)
	}

	if publishErr != nil {
		return publishErr
	}

	return nil
}

// BuildMessage returns the message Publish sends to dest for ev.
func (p *Publisher) BuildMessage(dest queueconfig.Destination, ev Event) (OutboundMessage, error) {
	timestamp := ev.Timestamp
	if timestamp.IsZero() {
		timestamp = p.opts.clock()
	}

	attrs := make(map[string]string, len(ev.Attributes)+3)
	maps.Copy(attrs, ev.Attributes)

	attrs[AttrEventID] = ev.ID
	attrs[AttrCorrelationID] = ev.CorrelationID
	attrs[AttrTimestamp] = timestamp.UTC().Format(time.RFC3339Nano)

	msg := OutboundMessage{
		Body:              string(ev.Body),
		MessageAttributes: attrs,
	}

	if !dest.FIFO {
		return msg, nil
	}

	if ev.PartitionKey == "" {
		return OutboundMessage{}, fmt.Errorf("event %s has no partition key, required by FIFO destination %s", ev.ID, dest.Name)
	}

	msg.GroupID = ev.PartitionKey
	msg.DeduplicationID = ev.DeduplicationID

	if msg.DeduplicationID == "" {
		msg.DeduplicationID = p.opts.newDeduplicationID()
	}

	return msg, nil
}

func (p *Publisher) send(ctx context.Context, dest queueconfig.Destination, ev Event) error {
	msg, err := p.BuildMessage(dest, ev)
	if err != nil {
		return err
	}

	if dest.FIFO {
		return p.sendToFifoQueue(ctx, dest, msg)
	}

	return p.sendToStdQueue(ctx, dest, msg)
}

func (p *Publisher) sendToFifoQueue(ctx context.Context, dest queueconfig.Destination, msg OutboundMessage) error {
	input := &sqs.SendMessageInput{
		QueueUrl:               &dest.URL,
		MessageGroupId:         &msg.GroupID,
		MessageDeduplicationId: &msg.DeduplicationID,
		MessageBody:            &msg.Body,
		MessageAttributes:      toMessageAttributes(msg.MessageAttributes),
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("failed to send SQS message: %w", err)
	}

	p.logger.Debugf("Message sent to FIFO SQS queue %s with group ID %s and dedup ID %s", dest.URL, msg.GroupID, msg.DeduplicationID)

	return nil
}

func (p *Publisher) sendToStdQueue(ctx context.Context, dest queueconfig.Destination, msg OutboundMessage) error {
	input := &sqs.SendMessageInput{
		QueueUrl:          &dest.URL,
		MessageBody:       &msg.Body,
		MessageAttributes: toMessageAttributes(msg.MessageAttributes),
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("failed to send SQS message: %w", err)
	}

	p.logger.Debugf("Message sent to standard SQS queue %s", dest.URL)

	return nil
}
