package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/slackmgr/orderbus/sqs"
	"github.com/slackmgr/types"
)

// Attribute names set on every order message, next to the standard ones.
const (
	AttrOrderID    = "orderId"
	AttrCustomerID = "customerId"
	AttrCreatedAt  = "createdAtIso"
)

// Publisher publishes one event to all destinations. *sqs.Publisher
// implements it.
type Publisher interface {
	Publish(ctx context.Context, ev sqs.Event) error
}

// Producer publishes orders.
type Producer struct {
	publisher Publisher
	clock     func() time.Time
	logger    types.Logger
}

// NewProducer returns a producer publishing through publisher.
func NewProducer(publisher Publisher, logger types.Logger) *Producer {
	return &Producer{
		publisher: publisher,
		clock:     time.Now,
		logger:    logger.WithField("component", "order-producer"),
	}
}

// PublishOrder normalizes and validates order and publishes it to every
// destination. It returns the normalized order; on a partial failure the
// returned error is a *sqs.PublishError.
func (p *Producer) PublishOrder(ctx context.Context, order Order) (Order, error) {
	order = Normalize(order, p.clock())

	if err := order.Validate(); err != nil {
		return order, fmt.Errorf("invalid order: %w", err)
	}

	ev, err := Event(order)
	if err != nil {
		return order, err
	}

	if err := p.publisher.Publish(ctx, ev); err != nil {
		return order, fmt.Errorf("failed to publish order %s: %w", order.OrderID, err)
	}

	p.logger.WithField("order_id", order.OrderID).Info("Order published")

	return order, nil
}

// Event maps a normalized order to a transport event. The customer id
// orders events on FIFO queues.
func Event(order Order) (sqs.Event, error) {
	body, err := json.Marshal(order)
	if err != nil {
		return sqs.Event{}, fmt.Errorf("failed to marshal order %s: %w", order.OrderID, err)
	}

	ev := sqs.Event{
		ID:            order.OrderID,
		CorrelationID: order.CustomerID,
		PartitionKey:  order.CustomerID,
		Body:          body,
		Attributes: map[string]string{
			AttrOrderID:    order.OrderID,
			AttrCustomerID: order.CustomerID,
			AttrCreatedAt:  order.CreatedAt,
		},
	}

	if ts, err := time.Parse(time.RFC3339Nano, order.CreatedAt); err == nil {
		ev.Timestamp = ts
	}

	return ev, nil
}
