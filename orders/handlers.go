package orders

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/slackmgr/orderbus/sqs"
	"github.com/slackmgr/types"
)

// Store persists orders. The dynamodb and postgres packages implement it.
type Store interface {
	SaveOrder(ctx context.Context, order Order) error
}

// decodeOrder returns the normalized order in msg, or ok=false for an
// empty body. Malformed bodies yield a *sqs.ParseError.
func decodeOrder(msg *sqs.InboundMessage, now time.Time, logger types.Logger) (Order, bool, error) {
	if len(bytes.TrimSpace(msg.Body)) == 0 {
		logger.Info("Received SQS message without a body, skipping")
		return Order{}, false, nil
	}

	var order Order

	if err := sqs.DecodeJSON(msg, &order); err != nil {
		logger.Errorf("Failed to parse order message %s: %v", msg.ID, err)
		return Order{}, false, err
	}

	return Normalize(order, now), true, nil
}

// PersistenceHandler stores every order it receives.
func PersistenceHandler(store Store, logger types.Logger) sqs.Handler {
	logger = logger.WithField("component", "order-persistence")

	return func(ctx context.Context, msg *sqs.InboundMessage, _ *sqs.MessageContext) error {
		log := logger.WithField("message_id", msg.ID)

		order, ok, err := decodeOrder(msg, time.Now(), log)
		if err != nil || !ok {
			return err
		}

		if err := store.SaveOrder(ctx, order); err != nil {
			return fmt.Errorf("failed to persist order %s: %w", order.OrderID, err)
		}

		log.WithField("order_id", order.OrderID).Info("Order persisted")

		return nil
	}
}
