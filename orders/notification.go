package orders

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/slackmgr/orderbus/config"
	"github.com/slackmgr/orderbus/sqs"
	"github.com/slackmgr/types"
)

// Email is a message to deliver to a list of recipients.
type Email struct {
	From    string
	To      []string
	Subject string
	Text    string
	HTML    string
}

// EmailSender delivers email. The email package implements it.
type EmailSender interface {
	Send(ctx context.Context, email Email) error
}

// Recipients is the sender address and recipient list of notifications.
type Recipients struct {
	From string
	To   []string
}

// NewRecipients validates the notification addresses. Blank entries in the
// recipient list are dropped; at least one must remain.
func NewRecipients(cfg config.NotificationConfig) (Recipients, error) {
	from := strings.TrimSpace(cfg.From)
	if from == "" {
		return Recipients{}, errors.New("NOTIFICATION_EMAIL_FROM is required")
	}

	to := make([]string, 0, len(cfg.To))

	for _, addr := range cfg.To {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, addr)
		}
	}

	if len(to) == 0 {
		return Recipients{}, errors.New("NOTIFICATION_EMAIL_TO must include at least one recipient")
	}

	return Recipients{From: from, To: to}, nil
}

// NotificationEmail renders the notification for order.
func NotificationEmail(order Order, r Recipients) Email {
	total := fmt.Sprintf("%v %s", order.TotalAmount, order.Currency)

	text := fmt.Sprintf("A new order was received.\nOrder ID: %s\nCustomer: %s\nTotal: %s\nCreated at: %s",
		order.OrderID, order.CustomerID, total, order.CreatedAt)

	var b strings.Builder

	b.WriteString("<h1>New order received</h1>\n")
	fmt.Fprintf(&b, "<p><strong>Order ID:</strong> %s</p>\n", html.EscapeString(order.OrderID))
	fmt.Fprintf(&b, "<p><strong>Customer:</strong> %s</p>\n", html.EscapeString(order.CustomerID))
	fmt.Fprintf(&b, "<p><strong>Total:</strong> %s</p>\n", html.EscapeString(total))
	fmt.Fprintf(&b, "<p><strong>Created at:</strong> %s</p>\n", html.EscapeString(order.CreatedAt))

	return Email{
		From:    r.From,
		To:      r.To,
		Subject: "New order " + order.OrderID,
		Text:    text,
		HTML:    b.String(),
	}
}

// NotificationHandler emails the recipients about every order it receives.
func NotificationHandler(sender EmailSender, r Recipients, logger types.Logger) sqs.Handler {
	logger = logger.WithField("component", "order-notification")

	return func(ctx context.Context, msg *sqs.InboundMessage, _ *sqs.MessageContext) error {
		log := logger.WithField("message_id", msg.ID)

		order, ok, err := decodeOrder(msg, time.Now(), log)
		if err != nil || !ok {
			return err
		}

		if err := sender.Send(ctx, NotificationEmail(order, r)); err != nil {
			return fmt.Errorf("failed to send notification for order %s: %w", order.OrderID, err)
		}

		log.WithField("order_id", order.OrderID).Info("Notification email sent")

		return nil
	}
}
