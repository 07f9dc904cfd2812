// Package email delivers order notifications through Mailgun.
package email

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/slackmgr/orderbus/orders"
	"github.com/slackmgr/types"
)

const defaultSendTimeout = 30 * time.Second

// client is the subset of *mailgun.MailgunImpl used by Sender.
type client interface {
	NewMessage(from, subject, text string, to ...string) *mailgun.Message
	Send(ctx context.Context, m *mailgun.Message) (string, string, error)
}

// Option configures a Sender.
type Option func(*Sender)

// WithAPIBase points the client at another Mailgun region or a local stub,
// e.g. mailgun.APIBaseEU.
func WithAPIBase(url string) Option {
	return func(s *Sender) {
		s.apiBase = url
	}
}

// WithTimeout bounds each send. Defaults to 30 seconds.
func WithTimeout(d time.Duration) Option {
	return func(s *Sender) {
		s.timeout = d
	}
}

// WithLogger sets the logger used for delivery logs.
func WithLogger(logger types.Logger) Option {
	return func(s *Sender) {
		s.logger = logger
	}
}

// Sender implements orders.EmailSender.
type Sender struct {
	client  client
	apiBase string
	timeout time.Duration
	logger  types.Logger
}

var _ orders.EmailSender = (*Sender)(nil)

// New creates a Mailgun sender for the given sending domain.
func New(domain, apiKey string, opts ...Option) (*Sender, error) {
	if domain == "" {
		return nil, errors.New("MAILGUN_DOMAIN is required")
	}

	if apiKey == "" {
		return nil, errors.New("MAILGUN_API_KEY is required")
	}

	s := &Sender{timeout: defaultSendTimeout}

	for _, o := range opts {
		o(s)
	}

	if s.timeout <= 0 {
		return nil, fmt.Errorf("send timeout must be positive, got %v", s.timeout)
	}

	mg := mailgun.NewMailgun(domain, apiKey)
	if s.apiBase != "" {
		mg.SetAPIBase(s.apiBase)
	}

	s.client = mg

	return s, nil
}

// Send delivers one message to all recipients of e.
func (s *Sender) Send(ctx context.Context, e orders.Email) error {
	if e.From == "" {
		return errors.New("sender address is required")
	}

	if len(e.To) == 0 {
		return errors.New("at least one recipient is required")
	}

	message := s.client.NewMessage(e.From, e.Subject, e.Text, e.To...)
	if e.HTML != "" {
		message.SetHtml(e.HTML)
	}

	if s.logger != nil {
		s.logger.WithField("subject", e.Subject).Debugf("Sending email to %d recipient(s)", len(e.To))
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, messageID, err := s.client.Send(sendCtx, message)
	if err != nil {
		return fmt.Errorf("failed to send email %q: %w", e.Subject, err)
	}

	if s.logger != nil {
		s.logger.WithField("message_id", messageID).Info("Email sent")
	}

	return nil
}
