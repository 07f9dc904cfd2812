package sqs

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateHandler is returned when a second handler is registered for a pattern.
	ErrDuplicateHandler = errors.New("a handler is already registered for this pattern")

	// ErrRegistrySealed is returned when registering after the server has started.
	ErrRegistrySealed = errors.New("handler registry is sealed")

	errNotInitialized = errors.New("SQS server not initialized")
)

// PollError wraps a failed ReceiveMessage call. The server logs it and
// retries after the polling interval.
type PollError struct {
	QueueURL string
	Err      error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("failed to poll SQS queue %s: %v", e.QueueURL, e.Err)
}

func (e *PollError) Unwrap() error {
	return e.Err
}

// ParseError reports a message body that could not be decoded.
type ParseError struct {
	MessageID string
	Err       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse body of message %s: %v", e.MessageID, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// HandlerError wraps an error returned (or a panic raised) by a handler.
type HandlerError struct {
	Pattern   Pattern
	MessageID string
	Err       error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler for pattern %s failed on message %s: %v", e.Pattern, e.MessageID, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// PublishError is returned by [Publisher.Publish] when at least one
// destination rejected the message. Err is the first failure in destination
// order; Failed lists every destination that failed. Destinations not in
// Failed did receive the message.
type PublishError struct {
	Destination string
	Failed      []string
	Err         error
}

func (e *PublishError) Error() string {
	if len(e.Failed) > 1 {
		return fmt.Sprintf("failed to publish to %s (and %d more): %v", e.Destination, len(e.Failed)-1, e.Err)
	}

	return fmt.Sprintf("failed to publish to %s: %v", e.Destination, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}
