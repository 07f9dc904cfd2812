package sqs

import (
	"context"
	"sync"
	"time"
)

// inflightMessage is a message whose handler is still running. The
// extender keeps its visibility timeout ahead of the clock until the server
// settles it.
type inflightMessage struct {
	messageID         string
	receivedAt        time.Time
	lastExtendedAt    time.Time
	visibilityTimeout time.Duration
	extendFunc        func(ctx context.Context) error
	lock              sync.Mutex
}

func newInflightMessage(messageID string, receivedAt time.Time, visibilityTimeoutSeconds int32, extend func(ctx context.Context) error) *inflightMessage {
	return &inflightMessage{
		messageID:         messageID,
		receivedAt:        receivedAt,
		lastExtendedAt:    receivedAt,
		visibilityTimeout: time.Duration(visibilityTimeoutSeconds) * time.Second,
		extendFunc:        extend,
	}
}

func (m *inflightMessage) MessageID() string {
	return m.messageID
}

func (m *inflightMessage) ReceivedAt() time.Time {
	return m.receivedAt
}

// Settle marks the handler as finished. Further extension calls are no-ops.
func (m *inflightMessage) Settle() {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.extendFunc = nil
}

func (m *inflightMessage) IsSettled() bool {
	m.lock.Lock()
	defer m.lock.Unlock()

	return m.extendFunc == nil
}

// NeedsExtensionNow returns true once half of the visibility timeout has
// passed since the last extension.
func (m *inflightMessage) NeedsExtensionNow() bool {
	m.lock.Lock()
	defer m.lock.Unlock()

	return m.extendFunc != nil && time.Since(m.lastExtendedAt) > m.visibilityTimeout/2
}

// ExtendVisibility pushes the visibility timeout forward. lastExtendedAt is
// only updated on success.
func (m *inflightMessage) ExtendVisibility(ctx context.Context) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	// Settled while we waited for the lock.
	if m.extendFunc == nil {
		return nil
	}

	if err := m.extendFunc(ctx); err != nil {
		return err
	}

	m.lastExtendedAt = time.Now()

	return nil
}
