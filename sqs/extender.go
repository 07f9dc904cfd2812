package sqs

import (
	"context"
	"sync"
	"time"

	"github.com/slackmgr/types"
	"golang.org/x/sync/semaphore"
)

// visibilityExtender tracks messages whose handlers are running and extends
// their visibility timeout so they are not redelivered mid-processing.
//
// Extension is best-effort: a message whose extension fails is dropped from
// tracking and may be redelivered once its current timeout expires.
type visibilityExtender struct {
	inFlightMessages map[string]*inflightMessage
	maxExtension     time.Duration
	checkInterval    time.Duration
	logger           types.Logger
}

func newVisibilityExtender(queues []QueueConfig, maxExtension time.Duration, logger types.Logger) *visibilityExtender {
	shortest := int32(0)

	for _, q := range queues {
		if q.VisibilityTimeoutSeconds > 0 && (shortest == 0 || q.VisibilityTimeoutSeconds < shortest) {
			shortest = q.VisibilityTimeoutSeconds
		}
	}

	return &visibilityExtender{
		inFlightMessages: make(map[string]*inflightMessage),
		maxExtension:     maxExtension,
		checkInterval:    max(time.Duration(shortest/3)*time.Second, 5*time.Second),
		logger:           logger,
	}
}

func (m *visibilityExtender) run(ctx context.Context, sourceCh <-chan *inflightMessage) {
	m.logger.Info("SQS visibility extender started")
	defer m.logger.Info("SQS visibility extender exited")

	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.processInFlightMessages(ctx)
		case msg, ok := <-sourceCh:
			if !ok {
				return
			}

			m.inFlightMessages[msg.MessageID()] = msg
		}
	}
}

func (m *visibilityExtender) processInFlightMessages(ctx context.Context) {
	if len(m.inFlightMessages) == 0 {
		return
	}

	inNeedOfExtension := []*inflightMessage{}

	for id, msg := range m.inFlightMessages {
		if msg.IsSettled() {
			delete(m.inFlightMessages, id)
			continue
		}

		if time.Since(msg.ReceivedAt())+msg.visibilityTimeout >= m.maxExtension {
			m.logger.WithField("message_id", id).Info("SQS message reached the maximum visibility extension, no longer extending")
			delete(m.inFlightMessages, id)
			continue
		}

		if msg.NeedsExtensionNow() {
			inNeedOfExtension = append(inNeedOfExtension, msg)
		}
	}

	if len(inNeedOfExtension) == 0 {
		return
	}

	if len(inNeedOfExtension) < 3 {
		m.extendMessagesSync(ctx, inNeedOfExtension)
	} else {
		m.extendMessagesAsync(ctx, inNeedOfExtension)
	}
}

func (m *visibilityExtender) extendMessagesSync(ctx context.Context, inNeedOfExtension []*inflightMessage) {
	for _, msg := range inNeedOfExtension {
		if err := msg.ExtendVisibility(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}

			m.logger.WithField("message_id", msg.MessageID()).Errorf("Failed to extend message visibility, removing from in-flight tracking: %v", err)

			delete(m.inFlightMessages, msg.MessageID())
		}
	}
}

func (m *visibilityExtender) extendMessagesAsync(ctx context.Context, inNeedOfExtension []*inflightMessage) {
	started := time.Now()

	wg := sync.WaitGroup{}
	sem := semaphore.NewWeighted(3)
	var mu sync.Mutex
	failed := []string{}

	for _, msg := range inNeedOfExtension {
		wg.Go(func() {
			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer sem.Release(1)

			if err := msg.ExtendVisibility(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}

				m.logger.WithField("message_id", msg.MessageID()).Errorf("Failed to extend message visibility, removing from in-flight tracking: %v", err)

				mu.Lock()
				failed = append(failed, msg.MessageID())
				mu.Unlock()
			}
		})
	}

	wg.Wait()

	if ctx.Err() != nil {
		return
	}

	for _, id := range failed {
		delete(m.inFlightMessages, id)
	}

	m.logger.WithField("elapsed", time.Since(started)).WithField("count", len(inNeedOfExtension)).Debug("Extended SQS message visibility")
}
