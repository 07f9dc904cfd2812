package sqs

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
)

// Handler processes one message. A nil return marks the message as handled;
// any error is treated as a handler failure and the queue's requeue policy
// applies. mc is never nil.
type Handler func(ctx context.Context, msg *InboundMessage, mc *MessageContext) error

// Registry maps patterns to handlers. Register every handler before
// passing the registry to [NewServer]; the registry becomes read-only once
// the server is initialized.
type Registry struct {
	handlers map[Pattern]Handler
	sealed   atomic.Bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[Pattern]Handler),
	}
}

// Register binds handler to pattern. It fails with [ErrDuplicateHandler] if
// the pattern is taken and with [ErrRegistrySealed] after the server started.
func (r *Registry) Register(pattern Pattern, handler Handler) error {
	if r.sealed.Load() {
		return fmt.Errorf("cannot register pattern %s: %w", pattern, ErrRegistrySealed)
	}

	if pattern == "" {
		return errors.New("pattern cannot be empty")
	}

	if handler == nil {
		return fmt.Errorf("handler for pattern %s cannot be nil", pattern)
	}

	if _, ok := r.handlers[pattern]; ok {
		return fmt.Errorf("cannot register pattern %s: %w", pattern, ErrDuplicateHandler)
	}

	r.handlers[pattern] = handler

	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(pattern Pattern, handler Handler) {
	if err := r.Register(pattern, handler); err != nil {
		panic(err)
	}
}

// Lookup returns the handler bound to pattern.
func (r *Registry) Lookup(pattern Pattern) (Handler, bool) {
	h, ok := r.handlers[pattern]
	return h, ok
}

// Patterns returns the registered patterns in sorted order.
func (r *Registry) Patterns() []Pattern {
	patterns := make([]Pattern, 0, len(r.handlers))

	for p := range r.handlers {
		patterns = append(patterns, p)
	}

	slices.Sort(patterns)

	return patterns
}

func (r *Registry) seal() {
	r.sealed.Store(true)
}
