// Package microservice runs one or more message transports as a single
// process with a shared lifetime.
package microservice

import (
	"context"
	"errors"
	"fmt"

	"github.com/slackmgr/types"
	"golang.org/x/sync/errgroup"
)

// Transport is a message source the App can run, such as *sqs.Server.
// Listen blocks until the context is cancelled or Close is called.
type Transport interface {
	Name() string
	Listen(ctx context.Context) error
	Close() error
}

// App runs transports until the context ends or one of them fails.
type App struct {
	transports []Transport
	logger     types.Logger
}

// New returns an App for the given transports.
func New(logger types.Logger, transports ...Transport) *App {
	return &App{
		transports: transports,
		logger:     logger,
	}
}

// Run starts every transport and blocks until all have stopped. The first
// transport error stops the others and is returned.
func (a *App) Run(ctx context.Context) error {
	if len(a.transports) == 0 {
		return errors.New("no transports configured")
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, t := range a.transports {
		logger := a.logger.WithField("transport", t.Name())

		g.Go(func() error {
			logger.Info("Transport starting")

			if err := t.Listen(gctx); err != nil {
				logger.Errorf("Transport failed: %v", err)
				return fmt.Errorf("transport %s: %w", t.Name(), err)
			}

			logger.Info("Transport stopped")

			return nil
		})
	}

	err := g.Wait()

	for _, t := range a.transports {
		if closeErr := t.Close(); closeErr != nil {
			a.logger.WithField("transport", t.Name()).Errorf("Failed to close transport: %v", closeErr)
		}
	}

	return err
}
