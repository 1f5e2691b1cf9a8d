// Package shutdown stops the long-running parts of the certifier service in
// order, within a grace period.
package shutdown

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultGracePeriod bounds how long graceful stops may take before the
// coordinator falls back to forceful ones.
const DefaultGracePeriod = 10 * time.Second

// Component is a resource stopped during shutdown. Stop must return once ctx
// is done; Force, when set, is called if Stop outlives the grace period.
type Component struct {
	Name  string
	Stop  func(ctx context.Context) error
	Force func()
}

// Coordinator stops registered components in reverse registration order.
type Coordinator struct {
	gracePeriod time.Duration
	logger      *slog.Logger

	mu         sync.Mutex
	components []Component
	once       sync.Once
	err        error
}

// NewCoordinator returns a coordinator. A non-positive gracePeriod selects
// DefaultGracePeriod; a nil logger discards output.
func NewCoordinator(gracePeriod time.Duration, logger *slog.Logger) *Coordinator {
	if gracePeriod <= 0 {
		gracePeriod = DefaultGracePeriod
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Coordinator{gracePeriod: gracePeriod, logger: logger}
}

// Register adds a component. Components registered after Shutdown started are
// ignored.
func (c *Coordinator) Register(comp Component) {
	if comp.Stop == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.components = append(c.components, comp)
}

// Shutdown stops every component once; later calls return the first result.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.once.Do(func() {
		c.mu.Lock()
		comps := c.components
		c.components = nil
		c.mu.Unlock()

		graceCtx, cancel := context.WithTimeout(ctx, c.gracePeriod)
		defer cancel()

		c.logger.Info("shutting down", "components", len(comps), "grace_period", c.gracePeriod)
		var errs []error
		for i := len(comps) - 1; i >= 0; i-- {
			if err := c.stop(graceCtx, comps[i]); err != nil {
				errs = append(errs, err)
			}
		}
		c.err = stderrors.Join(errs...)
		if c.err != nil {
			c.logger.Error("shutdown finished with errors", "error", c.err)
		} else {
			c.logger.Info("shutdown complete")
		}
	})
	return c.err
}

func (c *Coordinator) stop(ctx context.Context, comp Component) error {
	done := make(chan error, 1)
	go func() { done <- comp.Stop(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("stop %s: %w", comp.Name, err)
		}
		return nil
	case <-ctx.Done():
		c.logger.Warn("grace period exceeded, forcing stop", "component", comp.Name)
		if comp.Force != nil {
			comp.Force()
		}
		<-done
		return fmt.Errorf("stop %s: %w", comp.Name, ctx.Err())
	}
}
