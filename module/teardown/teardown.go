// Package teardown releases the resources of a run in reverse order of
// acquisition, exactly once, on every exit path.
package teardown

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
)

// Step releases one resource.
type Step func(ctx context.Context) error

// TeardownError collects the failures of all teardown steps.
type TeardownError struct {
	errs *multierror.Error
}

func (e TeardownError) Error() string {
	return fmt.Sprintf("teardown failed: %s", e.errs.Error())
}

// Errors returns the failure of every step that failed, in execution order.
func (e TeardownError) Errors() []error {
	return e.errs.WrappedErrors()
}

func (e TeardownError) Unwrap() []error {
	return e.errs.WrappedErrors()
}

// IsTeardownError returns whether err is a TeardownError
func IsTeardownError(err error) bool {
	var e TeardownError
	return errors.As(err, &e)
}

type step struct {
	name string
	fn   Step
}

// Controller runs the registered steps in reverse registration order when
// Teardown is called. Teardown runs the steps only once; later calls return
// the result of the first.
type Controller struct {
	log zerolog.Logger

	mu    sync.Mutex
	steps []step
	done  bool

	once sync.Once
	err  error
}

func New(log zerolog.Logger) *Controller {
	return &Controller{
		log: log.With().Str("component", "teardown").Logger(),
	}
}

// Register adds a release step. A step registered after teardown has run is
// executed immediately, so the resource is not leaked.
func (c *Controller) Register(name string, fn Step) {
	c.mu.Lock()
	if !c.done {
		c.steps = append(c.steps, step{name: name, fn: fn})
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.log.Warn().Str("step", name).Msg("step registered after teardown, running it now")
	if err := fn(context.Background()); err != nil {
		c.log.Error().Err(err).Str("step", name).Msg("late teardown step failed")
	}
}

// Teardown runs all registered steps in reverse order. A failing step does not
// stop the remaining ones; all failures are returned as a TeardownError.
func (c *Controller) Teardown(ctx context.Context) error {
	c.once.Do(func() {
		c.mu.Lock()
		c.done = true
		steps := c.steps
		c.steps = nil
		c.mu.Unlock()

		c.err = c.run(ctx, steps)
	})
	return c.err
}

func (c *Controller) run(ctx context.Context, steps []step) error {
	started := time.Now()
	var errs *multierror.Error

	for i := len(steps) - 1; i >= 0; i-- {
		s := steps[i]
		log := c.log.With().Str("step", s.name).Logger()

		stepStarted := time.Now()
		err := s.fn(ctx)
		if err != nil {
			log.Error().Err(err).Msg("teardown step failed")
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", s.name, err))
			continue
		}
		log.Debug().Dur("duration", time.Since(stepStarted)).Msg("teardown step done")
	}

	if errs != nil {
		return TeardownError{errs: errs}
	}
	c.log.Info().Int("steps", len(steps)).Dur("duration", time.Since(started)).Msg("teardown complete")
	return nil
}
