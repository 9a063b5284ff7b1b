package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// InitializeAll initializes every controller concurrently and blocks until
// all of them settled. The returned slice holds one error (or nil) per
// controller, in input order.
func InitializeAll(ctx context.Context, ctrls []*Controller, retry RetryConfig) []error {
	errs := make([]error, len(ctrls))
	if len(ctrls) == 0 {
		return errs
	}

	var wg sync.WaitGroup
	wg.Add(len(ctrls))
	for i, c := range ctrls {
		go func(i int, c *Controller) {
			defer wg.Done()
			errs[i] = c.Initialize(ctx, retry)
		}(i, c)
	}
	wg.Wait()

	return errs
}

// DisposeAll disposes controllers one at a time, in order. A failure (or a
// panic inside a Player) is confined to its controller and never prevents
// the rest from being released. onDone, if non-nil, observes each result.
//
// The joined error is for telemetry only.
func DisposeAll(ctx context.Context, ctrls []*Controller, quiescence time.Duration, onDone func(*Controller, error)) error {
	var errs []error
	for _, c := range ctrls {
		err := disposeIsolated(ctx, c, quiescence)
		if err != nil {
			errs = append(errs, err)
		}
		if onDone != nil {
			onDone(c, err)
		}
	}
	return errors.Join(errs...)
}

func disposeIsolated(ctx context.Context, c *Controller, quiescence time.Duration) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.mu.Lock()
			c.state = StateDisposed
			c.mu.Unlock()
			err = fmt.Errorf("lifecycle: dispose %s panicked: %v", c.player.SourceID(), r)
		}
	}()
	return c.Dispose(ctx, quiescence)
}
