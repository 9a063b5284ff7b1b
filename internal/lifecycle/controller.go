package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotReady is returned by Play and Pause before Initialize succeeded.
	ErrNotReady = errors.New("lifecycle: controller not initialized")

	// ErrDisposed is returned by operations on a disposed controller.
	ErrDisposed = errors.New("lifecycle: controller disposed")
)

// Controller wraps one Player and tracks its lifecycle state.
//
// Thread-safety: all methods are safe for concurrent use. The internal mutex
// only guards state bookkeeping and is never held across a Player call.
type Controller struct {
	id     string
	player Player
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	initDone chan struct{} // closed when Initialize returns; nil before it starts
	initErr  error
}

// New wraps player in a controller in the Created state.
func New(player Player, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New().String()
	return &Controller{
		id:     id,
		player: player,
		logger: logger.With("controller_id", id, "source", player.SourceID()),
		state:  StateCreated,
	}
}

// ID returns the unique controller identifier.
func (c *Controller) ID() string { return c.id }

// Player returns the wrapped player.
func (c *Controller) Player() Player { return c.player }

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Ready reports whether the controller initialized successfully and has not
// started disposal.
func (c *Controller) Ready() bool {
	c.mu.Lock()
	s := c.state
	c.mu.Unlock()
	return s.initialized() && c.player.IsInitialized()
}

// Playing reports whether the wrapped player is currently playing.
func (c *Controller) Playing() bool {
	return c.Ready() && c.player.IsPlaying()
}

// Err returns the error of the last Initialize, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initErr
}

// Initialize runs Player.Initialize, retrying per retry.
//
// Only the first call does work; later calls wait for it and return its
// result. Initialization failures are not fatal to the manager: the
// controller simply stays in StateInitFailed and is never played.
func (c *Controller) Initialize(ctx context.Context, retry RetryConfig) error {
	c.mu.Lock()
	switch {
	case c.state.terminal():
		c.mu.Unlock()
		return ErrDisposed
	case c.initDone != nil:
		done := c.initDone
		c.mu.Unlock()
		select {
		case <-done:
			return c.Err()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.state = StateInitializing
	c.initDone = make(chan struct{})
	c.mu.Unlock()

	start := time.Now()
	attempts, err := RunWithRetry(ctx, c.safeInitialize, retry, c.logger)

	c.mu.Lock()
	if !c.state.terminal() {
		if err != nil {
			c.state = StateInitFailed
		} else {
			c.state = StateReady
		}
	}
	c.initErr = err
	close(c.initDone)
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("lifecycle: initialization failed", "attempts", attempts, "error", err)
		return fmt.Errorf("lifecycle: initialize %s: %w", c.player.SourceID(), err)
	}
	c.logger.Debug("lifecycle: initialized", "attempts", attempts, "duration", time.Since(start))
	return nil
}

// safeInitialize converts a panic inside Player.Initialize into an error so
// that waiters on initDone are always released.
func (c *Controller) safeInitialize(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return c.player.Initialize(ctx)
}

// Play starts playback. Returns ErrNotReady before a successful Initialize.
func (c *Controller) Play(ctx context.Context) error {
	return c.transition(ctx, c.player.Play, StatePlaying)
}

// Pause stops playback. Returns ErrNotReady before a successful Initialize.
func (c *Controller) Pause(ctx context.Context) error {
	return c.transition(ctx, c.player.Pause, StatePaused)
}

func (c *Controller) transition(ctx context.Context, fn func(context.Context) error, next State) error {
	c.mu.Lock()
	switch {
	case c.state.terminal():
		c.mu.Unlock()
		return ErrDisposed
	case !c.state.initialized():
		c.mu.Unlock()
		return ErrNotReady
	}
	c.mu.Unlock()

	if err := fn(ctx); err != nil {
		return fmt.Errorf("lifecycle: %s %s: %w", next, c.player.SourceID(), err)
	}

	c.mu.Lock()
	if c.state.initialized() {
		c.state = next
	}
	c.mu.Unlock()
	return nil
}

// Dispose releases the player. Idempotent.
//
// Sequence: wait for an in-flight Initialize (or ctx), pause if playing
// (failures logged, not fatal), sleep quiescence, Player.Dispose, sleep
// quiescence.
func (c *Controller) Dispose(ctx context.Context, quiescence time.Duration) error {
	c.mu.Lock()
	if c.state.terminal() {
		c.mu.Unlock()
		return nil
	}
	prev := c.state
	done := c.initDone
	c.state = StateDisposing
	c.mu.Unlock()

	if prev == StateInitializing && done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			c.logger.Warn("lifecycle: disposing while initialization still in flight", "error", ctx.Err())
		}
	}

	if c.player.IsInitialized() && c.player.IsPlaying() {
		if err := c.player.Pause(ctx); err != nil {
			c.logger.Warn("lifecycle: pause before dispose failed", "error", err)
		}
	}

	sleepCtx(ctx, quiescence)
	err := c.player.Dispose(ctx)
	sleepCtx(ctx, quiescence)

	c.mu.Lock()
	c.state = StateDisposed
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("lifecycle: dispose %s: %w", c.player.SourceID(), err)
	}
	c.logger.Debug("lifecycle: disposed")
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
