package preload

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chdown/preload/internal/lifecycle"
	"github.com/chdown/preload/internal/window"
)

type controller = lifecycle.Controller

// Manager keeps a window of initialized players around the viewer position.
//
// Lifecycle:
//  1. New: validates config, copies items. The window starts empty.
//  2. Scroll / Reset: positions the window and drives playback.
//  3. Append / Insert / Remove: mutate the sequence, keep indices consistent.
//  4. Dispose: releases every player. Idempotent.
//
// Thread-safety: all methods are safe for concurrent use.
type Manager[T any] struct {
	cfg     Config[T]
	factory Factory[T]
	logger  *slog.Logger
	retry   lifecycle.RetryConfig

	// Lifetime context, cancelled by Dispose. Background work runs under it.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	items []T
	reg   *window.Registry[*controller]

	// Rebuild bookkeeping, only meaningful while rebuilding is set.
	// staging is the registry being built; mutations shift it alongside reg.
	// detached holds controllers split off by inserts inside the window.
	// retiring holds controllers whose items were removed.
	staging  *window.Registry[*controller]
	detached []window.Entry[*controller]
	retiring []*controller

	active      int
	previous    int
	scrollSeq   uint64 // bumped by every Scroll and Reset
	generation  uint64 // bumped by Reset; rebuilds of an older generation are discarded
	genCtx      context.Context
	genCancel   context.CancelFunc // cancels initializations of the current generation
	rebuilding  bool
	dirty       bool // a mutation-driven rebuild was requested during a rebuild
	pivot       int  // anchor for the pending replay
	pendingMode rebuildMode
	paginating  bool
	disposed    bool
	firstPlayed bool
}

// New creates a manager over a copy of items. factory builds the Player for
// an item when it enters the window.
//
// The window starts empty: call Scroll or Reset to position it.
func New[T any](items []T, factory Factory[T], cfg Config[T]) (*Manager[T], error) {
	if factory == nil {
		return nil, fmt.Errorf("preload: factory is required: %w", ErrInvalidConfig)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	genCtx, genCancel := context.WithCancel(ctx)
	m := &Manager[T]{
		cfg:     cfg,
		factory: factory,
		logger:  cfg.Logger,
		retry: lifecycle.RetryConfig{
			MaxRetries:    cfg.InitRetries,
			RetryDelay:    cfg.InitRetryDelay,
			MaxRetryDelay: cfg.InitRetryMaxDelay,
		},
		ctx:       ctx,
		cancel:    cancel,
		genCtx:    genCtx,
		genCancel: genCancel,
		items:     append([]T(nil), items...),
		reg:       window.NewRegistry[*controller](0),
		active:    -1,
		previous:  -1,
	}

	m.logger.Debug("preload: manager created",
		"items", len(m.items),
		"strategy", cfg.Strategy.String(),
		"backward", cfg.Backward,
		"forward", cfg.Forward,
		"capacity", cfg.Capacity,
	)

	return m, nil
}

// Len returns the number of items in the sequence.
func (m *Manager[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Items returns a copy of the item sequence.
func (m *Manager[T]) Items() []T {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]T(nil), m.items...)
}

// ActiveIndex returns the active index, or -1.
func (m *Manager[T]) ActiveIndex() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Window returns the live window bounds.
func (m *Manager[T]) Window() Window {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reg.Bounds()
}

// Paginating reports whether a pagination fetch is in flight.
func (m *Manager[T]) Paginating() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paginating
}

// Disposed reports whether Dispose was called.
func (m *Manager[T]) Disposed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disposed
}

// ControllerAt returns the player registered for index, if index is inside
// the live window. The player may still be initializing.
func (m *Manager[T]) ControllerAt(index int) (Player, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.reg.At(index)
	if !ok {
		return nil, false
	}
	return c.Player(), true
}

// CurrentController returns the player at the active index, falling back to
// the last scroll target and then to the middle of the window.
func (m *Manager[T]) CurrentController() (Player, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	index := m.active
	if index < 0 {
		index = m.previous
	}
	if index < 0 {
		b := m.reg.Bounds()
		if b.Empty() {
			return nil, false
		}
		index = b.Start + b.Len()/2
	}

	c, ok := m.reg.At(index)
	if !ok {
		return nil, false
	}
	return c.Player(), true
}

// ControllerIndex returns the index of the live window entry holding p.
func (m *Manager[T]) ControllerIndex(p Player) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reg.Find(func(c *controller) bool { return c.Player() == p })
}

// Status returns a snapshot of manager state.
func (m *Manager[T]) Status() Status {
	m.mu.Lock()
	s := Status{
		Total:       len(m.items),
		Window:      m.reg.Bounds(),
		Live:        m.reg.Len(),
		ActiveIndex: m.active,
		PrevIndex:   m.previous,
		Strategy:    m.cfg.Strategy,
		Rebuilding:  m.rebuilding,
		Paginating:  m.paginating,
		Disposed:    m.disposed,
	}
	handles := m.reg.Handles()
	m.mu.Unlock()

	// Player state queries run outside the lock.
	for _, c := range handles {
		if c.Ready() {
			s.Ready++
		}
		if c.Playing() {
			s.Playing++
		}
	}
	return s
}

// Dispose releases every player and stops background work. It waits for an
// in-flight pagination fetch to return (or ctx). Idempotent; the returned
// error aggregates player disposal failures for telemetry only.
func (m *Manager[T]) Dispose(ctx context.Context) error {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return nil
	}
	m.disposed = true
	owned := m.ownedLocked()
	m.items = nil
	m.reg = window.NewRegistry[*controller](0)
	m.staging = nil
	m.detached = nil
	m.retiring = nil
	m.active = -1
	m.previous = -1
	m.mu.Unlock()

	m.cancel()
	err := m.retire(ctx, owned)

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("preload: dispose returned before background work finished", "error", ctx.Err())
	}

	m.logger.Info("preload: manager disposed", "controllers", len(owned))
	m.emit(Event{Kind: EventDisposed, Index: -1, Count: len(owned)})
	return err
}

// ownedLocked collects every controller the manager currently owns, without
// duplicates, in registry order.
func (m *Manager[T]) ownedLocked() []*controller {
	var all []*controller
	all = append(all, m.reg.Handles()...)
	if m.staging != nil {
		all = append(all, m.staging.Handles()...)
	}
	for _, e := range m.detached {
		all = append(all, e.Handle)
	}
	all = append(all, m.retiring...)
	return dedupe(all)
}

func dedupe(ctrls []*controller) []*controller {
	seen := make(map[*controller]struct{}, len(ctrls))
	out := ctrls[:0:0]
	for _, c := range ctrls {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// retire disposes controllers sequentially outside the lock. Disposal is not
// tied to the caller's cancellation: resources are released regardless.
func (m *Manager[T]) retire(ctx context.Context, ctrls []*controller) error {
	ctrls = dedupe(ctrls)
	if len(ctrls) == 0 {
		return nil
	}

	return lifecycle.DisposeAll(context.WithoutCancel(ctx), ctrls, m.cfg.Quiescence, func(c *controller, err error) {
		if err != nil {
			m.logger.Warn("preload: controller disposal failed",
				"controller_id", c.ID(),
				"source", c.Player().SourceID(),
				"error", err,
			)
			m.emit(Event{Kind: EventControllerDisposeFailed, Index: -1, ControllerID: c.ID(), Source: c.Player().SourceID(), Err: err})
			m.reportError(err)
			return
		}
		m.emit(Event{Kind: EventControllerDisposed, Index: -1, ControllerID: c.ID(), Source: c.Player().SourceID()})
	})
}

// emit forwards e to the event sink. Must be called without m.mu held.
func (m *Manager[T]) emit(e Event) {
	if m.cfg.Events == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	m.cfg.Events.Emit(e)
}

// reportError forwards err to the OnError hook. Must be called without m.mu held.
func (m *Manager[T]) reportError(err error) {
	if err == nil || m.cfg.Hooks.OnError == nil {
		return
	}
	m.cfg.Hooks.OnError(err)
}

// notifyPlayState calls the OnPlayStateChanged hook. Must be called without m.mu held.
func (m *Manager[T]) notifyPlayState() {
	if m.cfg.Hooks.OnPlayStateChanged != nil {
		m.cfg.Hooks.OnPlayStateChanged()
	}
}
