package preload

import (
	"context"

	"github.com/chdown/preload/internal/lifecycle"
	"github.com/chdown/preload/internal/window"
)

// rebuildMode tells the engine why a rebuild was requested.
type rebuildMode int

const (
	// modeScroll follows the viewer. Dropped while a rebuild is in flight.
	modeScroll rebuildMode = iota
	// modeShift follows an edit outside the window. Indices already shifted,
	// the policy only tops the window up.
	modeShift
	// modeAppend follows appended items. The incremental policy grows the tail.
	modeAppend
	// modeAnchor follows an edit inside the window or a reset: full re-anchor
	// regardless of strategy.
	modeAnchor
)

func (m rebuildMode) String() string {
	switch m {
	case modeScroll:
		return "scroll"
	case modeShift:
		return "shift"
	case modeAppend:
		return "append"
	case modeAnchor:
		return "anchor"
	default:
		return "unknown"
	}
}

// rebuildLocked reconciles the window for pivot and waits for it to settle.
// It must be called with m.mu held and returns with m.mu released.
//
// Only one rebuild runs at a time. A scroll-driven request that finds one in
// flight is dropped; any other request is recorded and replayed by the
// in-flight rebuild once it completes, anchored at the latest pivot.
//
// Each pass:
//  1. computes target bounds and stages a registry that retains every live
//     controller inside them and creates the rest,
//  2. initializes all new controllers (barrier),
//  3. swaps the staged registry in under the lock,
//  4. disposes retired controllers outside the lock, in registry order,
//  5. runs the autoplay continuation.
func (m *Manager[T]) rebuildLocked(ctx context.Context, pivot int, mode rebuildMode) bool {
	if m.disposed {
		m.mu.Unlock()
		return false
	}
	if m.rebuilding {
		replay := mode != modeScroll
		if replay {
			m.requestReplayLocked(pivot, mode)
		}
		m.mu.Unlock()

		m.logger.Debug("preload: rebuild already in flight",
			"pivot", pivot,
			"mode", mode.String(),
			"replayed", replay,
		)
		m.emit(Event{Kind: EventRebuildDropped, Index: pivot})
		return false
	}
	m.rebuilding = true

	for {
		gen, genCtx := m.generation, m.genCtx
		target := m.targetLocked(pivot, mode)
		created := m.stageLocked(target)
		m.mu.Unlock()

		m.initialize(ctx, genCtx, created)

		m.mu.Lock()
		stale := m.disposed || gen != m.generation
		var retired []*controller
		if stale {
			for _, e := range created {
				retired = append(retired, e.Handle)
			}
		} else {
			retired = m.swapLocked()
		}
		m.staging = nil
		bounds := m.reg.Bounds()
		m.mu.Unlock()

		if !stale && (len(created) > 0 || len(retired) > 0) {
			m.logger.Debug("preload: window rebuilt",
				"pivot", pivot,
				"mode", mode.String(),
				"window_start", bounds.Start,
				"window_end", bounds.End,
				"created", len(created),
				"retired", len(retired),
			)
			m.emit(Event{Kind: EventRebuildCompleted, Index: pivot, Window: bounds, Count: len(created)})
		}

		m.retire(ctx, retired)
		m.settle(ctx, created, mode != modeScroll)

		m.mu.Lock()
		if m.disposed || !m.dirty {
			m.rebuilding = false
			m.dirty = false
			m.mu.Unlock()
			return true
		}
		m.dirty = false
		pivot, mode = m.pivot, m.pendingMode
	}
}

// requestReplayLocked records a rebuild to run after the in-flight one.
// Several requests coalesce into one; mixed modes fall back to a re-anchor.
func (m *Manager[T]) requestReplayLocked(pivot int, mode rebuildMode) {
	if m.dirty && m.pendingMode != mode {
		mode = modeAnchor
	}
	m.dirty = true
	m.pivot = pivot
	m.pendingMode = mode
}

// targetLocked computes the bounds the window should cover.
func (m *Manager[T]) targetLocked(pivot int, mode rebuildMode) window.Bounds {
	n := len(m.items)
	if n == 0 {
		return window.Bounds{}
	}

	if m.cfg.Strategy == StrategyIncremental {
		cur := m.reg.Bounds()
		switch mode {
		case modeScroll, modeShift:
			return window.Step(cur, pivot, n, m.cfg.Backward, m.cfg.Forward, m.cfg.Capacity)
		case modeAppend:
			if cur.Empty() {
				return window.Step(cur, pivot, n, m.cfg.Backward, m.cfg.Forward, m.cfg.Capacity)
			}
			return window.Extend(cur, n, m.cfg.Capacity)
		}
	}

	return window.Anchor(pivot, n, m.cfg.Backward, m.cfg.Forward)
}

// stageLocked builds the staging registry for target. Live controllers and
// controllers detached by an earlier insert are reused; a new controller is
// created for every other index. Returns the new controllers.
func (m *Manager[T]) stageLocked(target window.Bounds) []window.Entry[*controller] {
	staging := window.NewRegistry[*controller](target.Start)
	var created []window.Entry[*controller]

	for i := target.Start; i < target.End; i++ {
		if c, ok := m.reg.At(i); ok {
			staging.Append(c)
			continue
		}
		if c, ok := m.detachedAtLocked(i); ok {
			staging.Append(c)
			continue
		}

		c := lifecycle.New(m.factory(m.items[i]), m.logger)
		staging.Append(c)
		created = append(created, window.Entry[*controller]{Index: i, Handle: c})
	}

	m.staging = staging
	return created
}

func (m *Manager[T]) detachedAtLocked(index int) (*controller, bool) {
	for _, e := range m.detached {
		if e.Index == index {
			return e.Handle, true
		}
	}
	return nil, false
}

// swapLocked installs the staging registry and returns every controller that
// left the window, in registry order. Detached controllers survive the swap
// when a replay is pending, so that the replay can reuse them.
func (m *Manager[T]) swapLocked() []*controller {
	keep := make(map[*controller]struct{}, m.staging.Len())
	for _, c := range m.staging.Handles() {
		keep[c] = struct{}{}
	}

	var retired []*controller
	for _, c := range m.reg.Handles() {
		if _, ok := keep[c]; !ok {
			retired = append(retired, c)
		}
	}

	var pending []window.Entry[*controller]
	for _, e := range m.detached {
		if _, ok := keep[e.Handle]; ok {
			continue
		}
		if m.dirty {
			pending = append(pending, e)
			continue
		}
		retired = append(retired, e.Handle)
	}
	m.detached = pending

	for _, c := range m.retiring {
		if _, ok := keep[c]; !ok {
			retired = append(retired, c)
		}
	}
	m.retiring = nil

	m.reg = m.staging
	m.reg.ClampTo(len(m.items))
	return dedupe(retired)
}

// initialize runs the initialization barrier for new controllers. It returns
// once every controller settled. genCtx is the generation the controllers
// were staged for: Reset and Dispose cancel it.
func (m *Manager[T]) initialize(ctx, genCtx context.Context, created []window.Entry[*controller]) {
	if len(created) == 0 {
		return
	}

	initCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(genCtx, cancel)
	defer stop()
	defer cancel()

	ctrls := make([]*controller, len(created))
	for i, e := range created {
		ctrls[i] = e.Handle
		m.emit(Event{Kind: EventControllerCreated, Index: e.Index, ControllerID: e.Handle.ID(), Source: e.Handle.Player().SourceID()})
	}

	errs := lifecycle.InitializeAll(initCtx, ctrls, m.retry)

	for i, e := range created {
		c := e.Handle
		if err := errs[i]; err != nil {
			if genCtx.Err() != nil {
				// Superseded by Reset or Dispose, not a resource failure.
				m.logger.Debug("preload: initialization cancelled", "index", e.Index, "controller_id", c.ID())
				continue
			}
			m.logger.Warn("preload: controller initialization failed",
				"index", e.Index,
				"controller_id", c.ID(),
				"source", c.Player().SourceID(),
				"error", err,
			)
			m.emit(Event{Kind: EventControllerInitFailed, Index: e.Index, ControllerID: c.ID(), Source: c.Player().SourceID(), Err: err})
			m.reportError(err)
			continue
		}

		m.emit(Event{Kind: EventControllerReady, Index: e.Index, ControllerID: c.ID(), Source: c.Player().SourceID()})
		if m.cfg.Hooks.OnControllerReady != nil {
			m.cfg.Hooks.OnControllerReady(c.Player())
		}
	}
}

// settle is the post-rebuild continuation. It plays index 0 once when
// AutoplayFirst is set and, when playActive is set, plays the active index if
// its controller was created by this pass and is ready now. Controllers that
// were already live keep whatever play state the host left them in. Scroll
// handles its own target and passes playActive=false.
func (m *Manager[T]) settle(ctx context.Context, created []window.Entry[*controller], playActive bool) {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	var first *controller
	if m.cfg.AutoplayFirst && !m.firstPlayed {
		first, _ = m.reg.At(0)
	}
	m.mu.Unlock()

	if first != nil && first.Ready() {
		m.mu.Lock()
		claim := !m.firstPlayed && !m.disposed && m.active <= 0
		m.firstPlayed = true
		activated := claim && m.setActiveLocked(0)
		m.mu.Unlock()

		if activated {
			m.emit(Event{Kind: EventActiveChanged, Index: 0})
		}
		if claim && m.attemptPlay(ctx, 0) {
			m.logger.Debug("preload: autoplayed first item")
		}
	}

	if !playActive {
		return
	}

	m.mu.Lock()
	c, ok := m.reg.At(m.active)
	index := m.active
	m.mu.Unlock()
	if !ok {
		return
	}
	for _, e := range created {
		if e.Handle == c {
			m.attemptPlay(ctx, index)
			return
		}
	}
}
