package preload

import "context"

// Scroll makes index the target position: it pauses every other player,
// checks pagination, moves the window and plays index once its player is
// ready. Returns false for an out-of-range index or a disposed manager.
//
// index becomes active before the window moves. Scrolling to the current,
// live target again only re-asserts playback. A scroll that arrives while a
// rebuild is in flight does not move the window, but its index still becomes
// active and plays as soon as it is live.
func (m *Manager[T]) Scroll(ctx context.Context, index int) bool {
	m.mu.Lock()
	if m.disposed || index < 0 || index >= len(m.items) {
		m.mu.Unlock()
		return false
	}
	if _, live := m.reg.At(index); live && index == m.previous {
		changed := m.setActiveLocked(index)
		m.mu.Unlock()
		if changed {
			m.emit(Event{Kind: EventActiveChanged, Index: index})
		}
		m.pauseOthers(ctx, index)
		m.attemptPlay(ctx, index)
		return true
	}
	// The target becomes active before the window moves, so that edits
	// replayed during the rebuild anchor at it.
	m.previous = index
	m.scrollSeq++
	seq := m.scrollSeq
	changed := m.setActiveLocked(index)
	m.mu.Unlock()

	if changed {
		m.emit(Event{Kind: EventActiveChanged, Index: index})
	}
	m.pauseOthers(ctx, index)
	m.maybePaginate(index)

	m.mu.Lock()
	if m.scrollSeq == seq {
		// Mutations keep previous pointing at the same item.
		index = m.previous
		m.rebuildLocked(ctx, index, modeScroll)
	} else {
		m.mu.Unlock()
	}

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return true
	}
	changed = false
	if m.scrollSeq == seq {
		changed = m.setActiveLocked(m.previous)
	}
	target := m.active
	m.mu.Unlock()

	if changed {
		m.emit(Event{Kind: EventActiveChanged, Index: target})
	}
	if target >= 0 {
		m.attemptPlay(ctx, target)
	}
	return true
}

// TogglePlayPause flips playback of p, which must be a player currently in
// the window. Resuming pauses every other player first. OnPlayStateChanged
// fires either way. Returns false when p is not in the window.
func (m *Manager[T]) TogglePlayPause(ctx context.Context, p Player) bool {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return false
	}
	index, ok := m.reg.Find(func(c *controller) bool { return c.Player() == p })
	var c *controller
	if ok {
		c, _ = m.reg.At(index)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}

	if c.Playing() {
		if err := c.Pause(ctx); err != nil {
			m.logger.Warn("preload: pause failed", "index", index, "controller_id", c.ID(), "error", err)
			m.reportError(err)
		}
	} else if c.Ready() {
		m.pauseOthers(ctx, index)
		m.play(ctx, c, index)
	}

	m.notifyPlayState()
	return true
}

// ForceAutoplay makes index active and plays it, even if it is already the
// scroll target. Used when the host returns to the foreground. When index is
// outside the window the window is moved first.
func (m *Manager[T]) ForceAutoplay(ctx context.Context, index int) bool {
	m.mu.Lock()
	if m.disposed || index < 0 || index >= len(m.items) {
		m.mu.Unlock()
		return false
	}
	m.previous = index
	m.scrollSeq++
	changed := m.setActiveLocked(index)
	_, live := m.reg.At(index)
	m.mu.Unlock()

	if changed {
		m.emit(Event{Kind: EventActiveChanged, Index: index})
	}
	m.pauseOthers(ctx, index)

	if !live {
		m.mu.Lock()
		m.rebuildLocked(ctx, index, modeAnchor)
	}

	m.mu.Lock()
	index = m.active
	m.mu.Unlock()
	if index >= 0 {
		m.attemptPlay(ctx, index)
	}
	return true
}

// setActiveLocked updates the active index and reports whether it changed.
func (m *Manager[T]) setActiveLocked(index int) bool {
	if m.active == index {
		return false
	}
	m.active = index
	return true
}

// attemptPlay plays the controller at index if it is live, ready and not
// already playing. Every other playing controller is paused first so that at
// most one player runs. A controller that is not ready yet is picked up by the
// post-rebuild continuation.
func (m *Manager[T]) attemptPlay(ctx context.Context, index int) bool {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return false
	}
	c, ok := m.reg.At(index)
	m.mu.Unlock()

	if !ok || !c.Ready() || c.Playing() {
		return false
	}

	m.pauseOthers(ctx, index)
	if !m.play(ctx, c, index) {
		return false
	}
	m.notifyPlayState()
	return true
}

// play starts c. Failures are isolated to c and reported.
func (m *Manager[T]) play(ctx context.Context, c *controller, index int) bool {
	if err := c.Play(ctx); err != nil {
		m.logger.Warn("preload: play failed",
			"index", index,
			"controller_id", c.ID(),
			"source", c.Player().SourceID(),
			"error", err,
		)
		m.emit(Event{Kind: EventPlaybackFailed, Index: index, ControllerID: c.ID(), Source: c.Player().SourceID(), Err: err})
		m.reportError(err)
		return false
	}

	m.logger.Debug("preload: playing", "index", index, "controller_id", c.ID())
	m.emit(Event{Kind: EventPlaybackStarted, Index: index, ControllerID: c.ID(), Source: c.Player().SourceID()})
	return true
}

// pauseOthers pauses every playing controller in the window except the one
// at keep. Pause failures are logged and never stop the sweep.
func (m *Manager[T]) pauseOthers(ctx context.Context, keep int) {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	entries := m.reg.Entries()
	m.mu.Unlock()

	paused := false
	for _, e := range entries {
		if e.Index == keep || !e.Handle.Playing() {
			continue
		}
		if err := e.Handle.Pause(ctx); err != nil {
			m.logger.Warn("preload: pause failed",
				"index", e.Index,
				"controller_id", e.Handle.ID(),
				"error", err,
			)
			m.reportError(err)
			continue
		}
		paused = true
	}

	if paused {
		m.notifyPlayState()
	}
}
