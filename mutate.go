package preload

import (
	"context"
	"slices"

	"github.com/chdown/preload/internal/window"
)

// Append adds items to the end of the sequence and returns how many were
// added. Indices never shift. The window is topped up around the active
// index. Returns 0 for empty input or a disposed manager.
//
// Append never triggers pagination; pagination is driven by Scroll only.
func (m *Manager[T]) Append(ctx context.Context, items []T) int {
	if len(items) == 0 {
		return 0
	}

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return 0
	}
	at := len(m.items)
	m.items = append(m.items, items...)
	pivot := m.anchorLocked(at)

	m.logger.Debug("preload: items appended", "count", len(items), "total", len(m.items))
	m.rebuildLocked(ctx, pivot, modeAppend)
	return len(items)
}

// Insert inserts items before index at (0 <= at <= Len). Items at or after at
// move by len(items), and so does the active index when it is at or after at.
// An insertion strictly inside the window re-anchors it; anywhere else only
// indices shift. Returns false for empty input, an out-of-range index or a
// disposed manager.
func (m *Manager[T]) Insert(ctx context.Context, at int, items []T) bool {
	if len(items) == 0 {
		return false
	}

	m.mu.Lock()
	if m.disposed || at < 0 || at > len(m.items) {
		m.mu.Unlock()
		return false
	}

	n := len(items)
	bounds := m.reg.Bounds()
	inside := at > bounds.Start && at < bounds.End

	m.items = slices.Insert(m.items, at, items...)
	m.shiftForInsertLocked(at, n)

	pivot := m.anchorLocked(at)
	mode := modeShift
	if inside {
		mode = modeAnchor
	}

	m.logger.Debug("preload: items inserted",
		"at", at,
		"count", n,
		"total", len(m.items),
		"active", m.active,
		"inside_window", inside,
	)
	m.rebuildLocked(ctx, pivot, mode)
	return true
}

// Remove removes the item at index at (0 <= at < Len). The active index keeps
// pointing at the same item; when that item is the one removed, the previous
// item becomes active (or the new first item, or -1 when the sequence is
// now empty). Removing an item inside the window re-anchors it. Returns false
// for an out-of-range index or a disposed manager.
func (m *Manager[T]) Remove(ctx context.Context, at int) bool {
	m.mu.Lock()
	if m.disposed || at < 0 || at >= len(m.items) {
		m.mu.Unlock()
		return false
	}

	bounds := m.reg.Bounds()
	inside := bounds.Contains(at)

	m.items = slices.Delete(m.items, at, at+1)
	m.shiftForRemoveLocked(at)

	pivot := m.anchorLocked(at)
	mode := modeShift
	if inside {
		mode = modeAnchor
	}

	m.logger.Debug("preload: item removed",
		"at", at,
		"total", len(m.items),
		"active", m.active,
		"inside_window", inside,
	)
	m.rebuildLocked(ctx, pivot, mode)
	return true
}

// Reset disposes every player, replaces the sequence with a copy of items and
// positions the window at initialIndex (clamped). The previous index is
// cleared. With autoPlay the item at initialIndex becomes active and plays
// once ready.
//
// A rebuild in flight when Reset is called has its initializations cancelled
// and is discarded when it completes.
func (m *Manager[T]) Reset(ctx context.Context, items []T, initialIndex int, autoPlay bool) bool {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return false
	}

	owned := m.ownedLocked()
	m.items = append([]T(nil), items...)
	m.reg = window.NewRegistry[*controller](0)
	m.staging = nil
	m.detached = nil
	m.retiring = nil
	m.active = -1
	m.previous = -1
	m.generation++
	m.scrollSeq++
	m.firstPlayed = false
	// Initializations still running for the old feed would hold up their
	// disposal below.
	m.genCancel()
	m.genCtx, m.genCancel = context.WithCancel(m.ctx)
	m.mu.Unlock()

	m.logger.Info("preload: resetting",
		"items", len(items),
		"initial_index", initialIndex,
		"auto_play", autoPlay,
		"retired", len(owned),
	)
	m.retire(ctx, owned)
	m.emit(Event{Kind: EventReset, Index: initialIndex, Count: len(items)})

	m.mu.Lock()
	if m.disposed || len(m.items) == 0 {
		ok := !m.disposed
		m.mu.Unlock()
		return ok
	}
	index := window.Clamp(initialIndex, 0, len(m.items)-1)
	if autoPlay {
		m.active = index
	}
	m.rebuildLocked(ctx, index, modeAnchor)

	if autoPlay {
		m.emit(Event{Kind: EventActiveChanged, Index: index})
	}
	return true
}

// anchorLocked returns the pivot for a mutation-driven rebuild: the active
// index, else the last scroll target, else the mutation point.
func (m *Manager[T]) anchorLocked(at int) int {
	switch {
	case m.active >= 0:
		return m.active
	case m.previous >= 0:
		return m.previous
	default:
		return window.Clamp(at, 0, max(len(m.items)-1, 0))
	}
}

// shiftForInsertLocked moves every index-bearing piece of state after the
// insertion of n items at index at. Controllers split off the window by the
// insertion are kept aside for reuse by the next rebuild.
func (m *Manager[T]) shiftForInsertLocked(at, n int) {
	for i := range m.detached {
		if m.detached[i].Index >= at {
			m.detached[i].Index += n
		}
	}
	m.detachLocked(m.reg.ShiftForInsert(at, n))
	if m.staging != nil {
		m.detachLocked(m.staging.ShiftForInsert(at, n))
	}

	m.active = shiftIndexForInsert(m.active, at, n)
	m.previous = shiftIndexForInsert(m.previous, at, n)
}

// detachLocked records split-off entries, skipping controllers already held.
func (m *Manager[T]) detachLocked(entries []window.Entry[*controller]) {
	for _, e := range entries {
		if _, dup := m.detachedAtLocked(e.Index); dup {
			continue
		}
		m.detached = append(m.detached, e)
	}
}

func shiftIndexForInsert(index, at, n int) int {
	if index >= 0 && index >= at {
		return index + n
	}
	return index
}

// shiftForRemoveLocked moves every index-bearing piece of state after the
// removal of the item at index at. Controllers of the removed item are
// queued for retirement.
func (m *Manager[T]) shiftForRemoveLocked(at int) {
	if c, ok := m.reg.ShiftForRemove(at); ok {
		m.retiring = append(m.retiring, c)
	}
	if m.staging != nil {
		if c, ok := m.staging.ShiftForRemove(at); ok {
			m.retiring = append(m.retiring, c)
		}
	}

	kept := m.detached[:0]
	for _, e := range m.detached {
		switch {
		case e.Index == at:
			m.retiring = append(m.retiring, e.Handle)
			continue
		case e.Index > at:
			e.Index--
		}
		kept = append(kept, e)
	}
	m.detached = kept

	n := len(m.items)
	m.reg.ClampTo(n)
	if m.staging != nil {
		m.staging.ClampTo(n)
	}

	m.active = shiftIndexForRemove(m.active, at, n)
	m.previous = shiftIndexForRemove(m.previous, at, n)
}

// shiftIndexForRemove applies a removal at index at to index, for a sequence
// that now has n items.
func shiftIndexForRemove(index, at, n int) int {
	switch {
	case index < 0:
		return index
	case n == 0:
		return -1
	case index > at:
		return index - 1
	case index == at:
		if at > 0 {
			return at - 1
		}
		return 0
	default:
		return index
	}
}
