package preload

import (
	"context"
	"fmt"
)

// maybePaginate starts a background fetch when at most PaginationThreshold
// items remain after index. At most one fetch is outstanding; the in-flight
// flag is always cleared, also when the fetch fails or panics.
func (m *Manager[T]) maybePaginate(index int) {
	fetch := m.cfg.Hooks.OnPaginationNeeded
	if fetch == nil {
		return
	}

	m.mu.Lock()
	remaining := len(m.items) - index - 1
	if m.disposed || m.paginating || remaining > m.cfg.PaginationThreshold {
		m.mu.Unlock()
		return
	}
	m.paginating = true
	m.wg.Add(1)
	total := len(m.items)
	m.mu.Unlock()

	m.logger.Debug("preload: pagination triggered", "index", index, "remaining", remaining, "total", total)
	m.emit(Event{Kind: EventPaginationStarted, Index: index, Count: remaining})

	go m.paginate(fetch)
}

func (m *Manager[T]) paginate(fetch func(ctx context.Context) ([]T, error)) {
	defer m.wg.Done()
	defer func() {
		m.mu.Lock()
		m.paginating = false
		m.mu.Unlock()
	}()

	items, err := m.fetchPage(fetch)
	if err != nil {
		m.logger.Warn("preload: pagination failed", "error", err)
		m.emit(Event{Kind: EventPaginationFailed, Index: -1, Err: err})
		m.reportError(err)
		return
	}

	added := m.Append(m.ctx, items)
	m.logger.Debug("preload: pagination completed", "added", added)
	m.emit(Event{Kind: EventPaginationCompleted, Index: -1, Count: added})
}

func (m *Manager[T]) fetchPage(fetch func(ctx context.Context) ([]T, error)) (items []T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("preload: pagination callback panicked: %v", r)
		}
	}()

	items, err = fetch(m.ctx)
	if err != nil {
		return nil, fmt.Errorf("preload: fetch next page: %w", err)
	}
	return items, nil
}
