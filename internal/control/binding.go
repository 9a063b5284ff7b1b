package control

import (
	"context"
	"fmt"

	"github.com/chdown/preload"
)

// Binding maps control commands onto a manager.
type Binding[T any] struct {
	Manager *preload.Manager[T]

	// NewItem builds an item for an inserted URI.
	NewItem func(uri string) T

	// Reload returns the items a reset starts from. Nil keeps the current items.
	Reload func(ctx context.Context) ([]T, error)
}

// Callbacks returns command callbacks bound to b.Manager. ctx bounds every
// manager call made on behalf of a command.
func (b Binding[T]) Callbacks(ctx context.Context) CommandCallbacks {
	m := b.Manager

	cb := CommandCallbacks{
		OnScroll: func(index int) error {
			if !m.Scroll(ctx, index) {
				return fmt.Errorf("index %d out of range [0,%d)", index, m.Len())
			}
			return nil
		},
		OnToggle: func() (bool, error) {
			p, ok := m.CurrentController()
			if !ok {
				return false, fmt.Errorf("no player in the window")
			}
			if !m.TogglePlayPause(ctx, p) {
				return false, fmt.Errorf("player left the window")
			}
			return p.IsPlaying(), nil
		},
		OnForceAutoplay: func(index int) error {
			if !m.ForceAutoplay(ctx, index) {
				return fmt.Errorf("index %d out of range [0,%d)", index, m.Len())
			}
			return nil
		},
		OnRemove: func(at int) error {
			if !m.Remove(ctx, at) {
				return fmt.Errorf("index %d out of range [0,%d)", at, m.Len())
			}
			return nil
		},
		OnReset: func(index int, autoplay bool) error {
			items := m.Items()
			if b.Reload != nil {
				var err error
				if items, err = b.Reload(ctx); err != nil {
					return fmt.Errorf("reload feed: %w", err)
				}
			}
			if !m.Reset(ctx, items, index, autoplay) {
				return fmt.Errorf("reset rejected (index %d, %d items)", index, len(items))
			}
			return nil
		},
		OnGetStatus: func() map[string]interface{} {
			return StatusData(m.Status())
		},
	}

	if b.NewItem != nil {
		cb.OnInsert = func(at int, uris []string) error {
			items := make([]T, len(uris))
			for i, uri := range uris {
				items[i] = b.NewItem(uri)
			}
			if !m.Insert(ctx, at, items) {
				return fmt.Errorf("index %d out of range [0,%d]", at, m.Len())
			}
			return nil
		}
	}

	return cb
}

// StatusData flattens a status snapshot into a response payload.
func StatusData(s preload.Status) map[string]interface{} {
	return map[string]interface{}{
		"total":        s.Total,
		"window_start": s.Window.Start,
		"window_end":   s.Window.End,
		"live":         s.Live,
		"ready":        s.Ready,
		"playing":      s.Playing,
		"active_index": s.ActiveIndex,
		"prev_index":   s.PrevIndex,
		"strategy":     s.Strategy.String(),
		"rebuilding":   s.Rebuilding,
		"paginating":   s.Paginating,
		"disposed":     s.Disposed,
	}
}
