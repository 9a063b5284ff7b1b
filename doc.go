// Package preload keeps a bounded window of initialized media players around
// the viewer's position in a long, mutable, vertically swiped feed.
//
// # Overview
//
// Only items near the current position hold a live player. As the viewer
// scrolls, the manager creates players ahead of time, waits for them to be
// ready, and only then releases the players that fell out of the window:
//
//	"Never tear down before the replacement is ready."
//
// # Basic Usage
//
//	mgr, err := preload.New(items, func(it Item) preload.Player {
//	    return newPlayer(it.URI)
//	}, preload.Config{Backward: 1, Forward: 2})
//	if err != nil {
//	    return err
//	}
//	defer mgr.Dispose(context.Background())
//
//	mgr.Scroll(ctx, 0)          // builds the window and plays item 0
//	mgr.Scroll(ctx, 1)          // pauses 0, plays 1, preloads 2..3
//	mgr.Insert(ctx, 0, fresh)   // indices shift, playback continues
//
// # Window Strategies
//
// StrategyReanchor recomputes the window around every target index:
//
//	[clamp(p-Backward, 0, len-1), clamp(p+Forward+1, 0, len))
//
// StrategyIncremental keeps a fixed-capacity window and slides it one index at
// a time, dropping the oldest entry once Capacity is exceeded.
//
// # List Mutation
//
// Append, Insert, Remove and Reset keep the active index pointing at the same
// item. Edits that do not touch the window only shift indices; edits inside
// the window trigger a full re-anchor.
//
// # Concurrency
//
// All methods are safe for concurrent use. One mutex guards manager state and
// is never held while a Player method runs. Only one window rebuild runs at a
// time: a scroll that arrives during a rebuild is dropped (its target still
// becomes active), a mutation that arrives during a rebuild is replayed once
// the rebuild completes.
//
// # Observability
//
// Status returns a fixed-shape snapshot. Config.Events receives structured
// lifecycle events and Config.Logger receives slog records.
package preload
