package preload_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chdown/preload"
	"github.com/chdown/preload/internal/simplayer"
)

// TestPaginationScenario scrolls near the end of a ten-item feed with
// threshold 3: pagination fires once, the window clamps to the sequence end,
// and repeated scrolls while the fetch is outstanding do not fire again.
func TestPaginationScenario(t *testing.T) {
	ctx := context.Background()
	fleet := simplayer.NewFleet(simplayer.Options{})

	var calls atomic.Int32
	release := make(chan struct{})
	m := newTestManager(t, 10, fleet, preload.Config[string]{
		Backward:            2,
		Forward:             2,
		PaginationThreshold: 3,
		Hooks: preload.Hooks[string]{
			OnPaginationNeeded: func(ctx context.Context) ([]string, error) {
				calls.Add(1)
				<-release
				return []string{"n-0", "n-1", "n-2"}, nil
			},
		},
	})

	m.Scroll(ctx, 8)
	if got, want := m.Window(), (preload.Window{Start: 6, End: 10}); got != want {
		t.Errorf("Window() = %+v, want %+v", got, want)
	}
	if !m.Paginating() {
		t.Error("Paginating() = false after crossing the threshold")
	}

	m.Scroll(ctx, 9)
	m.Scroll(ctx, 7)
	if got := calls.Load(); got != 1 {
		t.Errorf("fetch calls while outstanding = %d, want 1", got)
	}

	close(release)
	waitFor(t, "pagination to finish", func() bool { return !m.Paginating() })

	if got := m.Len(); got != 13 {
		t.Errorf("Len() = %d, want 13", got)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("fetch calls = %d, want 1", got)
	}
	assertInvariants(t, m, fleet)
}

// TestPaginationDuringScrollRebuild crosses the threshold while the window is
// still initializing: the appended page lands mid-rebuild and the re-anchor it
// triggers must follow the scroll target, which ends up live and playing.
func TestPaginationDuringScrollRebuild(t *testing.T) {
	ctx := context.Background()
	fleet := simplayer.NewFleet(simplayer.Options{InitLatency: 100 * time.Millisecond})

	initStarted := make(chan struct{})
	var once sync.Once
	fleet.Override("item-9", simplayer.Options{
		InitLatency:  100 * time.Millisecond,
		OnInitialize: func(*simplayer.Player) { once.Do(func() { close(initStarted) }) },
	})

	m := newTestManager(t, 10, fleet, preload.Config[string]{
		Backward:            2,
		Forward:             2,
		PaginationThreshold: 3,
		Hooks: preload.Hooks[string]{
			OnPaginationNeeded: func(ctx context.Context) ([]string, error) {
				<-initStarted
				time.Sleep(20 * time.Millisecond)
				return []string{"n-0", "n-1", "n-2", "n-3", "n-4"}, nil
			},
		},
	})

	m.Scroll(ctx, 5)
	m.Scroll(ctx, 8)
	waitFor(t, "pagination to finish", func() bool { return !m.Paginating() })
	waitFor(t, "rebuilds to settle", func() bool { return !m.Status().Rebuilding })

	if got := m.ActiveIndex(); got != 8 {
		t.Errorf("ActiveIndex() = %d, want 8", got)
	}
	if got, want := m.Window(), (preload.Window{Start: 6, End: 11}); got != want {
		t.Errorf("Window() = %+v, want %+v", got, want)
	}
	waitFor(t, "item 8 to play", func() bool { return playingAt(m, 8) })
	assertInvariants(t, m, fleet)
}

func TestPaginationThresholdBoundary(t *testing.T) {
	ctx := context.Background()

	for _, tt := range []struct {
		index int
		want  int32
	}{
		{5, 0}, // remaining 4
		{6, 1}, // remaining 3 == threshold
	} {
		fleet := simplayer.NewFleet(simplayer.Options{})
		var calls atomic.Int32
		m := newTestManager(t, 10, fleet, preload.Config[string]{
			PaginationThreshold: 3,
			Hooks: preload.Hooks[string]{
				OnPaginationNeeded: func(context.Context) ([]string, error) {
					calls.Add(1)
					return nil, nil
				},
			},
		})

		m.Scroll(ctx, tt.index)
		waitFor(t, "pagination to settle", func() bool { return !m.Paginating() })
		if got := calls.Load(); got != tt.want {
			t.Errorf("Scroll(%d): fetch calls = %d, want %d", tt.index, got, tt.want)
		}
	}
}

func TestPaginationFailureClearsFlag(t *testing.T) {
	ctx := context.Background()
	fleet := simplayer.NewFleet(simplayer.Options{})

	var mu sync.Mutex
	var reported []error
	var calls atomic.Int32
	m := newTestManager(t, 4, fleet, preload.Config[string]{
		PaginationThreshold: 1,
		Hooks: preload.Hooks[string]{
			OnPaginationNeeded: func(context.Context) ([]string, error) {
				calls.Add(1)
				return nil, errors.New("feed backend unavailable")
			},
			OnError: func(err error) {
				mu.Lock()
				reported = append(reported, err)
				mu.Unlock()
			},
		},
	})

	m.Scroll(ctx, 3)
	waitFor(t, "failed pagination to clear", func() bool { return !m.Paginating() })

	mu.Lock()
	n := len(reported)
	mu.Unlock()
	if n != 1 {
		t.Errorf("OnError calls = %d, want 1", n)
	}
	if got := m.Len(); got != 4 {
		t.Errorf("Len() = %d, want 4 (no partial append)", got)
	}

	// The flag was cleared, so the next crossing fetches again.
	m.Scroll(ctx, 2)
	waitFor(t, "second pagination to clear", func() bool { return !m.Paginating() })
	if got := calls.Load(); got != 2 {
		t.Errorf("fetch calls = %d, want 2", got)
	}
}

func TestPaginationNotTriggeredByMutations(t *testing.T) {
	ctx := context.Background()
	fleet := simplayer.NewFleet(simplayer.Options{})
	var calls atomic.Int32
	m := newTestManager(t, 3, fleet, preload.Config[string]{
		PaginationThreshold: 5,
		Hooks: preload.Hooks[string]{
			OnPaginationNeeded: func(context.Context) ([]string, error) {
				calls.Add(1)
				return nil, nil
			},
		},
	})

	m.Append(ctx, []string{"a"})
	m.Insert(ctx, 0, []string{"b"})
	m.Remove(ctx, 0)
	if got := calls.Load(); got != 0 {
		t.Errorf("fetch calls after mutations = %d, want 0", got)
	}
}

func TestDisposeWaitsForPagination(t *testing.T) {
	ctx := context.Background()
	fleet := simplayer.NewFleet(simplayer.Options{})
	started := make(chan struct{})
	m, err := preload.New(makeItems(2), func(s string) preload.Player { return fleet.New(s) }, preload.Config[string]{
		PaginationThreshold: 1,
		Hooks: preload.Hooks[string]{
			OnPaginationNeeded: func(ctx context.Context) ([]string, error) {
				close(started)
				<-ctx.Done()
				return nil, ctx.Err()
			},
		},
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	m.Scroll(ctx, 1)
	<-started
	if err := m.Dispose(ctx); err != nil {
		t.Fatalf("Dispose() failed: %v", err)
	}
	if m.Paginating() {
		t.Error("Paginating() = true after Dispose returned")
	}
}
