package preload_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/chdown/preload"
	"github.com/chdown/preload/internal/simplayer"
)

func makeItems(n int) []string {
	items := make([]string, n)
	for i := range items {
		items[i] = fmt.Sprintf("item-%d", i)
	}
	return items
}

func newTestManager(t *testing.T, n int, fleet *simplayer.Fleet, cfg preload.Config[string]) *preload.Manager[string] {
	t.Helper()

	m, err := preload.New(makeItems(n), func(item string) preload.Player {
		return fleet.New(item)
	}, cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() { m.Dispose(context.Background()) })
	return m
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// assertInvariants checks the structural invariants that must hold whenever
// no operation is in flight.
func assertInvariants(t *testing.T, m *preload.Manager[string], fleet *simplayer.Fleet) {
	t.Helper()

	s := m.Status()
	if s.Window.Start < 0 || s.Window.Start > s.Window.End || s.Window.End > s.Total {
		t.Fatalf("window %+v outside [0,%d]", s.Window, s.Total)
	}
	if s.Live != s.Window.Len() {
		t.Fatalf("live controllers = %d, window %+v has %d slots", s.Live, s.Window, s.Window.Len())
	}
	if s.ActiveIndex < -1 || s.ActiveIndex >= s.Total {
		t.Fatalf("active index %d outside [-1,%d)", s.ActiveIndex, s.Total)
	}
	if playing := fleet.Playing(); len(playing) > 1 {
		t.Fatalf("%d players playing at once, want at most 1", len(playing))
	}
	if undisposed := fleet.Undisposed(); len(undisposed) != s.Live {
		t.Fatalf("%d players hold resources, window holds %d (leak)", len(undisposed), s.Live)
	}
}

func sourceAt(m *preload.Manager[string], index int) string {
	p, ok := m.ControllerAt(index)
	if !ok {
		return ""
	}
	return p.SourceID()
}

func playingAt(m *preload.Manager[string], index int) bool {
	p, ok := m.ControllerAt(index)
	return ok && p.IsPlaying()
}

// eventLog collects events for assertions.
type eventLog struct {
	mu     sync.Mutex
	events []preload.Event
}

func (l *eventLog) Emit(e preload.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) count(kind preload.EventKind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
