package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chdown/preload/internal/simplayer"
)

func TestControllerLifecycle(t *testing.T) {
	ctx := context.Background()
	p := simplayer.New("clip-1", simplayer.Options{})
	c := New(p, nil)

	if c.ID() == "" {
		t.Fatal("ID() is empty")
	}
	if got := c.State(); got != StateCreated {
		t.Fatalf("State() = %v, want %v", got, StateCreated)
	}
	if err := c.Play(ctx); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Play() before Initialize = %v, want ErrNotReady", err)
	}

	if err := c.Initialize(ctx, DefaultRetryConfig()); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	if !c.Ready() {
		t.Fatal("Ready() = false after Initialize")
	}

	if err := c.Play(ctx); err != nil {
		t.Fatalf("Play() failed: %v", err)
	}
	if !c.Playing() || c.State() != StatePlaying {
		t.Fatalf("Playing() = %v, State() = %v, want playing", c.Playing(), c.State())
	}

	if err := c.Dispose(ctx, 0); err != nil {
		t.Fatalf("Dispose() failed: %v", err)
	}
	if got := c.State(); got != StateDisposed {
		t.Errorf("State() after Dispose = %v, want %v", got, StateDisposed)
	}
	if s := p.Stats(); s.PauseCalls != 1 || s.DisposeCalls != 1 {
		t.Errorf("player stats = %+v, want one pause and one dispose", s)
	}

	// Idempotent
	if err := c.Dispose(ctx, 0); err != nil {
		t.Errorf("second Dispose() = %v, want nil", err)
	}
	if s := p.Stats(); s.DisposeCalls != 1 {
		t.Errorf("DisposeCalls = %d after second Dispose, want 1", s.DisposeCalls)
	}
	if err := c.Play(ctx); !errors.Is(err, ErrDisposed) {
		t.Errorf("Play() after Dispose = %v, want ErrDisposed", err)
	}
}

func TestControllerInitFailure(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("decoder unavailable")
	c := New(simplayer.New("clip-1", simplayer.Options{InitErr: boom}), nil)

	err := c.Initialize(ctx, DefaultRetryConfig())
	if !errors.Is(err, boom) {
		t.Fatalf("Initialize() = %v, want %v", err, boom)
	}
	if got := c.State(); got != StateInitFailed {
		t.Errorf("State() = %v, want %v", got, StateInitFailed)
	}
	if c.Ready() {
		t.Error("Ready() = true after failed Initialize")
	}
	if err := c.Dispose(ctx, 0); err != nil {
		t.Errorf("Dispose() after failed Initialize = %v", err)
	}
}

func TestControllerInitRetry(t *testing.T) {
	ctx := context.Background()
	p := simplayer.New("clip-1", simplayer.Options{
		InitErr:   errors.New("network timeout"),
		InitFails: 2,
	})
	c := New(p, nil)

	retry := RetryConfig{MaxRetries: 3, RetryDelay: time.Millisecond, MaxRetryDelay: 4 * time.Millisecond}
	if err := c.Initialize(ctx, retry); err != nil {
		t.Fatalf("Initialize() with retries failed: %v", err)
	}
	if got := p.Stats().InitCalls; got != 3 {
		t.Errorf("InitCalls = %d, want 3", got)
	}
}

// TestControllerDisposeWaitsForInit verifies that disposal of a controller
// whose initialization is still running waits for it instead of racing it.
func TestControllerDisposeWaitsForInit(t *testing.T) {
	ctx := context.Background()
	gate := simplayer.NewGate()
	started := make(chan struct{})
	p := simplayer.New("clip-1", simplayer.Options{
		Gate:         gate,
		OnInitialize: func(*simplayer.Player) { close(started) },
	})
	c := New(p, nil)

	initErr := make(chan error, 1)
	go func() { initErr <- c.Initialize(ctx, DefaultRetryConfig()) }()
	<-started

	disposed := make(chan error, 1)
	go func() { disposed <- c.Dispose(ctx, 0) }()

	select {
	case <-disposed:
		t.Fatal("Dispose() returned before initialization settled")
	case <-time.After(30 * time.Millisecond):
	}

	gate.Open()
	if err := <-initErr; err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	if err := <-disposed; err != nil {
		t.Fatalf("Dispose() failed: %v", err)
	}
	if !p.Disposed() {
		t.Error("player not disposed")
	}
	if c.Ready() {
		t.Error("Ready() = true after Dispose")
	}
}

func TestCalculateBackoff(t *testing.T) {
	cfg := RetryConfig{RetryDelay: 250 * time.Millisecond, MaxRetryDelay: 2 * time.Second}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 250 * time.Millisecond},
		{2, 500 * time.Millisecond},
		{3, time.Second},
		{4, 2 * time.Second},
		{10, 2 * time.Second},
		{64, 2 * time.Second},
	}
	for _, tt := range tests {
		if got := calculateBackoff(tt.attempt, cfg); got != tt.want {
			t.Errorf("calculateBackoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestRunWithRetryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	fn := func(context.Context) error {
		calls++
		cancel()
		return errors.New("unreachable host")
	}

	_, err := RunWithRetry(ctx, fn, RetryConfig{MaxRetries: 5, RetryDelay: time.Hour}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("RunWithRetry() = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
