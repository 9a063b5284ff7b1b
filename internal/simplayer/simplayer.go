// Package simplayer provides a simulated Player for hosts without a media
// backend and for tests. It models initialization latency, injected failures
// and gated initialization, and keeps call counters for assertions.
package simplayer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrDisposed is returned by calls on a disposed player.
var ErrDisposed = errors.New("simplayer: player disposed")

// Options configures a simulated player.
type Options struct {
	InitLatency time.Duration // Delay before Initialize returns
	InitErr     error         // Error returned by Initialize
	InitFails   int           // Number of Initialize calls that fail before one succeeds (0 with InitErr = always fail)
	PlayErr     error         // Error returned by Play
	DisposeErr  error         // Error returned by Dispose
	Gate        *Gate         // If set, Initialize blocks until the gate opens

	// OnInitialize is called at the start of every Initialize call.
	OnInitialize func(p *Player)
}

// Gate blocks gated initializations until opened.
type Gate struct {
	once sync.Once
	ch   chan struct{}
}

// NewGate returns a closed gate.
func NewGate() *Gate {
	return &Gate{ch: make(chan struct{})}
}

// Open releases every waiter. Safe to call more than once.
func (g *Gate) Open() {
	g.once.Do(func() { close(g.ch) })
}

// Wait blocks until the gate opens or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-g.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Player is a simulated media player.
type Player struct {
	id   string
	uri  string
	opts Options

	mu           sync.Mutex
	initialized  bool
	playing      bool
	disposed     bool
	initCalls    int
	playCalls    int
	pauseCalls   int
	disposeCalls int
}

// New creates a simulated player for uri.
func New(uri string, opts Options) *Player {
	return &Player{
		id:   uuid.New().String(),
		uri:  uri,
		opts: opts,
	}
}

// URI returns the media URI the player was created for.
func (p *Player) URI() string { return p.uri }

// SourceID returns the media URI, which doubles as the source identifier.
func (p *Player) SourceID() string { return p.uri }

// ID returns a unique instance identifier.
func (p *Player) ID() string { return p.id }

// Initialize simulates resource acquisition.
func (p *Player) Initialize(ctx context.Context) error {
	if p.opts.OnInitialize != nil {
		p.opts.OnInitialize(p)
	}

	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return ErrDisposed
	}
	p.initCalls++
	call := p.initCalls
	p.mu.Unlock()

	if p.opts.Gate != nil {
		if err := p.opts.Gate.Wait(ctx); err != nil {
			return err
		}
	}
	if p.opts.InitLatency > 0 {
		timer := time.NewTimer(p.opts.InitLatency)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	if p.opts.InitErr != nil && (p.opts.InitFails == 0 || call <= p.opts.InitFails) {
		return fmt.Errorf("simplayer: initialize %s: %w", p.uri, p.opts.InitErr)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return ErrDisposed
	}
	p.initialized = true
	return nil
}

// Play starts simulated playback.
func (p *Player) Play(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playCalls++
	switch {
	case p.disposed:
		return ErrDisposed
	case !p.initialized:
		return fmt.Errorf("simplayer: play %s before initialize", p.uri)
	case p.opts.PlayErr != nil:
		return p.opts.PlayErr
	}
	p.playing = true
	return nil
}

// Pause stops simulated playback.
func (p *Player) Pause(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pauseCalls++
	if p.disposed {
		return ErrDisposed
	}
	p.playing = false
	return nil
}

// Dispose releases the simulated resource.
func (p *Player) Dispose(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disposeCalls++
	p.disposed = true
	p.playing = false
	p.initialized = false
	return p.opts.DisposeErr
}

// IsPlaying reports whether playback is running.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// IsInitialized reports whether Initialize succeeded and Dispose was not called.
func (p *Player) IsInitialized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initialized
}

// Disposed reports whether Dispose was called.
func (p *Player) Disposed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disposed
}

// Stats is a snapshot of call counters.
type Stats struct {
	InitCalls    int
	PlayCalls    int
	PauseCalls   int
	DisposeCalls int
}

// Stats returns the call counters.
func (p *Player) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		InitCalls:    p.initCalls,
		PlayCalls:    p.playCalls,
		PauseCalls:   p.pauseCalls,
		DisposeCalls: p.disposeCalls,
	}
}
