// Package gstplayer implements the preload Player capability on top of a
// GStreamer playbin pipeline.
//
// Initialize builds the pipeline and prerolls it in PAUSED (first frame
// decoded, nothing rendered). Play and Pause switch between PLAYING and
// PAUSED. Dispose drops the pipeline to NULL, which releases decoders,
// network buffers and sinks.
package gstplayer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
)

var (
	// ErrEmptyURI is returned by Initialize when the player has no URI.
	ErrEmptyURI = errors.New("gstplayer: empty media URI")

	// ErrDisposed is returned by calls on a disposed player.
	ErrDisposed = errors.New("gstplayer: player disposed")

	// ErrNotInitialized is returned by Play and Pause before Initialize.
	ErrNotInitialized = errors.New("gstplayer: player not initialized")
)

var initOnce sync.Once

// Config configures one player.
type Config struct {
	URI       string // Media URI (file://, http(s)://, rtsp://)
	VideoSink string // Optional sink description for playbin's video-sink (e.g. "fakesink")
	AudioSink string // Optional sink description for playbin's audio-sink
	Loop      bool   // Seek back to the start on end of stream
	Logger    *slog.Logger
}

// Stats is a snapshot of player telemetry.
type Stats struct {
	URI          string
	State        string
	Loops        uint64
	NetworkErrs  uint64
	CodecErrs    uint64
	AuthErrs     uint64
	ResourceErrs uint64
	UnknownErrs  uint64
	PrerollTime  time.Duration
}

// Player plays one media URI through a playbin pipeline.
//
// Thread-safety: all methods are safe for concurrent use.
type Player struct {
	cfg    Config
	logger *slog.Logger

	mu          sync.Mutex
	pipeline    *gst.Pipeline
	initialized bool
	playing     bool
	disposed    bool
	prerollTime time.Duration
	cancel      context.CancelFunc
	done        chan struct{}

	loops     uint64
	errCounts [ErrCategoryUnknown + 1]uint64
}

// New creates a player for cfg. No GStreamer resources are allocated until
// Initialize.
func New(cfg Config) *Player {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Player{
		cfg:    cfg,
		logger: logger.With("uri", cfg.URI),
	}
}

// SourceID returns the media URI.
func (p *Player) SourceID() string { return p.cfg.URI }

// launchString returns the gst-launch description of the playbin.
func (p *Player) launchString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "playbin uri=%q", p.cfg.URI)
	if p.cfg.VideoSink != "" {
		fmt.Fprintf(&b, " video-sink=%q", p.cfg.VideoSink)
	}
	if p.cfg.AudioSink != "" {
		fmt.Fprintf(&b, " audio-sink=%q", p.cfg.AudioSink)
	}
	return b.String()
}

// Initialize builds the pipeline and prerolls it. It blocks until the first
// frame is ready (ASYNC_DONE), the pipeline reports an error, or ctx is done.
func (p *Player) Initialize(ctx context.Context) error {
	if p.cfg.URI == "" {
		return ErrEmptyURI
	}

	p.mu.Lock()
	switch {
	case p.disposed:
		p.mu.Unlock()
		return ErrDisposed
	case p.initialized:
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	initOnce.Do(func() { gst.Init(nil) })

	pipeline, err := gst.NewPipelineFromString(p.launchString())
	if err != nil {
		return fmt.Errorf("gstplayer: create pipeline: %w", err)
	}

	start := time.Now()
	if err := pipeline.SetState(gst.StatePaused); err != nil {
		pipeline.SetState(gst.StateNull)
		return fmt.Errorf("gstplayer: set PAUSED: %w", err)
	}
	if err := p.awaitPreroll(ctx, pipeline); err != nil {
		pipeline.SetState(gst.StateNull)
		return err
	}

	monitorCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		cancel()
		pipeline.SetState(gst.StateNull)
		return ErrDisposed
	}
	p.pipeline = pipeline
	p.initialized = true
	p.prerollTime = time.Since(start)
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	go p.monitorBus(monitorCtx, pipeline, done)

	p.logger.Debug("gstplayer: prerolled", "duration", p.prerollTime)
	return nil
}

// awaitPreroll polls the bus until the pipeline finished its async
// transition to PAUSED.
func (p *Player) awaitPreroll(ctx context.Context, pipeline *gst.Pipeline) error {
	bus := pipeline.GetPipelineBus()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("gstplayer: preroll %s: %w", p.cfg.URI, ctx.Err())
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageAsyncDone:
			return nil
		case gst.MessageError:
			gerr := msg.ParseError()
			category := classifyGError(gerr)
			p.countError(category)
			return &PlaybackError{Category: category, Message: gerr.Error(), Debug: gerr.DebugString()}
		case gst.MessageEOS:
			// Empty media: nothing to preroll, still a usable (silent) player.
			return nil
		}
	}
}

// monitorBus watches the bus while the player is alive: it loops on end of
// stream and records errors.
func (p *Player) monitorBus(ctx context.Context, pipeline *gst.Pipeline, done chan struct{}) {
	defer close(done)
	bus := pipeline.GetPipelineBus()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			if p.cfg.Loop && pipeline.SeekSimple(0, gst.FormatTime, gst.SeekFlagFlush|gst.SeekFlagKeyUnit) {
				atomic.AddUint64(&p.loops, 1)
				continue
			}
			p.logger.Debug("gstplayer: end of stream")
			p.mu.Lock()
			p.playing = false
			p.mu.Unlock()

		case gst.MessageError:
			gerr := msg.ParseError()
			category := classifyGError(gerr)
			p.countError(category)
			p.logger.Error("gstplayer: pipeline error",
				"error", gerr.Error(),
				"debug", gerr.DebugString(),
				"category", category.String(),
			)
			p.mu.Lock()
			p.playing = false
			p.mu.Unlock()

		case gst.MessageStateChanged:
			if msg.Source() == pipeline.GetName() {
				old, next := msg.ParseStateChanged()
				p.logger.Debug("gstplayer: state changed", "from", old, "to", next)
			}
		}
	}
}

// Play switches the pipeline to PLAYING.
func (p *Player) Play(ctx context.Context) error {
	return p.setState(gst.StatePlaying, true)
}

// Pause switches the pipeline to PAUSED.
func (p *Player) Pause(ctx context.Context) error {
	return p.setState(gst.StatePaused, false)
}

func (p *Player) setState(state gst.State, playing bool) error {
	p.mu.Lock()
	pipeline := p.pipeline
	switch {
	case p.disposed:
		p.mu.Unlock()
		return ErrDisposed
	case !p.initialized || pipeline == nil:
		p.mu.Unlock()
		return ErrNotInitialized
	}
	p.mu.Unlock()

	if err := pipeline.SetState(state); err != nil {
		return fmt.Errorf("gstplayer: set %s: %w", state, err)
	}

	p.mu.Lock()
	p.playing = playing
	p.mu.Unlock()
	return nil
}

// Dispose stops the bus monitor and drops the pipeline to NULL. Idempotent.
func (p *Player) Dispose(ctx context.Context) error {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return nil
	}
	p.disposed = true
	pipeline, cancel, done := p.pipeline, p.cancel, p.done
	p.pipeline = nil
	p.initialized = false
	p.playing = false
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			p.logger.Warn("gstplayer: bus monitor did not stop in time")
		}
	}
	if pipeline == nil {
		return nil
	}
	if err := pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("gstplayer: set NULL: %w", err)
	}
	return nil
}

// IsPlaying reports whether the pipeline is PLAYING.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// IsInitialized reports whether the pipeline prerolled and is not disposed.
func (p *Player) IsInitialized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initialized
}

func (p *Player) countError(c ErrorCategory) {
	atomic.AddUint64(&p.errCounts[c], 1)
}

// Stats returns player telemetry.
func (p *Player) Stats() Stats {
	p.mu.Lock()
	state := "created"
	switch {
	case p.disposed:
		state = "disposed"
	case p.playing:
		state = "playing"
	case p.initialized:
		state = "paused"
	}
	preroll := p.prerollTime
	p.mu.Unlock()

	return Stats{
		URI:          p.cfg.URI,
		State:        state,
		Loops:        atomic.LoadUint64(&p.loops),
		NetworkErrs:  atomic.LoadUint64(&p.errCounts[ErrCategoryNetwork]),
		CodecErrs:    atomic.LoadUint64(&p.errCounts[ErrCategoryCodec]),
		AuthErrs:     atomic.LoadUint64(&p.errCounts[ErrCategoryAuth]),
		ResourceErrs: atomic.LoadUint64(&p.errCounts[ErrCategoryResource]),
		UnknownErrs:  atomic.LoadUint64(&p.errCounts[ErrCategoryUnknown]),
		PrerollTime:  preroll,
	}
}

// PlaybackError is a classified pipeline error.
type PlaybackError struct {
	Category ErrorCategory
	Message  string
	Debug    string
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("gstplayer: pipeline error [%s]: %s", e.Category, e.Message)
}
