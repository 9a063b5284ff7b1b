package preload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chdown/preload/internal/lifecycle"
)

var (
	// ErrInvalidConfig is wrapped by every construction error.
	ErrInvalidConfig = errors.New("preload: invalid configuration")
)

// Strategy selects how the window follows the target index.
type Strategy int

const (
	// StrategyReanchor recomputes the window around every target index.
	StrategyReanchor Strategy = iota

	// StrategyIncremental slides a fixed-capacity window one index at a time.
	StrategyIncremental
)

func (s Strategy) String() string {
	switch s {
	case StrategyReanchor:
		return "reanchor"
	case StrategyIncremental:
		return "incremental"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy converts "reanchor" or "incremental" into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reanchor":
		return StrategyReanchor, nil
	case "incremental":
		return StrategyIncremental, nil
	default:
		return 0, fmt.Errorf("preload: unknown strategy %q: %w", s, ErrInvalidConfig)
	}
}

// Hooks are optional host callbacks. They run without the manager lock held
// and may call back into the manager.
type Hooks[T any] struct {
	// OnControllerReady is called once per player after a successful Initialize.
	OnControllerReady func(p Player)

	// OnPlayStateChanged is called after the manager plays or pauses players.
	OnPlayStateChanged func()

	// OnPaginationNeeded fetches the next page of items. The manager appends
	// whatever it returns. Runs on a background goroutine.
	OnPaginationNeeded func(ctx context.Context) ([]T, error)

	// OnError receives collaborator and resource errors. Never fatal.
	OnError func(err error)
}

// Config configures a Manager.
type Config[T any] struct {
	Backward int // Live items kept behind the target index (default: 0)
	Forward  int // Live items kept ahead of the target index (default: 0)

	Strategy Strategy // Window policy (default: StrategyReanchor)
	Capacity int      // Incremental window size, must exceed Backward+Forward (default: Backward+Forward+1)

	PaginationThreshold int // Fetch more when at most this many items remain after the target (default: 0)

	// AutoplayFirst plays index 0 once, the first time it becomes ready,
	// whether or not it is active yet. If the viewer already targets another
	// index by then, the one-shot is spent without playing so that the
	// target keeps the only running player.
	AutoplayFirst bool

	Quiescence time.Duration // Pause around each Player.Dispose (default: 0)

	InitRetries       int           // Extra Initialize attempts after a failure (default: 0)
	InitRetryDelay    time.Duration // Initial retry backoff (default: 250ms)
	InitRetryMaxDelay time.Duration // Retry backoff cap (default: 2s)

	Hooks  Hooks[T]
	Events EventSink    // Optional structured event sink
	Logger *slog.Logger // Default: slog.Default()
}

// validate checks the configuration and fills defaults (fail-fast).
func (c *Config[T]) validate() error {
	if c.Backward < 0 {
		return fmt.Errorf("preload: backward margin must be >= 0, got %d: %w", c.Backward, ErrInvalidConfig)
	}
	if c.Forward < 0 {
		return fmt.Errorf("preload: forward margin must be >= 0, got %d: %w", c.Forward, ErrInvalidConfig)
	}
	if c.PaginationThreshold < 0 {
		return fmt.Errorf("preload: pagination threshold must be >= 0, got %d: %w", c.PaginationThreshold, ErrInvalidConfig)
	}
	if c.Quiescence < 0 {
		return fmt.Errorf("preload: quiescence must be >= 0, got %v: %w", c.Quiescence, ErrInvalidConfig)
	}
	if c.InitRetries < 0 {
		return fmt.Errorf("preload: init retries must be >= 0, got %d: %w", c.InitRetries, ErrInvalidConfig)
	}

	switch c.Strategy {
	case StrategyReanchor:
	case StrategyIncremental:
		if c.Capacity == 0 {
			c.Capacity = c.Backward + c.Forward + 1
		}
		if c.Capacity <= c.Backward+c.Forward {
			return fmt.Errorf("preload: capacity %d must exceed backward+forward (%d): %w",
				c.Capacity, c.Backward+c.Forward, ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("preload: unknown strategy %d: %w", int(c.Strategy), ErrInvalidConfig)
	}

	def := lifecycle.DefaultRetryConfig()
	if c.InitRetryDelay <= 0 {
		c.InitRetryDelay = def.RetryDelay
	}
	if c.InitRetryMaxDelay <= 0 {
		c.InitRetryMaxDelay = def.MaxRetryDelay
	}
	if c.InitRetryMaxDelay < c.InitRetryDelay {
		return fmt.Errorf("preload: init retry max delay %v below initial delay %v: %w",
			c.InitRetryMaxDelay, c.InitRetryDelay, ErrInvalidConfig)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	return nil
}
