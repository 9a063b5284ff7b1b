// Package service runs one feed: it loads items from the catalog, keeps a
// preload manager positioned on them and exposes it over MQTT.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chdown/preload"
	"github.com/chdown/preload/internal/catalog"
	"github.com/chdown/preload/internal/config"
	"github.com/chdown/preload/internal/control"
	"github.com/chdown/preload/internal/emitter"
	"github.com/chdown/preload/internal/eventbus"
	"github.com/chdown/preload/internal/gstplayer"
	"github.com/chdown/preload/internal/resume"
	"github.com/chdown/preload/internal/simplayer"
)

const (
	statusInterval = 10 * time.Second
	journalBuffer  = 64
)

// Service is the feed daemon orchestrator
type Service struct {
	cfg     *config.Config
	catalog *catalog.Store
	pager   *catalog.Pager
	resume  *resume.Store // nil when resume is disabled

	manager        *preload.Manager[catalog.Item]
	events         *eventbus.Bus[preload.Event]
	journal        chan preload.Event
	emitter        *emitter.MQTTEmitter // nil when MQTT is disabled
	controlHandler *control.Handler

	// Lifecycle management
	started time.Time
	wg      sync.WaitGroup
	mu      sync.Mutex
	cancel  context.CancelFunc // For MQTT shutdown command
}

// New opens the stores named in cfg. The manager is built by Run.
func New(cfg *config.Config) (*Service, error) {
	store, err := catalog.Open(cfg.Catalog.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	s := &Service{
		cfg:     cfg,
		catalog: store,
		pager:   catalog.NewPager(store, cfg.Feed.ID, 0, cfg.Feed.PageSize),
		events:  eventbus.New[preload.Event](),
		journal: make(chan preload.Event, journalBuffer),
	}
	s.events.Subscribe("journal", s.journal)

	if cfg.Resume.Dir != "" {
		rs, err := resume.Open(cfg.Resume.Dir)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to open resume store: %w", err)
		}
		s.resume = rs
	}

	if cfg.MQTT.Broker != "" {
		s.emitter = emitter.NewMQTTEmitter(cfg)
		s.events.Subscribe("mqtt", s.emitter.Queue())
	}

	slog.Info("service created",
		"instance_id", cfg.InstanceID,
		"feed", cfg.Feed.ID,
		"backend", cfg.Player.Backend,
		"mqtt", cfg.MQTT.Broker != "",
		"resume", s.resume != nil,
	)
	return s, nil
}

// Manager returns the feed manager, nil before Start.
func (s *Service) Manager() *preload.Manager[catalog.Item] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manager
}

// Start loads the first page, restores the saved position and connects
// the MQTT plane. It returns once the first window is ready.
func (s *Service) Start(ctx context.Context) error {
	s.started = time.Now()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.writeJournal()
	}()

	items, initial, err := s.loadInitial(ctx)
	if err != nil {
		return err
	}

	m, err := preload.New(nil, s.newPlayer, s.managerConfig())
	if err != nil {
		return fmt.Errorf("failed to create manager: %w", err)
	}
	s.mu.Lock()
	s.manager = m
	s.mu.Unlock()

	if s.emitter != nil {
		if err := s.emitter.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect emitter: %w", err)
		}
	}

	m.Reset(ctx, items, initial, true)

	slog.Info("feed started",
		"feed", s.cfg.Feed.ID,
		"items", len(items),
		"initial_index", initial,
		"window", m.Window(),
	)
	return nil
}

// Run starts the service and blocks until ctx is cancelled or a shutdown
// command arrives.
func (s *Service) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	if err := s.Start(runCtx); err != nil {
		return err
	}

	if s.emitter != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.emitter.Run(runCtx)
		}()

		s.controlHandler = control.NewHandler(s.cfg, s.emitter.Client, s.callbacks(runCtx))
		if err := s.controlHandler.Start(runCtx); err != nil {
			return fmt.Errorf("failed to start control plane: %w", err)
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.publishStatusLoop(runCtx)
		}()
	}

	<-runCtx.Done()
	return nil
}

// callbacks binds control commands to the manager.
func (s *Service) callbacks(ctx context.Context) control.CommandCallbacks {
	cb := control.Binding[catalog.Item]{
		Manager: s.manager,
		NewItem: func(uri string) catalog.Item {
			// Inserted items live only in the window, the catalog is append-only.
			return catalog.Item{ID: uuid.New().String(), Feed: s.cfg.Feed.ID, Position: -1, URI: uri}
		},
		Reload: s.reload,
	}.Callbacks(ctx)

	cb.OnGetStatus = s.statusData
	cb.OnShutdown = func() error {
		s.mu.Lock()
		cancel := s.cancel
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return nil
	}
	return cb
}

// Shutdown releases every player and closes the stores.
func (s *Service) Shutdown(ctx context.Context) error {
	slog.Info("shutting down feed service")

	var errs []error
	if s.controlHandler != nil {
		errs = append(errs, s.controlHandler.Stop())
	}
	if m := s.Manager(); m != nil {
		if err := m.Dispose(ctx); err != nil {
			errs = append(errs, fmt.Errorf("dispose manager: %w", err))
		}
	}
	// No event reaches the journal once the bus is closed.
	s.events.Close()
	close(s.journal)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("background workers: %w", ctx.Err()))
	}

	if s.emitter != nil {
		errs = append(errs, s.emitter.Disconnect())
	}
	if err := s.catalog.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close catalog: %w", err))
	}

	slog.Info("feed service stopped", "uptime", time.Since(s.started).Round(time.Second))
	return errors.Join(errs...)
}

// ShutdownTimeout returns the configured graceful shutdown timeout
func (s *Service) ShutdownTimeout() time.Duration {
	return time.Duration(s.cfg.ShutdownTimeoutS) * time.Second
}

func (s *Service) managerConfig() preload.Config[catalog.Item] {
	strategy, _ := preload.ParseStrategy(s.cfg.Feed.Strategy) // validated by config.Validate
	logger := slog.Default()

	cfg := preload.Config[catalog.Item]{
		Backward:            s.cfg.Feed.Backward,
		Forward:             s.cfg.Feed.Forward,
		Strategy:            strategy,
		Capacity:            s.cfg.Feed.Capacity,
		PaginationThreshold: s.cfg.Feed.PaginationThreshold,
		AutoplayFirst:       s.cfg.Feed.AutoplayFirst,
		Quiescence:          time.Duration(s.cfg.Feed.QuiescenceMS) * time.Millisecond,
		InitRetries:         s.cfg.Feed.InitRetries,
		Logger:              logger,
		Hooks: preload.Hooks[catalog.Item]{
			OnControllerReady: func(p preload.Player) {
				logger.Debug("player ready", "source", p.SourceID())
			},
			OnPaginationNeeded: s.nextPage,
			OnError: func(err error) {
				logger.Warn("feed error", "error", err)
			},
		},
		Events: preload.EventSinkFunc(s.onEvent),
	}
	return cfg
}

func (s *Service) newPlayer(item catalog.Item) preload.Player {
	if s.cfg.Player.Backend == "sim" {
		return simplayer.New(item.URI, simplayer.Options{
			InitLatency: time.Duration(s.cfg.Player.SimInitLatencyMS) * time.Millisecond,
		})
	}
	return gstplayer.New(gstplayer.Config{
		URI:       item.URI,
		VideoSink: s.cfg.Player.VideoSink,
		AudioSink: s.cfg.Player.AudioSink,
		Loop:      s.cfg.Player.Loop,
		Logger:    slog.Default(),
	})
}

// onEvent persists the resume position and fans the event out.
func (s *Service) onEvent(e preload.Event) {
	if e.Kind == preload.EventActiveChanged {
		s.saveResume(e.Index)
	}
	s.events.Publish(e)
}

// writeJournal logs every event until the journal channel is closed.
func (s *Service) writeJournal() {
	for e := range s.journal {
		attrs := []any{"kind", e.Kind.String(), "index", e.Index}
		if e.ControllerID != "" {
			attrs = append(attrs, "controller_id", e.ControllerID, "source", e.Source)
		}
		if !e.Window.Empty() {
			attrs = append(attrs, "window_start", e.Window.Start, "window_end", e.Window.End)
		}
		if e.Count != 0 {
			attrs = append(attrs, "count", e.Count)
		}
		if e.Err != nil {
			attrs = append(attrs, "error", e.Err)
		}
		slog.Debug("feed event", attrs...)
	}
}

func (s *Service) saveResume(index int) {
	m := s.Manager()
	if s.resume == nil || m == nil || index < 0 {
		return
	}
	items := m.Items()
	if index >= len(items) {
		return
	}
	item := items[index]
	if item.Position < 0 {
		// Inserted item, not in the catalog.
		return
	}
	err := s.resume.Save(resume.Position{Feed: s.cfg.Feed.ID, ItemID: item.ID, Index: index})
	if err != nil {
		slog.Warn("failed to save resume position", "feed", s.cfg.Feed.ID, "error", err)
	}
}

// loadInitial reads enough of the feed to cover the saved position and
// returns the items with the index to open at.
func (s *Service) loadInitial(ctx context.Context) ([]catalog.Item, int, error) {
	pos, err := s.savedPosition()
	if err != nil {
		slog.Warn("ignoring resume position", "feed", s.cfg.Feed.ID, "error", err)
	}

	limit := s.cfg.Feed.PageSize
	if pos.Index >= 0 {
		limit += pos.Index
	}
	items, err := s.catalog.Page(ctx, s.cfg.Feed.ID, 0, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load feed: %w", err)
	}
	s.pager.Seek(len(items))

	initial := 0
	if pos.ItemID != "" {
		for i, it := range items {
			if it.ID == pos.ItemID {
				initial = i
				break
			}
		}
	}
	return items, initial, nil
}

func (s *Service) savedPosition() (resume.Position, error) {
	if s.resume == nil {
		return resume.Position{}, nil
	}
	pos, err := s.resume.Load(s.cfg.Feed.ID)
	if errors.Is(err, resume.ErrNoPosition) {
		return resume.Position{}, nil
	}
	return pos, err
}

// reload returns the first page of the feed and rewinds the pager.
func (s *Service) reload(ctx context.Context) ([]catalog.Item, error) {
	items, err := s.catalog.Page(ctx, s.cfg.Feed.ID, 0, s.cfg.Feed.PageSize)
	if err != nil {
		return nil, err
	}
	s.pager.Seek(len(items))
	if s.resume != nil {
		if err := s.resume.Forget(s.cfg.Feed.ID); err != nil {
			slog.Warn("failed to forget resume position", "feed", s.cfg.Feed.ID, "error", err)
		}
	}
	return items, nil
}

func (s *Service) nextPage(ctx context.Context) ([]catalog.Item, error) {
	items, err := s.pager.Next(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog page: %w", err)
	}
	slog.Debug("catalog page loaded", "feed", s.cfg.Feed.ID, "items", len(items), "offset", s.pager.Offset())
	return items, nil
}

func (s *Service) statusData() map[string]interface{} {
	data := control.StatusData(s.manager.Status())
	data["feed"] = s.cfg.Feed.ID
	data["instance_id"] = s.cfg.InstanceID
	data["uptime_s"] = int(time.Since(s.started).Seconds())
	data["catalog_offset"] = s.pager.Offset()
	bus := s.events.Stats()
	data["events_published"] = bus.TotalPublished
	var dropped uint64
	for _, sub := range bus.Subscribers {
		dropped += sub.Dropped
	}
	data["events_dropped"] = dropped
	if s.emitter != nil {
		data["mqtt_connected"] = s.emitter.Stats().Connected
	}
	return data
}

func (s *Service) publishStatusLoop(ctx context.Context) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			payload, err := json.Marshal(s.statusData())
			if err != nil {
				slog.Error("failed to marshal status", "error", err)
				continue
			}
			if err := s.emitter.PublishStatus(payload); err != nil {
				slog.Debug("status publish failed", "error", err)
			}
		}
	}
}
