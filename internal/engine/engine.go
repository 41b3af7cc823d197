// Package engine assembles the state engine: store, polling, batching,
// decay, replay, fix detection and pointer interaction.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dfmap/dfmap/internal/area"
	"github.com/dfmap/dfmap/internal/clock"
	"github.com/dfmap/dfmap/internal/config"
	"github.com/dfmap/dfmap/internal/decay"
	"github.com/dfmap/dfmap/internal/dispatcher"
	"github.com/dfmap/dfmap/internal/fix"
	"github.com/dfmap/dfmap/internal/geo"
	"github.com/dfmap/dfmap/internal/ingest"
	"github.com/dfmap/dfmap/internal/interaction"
	"github.com/dfmap/dfmap/internal/monitor"
	"github.com/dfmap/dfmap/internal/replay"
	"github.com/dfmap/dfmap/internal/session"
	"github.com/dfmap/dfmap/internal/store"
	"github.com/dfmap/dfmap/pkg/core"
	"github.com/dfmap/dfmap/pkg/streaming"
)

// ErrUnknownReplayAction is returned by Replay for an unrecognised action.
var ErrUnknownReplayAction = errors.New("unknown replay action")

// Backend is the signal feed the engine polls and replays from.
type Backend interface {
	FetchCallers(ctx context.Context) ([]core.CallerRecord, error)
	FetchCallersSince(ctx context.Context, since time.Time) ([]core.CallerRecord, error)
	FetchRFFs(ctx context.Context) ([]core.RFFSite, error)
}

// SignalSync persists signal marker changes. Calls must not block.
type SignalSync interface {
	store.SignalNotifier
	interaction.SignalSync
}

// Dependencies holds all dependencies for the Engine.
type Dependencies struct {
	Config     config.EngineConfig
	Backend    Backend
	Signals    SignalSync // optional
	StaticRFFs []config.StaticRFF
	Points     monitor.PointWriter // optional
	Metrics    *monitor.Collector  // optional
	Clock      clock.Clock
	Logger     *slog.Logger
}

// Engine owns every component and the goroutines that drive them.
type Engine struct {
	deps Dependencies

	store       *store.Store
	session     *session.Context
	drafter     *area.Drafter
	dispatcher  *dispatcher.Dispatcher
	interaction *interaction.Manager
	batcher     *ingest.Batcher
	poller      *ingest.Poller
	decayer     *decay.Decayer
	replay      *replay.Scheduler
	fixes       *fix.Detector
	monitor     *monitor.Service

	noticeMu sync.RWMutex
	notice   func(error)

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

// New builds an engine. Nothing runs until Start.
func New(deps Dependencies) (*Engine, error) {
	if deps.Backend == nil {
		return nil, errors.New("engine: backend is required")
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	cfg := deps.Config

	e := &Engine{deps: deps}

	var notifier store.SignalNotifier
	var signalSync interaction.SignalSync
	if deps.Signals != nil {
		notifier, signalSync = deps.Signals, deps.Signals
	}

	st, err := store.New(store.Options{
		Clock:              deps.Clock,
		Logger:             deps.Logger.With("component", "store"),
		Notifier:           notifier,
		SignalLineDistance: cfg.SignalLineDistance,
	})
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}
	e.store = st
	e.session = session.NewContext(cfg.DecayRate)

	if cfg.FixEnabled {
		e.fixes = fix.NewDetector(st, cfg.FixRadius, deps.Clock, deps.Logger.With("component", "fix"))
		st.OnLinesAdded(e.fixes.Observe)
	}

	e.drafter = area.NewDrafter(st, cfg.AreaTolerancePx, cfg.AreaToleranceM)

	d, err := dispatcher.New(deps.Logger.With("component", "dispatcher"))
	if err != nil {
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}
	e.dispatcher = d

	e.interaction = interaction.NewManager(interaction.Dependencies{
		Store:              st,
		Session:            e.session,
		Drafter:            e.drafter,
		Dispatcher:         d,
		Signals:            signalSync,
		Clock:              deps.Clock,
		Logger:             deps.Logger.With("component", "interaction"),
		ManualLineDistance: cfg.ManualLineDistance,
		CircleRadius:       cfg.CircleRadius,
	})
	e.interaction.RegisterHandlers(d)

	mapper := ingest.Mapper{
		RFFs:     st,
		Distance: cfg.FeedLineDistance,
		Logger:   deps.Logger.With("component", "mapper"),
	}
	e.batcher = ingest.NewBatcher(st, cfg.BatchWindow, deps.Clock)

	e.replay = replay.New(replay.Deps{
		Fetcher: deps.Backend,
		Lines:   st,
		Mapper:  mapper,
		Params:  e.session,
		Clock:   deps.Clock,
		Logger:  deps.Logger.With("component", "replay"),
	}, cfg.ReplayWindow, cfg.ReplayStep)

	e.poller = ingest.NewPoller(ingest.PollerDeps{
		Fetcher: deps.Backend,
		Mapper:  mapper,
		Sink:    e.batcher,
		Params:  e.session,
		Replay:  e.replay,
		Clock:   deps.Clock,
		Logger:  deps.Logger.With("component", "poller"),
		OnError: e.reportError,
	}, cfg.PollInterval, ingest.DefaultMaxBackoff)

	e.decayer = decay.New(st, e.session, deps.Clock, deps.Logger.With("component", "decay"))

	e.monitor = monitor.NewService(monitor.Dependencies{
		Store:    st,
		Writer:   deps.Points,
		Metrics:  deps.Metrics,
		Clock:    deps.Clock,
		Logger:   deps.Logger.With("component", "monitor"),
		Interval: cfg.MonitorInterval,
	})

	return e, nil
}

// OnNotice registers the sink for transient errors, such as the feed hub.
func (e *Engine) OnNotice(fn func(error)) {
	e.noticeMu.Lock()
	defer e.noticeMu.Unlock()
	e.notice = fn
}

func (e *Engine) reportError(err error) {
	e.noticeMu.RLock()
	fn := e.notice
	e.noticeMu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

// Start seeds the RFF stations and launches the poll, decay and monitor loops.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errors.New("engine closed")
	}
	if e.cancel != nil {
		return errors.New("engine already started")
	}

	if err := e.seedStatic(); err != nil {
		return err
	}
	e.seedBackend(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		e.poller.Run(runCtx)
	}()
	go func() {
		defer e.wg.Done()
		e.decayer.Run(runCtx)
	}()
	e.monitor.Start(runCtx)

	e.deps.Logger.Info("engine started",
		"rffs", len(e.store.RFFs()),
		"pollInterval", e.deps.Config.PollInterval,
		"decayRate", e.session.DecayRate())
	return nil
}

// seedStatic adds the RFF stations listed in config.
func (e *Engine) seedStatic() error {
	if len(e.deps.StaticRFFs) == 0 {
		return nil
	}
	markers := make([]core.Marker, 0, len(e.deps.StaticRFFs))
	for i, s := range e.deps.StaticRFFs {
		lat, err := geo.ParseCoordinate(s.Lat)
		if err != nil {
			return fmt.Errorf("rff %q: invalid latitude %q: %w", s.Name, s.Lat, err)
		}
		lng, err := geo.ParseCoordinate(s.Lng)
		if err != nil {
			return fmt.Errorf("rff %q: invalid longitude %q: %w", s.Name, s.Lng, err)
		}
		id := s.ID
		if id == "" {
			id = fmt.Sprintf("RFF-static-%d", i)
		}
		markers = append(markers, core.Marker{
			ID:          id,
			LatLng:      core.Point{Lat: lat, Lng: lng},
			Type:        core.MarkerRFF,
			Name:        s.Name,
			Description: s.Name,
			PingTime:    e.deps.Clock.Now(),
		})
	}
	n := e.store.SeedMarkers(markers)
	e.deps.Logger.Debug("seeded static RFFs", "added", n)
	return nil
}

// seedBackend adds the persisted RFF stations. Failures are logged only.
func (e *Engine) seedBackend(ctx context.Context) {
	sites, err := e.deps.Backend.FetchRFFs(ctx)
	if err != nil {
		e.deps.Logger.Warn("failed to fetch RFF stations", "error", err)
		e.reportError(err)
		return
	}
	markers := make([]core.Marker, 0, len(sites))
	for _, s := range sites {
		markers = append(markers, core.Marker{
			ID:          s.ID,
			LatLng:      core.Point{Lat: s.Lat, Lng: s.Lng},
			Type:        core.MarkerRFF,
			Name:        s.Name,
			Description: s.Name,
			PingTime:    e.deps.Clock.Now(),
		})
	}
	n := e.store.SeedMarkers(markers)
	e.deps.Logger.Debug("seeded backend RFFs", "fetched", len(sites), "added", n)
}

// Close cancels every loop and timer and waits for the goroutines to exit.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.wg.Wait()
	e.monitor.Stop()
	e.replay.Close()
	e.batcher.Close()
	e.dispatcher.Close()
	e.deps.Logger.Info("engine stopped")
}

// Store exposes the entity store.
func (e *Engine) Store() *store.Store { return e.store }

// Session exposes the runtime parameters.
func (e *Engine) Session() *session.Context { return e.session }

// LogAttrs returns the attributes the log handler injects into every record.
func (e *Engine) LogAttrs() []slog.Attr { return e.session.LogAttrs() }

// Snapshot returns the current store snapshot.
func (e *Engine) Snapshot() store.Snapshot { return e.store.Snapshot() }

// Version returns the store version.
func (e *Engine) Version() uint64 { return e.store.Version() }

// Pointer handles a click or move from the rendering layer.
func (e *Engine) Pointer(ev core.PointerEvent) (any, error) {
	return e.interaction.Pointer(ev)
}

// SetMode switches the interaction mode.
func (e *Engine) SetMode(mode core.Mode) error {
	return e.interaction.SetMode(mode)
}

// SetDecayRate changes the decay rate; zero or negative disables decay.
func (e *Engine) SetDecayRate(d time.Duration) {
	e.session.SetDecayRate(d)
}

// Replay applies a replay control action and returns the resulting status.
func (e *Engine) Replay(action string) (replay.Status, error) {
	switch action {
	case streaming.ReplayStart:
		e.mu.Lock()
		closed := e.closed
		e.mu.Unlock()
		if closed {
			return e.replay.Status(), errors.New("engine closed")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := e.replay.Start(ctx); err != nil {
			e.reportError(err)
			return e.replay.Status(), err
		}
	case streaming.ReplayPause:
		e.replay.Pause()
	case streaming.ReplayResume:
		e.replay.Resume()
	case streaming.ReplayStop:
		e.replay.Stop()
	default:
		return e.replay.Status(), fmt.Errorf("%w: %q", ErrUnknownReplayAction, action)
	}
	return e.replay.Status(), nil
}

// TogglePermanence flips the permanence of a line or circle.
func (e *Engine) TogglePermanence(kind core.EntityKind, id string) (bool, error) {
	return e.interaction.TogglePermanence(kind, id)
}

// DeleteMarker removes a marker.
func (e *Engine) DeleteMarker(id string) bool {
	return e.interaction.DeleteMarker(id)
}

// UpdateSignal forwards a signal edit to the backend.
func (e *Engine) UpdateSignal(id string, u core.SignalUpdate) error {
	return e.interaction.UpdateSignal(id, u)
}

// ShowPopup opens a popup, or clears it for PopupNone.
func (e *Engine) ShowPopup(kind core.PopupKind) error {
	return e.interaction.ShowPopup(kind)
}

// SelectArea selects an area and returns the markers inside it.
func (e *Engine) SelectArea(id string) ([]core.Marker, error) {
	return e.interaction.SelectArea(id)
}

// PollOnce runs one poll and flushes the batcher.
func (e *Engine) PollOnce(ctx context.Context) (int, error) {
	n, err := e.poller.Tick(ctx)
	e.batcher.Flush()
	return n, err
}

// DecayOnce prunes expired entities once.
func (e *Engine) DecayOnce() int {
	return e.decayer.Tick()
}
