// Package replay re-plays a recent window of the signal feed, one record per
// step, through the same deduplicating insertion path as live polling.
package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dfmap/dfmap/internal/clock"
	"github.com/dfmap/dfmap/internal/ingest"
	"github.com/dfmap/dfmap/pkg/core"
)

const (
	DefaultWindow = 5 * time.Minute
	DefaultStep   = time.Second
)

// ErrReplayActive is returned by Start and Load while a replay is running or paused.
var ErrReplayActive = errors.New("replay already active")

// State is the scheduler state.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StatePaused  State = "paused"
)

// Fetcher retrieves caller records started at or after since.
type Fetcher interface {
	FetchCallersSince(ctx context.Context, since time.Time) ([]core.CallerRecord, error)
}

// Lines is the insertion path shared with polling.
type Lines interface {
	InsertLines(lines []core.Line) []core.Line
	ExpireLine(id string) bool
}

// Params exposes the decay rate used to schedule removal of replayed lines.
type Params interface {
	DecayRate() time.Duration
}

// Deps holds all dependencies for the Scheduler.
type Deps struct {
	Fetcher Fetcher
	Lines   Lines
	Mapper  ingest.Mapper
	Params  Params
	Clock   clock.Clock
	Logger  *slog.Logger
}

// Scheduler drives replays. The zero state is Idle.
type Scheduler struct {
	deps   Deps
	window time.Duration
	step   time.Duration

	mu       sync.Mutex
	state    State
	records  []core.CallerRecord
	index    int
	inserted int
	gen      uint64
	cancel   context.CancelFunc
	removals map[string]clock.Timer
}

// New creates a Scheduler.
func New(deps Deps, window, step time.Duration) *Scheduler {
	if window <= 0 {
		window = DefaultWindow
	}
	if step <= 0 {
		step = DefaultStep
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Scheduler{
		deps:     deps,
		window:   window,
		step:     step,
		state:    StateIdle,
		removals: make(map[string]clock.Timer),
	}
}

// Start fetches the replay window and begins stepping through it. The first
// record is inserted one step after Start returns.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrReplayActive
	}
	// Running while fetching so that concurrent polls stop filtering by age.
	s.state = StateRunning
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	since := s.deps.Clock.Now().Add(-s.window)
	records, err := s.deps.Fetcher.FetchCallersSince(ctx, since)
	if err != nil {
		s.mu.Lock()
		if s.gen == gen {
			s.state = StateIdle
		}
		s.mu.Unlock()
		return fmt.Errorf("fetching replay window: %w", err)
	}

	s.mu.Lock()
	if s.gen != gen || s.state == StateIdle {
		// stopped while fetching
		s.mu.Unlock()
		return nil
	}
	s.load(records)
	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	s.deps.Logger.Info("replay started", "records", len(records), "since", since)
	go s.loop(loopCtx, gen)
	return nil
}

// Load arms the scheduler with records without starting the step loop.
// Steps are then driven by calling Step.
func (s *Scheduler) Load(records []core.CallerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return ErrReplayActive
	}
	s.gen++
	s.state = StateRunning
	s.load(records)
	return nil
}

func (s *Scheduler) load(records []core.CallerRecord) {
	sorted := make([]core.CallerRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		ti, iok := sorted[i].Started()
		tj, jok := sorted[j].Started()
		if iok != jok {
			return iok
		}
		return ti.Before(tj)
	})
	s.records = sorted
	s.index = 0
	s.inserted = 0
}

func (s *Scheduler) loop(ctx context.Context, gen uint64) {
	for {
		tick, timer := clock.After(s.deps.Clock, s.step)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-tick:
		}

		s.mu.Lock()
		stale := s.gen != gen
		s.mu.Unlock()
		if stale || !s.Step() {
			return
		}
	}
}

// Step performs one replay tick: while running it inserts the lines for the
// next record and advances; while paused it does nothing. It reports whether
// the replay is still active afterwards. Pause and Stop wait for an
// in-flight step, so no record is inserted once they return.
func (s *Scheduler) Step() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateIdle:
		return false
	case StatePaused:
		return true
	}

	if s.index >= len(s.records) {
		s.finishLocked()
		return false
	}
	rec := s.records[s.index]
	s.index++

	now := s.deps.Clock.Now()
	added := s.deps.Lines.InsertLines(s.deps.Mapper.Lines(rec, now))
	s.inserted += len(added)
	s.scheduleRemovalLocked(added)

	if s.index >= len(s.records) {
		s.finishLocked()
		return false
	}
	return true
}

func (s *Scheduler) finishLocked() {
	if s.state == StateIdle {
		return
	}
	s.state = StateIdle
	s.deps.Logger.Info("replay finished", "records", len(s.records), "lines", s.inserted)
}

func (s *Scheduler) scheduleRemovalLocked(lines []core.Line) {
	rate := time.Duration(0)
	if s.deps.Params != nil {
		rate = s.deps.Params.DecayRate()
	}
	if rate <= 0 {
		return
	}
	for _, l := range lines {
		id := l.ID
		if old, ok := s.removals[id]; ok {
			old.Stop()
		}
		s.removals[id] = s.deps.Clock.AfterFunc(rate, func() {
			s.mu.Lock()
			delete(s.removals, id)
			s.mu.Unlock()
			if s.deps.Lines.ExpireLine(id) {
				s.deps.Logger.Debug("replayed line expired", "line", id)
			}
		})
	}
}

// Pause freezes a running replay. Steps keep ticking but insert nothing.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRunning {
		s.state = StatePaused
	}
}

// Resume continues a paused replay.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StatePaused {
		s.state = StateRunning
	}
}

// Stop returns to Idle. The step loop halts on its next tick; lines already
// inserted are left to the regular decay.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateIdle {
		return
	}
	s.state = StateIdle
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.deps.Logger.Info("replay stopped", "index", s.index, "records", len(s.records))
}

// Active reports whether a replay is running or paused.
func (s *Scheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != StateIdle
}

// Status describes the replay progress.
type Status struct {
	State    State `json:"state"`
	Index    int   `json:"index"`
	Total    int   `json:"total"`
	Inserted int   `json:"inserted"`
}

// Status returns the current state and progress.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{State: s.state, Index: s.index, Total: len(s.records), Inserted: s.inserted}
}

// Close stops the replay and cancels every pending removal timer.
func (s *Scheduler) Close() {
	s.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.removals {
		t.Stop()
		delete(s.removals, id)
	}
}
