package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dfmap/dfmap/internal/clock"
	"github.com/dfmap/dfmap/pkg/core"
)

const (
	// DefaultPollInterval is the delay between two successful polls.
	DefaultPollInterval = 3 * time.Second
	// DefaultMaxBackoff caps the delay after repeated poll failures.
	DefaultMaxBackoff = 30 * time.Second
)

// Fetcher retrieves the current caller records from the signal feed.
type Fetcher interface {
	FetchCallers(ctx context.Context) ([]core.CallerRecord, error)
}

// Params exposes the runtime parameters the poller reads on every tick.
type Params interface {
	DecayRate() time.Duration
}

// ReplayState reports whether a replay is running.
type ReplayState interface {
	Active() bool
}

// PollerDeps holds all dependencies for the Poller.
type PollerDeps struct {
	Fetcher Fetcher
	Mapper  Mapper
	Sink    LineAdder
	Params  Params
	Replay  ReplayState
	Clock   clock.Clock
	Logger  *slog.Logger
	// OnError is told about every failed poll, e.g. to notify feed subscribers.
	OnError func(err error)
}

// Poller periodically fetches caller records and feeds their lines to Sink.
type Poller struct {
	deps       PollerDeps
	interval   time.Duration
	maxBackoff time.Duration
}

// NewPoller creates a Poller.
func NewPoller(deps PollerDeps, interval, maxBackoff time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if maxBackoff < interval {
		maxBackoff = DefaultMaxBackoff
		if maxBackoff < interval {
			maxBackoff = interval
		}
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Poller{deps: deps, interval: interval, maxBackoff: maxBackoff}
}

// Tick runs one poll and returns the number of candidate lines submitted.
func (p *Poller) Tick(ctx context.Context) (int, error) {
	records, err := p.deps.Fetcher.FetchCallers(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetching callers: %w", err)
	}

	now := p.deps.Clock.Now()
	var lines []core.Line
	for _, rec := range p.keep(records, now) {
		lines = append(lines, p.deps.Mapper.Lines(rec, now)...)
	}
	p.deps.Sink.AddLines(lines)
	return len(lines), nil
}

// keep applies the age filter. Everything passes while a replay runs or
// when decay is disabled.
func (p *Poller) keep(records []core.CallerRecord, now time.Time) []core.CallerRecord {
	rate := time.Duration(0)
	if p.deps.Params != nil {
		rate = p.deps.Params.DecayRate()
	}
	if rate <= 0 || (p.deps.Replay != nil && p.deps.Replay.Active()) {
		return records
	}

	cutoff := now.Add(-rate)
	out := make([]core.CallerRecord, 0, len(records))
	for _, rec := range records {
		started, ok := rec.Started()
		if !ok {
			p.deps.Logger.Debug("dropping record with unparseable starttime", "record", rec.ID, "starttime", rec.StartTime)
			continue
		}
		if !started.Before(cutoff) {
			out = append(out, rec)
		}
	}
	return out
}

// Run polls until ctx is cancelled. Failures are logged and retried with
// exponential backoff; a successful poll restores the normal interval.
func (p *Poller) Run(ctx context.Context) {
	delay := time.Duration(0)
	failures := 0

	for {
		tick, timer := clock.After(p.deps.Clock, delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-tick:
		}

		n, err := p.Tick(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			delay = p.backoff(failures)
			p.deps.Logger.Error("poll failed", "error", err, "failures", failures, "retryIn", delay)
			if p.deps.OnError != nil {
				p.deps.OnError(err)
			}
		} else {
			if failures > 0 {
				p.deps.Logger.Info("poll recovered", "failures", failures)
			}
			failures = 0
			delay = p.interval
			p.deps.Logger.Debug("poll complete", "lines", n)
		}
	}
}

func (p *Poller) backoff(failures int) time.Duration {
	d := p.interval
	for i := 0; i < failures && d < p.maxBackoff; i++ {
		d *= 2
	}
	if d > p.maxBackoff {
		d = p.maxBackoff
	}
	return d
}
