// Package decay prunes transient bearing lines and circles once they are
// older than the configured decay rate.
package decay

import (
	"context"
	"log/slog"
	"time"

	"github.com/dfmap/dfmap/internal/clock"
)

const (
	maxTick = time.Second
	minTick = 10 * time.Millisecond
)

// Pruner removes expired entities. Implemented by the store.
type Pruner interface {
	Decay(now time.Time, rate time.Duration) int
}

// Params exposes the decay rate, which may change at any time.
type Params interface {
	DecayRate() time.Duration
}

// Decayer runs the decay loop.
type Decayer struct {
	pruner Pruner
	params Params
	clock  clock.Clock
	logger *slog.Logger
}

// New creates a Decayer.
func New(p Pruner, params Params, c clock.Clock, logger *slog.Logger) *Decayer {
	if c == nil {
		c = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Decayer{pruner: p, params: params, clock: c, logger: logger}
}

// Interval returns the loop period for a decay rate: a tenth of the rate,
// clamped to [10ms, 1s].
func Interval(rate time.Duration) time.Duration {
	if rate <= 0 {
		return maxTick
	}
	d := rate / 10
	if d > maxTick {
		return maxTick
	}
	if d < minTick {
		return minTick
	}
	return d
}

// Tick prunes once using the current decay rate.
func (d *Decayer) Tick() int {
	rate := d.params.DecayRate()
	if rate <= 0 {
		return 0
	}
	removed := d.pruner.Decay(d.clock.Now(), rate)
	if removed > 0 {
		d.logger.Debug("decayed entities", "removed", removed, "decayRate", rate)
	}
	return removed
}

// Run ticks until ctx is cancelled, re-reading the rate before every tick.
func (d *Decayer) Run(ctx context.Context) {
	for {
		tick, timer := clock.After(d.clock, Interval(d.params.DecayRate()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-tick:
		}
		d.Tick()
	}
}
