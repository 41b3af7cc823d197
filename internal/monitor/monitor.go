// Package monitor periodically samples store sizes for logs, InfluxDB and
// Prometheus.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/dfmap/dfmap/internal/clock"
	"github.com/dfmap/dfmap/internal/store"
)

// DefaultInterval between samples.
const DefaultInterval = 30 * time.Second

// Measurement is the InfluxDB measurement the samples are written to.
const Measurement = "store_counts"

// CountSource exposes the store's collection sizes.
type CountSource interface {
	Counts() store.Counts
}

// PointWriter persists a telemetry point.
type PointWriter interface {
	WritePoint(ctx context.Context, point *influxdb2_write.Point) error
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Store    CountSource
	Writer   PointWriter // optional
	Metrics  *Collector  // optional
	Clock    clock.Clock
	Logger   *slog.Logger
	Interval time.Duration
}

// Service samples the store at a fixed interval.
type Service struct {
	deps Dependencies

	mu        sync.RWMutex
	isRunning bool
	stopChan  chan struct{}
	done      chan struct{}
	last      store.Counts
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	return &Service{deps: deps}
}

// Point renders counts as an InfluxDB point.
func Point(c store.Counts, at time.Time) *influxdb2_write.Point {
	return influxdb2_write.NewPoint(Measurement,
		map[string]string{"source": "engine"},
		map[string]any{
			"markers":   c.Markers,
			"lines":     c.Lines,
			"circles":   c.Circles,
			"areas":     c.Areas,
			"permanent": c.Permanent,
			"stations":  c.Stations,
		},
		at)
}

// Sample reads the counts once, logs them and forwards them to the writer.
func (s *Service) Sample(ctx context.Context) store.Counts {
	c := s.deps.Store.Counts()

	s.mu.Lock()
	s.last = c
	s.mu.Unlock()

	s.deps.Logger.Debug("store counts",
		"markers", c.Markers, "lines", c.Lines, "circles", c.Circles,
		"areas", c.Areas, "permanent", c.Permanent, "stations", c.Stations)
	s.deps.Metrics.Observe(c)

	if s.deps.Writer != nil {
		if err := s.deps.Writer.WritePoint(ctx, Point(c, s.deps.Clock.Now())); err != nil {
			s.deps.Logger.Warn("failed to write store counts", "error", err)
		}
	}
	return c
}

// Last returns the most recent sample.
func (s *Service) Last() store.Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// IsRunning returns whether the sampling goroutine is running.
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Start launches the sampling goroutine. Starting twice is a no-op.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
			close(done)
		}()

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				s.Sample(ctx)
			}
		}
	}()
}

// Stop halts the sampling goroutine and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.done
	s.isRunning = false
	s.mu.Unlock()
	<-done
}
