package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dfmap/dfmap/internal/clock"
	"github.com/dfmap/dfmap/internal/store"
)

type staticCounts struct{ c store.Counts }

func (s staticCounts) Counts() store.Counts { return s.c }

type recordingWriter struct {
	mu     sync.Mutex
	points []*influxdb2_write.Point
	err    error
}

func (w *recordingWriter) WritePoint(_ context.Context, p *influxdb2_write.Point) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.points = append(w.points, p)
	return w.err
}

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.points)
}

func TestSample_WritesPoint(t *testing.T) {
	at := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	counts := store.Counts{Markers: 2, Lines: 5, Circles: 1, Areas: 1, Permanent: 3, Stations: 2}
	w := &recordingWriter{}
	s := NewService(Dependencies{Store: staticCounts{counts}, Writer: w, Clock: clock.NewFake(at)})

	assert.Equal(t, counts, s.Sample(context.Background()))
	assert.Equal(t, counts, s.Last())

	require.Len(t, w.points, 1)
	assert.Equal(t,
		"store_counts,source=engine areas=1i,circles=1i,lines=5i,markers=2i,permanent=3i,stations=2i 1740830400000000000",
		influxdb2_write.PointToLineProtocol(w.points[0], time.Nanosecond))
}

func TestSample_WriterErrorIsSwallowed(t *testing.T) {
	w := &recordingWriter{err: errors.New("influx down")}
	s := NewService(Dependencies{Store: staticCounts{store.Counts{Lines: 1}}, Writer: w})

	assert.Equal(t, 1, s.Sample(context.Background()).Lines)
	assert.Equal(t, 1, w.count())
}

func TestSample_NoWriter(t *testing.T) {
	s := NewService(Dependencies{Store: staticCounts{store.Counts{Areas: 4}}})
	assert.Equal(t, 4, s.Sample(context.Background()).Areas)
}

func TestStartStop(t *testing.T) {
	w := &recordingWriter{}
	s := NewService(Dependencies{Store: staticCounts{}, Writer: w, Interval: 5 * time.Millisecond})

	s.Start(context.Background())
	s.Start(context.Background())
	assert.True(t, s.IsRunning())

	assert.Eventually(t, func() bool { return w.count() >= 2 }, time.Second, 5*time.Millisecond)

	s.Stop()
	assert.False(t, s.IsRunning())
	s.Stop()
}

func TestStart_StopsOnContextCancel(t *testing.T) {
	s := NewService(Dependencies{Store: staticCounts{}, Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()

	assert.Eventually(t, func() bool { return !s.IsRunning() }, time.Second, 5*time.Millisecond)
}
