package store

import (
	"sync"
	"testing"
	"time"

	"github.com/dfmap/dfmap/internal/clock"
	"github.com/dfmap/dfmap/internal/geo"
	"github.com/dfmap/dfmap/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu      sync.Mutex
	signals []core.Marker
}

func (n *recordingNotifier) SignalCreated(m core.Marker) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.signals = append(n.signals, m)
}

func newTestStore(t *testing.T) (*Store, *clock.Fake) {
	t.Helper()
	c := clock.NewFake(testStart)
	s, err := New(Options{Clock: c})
	require.NoError(t, err)
	return s, c
}

func line(id string, ts time.Time) core.Line {
	return core.Line{ID: id, Start: core.Point{}, End: core.Point{Lat: 1}, Timestamp: ts}
}

func lineIDs(lines []core.Line) []string {
	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.ID
	}
	return ids
}

func TestAddMarker_GeneratesID(t *testing.T) {
	s, _ := newTestStore(t)

	m := s.AddMarker(core.Point{Lat: 1, Lng: 2}, core.MarkerBoat, "ferry")
	assert.Equal(t, "Boat-1740830400000", m.ID)
	assert.Equal(t, "ferry", m.Description)
	assert.Equal(t, testStart, m.PingTime)

	// Same instant yields a distinct id
	m2 := s.AddMarker(core.Point{Lat: 3, Lng: 4}, core.MarkerBoat, "tug")
	assert.NotEqual(t, m.ID, m2.ID)
	assert.Len(t, s.Snapshot().Markers, 2)
}

func TestAddMarker_SignalLinksNearestRFF(t *testing.T) {
	c := clock.NewFake(testStart)
	notifier := &recordingNotifier{}
	s, err := New(Options{Clock: c, Notifier: notifier})
	require.NoError(t, err)

	s.SeedMarkers([]core.Marker{
		{ID: "rff-a", Type: core.MarkerRFF, Name: "Alpha", LatLng: core.Point{Lat: 0, Lng: 0}},
		{ID: "rff-b", Type: core.MarkerRFF, Name: "Bravo", LatLng: core.Point{Lat: 1, Lng: 1}},
	})

	target := core.Point{Lat: 0.1, Lng: 0.1}
	m := s.AddMarker(target, core.MarkerSignal, "")

	require.NotNil(t, m.Bearing1)
	assert.Equal(t, "Alpha", m.RFF1)
	assert.InDelta(t, geo.Bearing(0, 0, 0.1, 0.1), *m.Bearing1, 1e-12)

	snap := s.Snapshot()
	require.Len(t, snap.Lines, 1)
	l := snap.Lines[0]
	assert.Equal(t, core.Point{Lat: 0, Lng: 0}, l.Start)
	assert.Equal(t, "Alpha", l.Origin)
	assert.InDelta(t, DefaultSignalLineDistance, geo.Distance(l.Start, l.End), 1e-3)

	require.Len(t, notifier.signals, 1)
	assert.Equal(t, m.ID, notifier.signals[0].ID)
}

func TestAddMarker_SignalAndLineShareVersion(t *testing.T) {
	s, _ := newTestStore(t)
	s.SeedMarkers([]core.Marker{{ID: "rff-a", Type: core.MarkerRFF, Name: "Alpha"}})

	var seen []uint64
	s.OnLinesAdded(func(added, all []core.Line) {
		seen = append(seen, s.Version())
	})

	v := s.Version()
	m := s.AddMarker(core.Point{Lat: 0.2, Lng: 0.2}, core.MarkerSignal, "")

	snap := s.Snapshot()
	assert.Equal(t, v+1, snap.Version)
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, "line-"+m.ID, snap.Lines[0].ID)
	assert.Len(t, snap.Markers, 2)
	// hooks run after the lock is released and observe the final version
	assert.Equal(t, []uint64{v + 1}, seen)
}

func TestAddMarker_SignalWithoutRFF(t *testing.T) {
	s, _ := newTestStore(t)

	m := s.AddMarker(core.Point{Lat: 5, Lng: 5}, core.MarkerSignal, "")

	assert.Nil(t, m.Bearing1)
	assert.Empty(t, m.RFF1)
	snap := s.Snapshot()
	assert.Len(t, snap.Markers, 1)
	assert.Empty(t, snap.Lines)
}

func TestNearestRFF_FirstMinimumWins(t *testing.T) {
	markers := []core.Marker{
		{ID: "boat", Type: core.MarkerBoat, LatLng: core.Point{Lat: 0, Lng: 0}},
		{ID: "first", Type: core.MarkerRFF, LatLng: core.Point{Lat: 1, Lng: 0}},
		{ID: "second", Type: core.MarkerRFF, LatLng: core.Point{Lat: -1, Lng: 0}},
	}

	m, ok := nearestRFF(markers, core.Point{})
	require.True(t, ok)
	assert.Equal(t, "first", m.ID)

	_, ok = nearestRFF(markers[:1], core.Point{})
	assert.False(t, ok)
}

func TestSeedMarkers_SkipsKnownIDs(t *testing.T) {
	s, _ := newTestStore(t)

	rff := core.Marker{ID: "rff-1", Type: core.MarkerRFF, Name: "Alpha"}
	assert.Equal(t, 1, s.SeedMarkers([]core.Marker{rff}))
	assert.Equal(t, 0, s.SeedMarkers([]core.Marker{rff}))

	got, ok := s.RFF("Alpha")
	require.True(t, ok)
	assert.Equal(t, "rff-1", got.ID)
	assert.Len(t, s.RFFs(), 1)
}

func TestDeleteMarker(t *testing.T) {
	s, _ := newTestStore(t)
	s.SeedMarkers([]core.Marker{
		{ID: "rff-1", Type: core.MarkerRFF, Name: "Alpha"},
		{ID: "rff-2", Type: core.MarkerRFF, Name: "Bravo"},
	})
	before := s.Snapshot()

	removed, ok := s.DeleteMarker("rff-1")
	require.True(t, ok)
	assert.Equal(t, "rff-1", removed.ID)

	_, ok = s.RFF("Alpha")
	assert.False(t, ok)
	_, ok = s.RFF("Bravo")
	assert.True(t, ok)

	// Earlier snapshots are untouched
	assert.Len(t, before.Markers, 2)
	assert.Len(t, s.Snapshot().Markers, 1)

	v := s.Version()
	_, ok = s.DeleteMarker("missing")
	assert.False(t, ok)
	assert.Equal(t, v, s.Version(), "deleting an unknown id must not mutate")
}

func TestDeleteMarker_SameNamedStationTakesOver(t *testing.T) {
	s, _ := newTestStore(t)
	s.SeedMarkers([]core.Marker{
		{ID: "rff-1", Type: core.MarkerRFF, Name: "Alpha"},
		{ID: "sig-1", Type: core.MarkerSignal, Name: "Alpha"},
		{ID: "rff-2", Type: core.MarkerRFF, Name: "Alpha"},
		{ID: "rff-3", Type: core.MarkerRFF, Name: "Alpha"},
	})
	assert.Equal(t, 1, s.Counts().Stations)

	_, ok := s.DeleteMarker("rff-1")
	require.True(t, ok)

	got, ok := s.RFF("Alpha")
	require.True(t, ok)
	assert.Equal(t, "rff-2", got.ID)

	// removing a station that is not the indexed one keeps the index
	_, ok = s.DeleteMarker("rff-3")
	require.True(t, ok)
	got, ok = s.RFF("Alpha")
	require.True(t, ok)
	assert.Equal(t, "rff-2", got.ID)

	_, ok = s.DeleteMarker("rff-2")
	require.True(t, ok)
	_, ok = s.RFF("Alpha")
	assert.False(t, ok)
	assert.Zero(t, s.Counts().Stations)
}

func TestAddLines_DedupIdempotence(t *testing.T) {
	s, _ := newTestStore(t)

	s.AddLines([]core.Line{line("a", testStart), line("b", testStart)})
	s.AddLines([]core.Line{line("a", testStart), line("c", testStart)})
	s.AddLines([]core.Line{line("c", testStart), line("c", testStart)})

	assert.Equal(t, []string{"a", "b", "c"}, lineIDs(s.Snapshot().Lines))
}

func TestAddLines_DuplicateInSameBatch(t *testing.T) {
	s, _ := newTestStore(t)

	added := s.InsertLines([]core.Line{line("x", testStart), line("x", testStart.Add(time.Second))})
	require.Len(t, added, 1)
	assert.Equal(t, testStart, added[0].Timestamp, "the first occurrence wins")
}

func TestAddLines_NoChangeKeepsVersion(t *testing.T) {
	s, _ := newTestStore(t)
	s.AddLines([]core.Line{line("a", testStart)})
	v := s.Version()

	s.AddLines([]core.Line{line("a", testStart)})
	s.AddLines(nil)
	assert.Equal(t, v, s.Version())
}

func TestAddLines_RunsHooks(t *testing.T) {
	s, _ := newTestStore(t)

	var added, all []string
	s.OnLinesAdded(func(a, l []core.Line) {
		added = lineIDs(a)
		all = lineIDs(l)
	})

	s.AddLines([]core.Line{line("a", testStart)})
	s.AddLines([]core.Line{line("a", testStart), line("b", testStart)})

	assert.Equal(t, []string{"b"}, added)
	assert.Equal(t, []string{"a", "b"}, all)
}

func TestAddLines_SnapshotsAreImmutable(t *testing.T) {
	s, _ := newTestStore(t)
	s.AddLines([]core.Line{line("a", testStart)})
	snap := s.Snapshot()

	s.AddLines([]core.Line{line("b", testStart)})
	s.Decay(testStart.Add(time.Hour), time.Minute)

	assert.Equal(t, []string{"a"}, lineIDs(snap.Lines))
}

func TestDecay_Monotonicity(t *testing.T) {
	s, _ := newTestStore(t)
	rate := 30 * time.Second
	now := testStart.Add(time.Hour)

	s.AddLines([]core.Line{
		line("old", now.Add(-rate-time.Millisecond)),
		line("edge", now.Add(-rate)),
		line("fresh", now),
	})

	removed := s.Decay(now, rate)
	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{"edge", "fresh"}, lineIDs(s.Snapshot().Lines))
}

func TestDecay_PermanenceOverride(t *testing.T) {
	s, _ := newTestStore(t)
	rate := 30 * time.Second

	s.AddLines([]core.Line{line("keep", testStart), line("drop", testStart)})
	c := s.AddCircle(core.Point{Lat: 1, Lng: 1}, 200, nil)

	require.True(t, s.ToggleLinePermanence("keep"))
	require.True(t, s.ToggleCirclePermanence(c.ID))

	for _, d := range []time.Duration{time.Minute, 24 * time.Hour, 365 * 24 * time.Hour} {
		s.Decay(testStart.Add(d), rate)
	}

	snap := s.Snapshot()
	assert.Equal(t, []string{"keep"}, lineIDs(snap.Lines))
	require.Len(t, snap.Circles, 1)
	assert.Equal(t, []string{"keep"}, snap.PermanentLines)
	assert.Equal(t, []string{c.ID}, snap.PermanentCircles)
}

func TestDecay_DisabledByNonPositiveRate(t *testing.T) {
	s, _ := newTestStore(t)
	s.AddLines([]core.Line{line("a", testStart)})

	assert.Zero(t, s.Decay(testStart.Add(1000*time.Hour), 0))
	assert.Zero(t, s.Decay(testStart.Add(1000*time.Hour), -time.Second))
	assert.Len(t, s.Snapshot().Lines, 1)
}

func TestDecay_Circles(t *testing.T) {
	s, c := newTestStore(t)
	s.AddCircle(core.Point{}, 200, nil)
	c.Advance(time.Minute)
	recent := s.AddCircle(core.Point{Lat: 1}, 200, nil)

	assert.Equal(t, 1, s.Decay(c.Now(), 30*time.Second))
	snap := s.Snapshot()
	require.Len(t, snap.Circles, 1)
	assert.Equal(t, recent.ID, snap.Circles[0].ID)
}

func TestToggleLinePermanence(t *testing.T) {
	s, _ := newTestStore(t)
	s.AddLines([]core.Line{line("a", testStart)})

	assert.True(t, s.ToggleLinePermanence("a"))
	assert.True(t, s.IsLinePermanent("a"))
	assert.False(t, s.ToggleLinePermanence("a"))
	assert.False(t, s.IsLinePermanent("a"))

	assert.False(t, s.ToggleLinePermanence("missing"))
	assert.False(t, s.IsLinePermanent("missing"))
}

func TestExpireLine(t *testing.T) {
	s, _ := newTestStore(t)
	s.AddLines([]core.Line{line("a", testStart), line("b", testStart)})
	s.ToggleLinePermanence("b")

	assert.True(t, s.ExpireLine("a"))
	assert.False(t, s.ExpireLine("a"))
	assert.False(t, s.ExpireLine("b"), "permanent lines are not expired")
	assert.Equal(t, []string{"b"}, lineIDs(s.Snapshot().Lines))
}

func TestAddCircles_Dedup(t *testing.T) {
	s, _ := newTestStore(t)
	fix := core.Circle{ID: "fix-a-b", Radius: 500, Timestamp: testStart}

	assert.Equal(t, 1, s.AddCircles([]core.Circle{fix, fix}))
	assert.Equal(t, 0, s.AddCircles([]core.Circle{fix}))
	assert.Len(t, s.Snapshot().Circles, 1)
}

func TestAddArea_AndMarkersInArea(t *testing.T) {
	s, _ := newTestStore(t)
	a := core.Point{Lat: 0, Lng: 0}
	b := core.Point{Lat: 0, Lng: 1}
	c := core.Point{Lat: 1, Lng: 0}

	area := s.AddArea([]core.Edge{{a, b}, {b, c}, {c, a}})
	require.Len(t, area.Edges, 3)

	inside := s.AddMarker(core.Point{Lat: 0.2, Lng: 0.2}, core.MarkerBoat, "inside")
	s.AddMarker(core.Point{Lat: 5, Lng: 5}, core.MarkerBoat, "outside")

	got, err := s.MarkersInArea(area.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, inside.ID, got[0].ID)

	_, err = s.MarkersInArea("missing")
	assert.Error(t, err)
}

func TestCounts(t *testing.T) {
	s, _ := newTestStore(t)
	s.AddMarker(core.Point{}, core.MarkerPlacemark, "")
	s.AddLines([]core.Line{line("a", testStart)})
	s.AddCircle(core.Point{}, 10, nil)
	s.ToggleLinePermanence("a")

	assert.Equal(t, Counts{Markers: 1, Lines: 1, Circles: 1, Permanent: 1}, s.Counts())
}

func TestStore_ConcurrentMutation(t *testing.T) {
	s, _ := newTestStore(t)
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(3)
		id := string(rune('a' + i%26))
		go func() {
			defer wg.Done()
			s.AddLines([]core.Line{line(id, testStart)})
		}()
		go func() {
			defer wg.Done()
			s.Decay(testStart, time.Minute)
		}()
		go func() {
			defer wg.Done()
			_ = s.Snapshot()
		}()
	}
	wg.Wait()

	assert.Len(t, s.Snapshot().Lines, 26)
}
