package interaction

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dfmap/dfmap/internal/area"
	"github.com/dfmap/dfmap/internal/clock"
	"github.com/dfmap/dfmap/internal/dispatcher"
	"github.com/dfmap/dfmap/internal/geo"
	"github.com/dfmap/dfmap/internal/session"
	"github.com/dfmap/dfmap/internal/store"
	"github.com/dfmap/dfmap/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSync struct {
	mu      sync.Mutex
	updated map[string]core.SignalUpdate
	deleted []string
}

func (r *recordingSync) SignalUpdated(id string, u core.SignalUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updated == nil {
		r.updated = make(map[string]core.SignalUpdate)
	}
	r.updated[id] = u
}

func (r *recordingSync) SignalDeleted(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, id)
}

type fixture struct {
	manager *Manager
	store   *store.Store
	session *session.Context
	drafter *area.Drafter
	signals *recordingSync
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c := clock.NewFake(time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC))

	s, err := store.New(store.Options{Clock: c})
	require.NoError(t, err)
	d, err := dispatcher.New(slog.Default())
	require.NoError(t, err)
	t.Cleanup(d.Close)

	sess := session.NewContext(time.Minute)
	drafter := area.NewDrafter(s, 7, 0)
	signals := &recordingSync{}

	m := NewManager(Dependencies{
		Store:      s,
		Session:    sess,
		Drafter:    drafter,
		Dispatcher: d,
		Signals:    signals,
		Clock:      c,
	})
	m.RegisterHandlers(d)

	return &fixture{manager: m, store: s, session: sess, drafter: drafter, signals: signals}
}

func click(x, y, lat, lng float64) core.PointerEvent {
	return core.PointerEvent{Button: core.ButtonLeft, ScreenX: x, ScreenY: y, Lat: lat, Lng: lng}
}

func (f *fixture) seedRFFs() {
	f.store.SeedMarkers([]core.Marker{
		{ID: "rff-a", Type: core.MarkerRFF, Name: "Alpha", LatLng: core.Point{Lat: 0, Lng: 0}},
		{ID: "rff-b", Type: core.MarkerRFF, Name: "Bravo", LatLng: core.Point{Lat: 1, Lng: 1}},
	})
}

func TestPointer_PlacesMarkerForMode(t *testing.T) {
	f := newFixture(t)
	f.seedRFFs()
	require.NoError(t, f.manager.SetMode(core.ModeSignal))

	result, err := f.manager.Pointer(click(5, 5, 0.1, 0.1))
	require.NoError(t, err)

	m, ok := result.(core.Marker)
	require.True(t, ok)
	assert.Equal(t, core.MarkerSignal, m.Type)
	assert.Equal(t, "Alpha", m.RFF1)

	snap := f.store.Snapshot()
	assert.Len(t, snap.Markers, 3)
	assert.Len(t, snap.Lines, 1)
	assert.Equal(t, core.ClickState{ScreenX: 5, ScreenY: 5, Lat: 0.1, Lng: 0.1}, snap.Click)
}

func TestPointer_DraggingSelectsMarker(t *testing.T) {
	f := newFixture(t)
	f.seedRFFs()

	result, err := f.manager.Pointer(click(1, 1, 1, 1))
	require.NoError(t, err)
	require.IsType(t, core.Marker{}, result)

	sel, ok := f.store.Selection()
	require.True(t, ok)
	assert.Equal(t, "rff-b", sel.ID)
	assert.Equal(t, core.PopupInspect, f.store.Popup())

	// clicking empty map clears the popup and the selection
	_, err = f.manager.Pointer(click(2, 2, 3, 3))
	require.NoError(t, err)
	assert.Equal(t, core.PopupNone, f.store.Popup())
	_, ok = f.store.Selection()
	assert.False(t, ok)
}

func TestPointer_LinesModeDrawsFromEveryRFF(t *testing.T) {
	f := newFixture(t)
	f.seedRFFs()
	require.NoError(t, f.manager.SetMode(core.ModeLines))

	_, err := f.manager.Pointer(click(0, 0, 0.5, 0.2))
	require.NoError(t, err)

	lines := f.store.Snapshot().Lines
	require.Len(t, lines, 2)
	for _, l := range lines {
		assert.InDelta(t, DefaultManualLineDistance, geo.Distance(l.Start, l.End), 1e-3)
		assert.InDelta(t, geo.BearingTo(l.Start, core.Point{Lat: 0.5, Lng: 0.2}), l.Bearing, 1e-9)
	}
}

func TestPointer_CirclesMode(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.manager.SetMode(core.ModeCircles))

	_, err := f.manager.Pointer(click(0, 0, 4, 5))
	require.NoError(t, err)

	circles := f.store.Snapshot().Circles
	require.Len(t, circles, 1)
	assert.Equal(t, core.Point{Lat: 4, Lng: 5}, circles[0].Center)
	assert.Equal(t, DefaultCircleRadius, circles[0].Radius)
}

func TestPointer_AreaClosureReturnsToDragging(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.manager.SetMode(core.ModeArea))

	for _, ev := range []core.PointerEvent{
		click(0, 0, 10, 10),
		click(0, 10, 10, 11),
		click(10, 10, 11, 11),
	} {
		_, err := f.manager.Pointer(ev)
		require.NoError(t, err)
	}

	result, err := f.manager.Pointer(click(1, 1, 10.00001, 10.00001))
	require.NoError(t, err)

	a, ok := result.(core.Area)
	require.True(t, ok)
	assert.Len(t, a.Edges, 3)
	assert.Len(t, f.store.Snapshot().Areas, 1)
	assert.False(t, f.drafter.Drawing())
	assert.Equal(t, core.ModeDragging, f.session.Mode())
}

func TestSetMode_ResetsDraft(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.manager.SetMode(core.ModeArea))

	f.manager.Pointer(click(0, 0, 0, 0))
	f.manager.Pointer(click(0, 50, 0, 1))
	require.True(t, f.drafter.Drawing())

	require.NoError(t, f.manager.SetMode(core.ModeBoat))
	assert.False(t, f.drafter.Drawing())

	assert.Error(t, f.manager.SetMode("teleport"))
}

func TestPointer_ContextMenu(t *testing.T) {
	f := newFixture(t)
	f.seedRFFs()

	_, err := f.manager.Pointer(core.PointerEvent{Button: core.ButtonRight, ScreenX: 3, ScreenY: 4, Lat: 0, Lng: 0})
	require.NoError(t, err)

	assert.Equal(t, core.PopupContextMenu, f.store.Popup())
	sel, ok := f.store.Selection()
	require.True(t, ok)
	assert.Equal(t, "rff-a", sel.ID)
}

func TestPointer_MoveTracksCursor(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Pointer(core.PointerEvent{Button: core.ButtonMove, Lat: 7, Lng: 8})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		c := f.store.Snapshot().Cursor
		return c != nil && *c == core.Point{Lat: 7, Lng: 8}
	}, time.Second, 5*time.Millisecond)
}

func TestDeleteMarker_ForwardsSignals(t *testing.T) {
	f := newFixture(t)
	f.seedRFFs()
	require.NoError(t, f.manager.SetMode(core.ModeSignal))
	result, err := f.manager.Pointer(click(0, 0, 0.3, 0.3))
	require.NoError(t, err)
	signal := result.(core.Marker)

	assert.True(t, f.manager.DeleteMarker(signal.ID))
	assert.True(t, f.manager.DeleteMarker("rff-a"))
	assert.False(t, f.manager.DeleteMarker("missing"))

	assert.Equal(t, []string{signal.ID}, f.signals.deleted)
}

func TestUpdateSignal(t *testing.T) {
	f := newFixture(t)

	assert.Error(t, f.manager.UpdateSignal("sig-1", core.SignalUpdate{}))

	fix := "52N"
	require.NoError(t, f.manager.UpdateSignal("sig-1", core.SignalUpdate{Fix: &fix}))
	require.Contains(t, f.signals.updated, "sig-1")
	assert.Equal(t, "52N", *f.signals.updated["sig-1"].Fix)
}

func TestTogglePermanence(t *testing.T) {
	f := newFixture(t)
	f.store.AddLines([]core.Line{{ID: "l1"}})
	c := f.store.AddCircle(core.Point{}, 10, nil)

	on, err := f.manager.TogglePermanence(core.EntityLine, "l1")
	require.NoError(t, err)
	assert.True(t, on)

	on, err = f.manager.TogglePermanence(core.EntityCircle, c.ID)
	require.NoError(t, err)
	assert.True(t, on)

	_, err = f.manager.TogglePermanence(core.EntityMarker, "rff-a")
	assert.Error(t, err)
}

func TestSelectArea(t *testing.T) {
	f := newFixture(t)
	a := f.store.AddArea([]core.Edge{
		{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 1}},
		{{Lat: 0, Lng: 1}, {Lat: 1, Lng: 0}},
		{{Lat: 1, Lng: 0}, {Lat: 0, Lng: 0}},
	})
	f.store.AddMarker(core.Point{Lat: 0.1, Lng: 0.1}, core.MarkerBoat, "")

	markers, err := f.manager.SelectArea(a.ID)
	require.NoError(t, err)
	assert.Len(t, markers, 1)

	sel, ok := f.store.Selection()
	require.True(t, ok)
	assert.Equal(t, core.Selection{Kind: core.EntityArea, ID: a.ID}, sel)
}
