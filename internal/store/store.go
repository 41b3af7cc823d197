// Package store holds the entity collections of the map: markers, bearing
// lines, circles and areas, plus the permanence sets and the click/selection
// state. Every mutation is serialised behind one mutex and replaces the
// affected collection, so snapshots handed out are never modified later.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dfmap/dfmap/internal/cache"
	"github.com/dfmap/dfmap/internal/clock"
	"github.com/dfmap/dfmap/internal/geo"
	"github.com/dfmap/dfmap/pkg/core"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DefaultSignalLineDistance is the projected length of a line drawn for a
// manually placed signal, in meters.
const DefaultSignalLineDistance = 160934.4

// SignalNotifier is told about every newly placed signal marker. It must not
// block; persistence happens in the background.
type SignalNotifier interface {
	SignalCreated(m core.Marker)
}

// LineHook observes lines after they were inserted. all is the full line
// collection after the insertion.
type LineHook func(added, all []core.Line)

// Options configures a Store.
type Options struct {
	Clock              clock.Clock
	Logger             *slog.Logger
	Notifier           SignalNotifier
	SignalLineDistance float64
}

// Store is the in-memory entity store.
type Store struct {
	mu     sync.RWMutex
	clock  clock.Clock
	logger *slog.Logger

	notifier           SignalNotifier
	signalLineDistance float64
	rffs               *cache.RFFCache
	lineHooks          []LineHook

	markers          []core.Marker
	lines            []core.Line
	circles          []core.Circle
	areas            []core.Area
	permanentLines   map[string]struct{}
	permanentCircles map[string]struct{}

	click     core.ClickState
	popup     core.PopupKind
	selection *core.Selection
	cursor    *core.Point

	version uint64

	// OTEL metrics
	linesInserted  metric.Int64Counter
	linesDuplicate metric.Int64Counter
	decayed        metric.Int64Counter
}

// New creates an empty Store.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(opts Options) (*Store, error) {
	s := &Store{
		clock:              opts.Clock,
		logger:             opts.Logger,
		notifier:           opts.Notifier,
		signalLineDistance: opts.SignalLineDistance,
		rffs:               cache.NewRFFCache(),
		permanentLines:     make(map[string]struct{}),
		permanentCircles:   make(map[string]struct{}),
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.signalLineDistance <= 0 {
		s.signalLineDistance = DefaultSignalLineDistance
	}

	m := meter()
	var err error

	s.linesInserted, err = m.Int64Counter(
		"store.lines.inserted",
		metric.WithDescription("Total bearing lines inserted"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating inserted counter: %w", err)
	}

	s.linesDuplicate, err = m.Int64Counter(
		"store.lines.duplicate",
		metric.WithDescription("Total candidate lines dropped as duplicates"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating duplicate counter: %w", err)
	}

	s.decayed, err = m.Int64Counter(
		"store.decayed",
		metric.WithDescription("Total lines and circles removed by decay"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating decayed counter: %w", err)
	}

	return s, nil
}

// OnLinesAdded registers a hook run after every insertion that added at
// least one line. Hooks run outside the store lock.
func (s *Store) OnLinesAdded(h LineHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lineHooks = append(s.lineHooks, h)
}

// Version increments on every mutation.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// nextID returns prefix-<unix millis>, bumped forward until unused.
func nextID(prefix string, now time.Time, taken func(string) bool) string {
	ms := now.UnixMilli()
	for {
		id := fmt.Sprintf("%s-%d", prefix, ms)
		if !taken(id) {
			return id
		}
		ms++
	}
}

func (s *Store) markerIndex(id string) int {
	for i, m := range s.markers {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) hasLine(id string) bool {
	for _, l := range s.lines {
		if l.ID == id {
			return true
		}
	}
	return false
}

func (s *Store) hasCircle(id string) bool {
	for _, c := range s.circles {
		if c.ID == id {
			return true
		}
	}
	return false
}

// AddMarker places a new marker. A Signal marker is linked to the nearest
// RFF: the bearing from that RFF is recorded on the marker and a bearing
// line is drawn through the point. Without any RFF the marker is added alone.
func (s *Store) AddMarker(point core.Point, typ core.MarkerType, description string) core.Marker {
	now := s.clock.Now()

	s.mu.Lock()
	marker := core.Marker{
		ID: nextID(typ.String(), now, func(id string) bool {
			return s.markerIndex(id) >= 0
		}),
		LatLng:      point,
		Type:        typ,
		Description: description,
		PingTime:    now,
	}

	var line *core.Line
	if typ == core.MarkerSignal {
		if rff, ok := nearestRFF(s.markers, point); ok {
			bearing := geo.BearingTo(rff.LatLng, point)
			marker.Bearing1 = &bearing
			marker.RFF1 = rff.Label()
			line = &core.Line{
				ID:        "line-" + marker.ID,
				Start:     rff.LatLng,
				End:       geo.Destination(rff.LatLng, bearing, s.signalLineDistance),
				Bearing:   bearing,
				Origin:    rff.Label(),
				Timestamp: now,
			}
		} else {
			s.logger.Debug("no RFF available for signal", "marker", marker.ID)
		}
	}

	s.markers = appendCopy(s.markers, marker)
	if typ == core.MarkerRFF {
		s.rffs.Set(marker)
	}

	// the marker and its bearing line land in one version
	var added, all []core.Line
	if line != nil {
		added, all = s.insertLinesLocked([]core.Line{*line})
	}
	if len(added) == 0 {
		s.version++
	}
	hooks := s.lineHooks
	s.mu.Unlock()

	if line != nil {
		s.afterInsert(1, added, all, hooks)
	}
	if typ == core.MarkerSignal && s.notifier != nil {
		s.notifier.SignalCreated(marker)
	}
	return marker
}

// nearestRFF scans markers for the RFF closest to p by great-circle
// distance. The first minimum wins.
func nearestRFF(markers []core.Marker, p core.Point) (core.Marker, bool) {
	var (
		best  core.Marker
		bestD float64
		found bool
	)
	for _, m := range markers {
		if m.Type != core.MarkerRFF {
			continue
		}
		d := geo.Distance(m.LatLng, p)
		if !found || d < bestD {
			best, bestD, found = m, d, true
		}
	}
	return best, found
}

// SeedMarkers inserts markers that already carry an id, such as persisted
// RFF stations. Markers whose id is already present are skipped.
func (s *Store) SeedMarkers(markers []core.Marker) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]core.Marker, len(s.markers), len(s.markers)+len(markers))
	copy(next, s.markers)
	seen := make(map[string]struct{}, len(next))
	for _, m := range next {
		seen[m.ID] = struct{}{}
	}

	added := 0
	for _, m := range markers {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		next = append(next, m)
		if m.Type == core.MarkerRFF {
			s.rffs.Set(m)
		}
		added++
	}
	if added > 0 {
		s.markers = next
		s.version++
	}
	return added
}

// DeleteMarker removes the marker with the given id and returns it.
// Deleting an unknown id is a no-op.
func (s *Store) DeleteMarker(id string) (core.Marker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.markerIndex(id)
	if i < 0 {
		return core.Marker{}, false
	}
	removed := s.markers[i]

	next := make([]core.Marker, 0, len(s.markers)-1)
	next = append(next, s.markers[:i]...)
	next = append(next, s.markers[i+1:]...)
	s.markers = next

	if removed.Type == core.MarkerRFF {
		s.rffs.Delete(removed)
		// a later station with the same name takes over the label
		for _, m := range next {
			if m.Type == core.MarkerRFF && m.Label() == removed.Label() {
				s.rffs.Set(m)
				break
			}
		}
	}
	s.version++
	return removed, true
}

// Marker returns the marker with the given id.
func (s *Store) Marker(id string) (core.Marker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.markerIndex(id); i >= 0 {
		return s.markers[i], true
	}
	return core.Marker{}, false
}

// RFF resolves a receiver station by name or description.
func (s *Store) RFF(name string) (core.Marker, bool) {
	return s.rffs.Get(name)
}

// RFFs returns every RFF marker in insertion order.
func (s *Store) RFFs() []core.Marker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Marker
	for _, m := range s.markers {
		if m.Type == core.MarkerRFF {
			out = append(out, m)
		}
	}
	return out
}

// AddLines inserts candidate lines, dropping any whose id already exists or
// repeats earlier in the same batch.
func (s *Store) AddLines(lines []core.Line) {
	s.InsertLines(lines)
}

// InsertLines is AddLines returning the lines that were actually inserted.
func (s *Store) InsertLines(lines []core.Line) []core.Line {
	if len(lines) == 0 {
		return nil
	}

	s.mu.Lock()
	added, all := s.insertLinesLocked(lines)
	hooks := s.lineHooks
	s.mu.Unlock()

	s.afterInsert(len(lines), added, all, hooks)
	return added
}

// insertLinesLocked appends the lines whose id is not present yet and
// bumps the version when anything was added. Callers hold s.mu.
func (s *Store) insertLinesLocked(lines []core.Line) (added, all []core.Line) {
	seen := make(map[string]struct{}, len(s.lines)+len(lines))
	for _, l := range s.lines {
		seen[l.ID] = struct{}{}
	}

	for _, l := range lines {
		if _, dup := seen[l.ID]; dup {
			continue
		}
		seen[l.ID] = struct{}{}
		added = append(added, l)
	}
	if len(added) == 0 {
		return nil, nil
	}

	all = make([]core.Line, 0, len(s.lines)+len(added))
	all = append(all, s.lines...)
	all = append(all, added...)
	s.lines = all
	s.version++
	return added, all
}

// afterInsert records line metrics and runs the line hooks. It must be
// called without s.mu held.
func (s *Store) afterInsert(candidates int, added, all []core.Line, hooks []LineHook) {
	ctx := context.Background()
	if dups := candidates - len(added); dups > 0 {
		s.linesDuplicate.Add(ctx, int64(dups))
	}
	if len(added) == 0 {
		return
	}
	s.linesInserted.Add(ctx, int64(len(added)))

	for _, h := range hooks {
		h(added, all)
	}
}

// AddCircle places a circle annotation.
func (s *Store) AddCircle(center core.Point, radius float64, callerData *core.CallerRecord) core.Circle {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	c := core.Circle{
		ID:         nextID("circle", now, s.hasCircle),
		Center:     center,
		Radius:     radius,
		Timestamp:  now,
		CallerData: callerData,
	}
	s.circles = appendCopy(s.circles, c)
	s.version++
	return c
}

// AddCircles inserts circles that carry their own id, dropping duplicates.
func (s *Store) AddCircles(circles []core.Circle) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(s.circles)+len(circles))
	for _, c := range s.circles {
		seen[c.ID] = struct{}{}
	}
	var added []core.Circle
	for _, c := range circles {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		added = append(added, c)
	}
	if len(added) == 0 {
		return 0
	}
	next := make([]core.Circle, 0, len(s.circles)+len(added))
	next = append(next, s.circles...)
	next = append(next, added...)
	s.circles = next
	s.version++
	return len(added)
}

// ToggleLinePermanence flips the permanence of a line and returns the new
// state. Unknown ids are ignored.
func (s *Store) ToggleLinePermanence(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasLine(id) {
		return false
	}
	var on bool
	s.permanentLines, on = toggle(s.permanentLines, id)
	s.version++
	return on
}

// ToggleCirclePermanence flips the permanence of a circle and returns the
// new state. Unknown ids are ignored.
func (s *Store) ToggleCirclePermanence(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasCircle(id) {
		return false
	}
	var on bool
	s.permanentCircles, on = toggle(s.permanentCircles, id)
	s.version++
	return on
}

func toggle(set map[string]struct{}, id string) (map[string]struct{}, bool) {
	next := make(map[string]struct{}, len(set)+1)
	for k := range set {
		next[k] = struct{}{}
	}
	if _, ok := next[id]; ok {
		delete(next, id)
		return next, false
	}
	next[id] = struct{}{}
	return next, true
}

// IsLinePermanent reports whether the line is exempt from decay.
func (s *Store) IsLinePermanent(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.permanentLines[id]
	return ok
}

// ExpireLine removes a line unless it is permanent. It reports whether the
// line was removed.
func (s *Store) ExpireLine(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.permanentLines[id]; ok {
		return false
	}
	next := make([]core.Line, 0, len(s.lines))
	for _, l := range s.lines {
		if l.ID != id {
			next = append(next, l)
		}
	}
	if len(next) == len(s.lines) {
		return false
	}
	s.lines = next
	s.version++
	s.decayed.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", "line")))
	return true
}

// Decay drops every line and circle older than rate unless it is permanent.
// A rate <= 0 disables decay. It returns the number of entities removed.
func (s *Store) Decay(now time.Time, rate time.Duration) int {
	if rate <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lines := make([]core.Line, 0, len(s.lines))
	for _, l := range s.lines {
		if _, perm := s.permanentLines[l.ID]; perm || now.Sub(l.Timestamp) <= rate {
			lines = append(lines, l)
		}
	}
	circles := make([]core.Circle, 0, len(s.circles))
	for _, c := range s.circles {
		if _, perm := s.permanentCircles[c.ID]; perm || now.Sub(c.Timestamp) <= rate {
			circles = append(circles, c)
		}
	}

	removedLines := len(s.lines) - len(lines)
	removedCircles := len(s.circles) - len(circles)
	if removedLines == 0 && removedCircles == 0 {
		return 0
	}

	s.lines = lines
	s.circles = circles
	s.version++

	ctx := context.Background()
	if removedLines > 0 {
		s.decayed.Add(ctx, int64(removedLines), metric.WithAttributes(attribute.String("kind", "line")))
	}
	if removedCircles > 0 {
		s.decayed.Add(ctx, int64(removedCircles), metric.WithAttributes(attribute.String("kind", "circle")))
	}
	return removedLines + removedCircles
}

// AddArea commits a closed outline.
func (s *Store) AddArea(edges []core.Edge) core.Area {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	a := core.Area{
		ID: nextID("area", now, func(id string) bool {
			for _, a := range s.areas {
				if a.ID == id {
					return true
				}
			}
			return false
		}),
		Edges:     append([]core.Edge(nil), edges...),
		CreatedAt: now,
	}
	s.areas = appendCopy(s.areas, a)
	s.version++
	return a
}

// Area returns the committed area with the given id.
func (s *Store) Area(id string) (core.Area, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.areas {
		if a.ID == id {
			return a, true
		}
	}
	return core.Area{}, false
}

// MarkersInArea returns the markers lying inside a committed area.
func (s *Store) MarkersInArea(areaID string) ([]core.Marker, error) {
	a, ok := s.Area(areaID)
	if !ok {
		return nil, fmt.Errorf("area %s not found", areaID)
	}
	poly, err := geo.AreaPolygon3857(a)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	markers := s.markers
	s.mu.RUnlock()

	var out []core.Marker
	for _, m := range markers {
		if geo.PolygonContains(poly, m.LatLng) {
			out = append(out, m)
		}
	}
	return out, nil
}

// Counts summarises the collection sizes.
type Counts struct {
	Markers   int
	Lines     int
	Circles   int
	Areas     int
	Permanent int
	Stations  int
}

// Counts returns the current collection sizes.
func (s *Store) Counts() Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Counts{
		Markers:   len(s.markers),
		Lines:     len(s.lines),
		Circles:   len(s.circles),
		Areas:     len(s.areas),
		Permanent: len(s.permanentLines) + len(s.permanentCircles),
		Stations:  s.rffs.Len(),
	}
}

// Snapshot is a read-only view of the store at one version.
type Snapshot struct {
	Version          uint64          `json:"version"`
	Markers          []core.Marker   `json:"markers"`
	Lines            []core.Line     `json:"lines"`
	Circles          []core.Circle   `json:"circles"`
	Areas            []core.Area     `json:"areas"`
	PermanentLines   []string        `json:"permanentLines"`
	PermanentCircles []string        `json:"permanentCircles"`
	Click            core.ClickState `json:"click"`
	Popup            core.PopupKind  `json:"popup"`
	Selection        *core.Selection `json:"selection,omitempty"`
	Cursor           *core.Point     `json:"cursor,omitempty"`
}

// Snapshot returns the current state. The collections are shared with the
// store but are never modified after being handed out.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Version:          s.version,
		Markers:          s.markers,
		Lines:            s.lines,
		Circles:          s.circles,
		Areas:            s.areas,
		PermanentLines:   sortedKeys(s.permanentLines),
		PermanentCircles: sortedKeys(s.permanentCircles),
		Click:            s.click,
		Popup:            s.popup,
	}
	if s.selection != nil {
		sel := *s.selection
		snap.Selection = &sel
	}
	if s.cursor != nil {
		c := *s.cursor
		snap.Cursor = &c
	}
	return snap
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func appendCopy[T any](s []T, items ...T) []T {
	next := make([]T, 0, len(s)+len(items))
	next = append(next, s...)
	return append(next, items...)
}
