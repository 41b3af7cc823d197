// Package feed serves the rendering feed: store snapshots pushed over a
// WebSocket, plus the inbound UI commands that drive the engine.
package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"

	"github.com/dfmap/dfmap/internal/replay"
	"github.com/dfmap/dfmap/internal/store"
	"github.com/dfmap/dfmap/pkg/core"
	"github.com/dfmap/dfmap/pkg/streaming"
)

const (
	sendChSize      = 64
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = pongWait * 9 / 10
	maxMessageBytes = 64 << 10

	// DefaultInterval is how often the hub checks the store version.
	DefaultInterval = 250 * time.Millisecond
)

// Controller is the engine surface the feed drives.
type Controller interface {
	Snapshot() store.Snapshot
	Version() uint64
	Pointer(e core.PointerEvent) (any, error)
	SetMode(mode core.Mode) error
	SetDecayRate(d time.Duration)
	Replay(action string) (replay.Status, error)
	TogglePermanence(kind core.EntityKind, id string) (bool, error)
	DeleteMarker(id string) bool
	UpdateSignal(id string, u core.SignalUpdate) error
	ShowPopup(kind core.PopupKind) error
	SelectArea(id string) ([]core.Marker, error)
}

// Hub tracks subscribers and broadcasts snapshots when the store changes.
type Hub struct {
	ctrl     Controller
	logger   *slog.Logger
	interval time.Duration
	upgrader ws.Upgrader

	mu          sync.Mutex
	subscribers map[uuid.UUID]*subscriber
	lastVersion uint64
	closed      bool
}

// NewHub creates a hub. Call Run to start broadcasting.
func NewHub(ctrl Controller, logger *slog.Logger, interval time.Duration) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Hub{
		ctrl:        ctrl,
		logger:      logger,
		interval:    interval,
		upgrader:    ws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		subscribers: make(map[uuid.UUID]*subscriber),
	}
}

// Run broadcasts a snapshot every time the store version moves, until ctx
// is cancelled.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.BroadcastIfChanged()
		}
	}
}

// BroadcastIfChanged sends a snapshot to every subscriber when the store
// version differs from the last broadcast. It reports whether it sent.
func (h *Hub) BroadcastIfChanged() bool {
	v := h.ctrl.Version()
	h.mu.Lock()
	if v == h.lastVersion {
		h.mu.Unlock()
		return false
	}
	h.lastVersion = v
	h.mu.Unlock()

	data, err := h.snapshotMessage()
	if err != nil {
		h.logger.Error("failed to encode snapshot", "error", err)
		return false
	}
	h.broadcast(data)
	return true
}

// Notice tells every subscriber about a transient problem. It never blocks.
func (h *Hub) Notice(err error) {
	env, encErr := streaming.NewEnvelope(streaming.TypeNotice, streaming.NoticePayload{
		Level:   "warn",
		Message: err.Error(),
	})
	if encErr != nil {
		return
	}
	data, encErr := json.Marshal(env)
	if encErr != nil {
		return
	}
	h.broadcast(data)
}

func (h *Hub) snapshotMessage() ([]byte, error) {
	env, err := streaming.NewEnvelope(streaming.TypeSnapshot, h.ctrl.Snapshot())
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

func (h *Hub) broadcast(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subscribers {
		s.enqueue(data)
	}
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

func (h *Hub) add(s *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.subscribers[s.id] = s
	return true
}

func (h *Hub) remove(id uuid.UUID) {
	h.mu.Lock()
	s, ok := h.subscribers[id]
	delete(h.subscribers, id)
	h.mu.Unlock()
	if ok {
		s.close()
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := make([]*subscriber, 0, len(h.subscribers))
	for id, s := range h.subscribers {
		subs = append(subs, s)
		delete(h.subscribers, id)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
}
