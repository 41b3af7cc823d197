package feed

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	ws "github.com/gorilla/websocket"
)

// Router exposes /ws, /snapshot, /snapshot.geojson and /healthz.
func (h *Hub) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", h.handleHealthz)
	r.Get("/snapshot", h.handleSnapshot)
	r.Get("/snapshot.geojson", h.handleGeoJSON)
	r.Get("/ws", h.handleWS)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Hub) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "subscribers": h.Subscribers()})
}

func (h *Hub) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.Snapshot())
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	s := newSubscriber(conn)
	if !h.add(s) {
		_ = conn.WriteControl(ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	h.logger.Info("feed subscriber connected", "subscriber", s.id, "remote", r.RemoteAddr)

	if data, err := h.snapshotMessage(); err == nil {
		s.enqueue(data)
	}
	go s.writeLoop()
	h.readLoop(s)

	h.remove(s.id)
	h.logger.Info("feed subscriber disconnected", "subscriber", s.id)
}

func (h *Hub) readLoop(s *subscriber) {
	s.conn.SetReadLimit(maxMessageBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if ws.IsUnexpectedCloseError(err, ws.CloseGoingAway, ws.CloseNormalClosure) {
				h.logger.Debug("feed read error", "subscriber", s.id, "error", err)
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))

		ack := h.handleRaw(message)
		data, err := json.Marshal(ack)
		if err != nil {
			h.logger.Error("failed to encode ack", "error", err)
			continue
		}
		if !s.enqueue(data) {
			h.logger.Warn("dropping ack for slow subscriber", "subscriber", s.id, "for", ack.For)
		}
	}
}
