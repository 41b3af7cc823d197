// Package callerapi serves caller records and receiver stations over HTTP,
// answering every request with the {data, code, message} envelope the
// engine's API client expects.
package callerapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dfmap/dfmap/internal/storage"
	"github.com/dfmap/dfmap/pkg/core"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// ErrorResponse is the envelope sent for failed requests.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Server exposes a storage backend under /caller/.
type Server struct {
	store storage.Backend
	log   zerolog.Logger
}

// New creates a Server.
func New(store storage.Backend, log zerolog.Logger) *Server {
	return &Server{store: store, log: log}
}

// Router mounts the caller routes plus /healthz.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealthz)
	r.Route("/caller", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Post("/", s.handleCreate)
		r.Get("/RFFs", s.handleListRFFs)
		r.Post("/RFFs", s.handleUpsertRFF)
		r.Put("/{id}", s.handleUpdate)
		r.Delete("/{id}", s.handleDelete)
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		ev := s.log.Debug()
		if ww.Status() >= http.StatusInternalServerError {
			ev = s.log.Error()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Str("requestId", middleware.GetReqID(r.Context())).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData[T any](w http.ResponseWriter, payload T, message string) {
	writeJSON(w, http.StatusOK, core.NewResponse(payload, message))
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string, err error) {
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Msg(message)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: status, Message: message})
}

func (s *Server) storeError(w http.ResponseWriter, message string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, message, err)
		return
	}
	s.writeError(w, http.StatusInternalServerError, message, err)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleList serves GET /caller/ with an optional starttime filter.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("starttime")
	if raw == "" {
		records, err := s.store.ListCallers(r.Context())
		if err != nil {
			s.storeError(w, "failed to list callers", err)
			return
		}
		writeData(w, records, "Callers retrieved")
		return
	}

	since, ok := core.CallerRecord{StartTime: raw}.Started()
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid starttime",
			fmt.Errorf("cannot parse %q as a timestamp", raw))
		return
	}
	records, err := s.store.ListCallersSince(r.Context(), since)
	if err != nil {
		s.storeError(w, "failed to list callers", err)
		return
	}
	writeData(w, records, "Callers retrieved")
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var rec core.CallerRecord
	if err := decodeBody(w, r, &rec); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid caller", err)
		return
	}
	created, err := s.store.CreateCaller(r.Context(), rec)
	if err != nil {
		s.storeError(w, "failed to create caller", err)
		return
	}
	s.log.Info().Str("id", created.ID).Str("channel", created.Channel).Msg("Caller created")
	writeData(w, created, "Caller added successfully")
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var u core.SignalUpdate
	if err := decodeBody(w, r, &u); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid update", err)
		return
	}
	if u.Empty() {
		s.writeError(w, http.StatusBadRequest, "invalid update", errors.New("update carries no fields"))
		return
	}
	updated, err := s.store.UpdateCaller(r.Context(), id, u)
	if err != nil {
		s.storeError(w, "failed to update caller", err)
		return
	}
	writeData(w, updated, "Caller updated successfully")
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteCaller(r.Context(), id); err != nil {
		s.storeError(w, "failed to delete caller", err)
		return
	}
	s.log.Info().Str("id", id).Msg("Caller deleted")
	writeData(w, map[string]string{"id": id}, "Caller deleted successfully")
}

func (s *Server) handleListRFFs(w http.ResponseWriter, r *http.Request) {
	sites, err := s.store.ListRFFs(r.Context())
	if err != nil {
		s.storeError(w, "failed to list RFFs", err)
		return
	}
	writeData(w, sites, "RFFs retrieved")
}

func (s *Server) handleUpsertRFF(w http.ResponseWriter, r *http.Request) {
	var site core.RFFSite
	if err := decodeBody(w, r, &site); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid RFF", err)
		return
	}
	saved, err := s.store.UpsertRFF(r.Context(), site)
	if err != nil {
		s.storeError(w, "failed to save RFF", err)
		return
	}
	writeData(w, saved, "RFF saved successfully")
}
