package api

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dfmap/dfmap/pkg/core"
)

// DefaultChannel is the radio channel recorded for manually placed signals.
const DefaultChannel = "16"

// Signals forwards signal marker changes to the backend in the background.
// Failures are logged and otherwise ignored. Marker ids are mapped to the
// record ids the backend assigned on creation; updates and deletes of a
// marker wait for its create request to finish first.
type Signals struct {
	client  *Client
	logger  *slog.Logger
	timeout time.Duration
	channel string
	onError func(error)

	mu       sync.Mutex
	ids      map[string]string
	creating map[string]chan struct{}
	wg       sync.WaitGroup
}

// NewSignals creates a Signals forwarder. onError may be nil.
func NewSignals(client *Client, logger *slog.Logger, onError func(error)) *Signals {
	if logger == nil {
		logger = slog.Default()
	}
	return &Signals{
		client:  client,
		logger:  logger,
		timeout: 10 * time.Second,
		channel: DefaultChannel,
		onError: onError,
		ids:      make(map[string]string),
		creating: make(map[string]chan struct{}),
	}
}

// RecordID returns the backend id for a marker, falling back to the marker id.
func (s *Signals) RecordID(markerID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.ids[markerID]; ok {
		return id
	}
	return markerID
}

// SignalCreated posts a new caller record for a signal marker.
func (s *Signals) SignalCreated(m core.Marker) {
	rec := core.CallerRecord{
		Channel:   s.channel,
		RFF1:      core.Placeholder,
		Fix:       core.Placeholder,
		StartTime: m.PingTime.UTC().Format(time.RFC3339Nano),
		StopTime:  core.Placeholder,
	}
	if m.RFF1 != "" {
		rec.RFF1 = m.RFF1
	}
	if m.Bearing1 != nil {
		rec.Bearing1 = core.Float(*m.Bearing1)
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.creating[m.ID] = done
	s.mu.Unlock()

	s.background("create", m.ID, func(ctx context.Context) error {
		defer func() {
			s.mu.Lock()
			if s.creating[m.ID] == done {
				delete(s.creating, m.ID)
			}
			s.mu.Unlock()
			close(done)
		}()

		created, err := s.client.CreateSignal(ctx, rec)
		if err != nil {
			return err
		}
		if created.ID != "" {
			s.mu.Lock()
			s.ids[m.ID] = created.ID
			s.mu.Unlock()
		}
		return nil
	})
}

// SignalUpdated sends a partial update.
func (s *Signals) SignalUpdated(id string, u core.SignalUpdate) {
	s.background("update", id, func(ctx context.Context) error {
		if err := s.awaitCreate(ctx, id); err != nil {
			return err
		}
		return s.client.UpdateSignal(ctx, s.RecordID(id), u)
	})
}

// SignalDeleted deletes the record of a removed signal marker.
func (s *Signals) SignalDeleted(id string) {
	s.background("delete", id, func(ctx context.Context) error {
		if err := s.awaitCreate(ctx, id); err != nil {
			return err
		}
		recordID := s.RecordID(id)
		if err := s.client.DeleteSignal(ctx, recordID); err != nil {
			return err
		}
		s.mu.Lock()
		delete(s.ids, id)
		s.mu.Unlock()
		return nil
	})
}

// awaitCreate blocks while the create request for markerID is in flight.
func (s *Signals) awaitCreate(ctx context.Context, markerID string) error {
	s.mu.Lock()
	pending := s.creating[markerID]
	s.mu.Unlock()
	if pending == nil {
		return nil
	}
	select {
	case <-pending:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for create of %s: %w", markerID, ctx.Err())
	}
}

func (s *Signals) background(op, id string, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			s.logger.Error("signal sync failed", "op", op, "signal", id, "error", err)
			if s.onError != nil {
				s.onError(err)
			}
			return
		}
		s.logger.Debug("signal synced", "op", op, "signal", id)
	}()
}

// Wait blocks until every in-flight request finished.
func (s *Signals) Wait() {
	s.wg.Wait()
}
