// Package badgerstore stores caller records and receiver stations in an embedded
// badger key-value store. Caller keys embed a UUIDv7, so a prefix scan
// returns records in creation order.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dfmap/dfmap/internal/config"
	"github.com/dfmap/dfmap/internal/model"
	"github.com/dfmap/dfmap/internal/model/convert"
	"github.com/dfmap/dfmap/pkg/core"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	callerPrefix = []byte("caller/")
	rffPrefix    = []byte("rff/")
)

func callerKey(id string) []byte { return append([]byte("caller/"), id...) }
func rffKey(id string) []byte    { return append([]byte("rff/"), id...) }

// Backend is a badger-backed storage backend.
type Backend struct {
	cfg config.BadgerConfig
	log zerolog.Logger
	db  *badger.DB
}

// New creates a backend. Init opens the store.
func New(cfg config.BadgerConfig, log zerolog.Logger) *Backend {
	return &Backend{cfg: cfg, log: log}
}

// Init opens the database at the configured path, or in memory.
func (b *Backend) Init() error {
	opts := badger.DefaultOptions(b.cfg.Path)
	if b.cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(logAdapter{b.log})

	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("failed to open badger store: %w", err)
	}
	b.db = db
	b.log.Info().Str("path", b.cfg.Path).Bool("inMemory", b.cfg.InMemory).Msg("Opened badger store")
	return nil
}

// Close closes the database.
func (b *Backend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

func scan[T any](txn *badger.Txn, prefix []byte, fn func(T)) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		var v T
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &v)
		}); err != nil {
			return fmt.Errorf("failed to decode %s: %w", it.Item().Key(), err)
		}
		fn(v)
	}
	return nil
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return model.ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func (b *Backend) listCallers(keep func(core.CallerRecord) bool) ([]core.CallerRecord, error) {
	out := []core.CallerRecord{}
	err := b.db.View(func(txn *badger.Txn) error {
		return scan(txn, callerPrefix, func(c model.Caller) {
			if rec := convert.CallerToCore(c); keep(rec) {
				out = append(out, rec)
			}
		})
	})
	return out, err
}

// ListCallers returns every record in creation order.
func (b *Backend) ListCallers(ctx context.Context) ([]core.CallerRecord, error) {
	return b.listCallers(func(core.CallerRecord) bool { return true })
}

// ListCallersSince returns records whose start time is at or after since.
// The parsed start time is not persisted, so it is derived from the raw
// value on every scan.
func (b *Backend) ListCallersSince(ctx context.Context, since time.Time) ([]core.CallerRecord, error) {
	return b.listCallers(func(rec core.CallerRecord) bool {
		start, ok := rec.Started()
		return ok && !start.Before(since)
	})
}

// CreateCaller stores rec under a fresh time-ordered id.
func (b *Backend) CreateCaller(ctx context.Context, rec core.CallerRecord) (core.CallerRecord, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return core.CallerRecord{}, err
	}
	rec.ID = id.String()
	c := convert.CoreToCaller(rec)
	now := time.Now()
	c.CreatedAt, c.UpdatedAt = now, now

	if err := b.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, callerKey(c.ID), c)
	}); err != nil {
		return core.CallerRecord{}, fmt.Errorf("failed to create caller: %w", err)
	}
	return convert.CallerToCore(c), nil
}

// UpdateCaller applies a partial update.
func (b *Backend) UpdateCaller(ctx context.Context, id string, u core.SignalUpdate) (core.CallerRecord, error) {
	var c model.Caller
	err := b.db.Update(func(txn *badger.Txn) error {
		if err := getJSON(txn, callerKey(id), &c); err != nil {
			return err
		}
		convert.ApplyUpdate(&c, u)
		c.UpdatedAt = time.Now()
		return setJSON(txn, callerKey(id), c)
	})
	if err != nil {
		return core.CallerRecord{}, err
	}
	return convert.CallerToCore(c), nil
}

// DeleteCaller removes a record.
func (b *Backend) DeleteCaller(ctx context.Context, id string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(callerKey(id)); errors.Is(err, badger.ErrKeyNotFound) {
			return model.ErrNotFound
		} else if err != nil {
			return err
		}
		return txn.Delete(callerKey(id))
	})
}

// ListRFFs returns every station ordered by id.
func (b *Backend) ListRFFs(ctx context.Context) ([]core.RFFSite, error) {
	out := []core.RFFSite{}
	err := b.db.View(func(txn *badger.Txn) error {
		return scan(txn, rffPrefix, func(r model.RFF) {
			out = append(out, convert.RFFToCore(r))
		})
	})
	return out, err
}

// UpsertRFF creates or replaces a station. An empty id is generated.
func (b *Backend) UpsertRFF(ctx context.Context, site core.RFFSite) (core.RFFSite, error) {
	if site.ID == "" {
		site.ID = "RFF-" + uuid.NewString()
	}
	r := convert.CoreToRFF(site)
	r.CreatedAt = time.Now()

	if err := b.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, rffKey(r.ID), r)
	}); err != nil {
		return core.RFFSite{}, fmt.Errorf("failed to upsert rff: %w", err)
	}
	return site, nil
}

// logAdapter routes badger's printf logging into zerolog. Info chatter is
// demoted to debug.
type logAdapter struct {
	log zerolog.Logger
}

func (l logAdapter) Errorf(f string, v ...any)   { l.log.Error().Msgf(f, v...) }
func (l logAdapter) Warningf(f string, v ...any) { l.log.Warn().Msgf(f, v...) }
func (l logAdapter) Infof(f string, v ...any)    { l.log.Debug().Msgf(f, v...) }
func (l logAdapter) Debugf(f string, v ...any)   { l.log.Trace().Msgf(f, v...) }
