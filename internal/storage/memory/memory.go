// internal/storage/memory/memory.go
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dfmap/dfmap/internal/config"
	"github.com/dfmap/dfmap/internal/model"
	"github.com/dfmap/dfmap/internal/model/convert"
	"github.com/dfmap/dfmap/pkg/core"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Backend keeps caller records and receiver stations in memory. With an
// export path configured the contents survive restarts.
type Backend struct {
	cfg config.MemoryConfig
	log zerolog.Logger

	callers map[string]*model.Caller
	order   []string // caller ids in insertion order
	rffs    map[string]model.RFF
	rffIDs  []string

	mu sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig, log zerolog.Logger) *Backend {
	return &Backend{
		cfg:     cfg,
		log:     log,
		callers: make(map[string]*model.Caller),
		rffs:    make(map[string]model.RFF),
	}
}

// Init loads a previous export, when one exists.
func (b *Backend) Init() error {
	if b.cfg.ExportPath == "" {
		return nil
	}
	data, ok, err := readExport(b.cfg.ExportPath)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", b.cfg.ExportPath, err)
	}
	if !ok {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, rec := range data.Callers {
		c := convert.CoreToCaller(rec)
		b.insertCaller(&c)
	}
	for _, site := range data.RFFs {
		b.putRFF(convert.CoreToRFF(site))
	}
	b.log.Info().Int("callers", len(data.Callers)).Int("rffs", len(data.RFFs)).
		Str("path", b.cfg.ExportPath).Msg("Loaded memory export")
	return nil
}

// Close writes the export, when configured.
func (b *Backend) Close() error {
	if b.cfg.ExportPath == "" {
		return nil
	}
	b.mu.RLock()
	data := b.buildExport()
	b.mu.RUnlock()

	if err := writeExport(b.cfg.ExportPath, data); err != nil {
		return err
	}
	b.log.Info().Str("path", b.cfg.ExportPath).Msg("Wrote memory export")
	return nil
}

func (b *Backend) insertCaller(c *model.Caller) {
	if _, exists := b.callers[c.ID]; !exists {
		b.order = append(b.order, c.ID)
	}
	b.callers[c.ID] = c
}

func (b *Backend) putRFF(r model.RFF) {
	if _, exists := b.rffs[r.ID]; !exists {
		b.rffIDs = append(b.rffIDs, r.ID)
	}
	b.rffs[r.ID] = r
}

// ListCallers returns every record in insertion order.
func (b *Backend) ListCallers(ctx context.Context) ([]core.CallerRecord, error) {
	return b.filter(func(*model.Caller) bool { return true }), nil
}

// ListCallersSince returns records whose start time is at or after since.
// Records with an unparseable start time are never returned.
func (b *Backend) ListCallersSince(ctx context.Context, since time.Time) ([]core.CallerRecord, error) {
	return b.filter(func(c *model.Caller) bool {
		return c.StartTime.Valid && !c.StartTime.Time.Before(since)
	}), nil
}

func (b *Backend) filter(keep func(*model.Caller) bool) []core.CallerRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]core.CallerRecord, 0, len(b.order))
	for _, id := range b.order {
		if c := b.callers[id]; keep(c) {
			out = append(out, convert.CallerToCore(*c))
		}
	}
	return out
}

// CreateCaller stores rec under a fresh id.
func (b *Backend) CreateCaller(ctx context.Context, rec core.CallerRecord) (core.CallerRecord, error) {
	rec.ID = uuid.NewString()
	c := convert.CoreToCaller(rec)
	now := time.Now()
	c.CreatedAt, c.UpdatedAt = now, now

	b.mu.Lock()
	b.insertCaller(&c)
	b.mu.Unlock()
	return convert.CallerToCore(c), nil
}

// UpdateCaller applies a partial update.
func (b *Backend) UpdateCaller(ctx context.Context, id string, u core.SignalUpdate) (core.CallerRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.callers[id]
	if !ok {
		return core.CallerRecord{}, model.ErrNotFound
	}
	convert.ApplyUpdate(c, u)
	c.UpdatedAt = time.Now()
	return convert.CallerToCore(*c), nil
}

// DeleteCaller removes a record.
func (b *Backend) DeleteCaller(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.callers[id]; !ok {
		return model.ErrNotFound
	}
	delete(b.callers, id)
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return nil
}

// ListRFFs returns every station in insertion order.
func (b *Backend) ListRFFs(ctx context.Context) ([]core.RFFSite, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]core.RFFSite, 0, len(b.rffIDs))
	for _, id := range b.rffIDs {
		out = append(out, convert.RFFToCore(b.rffs[id]))
	}
	return out, nil
}

// UpsertRFF creates or replaces a station. An empty id is generated.
func (b *Backend) UpsertRFF(ctx context.Context, site core.RFFSite) (core.RFFSite, error) {
	if site.ID == "" {
		site.ID = "RFF-" + uuid.NewString()
	}
	r := convert.CoreToRFF(site)
	r.CreatedAt = time.Now()

	b.mu.Lock()
	b.putRFF(r)
	b.mu.Unlock()
	return site, nil
}
