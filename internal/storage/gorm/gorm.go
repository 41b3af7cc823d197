// Package gormstorage implements the storage.Backend interface on top of
// GORM. The same code serves Postgres and SQLite; the database manager
// decides which one backs it.
package gormstorage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dfmap/dfmap/internal/model"
	"github.com/dfmap/dfmap/internal/model/convert"
	"github.com/dfmap/dfmap/pkg/core"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB     *gorm.DB
	Logger zerolog.Logger
	Close  func() error // releases the connection, optional
}

// Backend stores caller records in a relational database.
type Backend struct {
	deps Dependencies
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	return &Backend{deps: deps}
}

// Init verifies the connection.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return fmt.Errorf("database not connected")
	}
	sqlDB, err := b.deps.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	return sqlDB.Ping()
}

// Close releases the connection.
func (b *Backend) Close() error {
	if b.deps.Close == nil {
		return nil
	}
	return b.deps.Close()
}

// ListCallers returns every record in creation order.
func (b *Backend) ListCallers(ctx context.Context) ([]core.CallerRecord, error) {
	var rows []model.Caller
	if err := b.deps.DB.WithContext(ctx).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list callers: %w", err)
	}
	return callersToCore(rows), nil
}

// ListCallersSince returns records whose start time is at or after since.
func (b *Backend) ListCallersSince(ctx context.Context, since time.Time) ([]core.CallerRecord, error) {
	var rows []model.Caller
	err := b.deps.DB.WithContext(ctx).
		Where("start_time IS NOT NULL AND start_time >= ?", since.UTC()).
		Order("created_at, id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list callers since %s: %w", since.Format(time.RFC3339), err)
	}
	return callersToCore(rows), nil
}

func callersToCore(rows []model.Caller) []core.CallerRecord {
	out := make([]core.CallerRecord, 0, len(rows))
	for _, c := range rows {
		out = append(out, convert.CallerToCore(c))
	}
	return out
}

// CreateCaller stores rec under a fresh id.
func (b *Backend) CreateCaller(ctx context.Context, rec core.CallerRecord) (core.CallerRecord, error) {
	rec.ID = uuid.NewString()
	c := convert.CoreToCaller(rec)
	if err := b.deps.DB.WithContext(ctx).Create(&c).Error; err != nil {
		return core.CallerRecord{}, fmt.Errorf("failed to create caller: %w", err)
	}
	b.deps.Logger.Debug().Str("id", c.ID).Msg("Created caller")
	return convert.CallerToCore(c), nil
}

// UpdateCaller applies a partial update.
func (b *Backend) UpdateCaller(ctx context.Context, id string, u core.SignalUpdate) (core.CallerRecord, error) {
	var c model.Caller
	err := b.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&c, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return model.ErrNotFound
			}
			return err
		}
		convert.ApplyUpdate(&c, u)
		return tx.Save(&c).Error
	})
	if err != nil {
		return core.CallerRecord{}, fmt.Errorf("failed to update caller %s: %w", id, err)
	}
	return convert.CallerToCore(c), nil
}

// DeleteCaller removes a record.
func (b *Backend) DeleteCaller(ctx context.Context, id string) error {
	res := b.deps.DB.WithContext(ctx).Delete(&model.Caller{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete caller %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("caller %s: %w", id, model.ErrNotFound)
	}
	return nil
}

// ListRFFs returns every station in creation order.
func (b *Backend) ListRFFs(ctx context.Context) ([]core.RFFSite, error) {
	var rows []model.RFF
	if err := b.deps.DB.WithContext(ctx).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list RFFs: %w", err)
	}
	out := make([]core.RFFSite, 0, len(rows))
	for _, r := range rows {
		out = append(out, convert.RFFToCore(r))
	}
	return out, nil
}

// UpsertRFF creates or replaces a station. An empty id is generated.
func (b *Backend) UpsertRFF(ctx context.Context, site core.RFFSite) (core.RFFSite, error) {
	if site.ID == "" {
		site.ID = "RFF-" + uuid.NewString()
	}
	r := convert.CoreToRFF(site)
	err := b.deps.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "lat", "lng"}),
	}).Create(&r).Error
	if err != nil {
		return core.RFFSite{}, fmt.Errorf("failed to upsert RFF %s: %w", site.ID, err)
	}
	return site, nil
}
