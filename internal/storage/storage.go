// internal/storage/storage.go
package storage

import (
	"context"
	"time"

	"github.com/dfmap/dfmap/internal/model"
	"github.com/dfmap/dfmap/pkg/core"
)

// ErrNotFound is returned when a caller record does not exist.
var ErrNotFound = model.ErrNotFound

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Caller records (Create assigns the ID)
	ListCallers(ctx context.Context) ([]core.CallerRecord, error)
	ListCallersSince(ctx context.Context, since time.Time) ([]core.CallerRecord, error)
	CreateCaller(ctx context.Context, rec core.CallerRecord) (core.CallerRecord, error)
	UpdateCaller(ctx context.Context, id string, u core.SignalUpdate) (core.CallerRecord, error)
	DeleteCaller(ctx context.Context, id string) error

	// Receiver stations
	ListRFFs(ctx context.Context) ([]core.RFFSite, error)
	UpsertRFF(ctx context.Context, site core.RFFSite) (core.RFFSite, error)
}
