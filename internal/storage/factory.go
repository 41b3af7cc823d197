// internal/storage/factory.go
package storage

import (
	"fmt"

	"github.com/dfmap/dfmap/internal/config"
	"github.com/dfmap/dfmap/internal/database"
	badgerstore "github.com/dfmap/dfmap/internal/storage/badger"
	gormstorage "github.com/dfmap/dfmap/internal/storage/gorm"
	"github.com/dfmap/dfmap/internal/storage/memory"
	"github.com/rs/zerolog"
)

// NewBackend creates a storage backend based on configuration
func NewBackend(cfg config.StorageConfig, db config.DBConfig, log zerolog.Logger) (Backend, error) {
	switch cfg.Type {
	case "postgres", "sqlite":
		m := database.NewManager(db, cfg.SQLite.Path, log)
		var err error
		if cfg.Type == "postgres" {
			err = m.Connect()
		} else {
			err = m.ConnectSqlite()
		}
		if err != nil {
			return nil, err
		}
		if err := m.Setup(); err != nil {
			_ = m.Close()
			return nil, err
		}
		return gormstorage.New(gormstorage.Dependencies{
			DB:     m.DB,
			Logger: log,
			Close:  m.Close,
		}), nil
	case "memory":
		return memory.New(cfg.Memory, log), nil
	case "badger":
		return badgerstore.New(cfg.Badger, log), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
