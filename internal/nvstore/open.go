package nvstore

import (
	"context"
	"fmt"

	"github.com/nerrad567/knxip-device/internal/infrastructure/config"
	"github.com/nerrad567/knxip-device/internal/infrastructure/database"
	"github.com/nerrad567/knxip-device/internal/knxip"
)

// Backend names accepted in storage.backend.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Region is a knxip.Store that can also be erased and closed.
type Region interface {
	knxip.Store

	// Erase resets every byte to 0xFF and commits.
	Erase() error
	Close() error
}

var (
	_ Region = (*Memory)(nil)
	_ Region = (*File)(nil)
	_ Region = (*SQLite)(nil)
)

// Open returns the region described by cfg.
func Open(ctx context.Context, cfg config.StorageConfig) (Region, error) {
	switch cfg.Backend {
	case BackendMemory:
		return NewMemory(cfg.Size)
	case BackendFile:
		return OpenFile(cfg.Path, cfg.Size)
	case BackendSQLite:
		db, err := database.Open(ctx, database.Config{
			Path:        cfg.Path,
			WALMode:     cfg.WALMode,
			BusyTimeout: cfg.BusyTimeout,
		})
		if err != nil {
			return nil, err
		}
		s, err := OpenSQLite(ctx, db, cfg.Size)
		if err != nil {
			db.Close() //nolint:errcheck // open error takes precedence
			return nil, err
		}
		s.owned = true
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
