package nvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/knxip-device/internal/infrastructure/database"
	"github.com/nerrad567/knxip-device/migrations"
)

// commitTimeout bounds a single SQLite commit.
const commitTimeout = 5 * time.Second

// SQLite is a region stored as one BLOB row in the nv_region table.
type SQLite struct {
	*buffer
	db    *database.DB
	owned bool

	mu     sync.Mutex
	closed bool
}

// OpenSQLite opens the region kept in db, applying the schema first. The
// caller keeps ownership of db.
func OpenSQLite(ctx context.Context, db *database.DB, size int) (*SQLite, error) {
	buf, err := newBuffer(size)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		return nil, fmt.Errorf("migrating region schema: %w", err)
	}

	var data []byte
	err = db.QueryRowContext(ctx, "SELECT data FROM nv_region WHERE id = 1").Scan(&data)
	switch {
	case err == nil:
		buf.load(data)
	case errors.Is(err, sql.ErrNoRows):
	default:
		return nil, fmt.Errorf("reading region row: %w", err)
	}

	return &SQLite{buffer: buf, db: db}, nil
}

// Commit stores the shadow in a single transaction.
func (s *SQLite) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), commitTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO nv_region (id, data, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, s.snapshot(), time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("storing region row: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing region row: %w", err)
	}
	return nil
}

// Erase resets every byte to 0xFF and commits.
func (s *SQLite) Erase() error {
	s.erase()
	return s.Commit()
}

// Close closes the database when the region was opened by Open.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.owned {
		return s.db.Close()
	}
	return nil
}

// HealthCheck reports whether the database still answers queries.
func (s *SQLite) HealthCheck(ctx context.Context) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return s.db.HealthCheck(ctx)
}
