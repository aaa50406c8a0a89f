package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"github.com/DogukanGun/XReplyAgent/internal/chains"
)

// SQLiteStore keeps identities in a local SQLite file. Several server
// processes may share one file; writes are serialized with a lock file
// across processes and a mutex within one.
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.Mutex
	lock *flock.Flock
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create identity store directory: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite identity store: %w", err)
	}

	queries := []string{
		`CREATE TABLE IF NOT EXISTS identities (
			external_id TEXT NOT NULL,
			family      TEXT NOT NULL,
			public_key  TEXT NOT NULL,
			private_key TEXT NOT NULL,
			created_at  INTEGER NOT NULL,
			PRIMARY KEY (external_id, family)
		);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init identity schema: %w", err)
		}
	}

	return &SQLiteStore{db: db, lock: flock.New(path + ".lock")}, nil
}

// DB exposes the handle for health checks and pool metrics.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) FindIdentity(ctx context.Context, externalID string, family chains.Family) (*Record, error) {
	rec := &Record{}
	var created int64
	err := s.db.QueryRowContext(ctx,
		"SELECT external_id, family, public_key, private_key, created_at FROM identities WHERE external_id = ? AND family = ?",
		externalID, string(family),
	).Scan(&rec.ExternalID, &rec.Family, &rec.PublicKey, &rec.PrivateKey, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("identity read: %w", err)
	}
	rec.CreatedAt = time.Unix(created, 0).UTC()
	return rec, nil
}

func (s *SQLiteStore) CreateIdentity(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	locked, err := s.lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock identity store: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock identity store: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO identities (external_id, family, public_key, private_key, created_at) VALUES (?, ?, ?, ?, ?)",
		rec.ExternalID, string(rec.Family), rec.PublicKey, rec.PrivateKey, created.Unix(),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrAlreadyExists
	}
	return err
}

func (s *SQLiteStore) ListIdentities(ctx context.Context, externalID string) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT external_id, family, public_key, private_key, created_at FROM identities WHERE external_id = ? ORDER BY family",
		externalID,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Record
	for rows.Next() {
		rec := &Record{}
		var created int64
		if err := rows.Scan(&rec.ExternalID, &rec.Family, &rec.PublicKey, &rec.PrivateKey, &created); err != nil {
			return nil, err
		}
		rec.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}
