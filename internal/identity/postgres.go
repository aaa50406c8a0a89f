package identity

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/DogukanGun/XReplyAgent/internal/chains"
)

// PostgresStore persists identities in the identities table created by
// the goose migrations.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed identity store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) FindIdentity(ctx context.Context, externalID string, family chains.Family) (*Record, error) {
	rec := &Record{}
	err := p.db.QueryRowContext(ctx, `
		SELECT external_id, family, public_key, private_key, created_at
		FROM identities WHERE external_id = $1 AND family = $2
	`, externalID, string(family)).Scan(&rec.ExternalID, &rec.Family, &rec.PublicKey, &rec.PrivateKey, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (p *PostgresStore) CreateIdentity(ctx context.Context, rec *Record) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO identities (external_id, family, public_key, private_key, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5::timestamptz, NOW()))
	`, rec.ExternalID, string(rec.Family), rec.PublicKey, rec.PrivateKey, nullTime(rec))
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrAlreadyExists
	}
	return err
}

func (p *PostgresStore) ListIdentities(ctx context.Context, externalID string) ([]*Record, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT external_id, family, public_key, private_key, created_at
		FROM identities WHERE external_id = $1 ORDER BY family
	`, externalID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Record
	for rows.Next() {
		rec := &Record{}
		if err := rows.Scan(&rec.ExternalID, &rec.Family, &rec.PublicKey, &rec.PrivateKey, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullTime(rec *Record) sql.NullTime {
	return sql.NullTime{Time: rec.CreatedAt, Valid: !rec.CreatedAt.IsZero()}
}
