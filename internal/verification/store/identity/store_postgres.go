package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"campusverify/internal/verification"
	"campusverify/pkg/platform/sentinel"
)

const schema = `
CREATE TABLE IF NOT EXISTS verified_identities (
    subject_id  TEXT PRIMARY KEY,
    email       TEXT NOT NULL,
    verified_at TIMESTAMPTZ NOT NULL
)`

// PostgresStore persists verified identities in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres constructs a PostgreSQL-backed identity store. The pool
// lifecycle is managed by the caller.
func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the backing table when it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure verified_identities schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Upsert(ctx context.Context, rec *verification.VerifiedIdentity) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO verified_identities (subject_id, email, verified_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (subject_id)
		DO UPDATE SET email = EXCLUDED.email, verified_at = EXCLUDED.verified_at`,
		rec.SubjectID, rec.Email, rec.VerifiedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert verified identity: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, subjectID string) (*verification.VerifiedIdentity, error) {
	var rec verification.VerifiedIdentity
	err := s.pool.QueryRow(ctx, `
		SELECT subject_id, email, verified_at
		FROM verified_identities
		WHERE subject_id = $1`,
		subjectID,
	).Scan(&rec.SubjectID, &rec.Email, &rec.VerifiedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("verified identity not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find verified identity: %w", err)
	}
	return &rec, nil
}
