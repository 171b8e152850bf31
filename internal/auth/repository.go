package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultQueryTimeout = 5 * time.Second

// Repository stores API clients in the api_clients table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a new Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindClient fetches a client by subject.
func (r *Repository) FindClient(ctx context.Context, subject string) (Client, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	query := `
SELECT subject, key_hash, disabled, created_at, updated_at
FROM api_clients
WHERE subject = $1;`

	var client Client
	err := r.pool.QueryRow(ctx, query, subject).Scan(
		&client.Subject,
		&client.KeyHash,
		&client.Disabled,
		&client.CreatedAt,
		&client.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Client{}, ErrClientNotFound
		}
		return Client{}, fmt.Errorf("find client: %w", err)
	}

	return client, nil
}

// UpsertClient creates the client or replaces its key hash, re-enabling it.
func (r *Repository) UpsertClient(ctx context.Context, subject, keyHash string) (Client, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	query := `
INSERT INTO api_clients (subject, key_hash)
VALUES ($1, $2)
ON CONFLICT (subject)
DO UPDATE SET key_hash = EXCLUDED.key_hash, disabled = FALSE, updated_at = NOW()
RETURNING subject, key_hash, disabled, created_at, updated_at;`

	var client Client
	if err := r.pool.QueryRow(ctx, query, subject, keyHash).Scan(
		&client.Subject,
		&client.KeyHash,
		&client.Disabled,
		&client.CreatedAt,
		&client.UpdatedAt,
	); err != nil {
		return Client{}, fmt.Errorf("upsert client: %w", err)
	}

	return client, nil
}

// DisableClient marks a client as disabled.
func (r *Repository) DisableClient(ctx context.Context, subject string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	query := `
UPDATE api_clients
SET disabled = TRUE, updated_at = NOW()
WHERE subject = $1;`

	tag, err := r.pool.Exec(ctx, query, subject)
	if err != nil {
		return fmt.Errorf("disable client: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrClientNotFound
	}

	return nil
}
