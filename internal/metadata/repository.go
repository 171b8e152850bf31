package metadata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultQueryTimeout = 5 * time.Second

// Repository reads update metadata from the update_metadata table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a new Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectColumns = `platform_id, version, resource_path, content_hash, mandatory, rollout_percent, updated_at`

// Get implements Store.
func (r *Repository) Get(ctx context.Context, platformID string) (UpdateMetadata, error) {
	if err := ValidatePlatformID(platformID); err != nil {
		return UpdateMetadata{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	query := `
SELECT ` + selectColumns + `
FROM update_metadata
WHERE platform_id = $1;`

	m, err := scanMetadata(r.pool.QueryRow(ctx, query, platformID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UpdateMetadata{}, ErrNotFound
		}
		return UpdateMetadata{}, fmt.Errorf("get metadata: %w", err)
	}
	if err := m.Validate(); err != nil {
		return UpdateMetadata{}, err
	}
	return m, nil
}

// List implements Lister.
func (r *Repository) List(ctx context.Context) ([]UpdateMetadata, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	query := `
SELECT ` + selectColumns + `
FROM update_metadata
ORDER BY platform_id;`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list metadata: %w", err)
	}
	defer rows.Close()

	var out []UpdateMetadata
	for rows.Next() {
		m, err := scanMetadata(rows)
		if err != nil {
			return nil, fmt.Errorf("scan metadata: %w", err)
		}
		if err := m.Validate(); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metadata: %w", err)
	}
	return out, nil
}

func scanMetadata(row pgx.Row) (UpdateMetadata, error) {
	var (
		m       UpdateMetadata
		rollout *int32
	)
	if err := row.Scan(
		&m.PlatformID,
		&m.Version,
		&m.ResourcePath,
		&m.ContentHash,
		&m.Mandatory,
		&rollout,
		&m.UpdatedAt,
	); err != nil {
		return UpdateMetadata{}, err
	}
	if rollout != nil {
		v := int(*rollout)
		m.RolloutPercent = &v
	}
	return m, nil
}
