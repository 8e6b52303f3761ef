// Package churches exposes the tenant registry: the churches a user can
// pick at registration and their local churches.
package churches

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gracehub/backend/internal/models"
	"github.com/gracehub/backend/pkg/database"
)

// Repository provides data access for churches and local churches.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a churches repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) db(ctx context.Context) database.Querier {
	return database.FromContext(ctx, r.pool)
}

// List returns all churches, name-ordered.
func (r *Repository) List(ctx context.Context) ([]models.Church, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT id, name, slug, created_at, updated_at FROM churches ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Church
	for rows.Next() {
		var ch models.Church
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.Slug, &ch.CreatedAt, &ch.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// Get fetches a church by id. Returns nil, nil when not found.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.Church, error) {
	var ch models.Church
	err := r.db(ctx).QueryRow(ctx,
		`SELECT id, name, slug, created_at, updated_at FROM churches WHERE id = $1`, id,
	).Scan(&ch.ID, &ch.Name, &ch.Slug, &ch.CreatedAt, &ch.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// LocalChurches returns a church's local churches, name-ordered.
func (r *Repository) LocalChurches(ctx context.Context, churchID uuid.UUID) ([]models.LocalChurch, error) {
	rows, err := r.db(ctx).Query(ctx, `
		SELECT id, church_id, name, created_at, updated_at
		FROM local_churches WHERE church_id = $1 ORDER BY name`, churchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.LocalChurch
	for rows.Next() {
		var lc models.LocalChurch
		if err := rows.Scan(&lc.ID, &lc.ChurchID, &lc.Name, &lc.CreatedAt, &lc.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, lc)
	}
	return out, rows.Err()
}
