// Package services manages scheduled gatherings and their check-ins.
package services

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gracehub/backend/internal/authz"
	"github.com/gracehub/backend/internal/models"
	"github.com/gracehub/backend/pkg/database"
)

// Repository provides data access for services.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a services repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) db(ctx context.Context) database.Querier {
	return database.FromContext(ctx, r.pool)
}

const serviceColumns = `id, church_id, local_church_id, title, starts_at, ends_at, created_at, updated_at`

func scanService(row pgx.Row) (*models.Service, error) {
	var s models.Service
	err := row.Scan(&s.ID, &s.ChurchID, &s.LocalChurchID, &s.Title,
		&s.StartsAt, &s.EndsAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts a service.
func (r *Repository) Create(ctx context.Context, s *models.Service) error {
	return r.db(ctx).QueryRow(ctx, `
		INSERT INTO services (church_id, local_church_id, title, starts_at, ends_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		s.ChurchID, s.LocalChurchID, s.Title, s.StartsAt, s.EndsAt,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

// Get fetches a service by id. Returns nil, nil when not found.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.Service, error) {
	s, err := scanService(r.db(ctx).QueryRow(ctx,
		`SELECT `+serviceColumns+` FROM services WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// List returns services within the tenant scope, optionally narrowed to a
// local church, newest first.
func (r *Repository) List(ctx context.Context, scope authz.Predicate, localChurchID *uuid.UUID) ([]models.Service, error) {
	where, args := scope.SQL(1)
	query := `SELECT ` + serviceColumns + ` FROM services WHERE ` + where
	if localChurchID != nil {
		args = append(args, *localChurchID)
		query += ` AND local_church_id = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY starts_at DESC`

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// AttendanceStats summarizes check-ins for a service.
type AttendanceStats struct {
	Total        int `json:"total"`
	NewBelievers int `json:"new_believers"`
}

// Stats returns attendance counts for a service.
func (r *Repository) Stats(ctx context.Context, serviceID uuid.UUID) (AttendanceStats, error) {
	var st AttendanceStats
	err := r.db(ctx).QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE is_new_believer)
		FROM checkins WHERE service_id = $1`, serviceID,
	).Scan(&st.Total, &st.NewBelievers)
	return st, err
}
