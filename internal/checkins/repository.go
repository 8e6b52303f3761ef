// Package checkins records member attendance at services. Check-ins from
// the mobile app run through the idempotency ledger so network retries
// never double-record.
package checkins

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gracehub/backend/internal/models"
	"github.com/gracehub/backend/pkg/apperr"
	"github.com/gracehub/backend/pkg/database"
)

// Repository provides data access for check-ins.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a check-ins repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) db(ctx context.Context) database.Querier {
	return database.FromContext(ctx, r.pool)
}

// Create inserts a check-in. A second check-in for the same (service, user)
// pair hits the unique constraint and reports AlreadyRegistered.
func (r *Repository) Create(ctx context.Context, ci *models.Checkin) error {
	err := r.db(ctx).QueryRow(ctx, `
		INSERT INTO checkins (service_id, user_id, is_new_believer)
		VALUES ($1, $2, $3)
		RETURNING id, checked_in_at`,
		ci.ServiceID, ci.UserID, ci.IsNewBeliever,
	).Scan(&ci.ID, &ci.CheckedInAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperr.E(apperr.KindAlreadyRegistered, "already checked in to this service")
	}
	return err
}

// Get returns the caller's check-in for a service, or nil when absent.
func (r *Repository) Get(ctx context.Context, serviceID, userID uuid.UUID) (*models.Checkin, error) {
	var ci models.Checkin
	err := r.db(ctx).QueryRow(ctx, `
		SELECT id, service_id, user_id, is_new_believer, checked_in_at
		FROM checkins WHERE service_id = $1 AND user_id = $2`,
		serviceID, userID,
	).Scan(&ci.ID, &ci.ServiceID, &ci.UserID, &ci.IsNewBeliever, &ci.CheckedInAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ci, nil
}

// RosterEntry is a check-in joined with the member's directory fields.
type RosterEntry struct {
	models.Checkin
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

// ListForService returns all check-ins for a service, newest first.
func (r *Repository) ListForService(ctx context.Context, serviceID uuid.UUID) ([]RosterEntry, error) {
	rows, err := r.db(ctx).Query(ctx, `
		SELECT c.id, c.service_id, c.user_id, c.is_new_believer, c.checked_in_at,
		       u.full_name, u.email
		FROM checkins c
		JOIN users u ON u.id = c.user_id
		WHERE c.service_id = $1
		ORDER BY c.checked_in_at DESC`, serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RosterEntry
	for rows.Next() {
		var e RosterEntry
		if err := rows.Scan(&e.ID, &e.ServiceID, &e.UserID, &e.IsNewBeliever,
			&e.CheckedInAt, &e.FullName, &e.Email); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
