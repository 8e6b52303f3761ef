package events

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

// Repository handles event persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an events repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) db(ctx context.Context) database.Querier {
	return database.FromContext(ctx, r.pool)
}

const eventColumns = `id, church_id, local_church_id, scope, title, description, location,
	starts_at, ends_at, capacity, visible_to_roles, is_active, created_by, created_at, updated_at`

func scanEvent(row pgx.Row) (*models.Event, error) {
	var ev models.Event
	var roles []string
	err := row.Scan(&ev.ID, &ev.ChurchID, &ev.LocalChurchID, &ev.Scope, &ev.Title, &ev.Description,
		&ev.Location, &ev.StartsAt, &ev.EndsAt, &ev.Capacity, &roles, &ev.IsActive,
		&ev.CreatedBy, &ev.CreatedAt, &ev.UpdatedAt)
	if err != nil {
		return nil, err
	}
	for _, s := range roles {
		ev.VisibleToRoles = append(ev.VisibleToRoles, authz.Role(s))
	}
	return &ev, nil
}

func rolesToStrings(roles []authz.Role) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, string(r))
	}
	return out
}

// Create inserts an event.
func (r *Repository) Create(ctx context.Context, ev *models.Event) error {
	const q = `INSERT INTO events (id, church_id, local_church_id, scope, title, description, location,
			starts_at, ends_at, capacity, visible_to_roles, is_active, created_by)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at`
	return r.db(ctx).QueryRow(ctx, q, ev.ChurchID, ev.LocalChurchID, ev.Scope, ev.Title,
		ev.Description, ev.Location, ev.StartsAt, ev.EndsAt, ev.Capacity,
		rolesToStrings(ev.VisibleToRoles), ev.IsActive, ev.CreatedBy).
		Scan(&ev.ID, &ev.CreatedAt, &ev.UpdatedAt)
}

// GetEvent returns an event by ID, nil when absent.
func (r *Repository) GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	ev, err := scanEvent(r.db(ctx).QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return ev, err
}

// Update persists mutable event fields.
func (r *Repository) Update(ctx context.Context, ev *models.Event) error {
	const q = `UPDATE events SET title = $2, description = $3, location = $4, starts_at = $5,
			ends_at = $6, capacity = $7, visible_to_roles = $8, is_active = $9,
			scope = $10, local_church_id = $11, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`
	return r.db(ctx).QueryRow(ctx, q, ev.ID, ev.Title, ev.Description, ev.Location, ev.StartsAt,
		ev.EndsAt, ev.Capacity, rolesToStrings(ev.VisibleToRoles), ev.IsActive,
		ev.Scope, ev.LocalChurchID).Scan(&ev.UpdatedAt)
}

// ListVisible returns active events reachable by the actor, constrained by
// the tenant predicate. WHOLE_CHURCH events match any local church of the
// tenant; LOCAL_CHURCH events only the actor's.
func (r *Repository) ListVisible(ctx context.Context, actor authz.Actor, scope authz.Predicate) ([]models.Event, error) {
	tenantSQL, args := scope.SQL(1)
	q := `SELECT ` + eventColumns + ` FROM events WHERE is_active AND ` + tenantSQL
	if !actor.IsSuperAdmin() {
		if actor.LocalChurchID != nil {
			args = append(args, *actor.LocalChurchID)
			q += ` AND (scope = 'WHOLE_CHURCH' OR local_church_id = $` + strconv.Itoa(len(args)) + `)`
		} else {
			q += ` AND scope = 'WHOLE_CHURCH'`
		}
	}
	q += ` ORDER BY starts_at`

	rows, err := r.db(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		if len(ev.VisibleToRoles) > 0 && !actor.IsSuperAdmin() && !anyRole(actor, ev.VisibleToRoles) {
			continue
		}
		list = append(list, *ev)
	}
	return list, rows.Err()
}

func anyRole(actor authz.Actor, roles []authz.Role) bool {
	for _, role := range roles {
		if actor.HasRole(role) {
			return true
		}
	}
	return false
}

// RosterEntry is one attendee row for leaders.
type RosterEntry struct {
	Reservation models.Reservation `json:"reservation"`
	FullName    string             `json:"full_name"`
	Email       string             `json:"email"`
}

// Roster lists non-cancelled reservations with member identity, GOING
// first, each block in arrival order.
func (r *Repository) Roster(ctx context.Context, eventID uuid.UUID) ([]RosterEntry, error) {
	const q = `SELECT res.id, res.event_id, res.user_id, res.status, res.seq, res.created_at, res.cancelled_at,
			u.full_name, u.email
		FROM event_reservations res
		JOIN users u ON u.id = res.user_id
		WHERE res.event_id = $1 AND res.status <> 'CANCELLED'
		ORDER BY res.status = 'WAITLIST', res.created_at, res.seq`
	rows, err := r.db(ctx).Query(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []RosterEntry
	for rows.Next() {
		var e RosterEntry
		if err := rows.Scan(&e.Reservation.ID, &e.Reservation.EventID, &e.Reservation.UserID,
			&e.Reservation.Status, &e.Reservation.Seq, &e.Reservation.CreatedAt,
			&e.Reservation.CancelledAt, &e.FullName, &e.Email); err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// Counts returns the live GOING and WAITLIST totals for an event.
func (r *Repository) Counts(ctx context.Context, eventID uuid.UUID) (going, waitlisted int, err error) {
	const q = `SELECT
		COUNT(*) FILTER (WHERE status = 'GOING'),
		COUNT(*) FILTER (WHERE status = 'WAITLIST')
		FROM event_reservations WHERE event_id = $1`
	err = r.db(ctx).QueryRow(ctx, q, eventID).Scan(&going, &waitlisted)
	return going, waitlisted, err
}

// MyReservation returns the actor's active reservation for an event, nil
// when none.
func (r *Repository) MyReservation(ctx context.Context, eventID, userID uuid.UUID) (*models.Reservation, error) {
	const q = `SELECT id, event_id, user_id, status, seq, created_at, cancelled_at
		FROM event_reservations
		WHERE event_id = $1 AND user_id = $2 AND status <> 'CANCELLED'`
	var res models.Reservation
	err := r.db(ctx).QueryRow(ctx, q, eventID, userID).
		Scan(&res.ID, &res.EventID, &res.UserID, &res.Status, &res.Seq, &res.CreatedAt, &res.CancelledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}
