// Package lifegroups manages small groups and their membership requests.
package lifegroups

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gracehub/backend/internal/authz"
	"github.com/gracehub/backend/internal/models"
	"github.com/gracehub/backend/pkg/apperr"
	"github.com/gracehub/backend/pkg/database"
)

// Repository provides data access for life groups.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a life groups repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) db(ctx context.Context) database.Querier {
	return database.FromContext(ctx, r.pool)
}

const groupColumns = `id, church_id, local_church_id, leader_id, name, description, created_at, updated_at`

func scanGroup(row pgx.Row) (*models.LifeGroup, error) {
	var g models.LifeGroup
	err := row.Scan(&g.ID, &g.ChurchID, &g.LocalChurchID, &g.LeaderID,
		&g.Name, &g.Description, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// Create inserts a life group.
func (r *Repository) Create(ctx context.Context, g *models.LifeGroup) error {
	return r.db(ctx).QueryRow(ctx, `
		INSERT INTO life_groups (church_id, local_church_id, leader_id, name, description)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		g.ChurchID, g.LocalChurchID, g.LeaderID, g.Name, g.Description,
	).Scan(&g.ID, &g.CreatedAt, &g.UpdatedAt)
}

// Get fetches a life group by id. Returns nil, nil when not found.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.LifeGroup, error) {
	g, err := scanGroup(r.db(ctx).QueryRow(ctx,
		`SELECT `+groupColumns+` FROM life_groups WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return g, err
}

// List returns life groups within the tenant scope, name-ordered.
func (r *Repository) List(ctx context.Context, scope authz.Predicate) ([]models.LifeGroup, error) {
	where, args := scope.SQL(1)
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+groupColumns+` FROM life_groups WHERE `+where+` ORDER BY name`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.LifeGroup
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

// Request records a join request. At most one non-LEFT membership row
// exists per (group, user); a duplicate reports AlreadyRegistered.
func (r *Repository) Request(ctx context.Context, groupID, userID uuid.UUID) (*models.LifeGroupMember, error) {
	var m models.LifeGroupMember
	m.LifeGroupID = groupID
	m.UserID = userID
	m.Status = models.LifeGroupRequested
	err := r.db(ctx).QueryRow(ctx, `
		INSERT INTO life_group_members (life_group_id, user_id)
		VALUES ($1, $2)
		RETURNING id, requested_at`,
		groupID, userID,
	).Scan(&m.ID, &m.RequestedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return nil, apperr.E(apperr.KindAlreadyRegistered, "a membership request already exists")
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Approve moves a REQUESTED membership to APPROVED.
func (r *Repository) Approve(ctx context.Context, groupID, userID uuid.UUID) error {
	tag, err := r.db(ctx).Exec(ctx, `
		UPDATE life_group_members
		SET status = 'APPROVED', approved_at = NOW()
		WHERE life_group_id = $1 AND user_id = $2 AND status = 'REQUESTED'`,
		groupID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.E(apperr.KindNotFound, "no pending request for this member")
	}
	return nil
}

// Leave moves an active membership to LEFT.
func (r *Repository) Leave(ctx context.Context, groupID, userID uuid.UUID) error {
	tag, err := r.db(ctx).Exec(ctx, `
		UPDATE life_group_members
		SET status = 'LEFT'
		WHERE life_group_id = $1 AND user_id = $2 AND status <> 'LEFT'`,
		groupID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.E(apperr.KindNotFound, "no active membership for this group")
	}
	return nil
}

// MemberEntry is a membership row joined with directory fields.
type MemberEntry struct {
	models.LifeGroupMember
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

// Members returns a group's membership rows, pending requests first.
func (r *Repository) Members(ctx context.Context, groupID uuid.UUID) ([]MemberEntry, error) {
	rows, err := r.db(ctx).Query(ctx, `
		SELECT m.id, m.life_group_id, m.user_id, m.status, m.requested_at, m.approved_at,
		       u.full_name, u.email
		FROM life_group_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.life_group_id = $1 AND m.status <> 'LEFT'
		ORDER BY m.status DESC, m.requested_at`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MemberEntry
	for rows.Next() {
		var e MemberEntry
		if err := rows.Scan(&e.ID, &e.LifeGroupID, &e.UserID, &e.Status,
			&e.RequestedAt, &e.ApprovedAt, &e.FullName, &e.Email); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
