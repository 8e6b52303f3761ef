// Package members exposes the tenant-scoped member directory and role
// administration.
package members

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

// Repository provides data access for the member directory.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a members repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) db(ctx context.Context) database.Querier {
	return database.FromContext(ctx, r.pool)
}

const userColumns = `id, email, full_name, roles, church_id, local_church_id, is_new_believer, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	var roles []string
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &roles, &u.ChurchID,
		&u.LocalChurchID, &u.IsNewBeliever, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Roles = make([]authz.Role, 0, len(roles))
	for _, s := range roles {
		u.Roles = append(u.Roles, authz.Role(s))
	}
	return &u, nil
}

// Get fetches a member by id. Returns nil, nil when not found.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := scanUser(r.db(ctx).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

// ListFilter narrows a directory listing.
type ListFilter struct {
	LocalChurchID *uuid.UUID
	Search        string
	Limit         int
	Offset        int
}

// List returns members within the tenant scope, name-ordered.
func (r *Repository) List(ctx context.Context, scope authz.Predicate, f ListFilter) ([]models.User, error) {
	where, args := scope.SQL(1)
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where
	if f.LocalChurchID != nil {
		args = append(args, *f.LocalChurchID)
		query += ` AND local_church_id = $` + strconv.Itoa(len(args))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		pos := strconv.Itoa(len(args))
		query += ` AND (full_name ILIKE $` + pos + ` OR email ILIKE $` + pos + `)`
	}
	query += ` ORDER BY full_name`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// ListFirstTimers returns the tenant's new believers, newest first, for
// VIP team follow-up.
func (r *Repository) ListFirstTimers(ctx context.Context, scope authz.Predicate, localChurchID *uuid.UUID, limit int) ([]models.User, error) {
	where, args := scope.SQL(1)
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where + ` AND is_new_believer`
	if localChurchID != nil {
		args = append(args, *localChurchID)
		query += ` AND local_church_id = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		args = append(args, limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// UpdateRoles replaces a member's role set.
func (r *Repository) UpdateRoles(ctx context.Context, id uuid.UUID, roles []authz.Role) error {
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = string(role)
	}
	_, err := r.db(ctx).Exec(ctx,
		`UPDATE users SET roles = $1, updated_at = NOW() WHERE id = $2`, names, id)
	return err
}

// UpdateProfile updates a member's own editable fields.
func (r *Repository) UpdateProfile(ctx context.Context, id uuid.UUID, fullName string, localChurchID *uuid.UUID) error {
	_, err := r.db(ctx).Exec(ctx, `
		UPDATE users SET full_name = $1, local_church_id = $2, updated_at = NOW()
		WHERE id = $3`, fullName, localChurchID, id)
	return err
}
