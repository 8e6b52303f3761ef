package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gracehub/backend/internal/authz"
	"github.com/gracehub/backend/internal/models"
	"github.com/gracehub/backend/pkg/database"
)

// Repository handles user persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an auth repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) db(ctx context.Context) database.Querier {
	return database.FromContext(ctx, r.pool)
}

const userColumns = `id, email, password_hash, full_name, roles, church_id, local_church_id,
	is_new_believer, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	var roles []string
	err := row.Scan(&u.ID, &u.Email, &u.Password, &u.FullName, &roles, &u.ChurchID,
		&u.LocalChurchID, &u.IsNewBeliever, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	for _, s := range roles {
		u.Roles = append(u.Roles, authz.Role(s))
	}
	return &u, nil
}

// GetByID returns a user by ID, nil when absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := scanUser(r.db(ctx).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

// GetByEmail returns a user by email, nil when absent.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(r.db(ctx).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

// Create inserts a new user.
func (r *Repository) Create(ctx context.Context, email, passwordHash, fullName string, roles []authz.Role, churchID, localChurchID *uuid.UUID, isNewBeliever bool) (*models.User, error) {
	const q = `INSERT INTO users (email, password_hash, full_name, roles, church_id, local_church_id, is_new_believer)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + userColumns
	roleStrs := make([]string, 0, len(roles))
	for _, role := range roles {
		roleStrs = append(roleStrs, string(role))
	}
	return scanUser(r.db(ctx).QueryRow(ctx, q, email, passwordHash, fullName, roleStrs, churchID, localChurchID, isNewBeliever))
}

// UpdateRoles replaces a user's role set.
func (r *Repository) UpdateRoles(ctx context.Context, userID uuid.UUID, roles []authz.Role) error {
	roleStrs := make([]string, 0, len(roles))
	for _, role := range roles {
		roleStrs = append(roleStrs, string(role))
	}
	_, err := r.db(ctx).Exec(ctx,
		`UPDATE users SET roles = $2, updated_at = NOW() WHERE id = $1`, userID, roleStrs)
	return err
}
