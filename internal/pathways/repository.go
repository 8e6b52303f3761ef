// Package pathways manages discipleship tracks, enrollment and step
// progress. Completing the last step completes the enrollment.
package pathways

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

// Repository provides data access for pathways.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a pathways repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) db(ctx context.Context) database.Querier {
	return database.FromContext(ctx, r.pool)
}

// Create inserts a pathway.
func (r *Repository) Create(ctx context.Context, p *models.Pathway) error {
	return r.db(ctx).QueryRow(ctx, `
		INSERT INTO pathways (church_id, name, description)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`,
		p.ChurchID, p.Name, p.Description,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

// Get fetches a pathway by id. Returns nil, nil when not found.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.Pathway, error) {
	var p models.Pathway
	err := r.db(ctx).QueryRow(ctx, `
		SELECT id, church_id, name, description, created_at, updated_at
		FROM pathways WHERE id = $1`, id,
	).Scan(&p.ID, &p.ChurchID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// List returns pathways within the tenant scope, name-ordered.
func (r *Repository) List(ctx context.Context, scope authz.Predicate) ([]models.Pathway, error) {
	where, args := scope.SQL(1)
	rows, err := r.db(ctx).Query(ctx, `
		SELECT id, church_id, name, description, created_at, updated_at
		FROM pathways WHERE `+where+` ORDER BY name`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Pathway
	for rows.Next() {
		var p models.Pathway
		if err := rows.Scan(&p.ID, &p.ChurchID, &p.Name, &p.Description,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// AddStep appends a step to a pathway. A duplicate order index reports
// a constraint violation.
func (r *Repository) AddStep(ctx context.Context, s *models.PathwayStep) error {
	err := r.db(ctx).QueryRow(ctx, `
		INSERT INTO pathway_steps (pathway_id, name, order_index)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		s.PathwayID, s.Name, s.OrderIndex,
	).Scan(&s.ID, &s.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperr.E(apperr.KindConstraintViolation, "a step with that order already exists")
	}
	return err
}

// Steps returns a pathway's steps in order.
func (r *Repository) Steps(ctx context.Context, pathwayID uuid.UUID) ([]models.PathwayStep, error) {
	rows, err := r.db(ctx).Query(ctx, `
		SELECT id, pathway_id, name, order_index, created_at
		FROM pathway_steps WHERE pathway_id = $1 ORDER BY order_index`, pathwayID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PathwayStep
	for rows.Next() {
		var s models.PathwayStep
		if err := rows.Scan(&s.ID, &s.PathwayID, &s.Name, &s.OrderIndex, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Enroll creates an enrollment. Enrolling twice reports AlreadyRegistered.
func (r *Repository) Enroll(ctx context.Context, pathwayID, userID uuid.UUID) (*models.PathwayEnrollment, error) {
	var e models.PathwayEnrollment
	e.PathwayID = pathwayID
	e.UserID = userID
	e.Status = models.EnrollmentActive
	err := r.db(ctx).QueryRow(ctx, `
		INSERT INTO pathway_enrollments (pathway_id, user_id)
		VALUES ($1, $2)
		RETURNING id, enrolled_at`,
		pathwayID, userID,
	).Scan(&e.ID, &e.EnrolledAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return nil, apperr.E(apperr.KindAlreadyRegistered, "already enrolled in this pathway")
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Enrollment fetches a user's enrollment in a pathway. Returns nil, nil
// when absent.
func (r *Repository) Enrollment(ctx context.Context, pathwayID, userID uuid.UUID) (*models.PathwayEnrollment, error) {
	var e models.PathwayEnrollment
	err := r.db(ctx).QueryRow(ctx, `
		SELECT id, pathway_id, user_id, status, enrolled_at, completed_at
		FROM pathway_enrollments WHERE pathway_id = $1 AND user_id = $2`,
		pathwayID, userID,
	).Scan(&e.ID, &e.PathwayID, &e.UserID, &e.Status, &e.EnrolledAt, &e.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// CompleteStep records step completion and, when all steps of the pathway
// are done, marks the enrollment COMPLETED. Both writes happen in one
// transaction.
func (r *Repository) CompleteStep(ctx context.Context, enrollment *models.PathwayEnrollment, stepID, completedBy uuid.UUID) (completedAll bool, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO step_progress (enrollment_id, step_id, completed_by)
		VALUES ($1, $2, $3)
		ON CONFLICT (enrollment_id, step_id) DO NOTHING`,
		enrollment.ID, stepID, completedBy)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		// Step was already recorded; nothing else can have changed.
		return false, tx.Commit(ctx)
	}

	var remaining int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM pathway_steps s
		WHERE s.pathway_id = $1
		AND NOT EXISTS (
			SELECT 1 FROM step_progress p
			WHERE p.enrollment_id = $2 AND p.step_id = s.id
		)`, enrollment.PathwayID, enrollment.ID).Scan(&remaining)
	if err != nil {
		return false, err
	}
	if remaining == 0 {
		_, err = tx.Exec(ctx, `
			UPDATE pathway_enrollments
			SET status = 'COMPLETED', completed_at = NOW()
			WHERE id = $1 AND status = 'ENROLLED'`, enrollment.ID)
		if err != nil {
			return false, err
		}
	}
	return remaining == 0, tx.Commit(ctx)
}

// Progress returns the completed step ids for an enrollment.
func (r *Repository) Progress(ctx context.Context, enrollmentID uuid.UUID) ([]models.StepProgress, error) {
	rows, err := r.db(ctx).Query(ctx, `
		SELECT enrollment_id, step_id, completed_at, completed_by
		FROM step_progress WHERE enrollment_id = $1 ORDER BY completed_at`, enrollmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.StepProgress
	for rows.Next() {
		var p models.StepProgress
		if err := rows.Scan(&p.EnrollmentID, &p.StepID, &p.CompletedAt, &p.CompletedBy); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
