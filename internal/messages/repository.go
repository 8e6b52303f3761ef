// Package messages manages staff announcements, their attachments and
// the delivery queue hand-off.
package messages

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

// Repository provides data access for announcements.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an announcements repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) db(ctx context.Context) database.Querier {
	return database.FromContext(ctx, r.pool)
}

const announcementColumns = `id, church_id, local_church_id, author_id, title, body,
	attachment_key, status, sent_at, created_at, updated_at`

func scanAnnouncement(row pgx.Row) (*models.Announcement, error) {
	var a models.Announcement
	err := row.Scan(&a.ID, &a.ChurchID, &a.LocalChurchID, &a.AuthorID, &a.Title,
		&a.Body, &a.AttachmentKey, &a.Status, &a.SentAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Create inserts a draft announcement.
func (r *Repository) Create(ctx context.Context, a *models.Announcement) error {
	return r.db(ctx).QueryRow(ctx, `
		INSERT INTO announcements (church_id, local_church_id, author_id, title, body, attachment_key)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, status, created_at, updated_at`,
		a.ChurchID, a.LocalChurchID, a.AuthorID, a.Title, a.Body, a.AttachmentKey,
	).Scan(&a.ID, &a.Status, &a.CreatedAt, &a.UpdatedAt)
}

// Get fetches an announcement by id. Returns nil, nil when not found.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.Announcement, error) {
	a, err := scanAnnouncement(r.db(ctx).QueryRow(ctx,
		`SELECT `+announcementColumns+` FROM announcements WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// List returns announcements within the tenant scope, newest first. Members
// only see sent ones; staff also see drafts and queued items.
func (r *Repository) List(ctx context.Context, scope authz.Predicate, includeUnsent bool) ([]models.Announcement, error) {
	where, args := scope.SQL(1)
	query := `SELECT ` + announcementColumns + ` FROM announcements WHERE ` + where
	if !includeUnsent {
		query += ` AND status = 'SENT'`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Announcement
	for rows.Next() {
		a, err := scanAnnouncement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// MarkQueued moves a DRAFT announcement to QUEUED. Returns false when the
// announcement was not in DRAFT.
func (r *Repository) MarkQueued(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.db(ctx).Exec(ctx, `
		UPDATE announcements SET status = 'QUEUED', updated_at = NOW()
		WHERE id = $1 AND status = 'DRAFT'`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkSent moves a QUEUED announcement to SENT.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID) error {
	_, err := r.db(ctx).Exec(ctx, `
		UPDATE announcements SET status = 'SENT', sent_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'QUEUED'`, id)
	return err
}

// SetAttachment records the object key of an uploaded attachment.
func (r *Repository) SetAttachment(ctx context.Context, id uuid.UUID, key string) error {
	_, err := r.db(ctx).Exec(ctx, `
		UPDATE announcements SET attachment_key = $1, updated_at = NOW()
		WHERE id = $2`, key, id)
	return err
}

// Recipients returns the user ids an announcement fans out to: every
// member of the church, or of the local church when one is set.
func (r *Repository) Recipients(ctx context.Context, a *models.Announcement) ([]uuid.UUID, error) {
	query := `SELECT id FROM users WHERE church_id = $1`
	args := []interface{}{a.ChurchID}
	if a.LocalChurchID != nil {
		query += ` AND local_church_id = $2`
		args = append(args, *a.LocalChurchID)
	}
	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
