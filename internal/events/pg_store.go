package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gracehub/backend/internal/models"
	"github.com/gracehub/backend/pkg/apperr"
	"github.com/gracehub/backend/pkg/database"
)

const (
	serializationFailure = "40001"
	deadlockDetected     = "40P01"
	uniqueViolation      = "23505"

	// activeReservationIndex backstops the unique-active-reservation
	// invariant; its violation means the caller lost a duplicate race.
	activeReservationIndex = "event_reservations_active_idx"
)

// PGStore runs reservation transactions against PostgreSQL under
// serializable isolation.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a PostgreSQL reservation store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// InTx executes fn inside a serializable transaction and classifies
// storage conflicts into the application error taxonomy. When the context
// already carries a transaction (a keyed mutation running under the
// idempotency ledger) fn joins it instead, so the reservation and the
// ledger record commit together; commit, rollback and conflict retries
// stay with the transaction owner.
func (s *PGStore) InTx(ctx context.Context, fn func(tx ReservationTx) error) error {
	if ambient, ok := database.TxFromContext(ctx); ok {
		if err := fn(&pgReservationTx{tx: ambient}); err != nil {
			return classify(err)
		}
		return nil
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgReservationTx{tx: tx}); err != nil {
		return classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(err)
	}
	return nil
}

func classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case serializationFailure, deadlockDetected:
		return apperr.Wrap(apperr.KindCapacityRaceRetry, "reservation conflict", err)
	case uniqueViolation:
		if pgErr.ConstraintName == activeReservationIndex {
			return apperr.E(apperr.KindAlreadyRegistered, "already registered for this event")
		}
		return apperr.Wrap(apperr.KindConstraintViolation, "constraint violation", err)
	}
	return err
}

type pgReservationTx struct {
	tx pgx.Tx
}

func (t *pgReservationTx) CountGoing(ctx context.Context, eventID uuid.UUID) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM event_reservations WHERE event_id = $1 AND status = 'GOING'`,
		eventID).Scan(&n)
	return n, err
}

func (t *pgReservationTx) ActiveReservation(ctx context.Context, eventID, userID uuid.UUID) (*models.Reservation, error) {
	const q = `SELECT id, event_id, user_id, status, seq, created_at, cancelled_at
		FROM event_reservations
		WHERE event_id = $1 AND user_id = $2 AND status <> 'CANCELLED'`
	var r models.Reservation
	err := t.tx.QueryRow(ctx, q, eventID, userID).
		Scan(&r.ID, &r.EventID, &r.UserID, &r.Status, &r.Seq, &r.CreatedAt, &r.CancelledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (t *pgReservationTx) Insert(ctx context.Context, res *models.Reservation) error {
	const q = `INSERT INTO event_reservations (id, event_id, user_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING seq`
	return t.tx.QueryRow(ctx, q, res.ID, res.EventID, res.UserID, res.Status, res.CreatedAt).
		Scan(&res.Seq)
}

func (t *pgReservationTx) Cancel(ctx context.Context, reservationID uuid.UUID, at time.Time) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE event_reservations SET status = 'CANCELLED', cancelled_at = $2 WHERE id = $1`,
		reservationID, at)
	return err
}

func (t *pgReservationTx) OldestWaitlisted(ctx context.Context, eventID uuid.UUID) (*models.Reservation, error) {
	// Strict FIFO: creation time, insertion sequence as tie-break. FOR
	// UPDATE pins the row so two promotions cannot pick the same
	// reservation.
	const q = `SELECT id, event_id, user_id, status, seq, created_at, cancelled_at
		FROM event_reservations
		WHERE event_id = $1 AND status = 'WAITLIST'
		ORDER BY created_at, seq
		LIMIT 1
		FOR UPDATE`
	var r models.Reservation
	err := t.tx.QueryRow(ctx, q, eventID).
		Scan(&r.ID, &r.EventID, &r.UserID, &r.Status, &r.Seq, &r.CreatedAt, &r.CancelledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (t *pgReservationTx) Promote(ctx context.Context, reservationID uuid.UUID) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE event_reservations SET status = 'GOING' WHERE id = $1 AND status = 'WAITLIST'`,
		reservationID)
	return err
}
