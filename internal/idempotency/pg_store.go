package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gracehub/backend/pkg/apperr"
	"github.com/gracehub/backend/pkg/database"
)

const (
	uniqueViolation      = "23505"
	serializationFailure = "40001"
	deadlockDetected     = "40P01"
)

// PGStore persists ledger records in the idempotency_records table, unique
// on (actor_id, endpoint, client_request_key).
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a PostgreSQL-backed ledger store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Get returns the snapshot of a completed, non-expired record.
func (s *PGStore) Get(ctx context.Context, actorID uuid.UUID, endpoint, key string) ([]byte, bool, error) {
	const q = `SELECT result_snapshot FROM idempotency_records
		WHERE actor_id = $1 AND endpoint = $2 AND client_request_key = $3
		AND result_snapshot IS NOT NULL AND expires_at > NOW()`
	var snapshot []byte
	err := s.pool.QueryRow(ctx, q, actorID, endpoint, key).Scan(&snapshot)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return snapshot, true, nil
}

// Run claims the key and executes fn in one transaction. The pending claim
// row is inserted before fn runs: a concurrent duplicate blocks on the
// unique index until this transaction commits, then fails with a unique
// violation, which maps to DuplicateInFlight. A crash rolls back claim and
// mutation together, so the ledger can never record a mutation that did
// not happen (or vice versa).
//
// The transaction is serializable because fn may be a capacity reservation
// whose count-then-insert depends on that isolation level. A serialization
// failure anywhere in the transaction surfaces as KindCapacityRaceRetry;
// the ledger reruns the whole claim-mutate-record unit.
func (s *PGStore) Run(ctx context.Context, actorID uuid.UUID, endpoint, key string, ttl time.Duration, fn Fn) ([]byte, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// An expired record releases the key for a fresh execution.
	_, err = tx.Exec(ctx, `DELETE FROM idempotency_records
		WHERE actor_id = $1 AND endpoint = $2 AND client_request_key = $3 AND expires_at <= NOW()`,
		actorID, endpoint, key)
	if err != nil {
		return nil, classifyConflict(err)
	}

	_, err = tx.Exec(ctx, `INSERT INTO idempotency_records (actor_id, endpoint, client_request_key, expires_at)
		VALUES ($1, $2, $3, NOW() + $4)`,
		actorID, endpoint, key, ttl)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, apperr.E(apperr.KindDuplicateInFlight, "request already in flight")
		}
		return nil, classifyConflict(err)
	}

	snapshot, err := fn(database.WithTx(ctx, tx))
	if err != nil {
		return nil, classifyConflict(err)
	}

	_, err = tx.Exec(ctx, `UPDATE idempotency_records SET result_snapshot = $4
		WHERE actor_id = $1 AND endpoint = $2 AND client_request_key = $3`,
		actorID, endpoint, key, snapshot)
	if err != nil {
		return nil, classifyConflict(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, classifyConflict(err)
	}
	return snapshot, nil
}

// classifyConflict maps serialization failures onto KindCapacityRaceRetry
// so Execute can rerun the transaction. Everything else passes through.
func classifyConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case serializationFailure, deadlockDetected:
			return apperr.Wrap(apperr.KindCapacityRaceRetry, "ledger transaction conflict", err)
		}
	}
	return err
}
