// Package idempotency implements the durable ledger that makes client
// retries of the same logical mutation safe. A mobile client resubmitting a
// check-in after a timeout gets the original result back instead of a
// second side effect.
package idempotency

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gracehub/backend/pkg/apperr"
)

// DefaultTTL bounds ledger growth; a key resubmitted after expiry is
// treated as a new request.
const DefaultTTL = 24 * time.Hour

// maxRunAttempts bounds reruns of the ledger transaction on serialization
// conflicts before the caller sees Busy.
const maxRunAttempts = 3

// Fn is the guarded mutation. It runs inside the same transaction as the
// ledger record write, so the record and the mutation commit together. The
// returned bytes are the snapshot replayed to retries.
type Fn func(ctx context.Context) ([]byte, error)

// Store persists ledger records.
type Store interface {
	// Get returns the snapshot for a committed, non-expired record.
	Get(ctx context.Context, actorID uuid.UUID, endpoint, key string) ([]byte, bool, error)
	// Run claims the key, executes fn and persists its snapshot, all
	// atomically. A concurrent uncommitted claim yields a
	// KindDuplicateInFlight error and fn is not invoked.
	Run(ctx context.Context, actorID uuid.UUID, endpoint, key string, ttl time.Duration, fn Fn) ([]byte, error)
}

// Ledger provides at-most-once execution per (actor, endpoint, key).
type Ledger struct {
	store  Store
	ttl    time.Duration
	logger *zap.Logger
}

// NewLedger creates a ledger; ttl <= 0 selects DefaultTTL.
func NewLedger(store Store, ttl time.Duration, logger *zap.Logger) *Ledger {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{store: store, ttl: ttl, logger: logger}
}

// Execute runs fn at most once for (actorID, endpoint, key). A repeated key
// before expiry returns the stored snapshot with replayed=true and fn is
// not invoked. When a concurrent duplicate loses the claim race it replays
// the winner's snapshot if committed, otherwise reports DuplicateInFlight
// so the client can retry.
func (l *Ledger) Execute(ctx context.Context, actorID uuid.UUID, endpoint, key string, fn Fn) (snapshot []byte, replayed bool, err error) {
	if key == "" {
		return nil, false, apperr.E(apperr.KindInvalid, "idempotency key required")
	}

	snap, found, err := l.store.Get(ctx, actorID, endpoint, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		l.logger.Debug("idempotent replay",
			zap.String("endpoint", endpoint), zap.String("actor_id", actorID.String()))
		return snap, true, nil
	}

	var out []byte
	for attempt := 1; ; attempt++ {
		out, err = l.store.Run(ctx, actorID, endpoint, key, l.ttl, fn)
		if err == nil {
			return out, false, nil
		}
		if apperr.Is(err, apperr.KindDuplicateInFlight) {
			// The competing request may have committed between our probe
			// and the claim; replay its result if so.
			snap, found, gerr := l.store.Get(ctx, actorID, endpoint, key)
			if gerr == nil && found {
				return snap, true, nil
			}
			return nil, false, err
		}
		// A serialization conflict aborts claim and mutation together;
		// the whole unit is safe to rerun.
		if !apperr.Is(err, apperr.KindCapacityRaceRetry) {
			return nil, false, err
		}
		if attempt >= maxRunAttempts {
			return nil, false, apperr.Wrap(apperr.KindBusy, "server is busy, try again", err)
		}
		l.logger.Debug("ledger transaction conflict, retrying",
			zap.String("endpoint", endpoint), zap.Int("attempt", attempt))
	}
}
