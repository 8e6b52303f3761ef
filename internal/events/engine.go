package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gracehub/backend/internal/authz"
	"github.com/gracehub/backend/internal/models"
	"github.com/gracehub/backend/pkg/apperr"
	"github.com/gracehub/backend/pkg/database"
)

// maxTxAttempts bounds retries of serialization conflicts before the
// caller sees Busy.
const maxTxAttempts = 3

// ReservationTx is the per-transaction operation set of the reservation
// state machine.
type ReservationTx interface {
	CountGoing(ctx context.Context, eventID uuid.UUID) (int, error)
	ActiveReservation(ctx context.Context, eventID, userID uuid.UUID) (*models.Reservation, error)
	Insert(ctx context.Context, res *models.Reservation) error
	Cancel(ctx context.Context, reservationID uuid.UUID, at time.Time) error
	OldestWaitlisted(ctx context.Context, eventID uuid.UUID) (*models.Reservation, error)
	Promote(ctx context.Context, reservationID uuid.UUID) error
}

// ReservationStore runs reservation transitions inside a serializable
// transaction. Implementations surface serialization conflicts as
// KindCapacityRaceRetry and duplicate-active races as KindAlreadyRegistered.
type ReservationStore interface {
	InTx(ctx context.Context, fn func(tx ReservationTx) error) error
}

// EventGetter loads events for visibility checks.
type EventGetter interface {
	GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error)
}

// Engine is the capacity reservation state machine. Capacity is always
// derived by counting live rows inside the mutating transaction, never
// stored and incremented, so the count and the reservation set cannot
// drift.
type Engine struct {
	events EventGetter
	store  ReservationStore
	logger *zap.Logger
}

// NewEngine creates a reservation engine.
func NewEngine(events EventGetter, store ReservationStore, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{events: events, store: store, logger: logger}
}

// RSVP registers the actor for the event: GOING while seats remain,
// WAITLIST once full. The count-then-insert runs under serializable
// isolation; two transactions can never both observe the last free seat.
func (e *Engine) RSVP(ctx context.Context, actor authz.Actor, eventID uuid.UUID) (*models.Reservation, error) {
	ev, err := e.events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := e.checkVisibility(actor, ev); err != nil {
		return nil, err
	}

	var out *models.Reservation
	err = e.withRetry(ctx, eventID, func(tx ReservationTx) error {
		existing, err := tx.ActiveReservation(ctx, eventID, actor.UserID)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.E(apperr.KindAlreadyRegistered, "already registered for this event")
		}

		going, err := tx.CountGoing(ctx, eventID)
		if err != nil {
			return err
		}
		status := models.StatusGoing
		if going >= ev.Capacity {
			status = models.StatusWaitlist
		}
		res := &models.Reservation{
			ID:        uuid.New(),
			EventID:   eventID,
			UserID:    actor.UserID,
			Status:    status,
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.Insert(ctx, res); err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Cancel cancels the actor's active reservation. Cancelling a GOING seat
// promotes the oldest waitlisted reservation in the same transaction, so a
// crash can never land between the two transitions.
func (e *Engine) Cancel(ctx context.Context, actor authz.Actor, eventID uuid.UUID) (*models.Reservation, error) {
	ev, err := e.events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	// Tenant reachability only: a member may cancel even after the event
	// closed or its role allowlist changed.
	if err := tenantReachable(actor, ev); err != nil {
		return nil, err
	}

	var out *models.Reservation
	err = e.withRetry(ctx, eventID, func(tx ReservationTx) error {
		res, err := tx.ActiveReservation(ctx, eventID, actor.UserID)
		if err != nil {
			return err
		}
		if res == nil {
			return apperr.E(apperr.KindNotFound, "no active reservation for this event")
		}

		now := time.Now().UTC()
		if err := tx.Cancel(ctx, res.ID, now); err != nil {
			return err
		}
		if res.Status == models.StatusGoing {
			next, err := tx.OldestWaitlisted(ctx, eventID)
			if err != nil {
				return err
			}
			if next != nil {
				if err := tx.Promote(ctx, next.ID); err != nil {
					return err
				}
				e.logger.Info("waitlist promotion",
					zap.String("event_id", eventID.String()),
					zap.String("promoted_user_id", next.UserID.String()))
			}
		}

		cancelled := *res
		cancelled.Status = models.StatusCancelled
		cancelled.CancelledAt = &now
		out = &cancelled
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// withRetry reruns fn on transient serialization conflicts, surfacing Busy
// once attempts are exhausted. Business errors pass through unchanged.
// Inside an enclosing transaction fn runs exactly once: a conflict has
// poisoned the whole transaction, so the retry belongs to its owner and
// KindCapacityRaceRetry is surfaced as-is.
func (e *Engine) withRetry(ctx context.Context, eventID uuid.UUID, fn func(tx ReservationTx) error) error {
	if _, ok := database.TxFromContext(ctx); ok {
		return e.store.InTx(ctx, fn)
	}
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = e.store.InTx(ctx, fn)
		if !apperr.Is(err, apperr.KindCapacityRaceRetry) {
			return err
		}
		e.logger.Debug("reservation tx conflict, retrying",
			zap.String("event_id", eventID.String()), zap.Int("attempt", attempt))
	}
	return apperr.Wrap(apperr.KindBusy, "event is busy, try again", err)
}

// checkVisibility decides whether the actor can reach the event at all:
// the event must be active, the actor's role must be on the allowlist when
// one is set, and the event must be tenant-reachable. WHOLE_CHURCH events
// are open to every local church of the tenant; LOCAL_CHURCH events
// require a local-church match.
func (e *Engine) checkVisibility(actor authz.Actor, ev *models.Event) error {
	if err := tenantReachable(actor, ev); err != nil {
		return err
	}
	if !ev.IsActive {
		return apperr.E(apperr.KindNotFound, "event is not open for registration")
	}
	if len(ev.VisibleToRoles) > 0 && !actor.IsSuperAdmin() {
		allowed := false
		for _, role := range ev.VisibleToRoles {
			if actor.HasRole(role) {
				allowed = true
				break
			}
		}
		if !allowed {
			return apperr.E(apperr.KindForbidden, "event is not open to your role")
		}
	}
	return nil
}

// tenantReachable checks cross-tenant isolation for an event. WHOLE_CHURCH
// events reach every local church of the tenant; LOCAL_CHURCH events only
// their own. Denials are not-found shaped so they cannot be used to probe
// another tenant's events.
func tenantReachable(actor authz.Actor, ev *models.Event) error {
	if ev == nil {
		return apperr.E(apperr.KindNotFoundOrForbidden, "event not found or access denied")
	}
	if actor.IsSuperAdmin() {
		return nil
	}
	if !actor.SameTenant(ev.ChurchID) {
		return apperr.E(apperr.KindNotFoundOrForbidden, "event not found or access denied")
	}
	if ev.Scope == models.ScopeLocalChurch {
		if ev.LocalChurchID == nil || actor.LocalChurchID == nil || *actor.LocalChurchID != *ev.LocalChurchID {
			return apperr.E(apperr.KindNotFoundOrForbidden, "event not found or access denied")
		}
	}
	return nil
}
