package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/gracehub/backend/internal/authz"
)

// EventScope controls who can reach an event.
type EventScope string

const (
	// ScopeWholeChurch makes the event visible to every local church of
	// the tenant.
	ScopeWholeChurch EventScope = "WHOLE_CHURCH"
	// ScopeLocalChurch restricts the event to one local church.
	ScopeLocalChurch EventScope = "LOCAL_CHURCH"
)

// Event is a capacity-bounded sign-up target.
type Event struct {
	ID            uuid.UUID    `json:"id"`
	ChurchID      uuid.UUID    `json:"church_id"`
	LocalChurchID *uuid.UUID   `json:"local_church_id,omitempty"`
	Scope         EventScope   `json:"scope"`
	Title         string       `json:"title"`
	Description   string       `json:"description"`
	Location      string       `json:"location"`
	StartsAt      time.Time    `json:"starts_at"`
	EndsAt        *time.Time   `json:"ends_at,omitempty"`
	Capacity      int          `json:"capacity"`
	// VisibleToRoles is a role allowlist; empty means visible to all roles.
	VisibleToRoles []authz.Role `json:"visible_to_roles,omitempty"`
	IsActive       bool         `json:"is_active"`
	CreatedBy      uuid.UUID    `json:"created_by"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// ReservationStatus is the RSVP state.
type ReservationStatus string

const (
	StatusGoing     ReservationStatus = "GOING"
	StatusWaitlist  ReservationStatus = "WAITLIST"
	StatusCancelled ReservationStatus = "CANCELLED"
)

// Reservation is a user's claim on an event seat. At most one non-cancelled
// reservation exists per (event, user); the storage layer enforces this with
// a partial unique index.
type Reservation struct {
	ID      uuid.UUID         `json:"id"`
	EventID uuid.UUID         `json:"event_id"`
	UserID  uuid.UUID         `json:"user_id"`
	Status  ReservationStatus `json:"status"`
	// Seq is a monotonic insertion counter; waitlist promotion orders by
	// (created_at, seq) so same-timestamp inserts keep arrival order.
	Seq         int64      `json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}
