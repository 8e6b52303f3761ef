package models

import (
	"time"

	"github.com/google/uuid"
)

// Service is a scheduled gathering (e.g. a Sunday service) members check
// in to. Services always belong to one local church.
type Service struct {
	ID            uuid.UUID `json:"id"`
	ChurchID      uuid.UUID `json:"church_id"`
	LocalChurchID uuid.UUID `json:"local_church_id"`
	Title         string    `json:"title"`
	StartsAt      time.Time `json:"starts_at"`
	EndsAt        *time.Time `json:"ends_at,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Checkin records a member's attendance at a service. One check-in per
// (service, user), enforced by a unique constraint.
type Checkin struct {
	ID            uuid.UUID `json:"id"`
	ServiceID     uuid.UUID `json:"service_id"`
	UserID        uuid.UUID `json:"user_id"`
	IsNewBeliever bool      `json:"is_new_believer"`
	CheckedInAt   time.Time `json:"checked_in_at"`
}
