package models

import (
	"time"

	"github.com/google/uuid"
)

// Pathway is a discipleship track with ordered steps.
type Pathway struct {
	ID          uuid.UUID `json:"id"`
	ChurchID    uuid.UUID `json:"church_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PathwayStep is one step in a pathway, ordered by OrderIndex.
type PathwayStep struct {
	ID         uuid.UUID `json:"id"`
	PathwayID  uuid.UUID `json:"pathway_id"`
	Name       string    `json:"name"`
	OrderIndex int       `json:"order_index"`
	CreatedAt  time.Time `json:"created_at"`
}

// EnrollmentStatus is the pathway enrollment state.
type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "ENROLLED"
	EnrollmentCompleted EnrollmentStatus = "COMPLETED"
)

// PathwayEnrollment tracks a user's progress through a pathway.
type PathwayEnrollment struct {
	ID          uuid.UUID        `json:"id"`
	PathwayID   uuid.UUID        `json:"pathway_id"`
	UserID      uuid.UUID        `json:"user_id"`
	Status      EnrollmentStatus `json:"status"`
	EnrolledAt  time.Time        `json:"enrolled_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// StepProgress marks one completed step of an enrollment.
type StepProgress struct {
	EnrollmentID uuid.UUID `json:"enrollment_id"`
	StepID       uuid.UUID `json:"step_id"`
	CompletedAt  time.Time `json:"completed_at"`
	CompletedBy  uuid.UUID `json:"completed_by"`
}
