package models

import (
	"time"

	"github.com/google/uuid"
)

// Church is the tenant: the top-level boundary all data and actors are
// partitioned by.
type Church struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LocalChurch is a scoping unit nested under a church, used by services,
// events and life groups.
type LocalChurch struct {
	ID        uuid.UUID `json:"id"`
	ChurchID  uuid.UUID `json:"church_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
