package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/gracehub/backend/internal/authz"
)

// User represents a member account. Every user except super admins belongs
// to exactly one church (the tenant) and optionally one local church within
// it.
type User struct {
	ID            uuid.UUID    `json:"id"`
	Email         string       `json:"email"`
	Password      string       `json:"-"`
	FullName      string       `json:"full_name"`
	Roles         []authz.Role `json:"roles"`
	ChurchID      *uuid.UUID   `json:"church_id,omitempty"`
	LocalChurchID *uuid.UUID   `json:"local_church_id,omitempty"`
	IsNewBeliever bool         `json:"is_new_believer"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// UserPublic is User without sensitive fields for API responses.
type UserPublic struct {
	ID            uuid.UUID    `json:"id"`
	Email         string       `json:"email"`
	FullName      string       `json:"full_name"`
	Roles         []authz.Role `json:"roles"`
	ChurchID      *uuid.UUID   `json:"church_id,omitempty"`
	LocalChurchID *uuid.UUID   `json:"local_church_id,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// ToPublic converts User to UserPublic.
func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:            u.ID,
		Email:         u.Email,
		FullName:      u.FullName,
		Roles:         u.Roles,
		ChurchID:      u.ChurchID,
		LocalChurchID: u.LocalChurchID,
		CreatedAt:     u.CreatedAt,
	}
}

// Actor derives the authorization-layer view of the user.
func (u *User) Actor() authz.Actor {
	return authz.Actor{
		UserID:        u.ID,
		TenantID:      u.ChurchID,
		LocalChurchID: u.LocalChurchID,
		Roles:         u.Roles,
	}
}
