package models

import (
	"time"

	"github.com/google/uuid"
)

// LifeGroup is a small group led by a LEADER within a local church.
type LifeGroup struct {
	ID            uuid.UUID  `json:"id"`
	ChurchID      uuid.UUID  `json:"church_id"`
	LocalChurchID uuid.UUID  `json:"local_church_id"`
	LeaderID      uuid.UUID  `json:"leader_id"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// LifeGroupMemberStatus is the membership request state.
type LifeGroupMemberStatus string

const (
	LifeGroupRequested LifeGroupMemberStatus = "REQUESTED"
	LifeGroupApproved  LifeGroupMemberStatus = "APPROVED"
	LifeGroupLeft      LifeGroupMemberStatus = "LEFT"
)

// LifeGroupMember links a user to a life group.
type LifeGroupMember struct {
	ID          uuid.UUID             `json:"id"`
	LifeGroupID uuid.UUID             `json:"life_group_id"`
	UserID      uuid.UUID             `json:"user_id"`
	Status      LifeGroupMemberStatus `json:"status"`
	RequestedAt time.Time             `json:"requested_at"`
	ApprovedAt  *time.Time            `json:"approved_at,omitempty"`
}
