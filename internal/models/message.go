package models

import (
	"time"

	"github.com/google/uuid"
)

// AnnouncementStatus is the delivery state of an announcement.
type AnnouncementStatus string

const (
	AnnouncementDraft  AnnouncementStatus = "DRAFT"
	AnnouncementQueued AnnouncementStatus = "QUEUED"
	AnnouncementSent   AnnouncementStatus = "SENT"
)

// Announcement is a message from church staff to members. Delivery fan-out
// runs through the job queue; the transport itself is an external
// collaborator.
type Announcement struct {
	ID            uuid.UUID          `json:"id"`
	ChurchID      uuid.UUID          `json:"church_id"`
	LocalChurchID *uuid.UUID         `json:"local_church_id,omitempty"`
	AuthorID      uuid.UUID          `json:"author_id"`
	Title         string             `json:"title"`
	Body          string             `json:"body"`
	AttachmentKey *string            `json:"attachment_key,omitempty"`
	Status        AnnouncementStatus `json:"status"`
	SentAt        *time.Time         `json:"sent_at,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}
