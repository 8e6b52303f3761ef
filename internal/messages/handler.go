package messages

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/gracehub/backend/internal/authz"
	"github.com/gracehub/backend/internal/middleware"
	"github.com/gracehub/backend/internal/models"
	"github.com/gracehub/backend/pkg/apperr"
	"github.com/gracehub/backend/pkg/queue"
	"github.com/gracehub/backend/pkg/response"
	"github.com/gracehub/backend/pkg/storage"
)

// CreateRequest is the body for POST /announcements.
type CreateRequest struct {
	Title         string  `json:"title" binding:"required"`
	Body          string  `json:"body" binding:"required"`
	LocalChurchID *string `json:"local_church_id"`
}

// AttachmentRequest is the body for POST /announcements/:id/attachment.
type AttachmentRequest struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"content_type" binding:"required"`
}

// Handler handles announcement HTTP endpoints.
type Handler struct {
	repo  *Repository
	queue *queue.Queue
	s3    *storage.S3
}

// NewHandler creates an announcements handler. s3 may be nil; attachment
// endpoints then report service unavailable.
func NewHandler(repo *Repository, q *queue.Queue, s3 *storage.S3) *Handler {
	return &Handler{repo: repo, queue: q, s3: s3}
}

// Create handles POST /announcements (leader and above).
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	actor := middleware.Actor(c)
	if actor.TenantID == nil {
		response.BadRequest(c, "a church context is required")
		return
	}
	if err := authz.CanManageEntity(actor, *actor.TenantID, authz.RoleLeader); err != nil {
		response.Error(c, err)
		return
	}
	var localChurchID *uuid.UUID
	if req.LocalChurchID != nil {
		id, err := uuid.Parse(*req.LocalChurchID)
		if err != nil {
			response.BadRequest(c, "invalid local_church_id")
			return
		}
		localChurchID = &id
	}
	a := &models.Announcement{
		ChurchID:      *actor.TenantID,
		LocalChurchID: localChurchID,
		AuthorID:      actor.UserID,
		Title:         req.Title,
		Body:          req.Body,
	}
	if err := h.repo.Create(c.Request.Context(), a); err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, a)
}

// List handles GET /announcements. Leaders and above also see drafts.
func (h *Handler) List(c *gin.Context) {
	actor := middleware.Actor(c)
	scope, err := authz.TenantScope(actor, nil, "church_id")
	if err != nil {
		response.Error(c, err)
		return
	}
	includeUnsent := actor.HasMinRole(authz.RoleLeader)
	items, err := h.repo.List(c.Request.Context(), scope, includeUnsent)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}

// Send handles POST /announcements/:id/send: queues the announcement for
// delivery. Sending twice is a no-op conflict.
func (h *Handler) Send(c *gin.Context) {
	actor := middleware.Actor(c)
	a, err := h.loadReachable(c, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := authz.CanManageEntity(actor, a.ChurchID, authz.RoleLeader); err != nil {
		response.Error(c, err)
		return
	}
	queued, err := h.repo.MarkQueued(c.Request.Context(), a.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !queued {
		response.Conflict(c, "announcement has already been sent or queued")
		return
	}
	err = h.queue.EnqueueAnnouncement(c.Request.Context(), queue.AnnouncementPayload{
		AnnouncementID: a.ID,
		ChurchID:       a.ChurchID,
		LocalChurchID:  a.LocalChurchID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"queued": true})
}

// AttachmentUploadURL handles POST /announcements/:id/attachment: returns
// a pre-signed PUT URL the client uploads the file to directly.
func (h *Handler) AttachmentUploadURL(c *gin.Context) {
	if h.s3 == nil {
		response.ServiceUnavailable(c, "attachment storage is not configured")
		return
	}
	var req AttachmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	actor := middleware.Actor(c)
	a, err := h.loadReachable(c, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := authz.CanManageEntity(actor, a.ChurchID, authz.RoleLeader); err != nil {
		response.Error(c, err)
		return
	}
	if !storage.ValidAttachmentType(req.ContentType, req.Filename) {
		response.BadRequest(c, "unsupported attachment type")
		return
	}
	key := storage.AttachmentKey(a.ChurchID.String(), a.ID.String(), req.Filename)
	url, err := h.s3.PresignUpload(c.Request.Context(), key, req.ContentType)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.repo.SetAttachment(c.Request.Context(), a.ID, key); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"upload_url": url, "attachment_key": key})
}

// AttachmentDownloadURL handles GET /announcements/:id/attachment.
func (h *Handler) AttachmentDownloadURL(c *gin.Context) {
	if h.s3 == nil {
		response.ServiceUnavailable(c, "attachment storage is not configured")
		return
	}
	actor := middleware.Actor(c)
	a, err := h.loadReachable(c, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	if a.AttachmentKey == nil {
		response.NotFound(c, "announcement has no attachment")
		return
	}
	url, err := h.s3.PresignDownload(c.Request.Context(), *a.AttachmentKey)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"download_url": url})
}

func (h *Handler) loadReachable(c *gin.Context, actor authz.Actor) (*models.Announcement, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, apperr.E(apperr.KindInvalid, "invalid announcement id")
	}
	a, err := h.repo.Get(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	if a == nil || (!actor.IsSuperAdmin() && !actor.SameTenant(a.ChurchID)) {
		return nil, apperr.E(apperr.KindNotFoundOrForbidden, "announcement not found or access denied")
	}
	return a, nil
}
