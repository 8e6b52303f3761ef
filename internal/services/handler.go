package services

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/gracehub/backend/internal/authz"
	"github.com/gracehub/backend/internal/middleware"
	"github.com/gracehub/backend/internal/models"
	"github.com/gracehub/backend/pkg/apperr"
	"github.com/gracehub/backend/pkg/response"
)

// CreateRequest is the body for POST /services.
type CreateRequest struct {
	Title         string  `json:"title" binding:"required"`
	LocalChurchID string  `json:"local_church_id" binding:"required,uuid"`
	StartsAt      string  `json:"starts_at" binding:"required"`
	EndsAt        *string `json:"ends_at"`
}

// Handler handles service HTTP endpoints.
type Handler struct {
	repo *Repository
}

// NewHandler creates a services handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// Create handles POST /services (admin and above).
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
	if err := authz.CanManageEntity(actor, *actor.TenantID, authz.RoleAdmin); err != nil {
		response.Error(c, err)
		return
	}

	startsAt, err := time.Parse(time.RFC3339, req.StartsAt)
	if err != nil {
		response.BadRequest(c, "invalid starts_at")
		return
	}
	var endsAt *time.Time
	if req.EndsAt != nil {
		t, err := time.Parse(time.RFC3339, *req.EndsAt)
		if err != nil {
			response.BadRequest(c, "invalid ends_at")
			return
		}
		endsAt = &t
	}
	localChurchID, _ := uuid.Parse(req.LocalChurchID)

	s := &models.Service{
		ChurchID:      *actor.TenantID,
		LocalChurchID: localChurchID,
		Title:         req.Title,
		StartsAt:      startsAt,
		EndsAt:        endsAt,
	}
	if err := h.repo.Create(c.Request.Context(), s); err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, s)
}

// List handles GET /services within the caller's tenant.
func (h *Handler) List(c *gin.Context) {
	actor := middleware.Actor(c)
	scope, err := authz.TenantScope(actor, queryTenant(c), "church_id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var localChurchID *uuid.UUID
	if s := c.Query("local_church_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			response.BadRequest(c, "invalid local_church_id")
			return
		}
		localChurchID = &id
	}
	items, err := h.repo.List(c.Request.Context(), scope, localChurchID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}

// Get handles GET /services/:id with attendance stats.
func (h *Handler) Get(c *gin.Context) {
	actor := middleware.Actor(c)
	svc, err := h.loadReachable(c, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	stats, err := h.repo.Stats(c.Request.Context(), svc.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"service": svc, "attendance": stats})
}

// loadReachable fetches the service from the path parameter and applies
// tenant isolation.
func (h *Handler) loadReachable(c *gin.Context, actor authz.Actor) (*models.Service, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, apperr.E(apperr.KindInvalid, "invalid service id")
	}
	svc, err := h.repo.Get(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	if svc == nil || (!actor.IsSuperAdmin() && !actor.SameTenant(svc.ChurchID)) {
		return nil, apperr.E(apperr.KindNotFoundOrForbidden, "service not found or access denied")
	}
	return svc, nil
}

func queryTenant(c *gin.Context) *uuid.UUID {
	s := c.Query("church_id")
	if s == "" {
		return nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}
