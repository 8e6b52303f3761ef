package pathways

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/gracehub/backend/internal/authz"
	"github.com/gracehub/backend/internal/middleware"
	"github.com/gracehub/backend/internal/models"
	"github.com/gracehub/backend/pkg/apperr"
	"github.com/gracehub/backend/pkg/response"
)

// CreateRequest is the body for POST /pathways.
type CreateRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// AddStepRequest is the body for POST /pathways/:id/steps.
type AddStepRequest struct {
	Name       string `json:"name" binding:"required"`
	OrderIndex int    `json:"order_index" binding:"min=0"`
}

// CompleteStepRequest is the body for POST /pathways/:id/steps/:stepID/complete.
// UserID lets a leader mark a step done on behalf of a member; when empty
// the caller completes their own step.
type CompleteStepRequest struct {
	UserID *string `json:"user_id"`
}

// Handler handles pathway HTTP endpoints.
type Handler struct {
	repo *Repository
}

// NewHandler creates a pathways handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// Create handles POST /pathways (admin and above).
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
	p := &models.Pathway{
		ChurchID:    *actor.TenantID,
		Name:        req.Name,
		Description: req.Description,
	}
	if err := h.repo.Create(c.Request.Context(), p); err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, p)
}

// List handles GET /pathways within the caller's tenant.
func (h *Handler) List(c *gin.Context) {
	actor := middleware.Actor(c)
	scope, err := authz.TenantScope(actor, nil, "church_id")
	if err != nil {
		response.Error(c, err)
		return
	}
	items, err := h.repo.List(c.Request.Context(), scope)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}

// Get handles GET /pathways/:id with steps and the caller's enrollment.
func (h *Handler) Get(c *gin.Context) {
	actor := middleware.Actor(c)
	p, err := h.loadReachable(c, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	steps, err := h.repo.Steps(c.Request.Context(), p.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	enrollment, err := h.repo.Enrollment(c.Request.Context(), p.ID, actor.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	var progress []models.StepProgress
	if enrollment != nil {
		progress, err = h.repo.Progress(c.Request.Context(), enrollment.ID)
		if err != nil {
			response.Error(c, err)
			return
		}
	}
	response.OK(c, gin.H{
		"pathway":    p,
		"steps":      steps,
		"enrollment": enrollment,
		"progress":   progress,
	})
}

// AddStep handles POST /pathways/:id/steps (admin and above).
func (h *Handler) AddStep(c *gin.Context) {
	var req AddStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	actor := middleware.Actor(c)
	p, err := h.loadReachable(c, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := authz.CanManageEntity(actor, p.ChurchID, authz.RoleAdmin); err != nil {
		response.Error(c, err)
		return
	}
	s := &models.PathwayStep{
		PathwayID:  p.ID,
		Name:       req.Name,
		OrderIndex: req.OrderIndex,
	}
	if err := h.repo.AddStep(c.Request.Context(), s); err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, s)
}

// Enroll handles POST /pathways/:id/enroll.
func (h *Handler) Enroll(c *gin.Context) {
	actor := middleware.Actor(c)
	p, err := h.loadReachable(c, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	e, err := h.repo.Enroll(c.Request.Context(), p.ID, actor.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, e)
}

// CompleteStep handles POST /pathways/:id/steps/:stepID/complete.
// Completing a step for another member requires leader or above.
func (h *Handler) CompleteStep(c *gin.Context) {
	var req CompleteStepRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	actor := middleware.Actor(c)
	p, err := h.loadReachable(c, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	stepID, err := uuid.Parse(c.Param("stepID"))
	if err != nil {
		response.BadRequest(c, "invalid step id")
		return
	}

	subject := actor.UserID
	if req.UserID != nil {
		id, err := uuid.Parse(*req.UserID)
		if err != nil {
			response.BadRequest(c, "invalid user_id")
			return
		}
		if id != actor.UserID {
			if err := authz.CanManageEntity(actor, p.ChurchID, authz.RoleLeader); err != nil {
				response.Error(c, err)
				return
			}
		}
		subject = id
	}

	enrollment, err := h.repo.Enrollment(c.Request.Context(), p.ID, subject)
	if err != nil {
		response.Error(c, err)
		return
	}
	if enrollment == nil {
		response.Error(c, apperr.E(apperr.KindNotFound, "not enrolled in this pathway"))
		return
	}
	completed, err := h.repo.CompleteStep(c.Request.Context(), enrollment, stepID, actor.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"pathway_completed": completed})
}

func (h *Handler) loadReachable(c *gin.Context, actor authz.Actor) (*models.Pathway, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, apperr.E(apperr.KindInvalid, "invalid pathway id")
	}
	p, err := h.repo.Get(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	if p == nil || (!actor.IsSuperAdmin() && !actor.SameTenant(p.ChurchID)) {
		return nil, apperr.E(apperr.KindNotFoundOrForbidden, "pathway not found or access denied")
	}
	return p, nil
}
