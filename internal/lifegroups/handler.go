package lifegroups

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/gracehub/backend/internal/authz"
	"github.com/gracehub/backend/internal/middleware"
	"github.com/gracehub/backend/internal/models"
	"github.com/gracehub/backend/pkg/apperr"
	"github.com/gracehub/backend/pkg/response"
)

// CreateRequest is the body for POST /lifegroups.
type CreateRequest struct {
	Name          string `json:"name" binding:"required"`
	Description   string `json:"description"`
	LocalChurchID string `json:"local_church_id" binding:"required,uuid"`
	LeaderID      string `json:"leader_id" binding:"required,uuid"`
}

// Handler handles life group HTTP endpoints.
type Handler struct {
	repo *Repository
}

// NewHandler creates a life groups handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// Create handles POST /lifegroups (admin and above).
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
	localChurchID, _ := uuid.Parse(req.LocalChurchID)
	leaderID, _ := uuid.Parse(req.LeaderID)

	g := &models.LifeGroup{
		ChurchID:      *actor.TenantID,
		LocalChurchID: localChurchID,
		LeaderID:      leaderID,
		Name:          req.Name,
		Description:   req.Description,
	}
	if err := h.repo.Create(c.Request.Context(), g); err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, g)
}

// List handles GET /lifegroups within the caller's tenant.
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

// Request handles POST /lifegroups/:id/request.
func (h *Handler) Request(c *gin.Context) {
	actor := middleware.Actor(c)
	g, err := h.loadReachable(c, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	m, err := h.repo.Request(c.Request.Context(), g.ID, actor.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, m)
}

// Approve handles POST /lifegroups/:id/approve. Allowed for the group's
// leader or tenant admins.
func (h *Handler) Approve(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"required,uuid"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	actor := middleware.Actor(c)
	g, err := h.loadReachable(c, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.canManageGroup(actor, g); err != nil {
		response.Error(c, err)
		return
	}
	userID, _ := uuid.Parse(req.UserID)
	if err := h.repo.Approve(c.Request.Context(), g.ID, userID); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"approved": true})
}

// Leave handles POST /lifegroups/:id/leave.
func (h *Handler) Leave(c *gin.Context) {
	actor := middleware.Actor(c)
	g, err := h.loadReachable(c, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.repo.Leave(c.Request.Context(), g.ID, actor.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"left": true})
}

// Members handles GET /lifegroups/:id/members. Allowed for the group's
// leader or tenant admins.
func (h *Handler) Members(c *gin.Context) {
	actor := middleware.Actor(c)
	g, err := h.loadReachable(c, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.canManageGroup(actor, g); err != nil {
		response.Error(c, err)
		return
	}
	members, err := h.repo.Members(c.Request.Context(), g.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, members)
}

// canManageGroup allows the assigned leader regardless of rank threshold,
// otherwise requires admin within the group's tenant.
func (h *Handler) canManageGroup(actor authz.Actor, g *models.LifeGroup) error {
	if actor.UserID == g.LeaderID {
		return nil
	}
	return authz.CanManageEntity(actor, g.ChurchID, authz.RoleAdmin)
}

func (h *Handler) loadReachable(c *gin.Context, actor authz.Actor) (*models.LifeGroup, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, apperr.E(apperr.KindInvalid, "invalid life group id")
	}
	g, err := h.repo.Get(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	if g == nil || (!actor.IsSuperAdmin() && !actor.SameTenant(g.ChurchID)) {
		return nil, apperr.E(apperr.KindNotFoundOrForbidden, "life group not found or access denied")
	}
	return g, nil
}
