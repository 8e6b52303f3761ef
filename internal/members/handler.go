package members

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/gracehub/backend/internal/authz"
	"github.com/gracehub/backend/internal/middleware"
	"github.com/gracehub/backend/internal/models"
	"github.com/gracehub/backend/pkg/apperr"
	"github.com/gracehub/backend/pkg/response"
)

// UpdateRolesRequest is the body for PUT /members/:id/roles.
type UpdateRolesRequest struct {
	Roles []string `json:"roles" binding:"required,min=1"`
}

// UpdateProfileRequest is the body for PUT /me.
type UpdateProfileRequest struct {
	FullName      string  `json:"full_name" binding:"required"`
	LocalChurchID *string `json:"local_church_id"`
}

// Handler handles member directory HTTP endpoints.
type Handler struct {
	repo *Repository
}

// NewHandler creates a members handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// List handles GET /members (leader and above). Results are always
// constrained to the caller's tenant unless the caller is a super admin.
func (h *Handler) List(c *gin.Context) {
	actor := middleware.Actor(c)
	scope, err := authz.TenantScope(actor, queryTenant(c), "church_id")
	if err != nil {
		response.Error(c, err)
		return
	}

	f := ListFilter{Search: c.Query("search"), Limit: 50}
	if s := c.Query("local_church_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			response.BadRequest(c, "invalid local_church_id")
			return
		}
		f.LocalChurchID = &id
	}
	if s := c.Query("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 200 {
			f.Limit = n
		}
	}
	if s := c.Query("offset"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			f.Offset = n
		}
	}

	users, err := h.repo.List(c.Request.Context(), scope, f)
	if err != nil {
		response.Error(c, err)
		return
	}
	out := make([]models.UserPublic, len(users))
	for i := range users {
		out[i] = users[i].ToPublic()
	}
	response.OK(c, out)
}

// FirstTimers handles GET /firsttimers, the VIP team's follow-up list of
// new believers in the caller's tenant, newest first. The route is gated
// by role-set membership rather than rank, so it stays with the people
// actually doing the follow-up.
func (h *Handler) FirstTimers(c *gin.Context) {
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
	limit := 50
	if s := c.Query("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	users, err := h.repo.ListFirstTimers(c.Request.Context(), scope, localChurchID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	out := make([]models.UserPublic, len(users))
	for i := range users {
		out[i] = users[i].ToPublic()
	}
	response.OK(c, out)
}

// Get handles GET /members/:id.
func (h *Handler) Get(c *gin.Context) {
	actor := middleware.Actor(c)
	target, err := h.loadReachable(c, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, target.ToPublic())
}

// Me handles GET /me.
func (h *Handler) Me(c *gin.Context) {
	actor := middleware.Actor(c)
	u, err := h.repo.Get(c.Request.Context(), actor.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if u == nil {
		response.NotFound(c, "account not found")
		return
	}
	response.OK(c, u.ToPublic())
}

// UpdateMe handles PUT /me.
func (h *Handler) UpdateMe(c *gin.Context) {
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	actor := middleware.Actor(c)
	var localChurchID *uuid.UUID
	if req.LocalChurchID != nil {
		id, err := uuid.Parse(*req.LocalChurchID)
		if err != nil {
			response.BadRequest(c, "invalid local_church_id")
			return
		}
		localChurchID = &id
	}
	if err := h.repo.UpdateProfile(c.Request.Context(), actor.UserID, req.FullName, localChurchID); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"updated": true})
}

// UpdateRoles handles PUT /members/:id/roles (admin and above). A caller
// may only grant roles at or below their own rank, and may not change the
// roles of a member who outranks them.
func (h *Handler) UpdateRoles(c *gin.Context) {
	var req UpdateRolesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	actor := middleware.Actor(c)
	target, err := h.loadReachable(c, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	if target.ChurchID != nil {
		if err := authz.CanManageEntity(actor, *target.ChurchID, authz.RoleAdmin); err != nil {
			response.Error(c, err)
			return
		}
	} else if !actor.IsSuperAdmin() {
		response.Error(c, apperr.E(apperr.KindNotFoundOrForbidden, "member not found or access denied"))
		return
	}

	targetActor := target.Actor()
	if targetActor.MaxRank() > actor.MaxRank() {
		response.Error(c, apperr.E(apperr.KindForbidden, "cannot change roles of a member who outranks you"))
		return
	}

	roles := make([]authz.Role, 0, len(req.Roles))
	for _, name := range req.Roles {
		role, ok := authz.ParseRole(name)
		if !ok {
			response.BadRequest(c, "unknown role "+name)
			return
		}
		if role.Rank() > actor.MaxRank() || (role == authz.RoleSuperAdmin && !actor.IsSuperAdmin()) {
			response.Error(c, apperr.Ef(apperr.KindForbidden, "cannot grant role %s", role))
			return
		}
		roles = append(roles, role)
	}

	if err := h.repo.UpdateRoles(c.Request.Context(), target.ID, roles); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"updated": true})
}

// loadReachable fetches the member from the path parameter and applies
// tenant isolation.
func (h *Handler) loadReachable(c *gin.Context, actor authz.Actor) (*models.User, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, apperr.E(apperr.KindInvalid, "invalid member id")
	}
	u, err := h.repo.Get(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	if u == nil || (!actor.IsSuperAdmin() && (u.ChurchID == nil || !actor.SameTenant(*u.ChurchID))) {
		return nil, apperr.E(apperr.KindNotFoundOrForbidden, "member not found or access denied")
	}
	return u, nil
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
