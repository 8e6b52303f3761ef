package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/gracehub/backend/internal/authz"
	"github.com/gracehub/backend/internal/idempotency"
	"github.com/gracehub/backend/internal/middleware"
	"github.com/gracehub/backend/internal/models"
	"github.com/gracehub/backend/pkg/apperr"
	"github.com/gracehub/backend/pkg/response"
)

// HeaderClientRequestKey carries the client-chosen idempotency key on
// mutating mobile requests.
const HeaderClientRequestKey = "X-Client-Request-Key"

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// CreateRequest is the body for POST /events.
type CreateRequest struct {
	Title          string   `json:"title" binding:"required"`
	Description    string   `json:"description"`
	Location       string   `json:"location"`
	Scope          string   `json:"scope" binding:"required,oneof=WHOLE_CHURCH LOCAL_CHURCH"`
	LocalChurchID  *string  `json:"local_church_id"`
	ChurchID       *string  `json:"church_id"` // super admin only; others are pinned to their tenant
	StartsAt       string   `json:"starts_at" binding:"required"`
	EndsAt         *string  `json:"ends_at"`
	Capacity       int      `json:"capacity" binding:"min=0"`
	VisibleToRoles []string `json:"visible_to_roles"`
	IsActive       *bool    `json:"is_active"`
}

// UpdateRequest is the body for PUT /events/:id. Nil fields are unchanged.
type UpdateRequest struct {
	Title          *string  `json:"title"`
	Description    *string  `json:"description"`
	Location       *string  `json:"location"`
	StartsAt       *string  `json:"starts_at"`
	EndsAt         *string  `json:"ends_at"`
	Capacity       *int     `json:"capacity"`
	VisibleToRoles []string `json:"visible_to_roles"`
	IsActive       *bool    `json:"is_active"`
}

// Handler handles event HTTP endpoints.
type Handler struct {
	repo   *Repository
	engine *Engine
	ledger *idempotency.Ledger
}

// NewHandler creates an events handler.
func NewHandler(repo *Repository, engine *Engine, ledger *idempotency.Ledger) *Handler {
	return &Handler{repo: repo, engine: engine, ledger: ledger}
}

func parseRoles(names []string) ([]authz.Role, error) {
	roles := make([]authz.Role, 0, len(names))
	for _, n := range names {
		r, ok := authz.ParseRole(n)
		if !ok {
			return nil, apperr.Ef(apperr.KindInvalid, "unknown role %q", n)
		}
		roles = append(roles, r)
	}
	return roles, nil
}

// Create handles POST /events (admin and above).
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	actor := middleware.Actor(c)

	churchID, err := resolveTenant(actor, req.ChurchID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := authz.CanManageEntity(actor, churchID, authz.RoleAdmin); err != nil {
		response.Error(c, err)
		return
	}

	startsAt, err := parseTime(req.StartsAt)
	if err != nil {
		response.BadRequest(c, "invalid starts_at")
		return
	}
	var endsAt *time.Time
	if req.EndsAt != nil {
		t, err := parseTime(*req.EndsAt)
		if err != nil {
			response.BadRequest(c, "invalid ends_at")
			return
		}
		endsAt = &t
	}
	roles, err := parseRoles(req.VisibleToRoles)
	if err != nil {
		response.BadRequest(c, err.Error())
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
	scope := models.EventScope(req.Scope)
	if scope == models.ScopeLocalChurch && localChurchID == nil {
		response.BadRequest(c, "local_church_id is required for LOCAL_CHURCH scope")
		return
	}

	ev := &models.Event{
		ChurchID:       churchID,
		LocalChurchID:  localChurchID,
		Scope:          scope,
		Title:          req.Title,
		Description:    req.Description,
		Location:       req.Location,
		StartsAt:       startsAt,
		EndsAt:         endsAt,
		Capacity:       req.Capacity,
		VisibleToRoles: roles,
		IsActive:       true,
		CreatedBy:      actor.UserID,
	}
	if req.IsActive != nil {
		ev.IsActive = *req.IsActive
	}
	if err := h.repo.Create(c.Request.Context(), ev); err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, ev)
}

// List handles GET /events: events visible to the caller within their tenant.
func (h *Handler) List(c *gin.Context) {
	actor := middleware.Actor(c)
	scope, err := authz.TenantScope(actor, queryTenant(c), "church_id")
	if err != nil {
		response.Error(c, err)
		return
	}
	items, err := h.repo.ListVisible(c.Request.Context(), actor, scope)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}

// Get handles GET /events/:id with attendance counts and the caller's
// own reservation, if any.
func (h *Handler) Get(c *gin.Context) {
	actor := middleware.Actor(c)
	ev, err := h.loadReachable(c, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	going, waitlisted, err := h.repo.Counts(c.Request.Context(), ev.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	mine, err := h.repo.MyReservation(c.Request.Context(), ev.ID, actor.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{
		"event":          ev,
		"going":          going,
		"waitlisted":     waitlisted,
		"my_reservation": mine,
	})
}

// Update handles PUT /events/:id (admin and above, same tenant).
func (h *Handler) Update(c *gin.Context) {
	actor := middleware.Actor(c)
	ev, err := h.loadReachable(c, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := authz.CanManageEntity(actor, ev.ChurchID, authz.RoleAdmin); err != nil {
		response.Error(c, err)
		return
	}

	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.Title != nil {
		ev.Title = *req.Title
	}
	if req.Description != nil {
		ev.Description = *req.Description
	}
	if req.Location != nil {
		ev.Location = *req.Location
	}
	if req.StartsAt != nil {
		t, err := parseTime(*req.StartsAt)
		if err != nil {
			response.BadRequest(c, "invalid starts_at")
			return
		}
		ev.StartsAt = t
	}
	if req.EndsAt != nil {
		t, err := parseTime(*req.EndsAt)
		if err != nil {
			response.BadRequest(c, "invalid ends_at")
			return
		}
		ev.EndsAt = &t
	}
	if req.Capacity != nil {
		if *req.Capacity < 0 {
			response.BadRequest(c, "capacity must be non-negative")
			return
		}
		ev.Capacity = *req.Capacity
	}
	if req.VisibleToRoles != nil {
		roles, err := parseRoles(req.VisibleToRoles)
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		ev.VisibleToRoles = roles
	}
	if req.IsActive != nil {
		ev.IsActive = *req.IsActive
	}
	if err := h.repo.Update(c.Request.Context(), ev); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, ev)
}

// RSVP handles POST /events/:id/rsvp. When the client supplies an
// X-Client-Request-Key header the call runs through the idempotency
// ledger so retries replay the recorded outcome.
func (h *Handler) RSVP(c *gin.Context) {
	actor := middleware.Actor(c)
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}

	key := c.GetHeader(HeaderClientRequestKey)
	if key == "" {
		res, err := h.engine.RSVP(c.Request.Context(), actor, eventID)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Created(c, res)
		return
	}

	endpoint := "POST /events/" + eventID.String() + "/rsvp"
	snapshot, replayed, err := h.ledger.Execute(c.Request.Context(), actor.UserID, endpoint, key,
		func(ctx context.Context) ([]byte, error) {
			res, err := h.engine.RSVP(ctx, actor, eventID)
			if err != nil {
				return nil, err
			}
			return json.Marshal(res)
		})
	if err != nil {
		response.Error(c, err)
		return
	}
	var res models.Reservation
	if err := json.Unmarshal(snapshot, &res); err != nil {
		response.Internal(c, "failed to decode reservation")
		return
	}
	if replayed {
		response.OK(c, res)
		return
	}
	response.Created(c, res)
}

// CancelRSVP handles DELETE /events/:id/rsvp.
func (h *Handler) CancelRSVP(c *gin.Context) {
	actor := middleware.Actor(c)
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	res, err := h.engine.Cancel(c.Request.Context(), actor, eventID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}

// Roster handles GET /events/:id/roster (leader and above, same tenant).
func (h *Handler) Roster(c *gin.Context) {
	actor := middleware.Actor(c)
	ev, err := h.loadReachable(c, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := authz.CanManageEntity(actor, ev.ChurchID, authz.RoleLeader); err != nil {
		response.Error(c, err)
		return
	}
	roster, err := h.repo.Roster(c.Request.Context(), ev.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, roster)
}

// loadReachable fetches the event from the path parameter and applies
// tenant isolation. Cross-tenant and unknown ids are indistinguishable
// to the caller.
func (h *Handler) loadReachable(c *gin.Context, actor authz.Actor) (*models.Event, error) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, apperr.E(apperr.KindInvalid, "invalid event id")
	}
	ev, err := h.repo.GetEvent(c.Request.Context(), eventID)
	if err != nil {
		return nil, err
	}
	if err := tenantReachable(actor, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// resolveTenant pins non-super-admin actors to their own tenant. A super
// admin must name the tenant explicitly.
func resolveTenant(actor authz.Actor, explicit *string) (uuid.UUID, error) {
	if explicit != nil {
		id, err := uuid.Parse(*explicit)
		if err != nil {
			return uuid.Nil, apperr.E(apperr.KindInvalid, "invalid church_id")
		}
		if !actor.IsSuperAdmin() && !actor.SameTenant(id) {
			return uuid.Nil, apperr.E(apperr.KindNotFoundOrForbidden, "not found or access denied")
		}
		return id, nil
	}
	if actor.TenantID == nil {
		return uuid.Nil, apperr.E(apperr.KindInvalid, "church_id is required")
	}
	return *actor.TenantID, nil
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
