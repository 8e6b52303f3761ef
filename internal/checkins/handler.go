package checkins

import (
	"context"
	"encoding/json"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/gracehub/backend/internal/authz"
	"github.com/gracehub/backend/internal/idempotency"
	"github.com/gracehub/backend/internal/middleware"
	"github.com/gracehub/backend/internal/models"
	"github.com/gracehub/backend/internal/realtime"
	"github.com/gracehub/backend/internal/services"
	"github.com/gracehub/backend/pkg/apperr"
	"github.com/gracehub/backend/pkg/response"
)

// HeaderClientRequestKey carries the client-chosen idempotency key on
// mutating mobile requests.
const HeaderClientRequestKey = "X-Client-Request-Key"

// CheckinRequest is the body for POST /services/:id/checkin.
type CheckinRequest struct {
	IsNewBeliever bool `json:"is_new_believer"`
}

// Handler handles check-in HTTP endpoints.
type Handler struct {
	repo     *Repository
	services *services.Repository
	ledger   *idempotency.Ledger
	hub      *realtime.Hub
}

// NewHandler creates a check-ins handler. hub may be nil; attendance
// updates are then not pushed to websocket subscribers.
func NewHandler(repo *Repository, svcRepo *services.Repository, ledger *idempotency.Ledger, hub *realtime.Hub) *Handler {
	return &Handler{repo: repo, services: svcRepo, ledger: ledger, hub: hub}
}

// Checkin handles POST /services/:id/checkin. Mobile clients send an
// X-Client-Request-Key header; retries of the same key replay the
// recorded check-in instead of conflicting on the unique constraint.
func (h *Handler) Checkin(c *gin.Context) {
	var req CheckinRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	actor := middleware.Actor(c)
	svc, err := h.loadReachable(c, actor)
	if err != nil {
		response.Error(c, err)
		return
	}

	run := func(ctx context.Context) ([]byte, error) {
		ci := &models.Checkin{
			ServiceID:     svc.ID,
			UserID:        actor.UserID,
			IsNewBeliever: req.IsNewBeliever,
		}
		if err := h.repo.Create(ctx, ci); err != nil {
			return nil, err
		}
		return json.Marshal(ci)
	}

	var snapshot []byte
	replayed := false
	if key := c.GetHeader(HeaderClientRequestKey); key != "" {
		endpoint := "POST /services/" + svc.ID.String() + "/checkin"
		snapshot, replayed, err = h.ledger.Execute(c.Request.Context(), actor.UserID, endpoint, key, run)
	} else {
		snapshot, err = run(c.Request.Context())
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	var ci models.Checkin
	if err := json.Unmarshal(snapshot, &ci); err != nil {
		response.Internal(c, "failed to decode check-in")
		return
	}
	if !replayed {
		h.publishAttendance(c, svc.ID)
	}
	if replayed {
		response.OK(c, ci)
		return
	}
	response.Created(c, ci)
}

// MyCheckin handles GET /services/:id/checkin.
func (h *Handler) MyCheckin(c *gin.Context) {
	actor := middleware.Actor(c)
	svc, err := h.loadReachable(c, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	ci, err := h.repo.Get(c.Request.Context(), svc.ID, actor.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, ci)
}

// Roster handles GET /services/:id/checkins (leader and above).
func (h *Handler) Roster(c *gin.Context) {
	actor := middleware.Actor(c)
	svc, err := h.loadReachable(c, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := authz.CanManageEntity(actor, svc.ChurchID, authz.RoleLeader); err != nil {
		response.Error(c, err)
		return
	}
	roster, err := h.repo.ListForService(c.Request.Context(), svc.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, roster)
}

func (h *Handler) publishAttendance(c *gin.Context, serviceID uuid.UUID) {
	if h.hub == nil {
		return
	}
	stats, err := h.services.Stats(c.Request.Context(), serviceID)
	if err != nil {
		return
	}
	h.hub.PublishAttendance(serviceID, stats.Total, stats.NewBelievers)
}

func (h *Handler) loadReachable(c *gin.Context, actor authz.Actor) (*models.Service, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, apperr.E(apperr.KindInvalid, "invalid service id")
	}
	svc, err := h.services.Get(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	if svc == nil || (!actor.IsSuperAdmin() && !actor.SameTenant(svc.ChurchID)) {
		return nil, apperr.E(apperr.KindNotFoundOrForbidden, "service not found or access denied")
	}
	return svc, nil
}
