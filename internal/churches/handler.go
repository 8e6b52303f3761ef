package churches

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/gracehub/backend/pkg/response"
)

// Handler handles the public church registry endpoints used by the
// registration screen.
type Handler struct {
	repo *Repository
}

// NewHandler creates a churches handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// List handles GET /churches.
func (h *Handler) List(c *gin.Context) {
	items, err := h.repo.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}

// LocalChurches handles GET /churches/:id/local-churches.
func (h *Handler) LocalChurches(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid church id")
		return
	}
	ch, err := h.repo.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	if ch == nil {
		response.NotFound(c, "church not found")
		return
	}
	items, err := h.repo.LocalChurches(c.Request.Context(), ch.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}
