package response

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/gracehub/backend/pkg/apperr"
)

// Body is the standard API response envelope.
type Body struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// OK sends a 200 JSON response with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

// Created sends a 201 JSON response with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Body{Success: true, Data: data})
}

// NoContent sends 204.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// BadRequest sends 400 with error message.
func BadRequest(c *gin.Context, err string) {
	c.JSON(http.StatusBadRequest, Body{Success: false, Error: err})
}

// Unauthorized sends 401.
func Unauthorized(c *gin.Context, err string) {
	c.JSON(http.StatusUnauthorized, Body{Success: false, Error: err})
}

// Forbidden sends 403.
func Forbidden(c *gin.Context, err string) {
	c.JSON(http.StatusForbidden, Body{Success: false, Error: err})
}

// NotFound sends 404.
func NotFound(c *gin.Context, err string) {
	c.JSON(http.StatusNotFound, Body{Success: false, Error: err})
}

// Conflict sends 409 with error message.
func Conflict(c *gin.Context, err string) {
	c.JSON(http.StatusConflict, Body{Success: false, Error: err})
}

// TooManyRequests sends 429 with a Retry-After hint in seconds.
func TooManyRequests(c *gin.Context, err string, retryAfterSec int) {
	if retryAfterSec > 0 {
		c.Header("Retry-After", strconv.Itoa(retryAfterSec))
	}
	c.JSON(http.StatusTooManyRequests, Body{Success: false, Error: err})
}

// ServiceUnavailable sends 503.
func ServiceUnavailable(c *gin.Context, err string) {
	c.JSON(http.StatusServiceUnavailable, Body{Success: false, Error: err})
}

// Internal sends 500.
func Internal(c *gin.Context, err string) {
	c.JSON(http.StatusInternalServerError, Body{Success: false, Error: err})
}

// Error maps an application error kind to its transport status. Cross-tenant
// denials deliberately render as 404 so responses never reveal whether a
// resource exists in another tenant.
func Error(c *gin.Context, err error) {
	var ae *apperr.Error
	msg := "internal error"
	if errors.As(err, &ae) {
		msg = ae.Message
	}
	switch apperr.KindOf(err) {
	case apperr.KindInvalid:
		BadRequest(c, msg)
	case apperr.KindUnauthenticated:
		Unauthorized(c, msg)
	case apperr.KindForbidden:
		Forbidden(c, msg)
	case apperr.KindNotFound, apperr.KindNotFoundOrForbidden:
		NotFound(c, msg)
	case apperr.KindAlreadyRegistered, apperr.KindDuplicateInFlight, apperr.KindConstraintViolation:
		Conflict(c, msg)
	case apperr.KindRateLimited:
		retryAfter := 0
		if ae != nil {
			retryAfter = int(ae.RetryAfter.Seconds())
		}
		TooManyRequests(c, msg, retryAfter)
	case apperr.KindBusy:
		ServiceUnavailable(c, msg)
	default:
		Internal(c, msg)
	}
}
