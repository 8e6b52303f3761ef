package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gracehub/backend/pkg/apperr"
)

func render(t *testing.T, err error) (int, Body, http.Header) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	Error(c, err)
	var body Body
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return w.Code, body, w.Header()
}

func TestErrorUnwrapsApplicationErrors(t *testing.T) {
	// Handlers and repositories add prefixes with %w; the client-facing
	// message must still come from the application error underneath, not
	// fall back to the opaque default.
	base := apperr.E(apperr.KindNotFoundOrForbidden, "event not found or access denied")
	code, body, _ := render(t, fmt.Errorf("load event: %w", base))
	if code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", code, http.StatusNotFound)
	}
	if body.Error != "event not found or access denied" {
		t.Fatalf("message = %q, want the wrapped application message", body.Error)
	}
}

func TestErrorWrappedRateLimitKeepsRetryAfter(t *testing.T) {
	ae := apperr.E(apperr.KindRateLimited, "too many requests")
	ae.RetryAfter = 30 * time.Second
	code, body, header := render(t, fmt.Errorf("limiter: %w", ae))
	if code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", code, http.StatusTooManyRequests)
	}
	if body.Error != "too many requests" {
		t.Fatalf("message = %q", body.Error)
	}
	if got := header.Get("Retry-After"); got != "30" {
		t.Fatalf("Retry-After = %q, want 30", got)
	}
}

func TestErrorUnknownErrorStaysOpaque(t *testing.T) {
	code, body, _ := render(t, errors.New("pq: connection reset by peer"))
	if code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", code, http.StatusInternalServerError)
	}
	if body.Error != "internal error" {
		t.Fatalf("message = %q, raw storage errors must not leak", body.Error)
	}
}
