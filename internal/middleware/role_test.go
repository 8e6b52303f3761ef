package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/gracehub/backend/internal/authz"
)

func requestAs(t *testing.T, guard gin.HandlerFunc, roles ...authz.Role) int {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/guarded", func(c *gin.Context) {
		c.Set(ContextActor, authz.Actor{UserID: uuid.New(), Roles: roles})
	}, guard, func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRequireAnyRoleIsSetMembershipNotRank(t *testing.T) {
	guard := RequireAnyRole(authz.RoleVIP, authz.RoleAdmin, authz.RolePastor, authz.RoleSuperAdmin)

	if code := requestAs(t, guard, authz.RoleVIP); code != http.StatusOK {
		t.Fatalf("VIP: status = %d, want %d", code, http.StatusOK)
	}
	if code := requestAs(t, guard, authz.RoleAdmin); code != http.StatusOK {
		t.Fatalf("listed admin: status = %d, want %d", code, http.StatusOK)
	}
	if code := requestAs(t, guard, authz.RoleMember); code != http.StatusForbidden {
		t.Fatalf("member: status = %d, want %d", code, http.StatusForbidden)
	}
	// Rank does not substitute for membership: a leader outranks VIP but
	// is not on the team.
	if code := requestAs(t, guard, authz.RoleLeader); code != http.StatusForbidden {
		t.Fatalf("unlisted leader: status = %d, want %d", code, http.StatusForbidden)
	}
}

func TestRequireMinRole(t *testing.T) {
	guard := RequireMinRole(authz.RoleLeader)

	if code := requestAs(t, guard, authz.RoleAdmin); code != http.StatusOK {
		t.Fatalf("admin: status = %d, want %d", code, http.StatusOK)
	}
	if code := requestAs(t, guard, authz.RoleMember); code != http.StatusForbidden {
		t.Fatalf("member: status = %d, want %d", code, http.StatusForbidden)
	}
}

func TestRequireMinRoleRejectsMissingActor(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/guarded", RequireMinRole(authz.RoleMember), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/guarded", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}
