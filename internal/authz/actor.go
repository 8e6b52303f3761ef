package authz

import (
	"github.com/google/uuid"
)

// Actor is the authenticated caller as seen by the authorization layer.
// Every actor except a super admin belongs to exactly one tenant (church);
// a super admin may act with TenantID == nil for cross-tenant administration.
type Actor struct {
	UserID        uuid.UUID
	TenantID      *uuid.UUID
	LocalChurchID *uuid.UUID
	Roles         []Role
}

// IsSuperAdmin reports whether the actor holds the cross-tenant super role.
func (a Actor) IsSuperAdmin() bool {
	return a.HasRole(RoleSuperAdmin)
}

// HasRole checks role-set membership. Capability-specific checks (e.g. VIP
// first-timer tools) use this rather than rank, so a capability is never
// implied by outranking it.
func (a Actor) HasRole(role Role) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// MaxRank resolves the actor's effective rank: the highest rank across all
// held roles.
func (a Actor) MaxRank() int {
	max := 0
	for _, r := range a.Roles {
		if rank := r.Rank(); rank > max {
			max = rank
		}
	}
	return max
}

// HasMinRole reports whether the actor's effective rank meets the threshold.
func (a Actor) HasMinRole(threshold Role) bool {
	return a.MaxRank() >= threshold.Rank() && threshold.Rank() > 0
}

// SameTenant reports whether the actor belongs to the given tenant.
func (a Actor) SameTenant(tenantID uuid.UUID) bool {
	return a.TenantID != nil && *a.TenantID == tenantID
}
