package authz

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/gracehub/backend/pkg/apperr"
)

// Predicate is a tenant-scope constraint for a SQL query. An unconstrained
// predicate (super admin browsing across tenants) renders as TRUE.
type Predicate struct {
	field    string
	tenantID *uuid.UUID
}

// Unconstrained reports whether the predicate matches all tenants.
func (p Predicate) Unconstrained() bool { return p.tenantID == nil }

// TenantID returns the constrained tenant, or nil when unconstrained.
func (p Predicate) TenantID() *uuid.UUID { return p.tenantID }

// SQL renders the predicate as a WHERE fragment using the given positional
// argument index, plus the arguments to append. Unconstrained predicates
// render as TRUE with no arguments.
func (p Predicate) SQL(argPos int) (string, []interface{}) {
	if p.tenantID == nil {
		return "TRUE", nil
	}
	return fmt.Sprintf("%s = $%d", p.field, argPos), []interface{}{*p.tenantID}
}

// TenantScope builds the tenant predicate for a query over records whose
// tenant column is scopeField.
//
// Super admins get an unconstrained predicate, unless explicitTenantID is
// supplied, which narrows browsing to that tenant. Everyone else is pinned
// to their own tenant; supplying an explicitTenantID that differs from it
// fails closed rather than silently widening the query.
func TenantScope(actor Actor, explicitTenantID *uuid.UUID, scopeField string) (Predicate, error) {
	if actor.IsSuperAdmin() {
		if explicitTenantID != nil {
			return Predicate{field: scopeField, tenantID: explicitTenantID}, nil
		}
		return Predicate{field: scopeField}, nil
	}
	if actor.TenantID == nil {
		return Predicate{}, apperr.E(apperr.KindUnauthenticated, "actor has no tenant")
	}
	if explicitTenantID != nil && *explicitTenantID != *actor.TenantID {
		return Predicate{}, apperr.E(apperr.KindNotFoundOrForbidden, "not found or access denied")
	}
	return Predicate{field: scopeField, tenantID: actor.TenantID}, nil
}

// CanManageEntity decides whether the actor may mutate an entity belonging
// to entityTenantID. Tenant isolation is checked before and independently
// of role rank: a leader from another tenant is denied no matter how the
// rank check would go, and the denial is shaped like a missing record.
func CanManageEntity(actor Actor, entityTenantID uuid.UUID, threshold Role) error {
	if actor.UserID == uuid.Nil {
		return apperr.E(apperr.KindUnauthenticated, "authentication required")
	}
	if !actor.IsSuperAdmin() && !actor.SameTenant(entityTenantID) {
		return apperr.E(apperr.KindNotFoundOrForbidden, "not found or access denied")
	}
	if !actor.HasMinRole(threshold) {
		return apperr.E(apperr.KindForbidden, "insufficient permissions")
	}
	return nil
}

// RequireMinRole checks rank only, for operations without a target entity.
func RequireMinRole(actor Actor, threshold Role) error {
	if actor.UserID == uuid.Nil {
		return apperr.E(apperr.KindUnauthenticated, "authentication required")
	}
	if !actor.HasMinRole(threshold) {
		return apperr.E(apperr.KindForbidden, "insufficient permissions")
	}
	return nil
}
