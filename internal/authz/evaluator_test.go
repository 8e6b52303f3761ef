package authz

import (
	"testing"

	"github.com/google/uuid"

	"github.com/gracehub/backend/pkg/apperr"
)

func memberActor(tenantID uuid.UUID, roles ...Role) Actor {
	return Actor{UserID: uuid.New(), TenantID: &tenantID, Roles: roles}
}

func TestHasMinRole(t *testing.T) {
	tenant := uuid.New()
	cases := []struct {
		name      string
		roles     []Role
		threshold Role
		want      bool
	}{
		{"member meets member", []Role{RoleMember}, RoleMember, true},
		{"member below leader", []Role{RoleMember}, RoleLeader, false},
		{"leader meets leader", []Role{RoleLeader}, RoleLeader, true},
		{"admin meets leader", []Role{RoleAdmin}, RoleLeader, true},
		{"pastor meets admin", []Role{RolePastor}, RoleAdmin, true},
		{"vip ranks as member", []Role{RoleVIP}, RoleMember, true},
		{"vip below leader", []Role{RoleVIP}, RoleLeader, false},
		{"highest role wins", []Role{RoleMember, RoleAdmin}, RoleLeader, true},
		{"super admin meets pastor", []Role{RoleSuperAdmin}, RolePastor, true},
		{"no roles fails", nil, RoleMember, false},
		{"unknown threshold fails", []Role{RoleAdmin}, Role("GUEST"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := memberActor(tenant, tc.roles...)
			if got := a.HasMinRole(tc.threshold); got != tc.want {
				t.Fatalf("HasMinRole(%v, %s) = %v, want %v", tc.roles, tc.threshold, got, tc.want)
			}
		})
	}
}

func TestHasRoleIsSetMembershipNotRank(t *testing.T) {
	tenant := uuid.New()
	admin := memberActor(tenant, RoleAdmin)
	if admin.HasRole(RoleVIP) {
		t.Fatal("admin rank must not imply VIP capability")
	}
	vip := memberActor(tenant, RoleVIP)
	if !vip.HasRole(RoleVIP) {
		t.Fatal("VIP actor should hold VIP capability")
	}
}

func TestTenantScopeOwnTenant(t *testing.T) {
	tenant := uuid.New()
	a := memberActor(tenant, RoleLeader)

	p, err := TenantScope(a, nil, "church_id")
	if err != nil {
		t.Fatalf("TenantScope: %v", err)
	}
	if p.Unconstrained() {
		t.Fatal("non-super-admin predicate must be constrained")
	}
	sql, args := p.SQL(3)
	if sql != "church_id = $3" {
		t.Fatalf("sql = %q", sql)
	}
	if len(args) != 1 || args[0] != tenant {
		t.Fatalf("args = %v", args)
	}
}

func TestTenantScopeFailsClosedOnMismatch(t *testing.T) {
	tenant := uuid.New()
	other := uuid.New()
	a := memberActor(tenant, RoleAdmin)

	_, err := TenantScope(a, &other, "church_id")
	if !apperr.Is(err, apperr.KindNotFoundOrForbidden) {
		t.Fatalf("expected NotFoundOrForbidden, got %v", err)
	}
}

func TestTenantScopeExplicitMatchAllowed(t *testing.T) {
	tenant := uuid.New()
	a := memberActor(tenant, RoleAdmin)
	p, err := TenantScope(a, &tenant, "church_id")
	if err != nil {
		t.Fatalf("TenantScope: %v", err)
	}
	if p.TenantID() == nil || *p.TenantID() != tenant {
		t.Fatal("predicate should pin actor tenant")
	}
}

func TestTenantScopeSuperAdmin(t *testing.T) {
	super := Actor{UserID: uuid.New(), Roles: []Role{RoleSuperAdmin}}

	p, err := TenantScope(super, nil, "church_id")
	if err != nil {
		t.Fatalf("TenantScope: %v", err)
	}
	if !p.Unconstrained() {
		t.Fatal("super admin without explicit tenant should be unconstrained")
	}
	sql, args := p.SQL(1)
	if sql != "TRUE" || args != nil {
		t.Fatalf("unconstrained SQL = %q, %v", sql, args)
	}

	target := uuid.New()
	p, err = TenantScope(super, &target, "church_id")
	if err != nil {
		t.Fatalf("TenantScope explicit: %v", err)
	}
	if p.Unconstrained() || *p.TenantID() != target {
		t.Fatal("explicit tenant should constrain super admin browsing")
	}
}

func TestCanManageEntityTenantIsolationBeforeRank(t *testing.T) {
	tenant := uuid.New()
	other := uuid.New()

	// A leader outranks the threshold but targets another tenant: the
	// tenant check wins and the denial is not-found shaped.
	leader := memberActor(tenant, RoleLeader)
	err := CanManageEntity(leader, other, RoleLeader)
	if !apperr.Is(err, apperr.KindNotFoundOrForbidden) {
		t.Fatalf("expected NotFoundOrForbidden, got %v", err)
	}

	// Same tenant, insufficient rank.
	member := memberActor(tenant, RoleMember)
	err = CanManageEntity(member, tenant, RoleAdmin)
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}

	// Same tenant, sufficient rank.
	if err := CanManageEntity(leader, tenant, RoleLeader); err != nil {
		t.Fatalf("expected allow, got %v", err)
	}

	// Super admin crosses tenants.
	super := Actor{UserID: uuid.New(), Roles: []Role{RoleSuperAdmin}}
	if err := CanManageEntity(super, other, RoleAdmin); err != nil {
		t.Fatalf("super admin should cross tenants, got %v", err)
	}
}

func TestCanManageEntityUnauthenticated(t *testing.T) {
	err := CanManageEntity(Actor{}, uuid.New(), RoleMember)
	if !apperr.Is(err, apperr.KindUnauthenticated) {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}
}
