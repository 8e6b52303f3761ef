// Package authz implements the role hierarchy and tenant-scoping rules every
// operation is evaluated against. It is a pure decision layer: repositories
// apply the predicates it produces and re-verify tenant ownership after
// fetching, so a bypassed predicate is never the only gate.
package authz

// Role is a membership role. Roles form a total rank order for "at least
// this privileged" checks; VIP sits at MEMBER rank but carries extra
// capabilities checked by set membership, not rank.
type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RolePastor     Role = "PASTOR"
	RoleAdmin      Role = "ADMIN"
	RoleLeader     Role = "LEADER"
	RoleVIP        Role = "VIP"
	RoleMember     Role = "MEMBER"
)

var roleRanks = map[Role]int{
	RoleMember:     1,
	RoleVIP:        1,
	RoleLeader:     2,
	RoleAdmin:      3,
	RolePastor:     4,
	RoleSuperAdmin: 5,
}

// Rank returns the role's position in the hierarchy, 0 for unknown roles.
func (r Role) Rank() int {
	return roleRanks[r]
}

// Valid reports whether r is a recognized role.
func (r Role) Valid() bool {
	_, ok := roleRanks[r]
	return ok
}

// ParseRole validates a role string.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	return r, r.Valid()
}
