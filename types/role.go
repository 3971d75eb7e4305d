package types

import "strings"

// Role is one of a closed set of authorization tiers.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleUser     Role = "user"
	RoleGuest    Role = "guest"
)

// roleLevels orders roles by privilege: admin > operator > user > guest.
// Anything missing from the map has level 0.
var roleLevels = map[Role]int{
	RoleAdmin:    4,
	RoleOperator: 3,
	RoleUser:     2,
	RoleGuest:    1,
}

// AllRoles returns every valid role, most privileged first.
func AllRoles() []Role {
	return []Role{RoleAdmin, RoleOperator, RoleUser, RoleGuest}
}

// ParseRole normalizes raw and reports whether it names a valid role.
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	return role, role.Valid()
}

// Valid reports whether r belongs to the closed role set.
func (r Role) Valid() bool {
	_, ok := roleLevels[r]
	return ok
}

// Level returns the privilege level of r, or 0 for unknown roles.
func (r Role) Level() int {
	return roleLevels[r]
}

func (r Role) String() string {
	return string(r)
}
