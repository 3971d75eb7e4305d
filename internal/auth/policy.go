package auth

import "github.com/meincms/apiserver/types"

// Authorize reports whether role is one of allowed.
func Authorize(role types.Role, allowed ...types.Role) bool {
	for _, candidate := range allowed {
		if role == candidate {
			return true
		}
	}
	return false
}

// AuthorizeMinRole reports whether role ranks at or above min.
// Unknown roles on either side are denied.
func AuthorizeMinRole(role, min types.Role) bool {
	if !role.Valid() || !min.Valid() {
		return false
	}
	return role.Level() >= min.Level()
}
