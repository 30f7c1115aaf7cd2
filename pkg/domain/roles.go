package domain

import (
	"strings"

	dErrors "schooladmin/pkg/domain-errors"
)

// Role is the caller's role as asserted by the identity provider.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleAccountant Role = "accountant"
	RoleTeacher    Role = "teacher"
	RoleParent     Role = "parent"
	RoleStudent    Role = "student"
	// RoleSystem is used by background jobs running without a caller.
	RoleSystem Role = "system"
)

var knownRoles = map[Role]struct{}{
	RoleSuperAdmin: {},
	RoleAdmin:      {},
	RoleAccountant: {},
	RoleTeacher:    {},
	RoleParent:     {},
	RoleStudent:    {},
	RoleSystem:     {},
}

// ParseRole normalizes and validates a role claim.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := knownRoles[r]; !ok {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown role")
	}
	return r, nil
}

// IsElevated reports whether the role may use the administrative audit surface.
func (r Role) IsElevated() bool {
	return r == RoleAdmin || r == RoleSuperAdmin || r == RoleSystem
}

// IsGlobal reports whether the role spans every tenant.
func (r Role) IsGlobal() bool {
	return r == RoleSuperAdmin || r == RoleSystem
}
