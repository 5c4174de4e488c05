package enums

import (
	"fmt"
	"strings"
)

// UserRole is the platform role carried by an authenticated actor.
type UserRole string

const (
	UserRoleAdmin      UserRole = "ADMIN"
	UserRoleBroker     UserRole = "BROKER"
	UserRoleConsultant UserRole = "CONSULTANT"
	UserRoleHunter     UserRole = "HUNTER"
)

var validUserRoles = []UserRole{
	UserRoleAdmin,
	UserRoleBroker,
	UserRoleConsultant,
	UserRoleHunter,
}

// String implements fmt.Stringer.
func (r UserRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known UserRole.
func (r UserRole) IsValid() bool {
	for _, candidate := range validUserRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsPrivileged reports whether the role may read and approve across owners.
func (r UserRole) IsPrivileged() bool {
	return r == UserRoleAdmin || r == UserRoleBroker
}

// ParseUserRole converts raw input into a UserRole. Matching ignores case.
func ParseUserRole(value string) (UserRole, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	for _, candidate := range validUserRoles {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid user role %q", value)
}
