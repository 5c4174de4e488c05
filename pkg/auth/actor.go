package auth

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/brokerledger/pkg/enums"
)

// Actor is the authenticated identity behind a mutation. The zero value is
// the system itself.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

// System is the actor used by background jobs and scheduled sweeps.
var System = Actor{}

// IsSystem reports whether no user is behind the call.
func (a Actor) IsSystem() bool {
	return a.UserID == uuid.Nil
}

// UserIDPtr returns nil for the system actor.
func (a Actor) UserIDPtr() *uuid.UUID {
	if a.IsSystem() {
		return nil
	}
	id := a.UserID
	return &id
}

// RolePtr returns nil for the system actor.
func (a Actor) RolePtr() *string {
	if a.IsSystem() || a.Role == "" {
		return nil
	}
	role := string(a.Role)
	return &role
}

// HasAnyRole reports whether the actor holds one of roles.
func (a Actor) HasAnyRole(roles ...enums.UserRole) bool {
	for _, role := range roles {
		if a.Role == role {
			return true
		}
	}
	return false
}
