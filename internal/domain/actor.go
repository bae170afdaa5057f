package domain

// Platform roles carried in actor tokens.
const (
	ActorRoleUser        = "user"
	ActorRoleSystemAdmin = "system_admin"
	ActorRoleService     = "service"
)

// Actor is the authenticated caller of an operation. Identity is issued
// outside this module; only the id and platform role are interpreted here.
type Actor struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
	Role   string `json:"role"`
}

// IsSystemAdmin reports whether the actor bypasses workflow permissions.
func (a *Actor) IsSystemAdmin() bool {
	return a != nil && a.Role == ActorRoleSystemAdmin
}

// IsService reports whether the actor is an integrated subsystem.
func (a *Actor) IsService() bool {
	return a != nil && a.Role == ActorRoleService
}
