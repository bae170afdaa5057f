package domain

import (
	"sort"
	"time"

	appErrors "github.com/recruitflow/backend/pkg/errors"
)

// ViewerRole is the role a user holds on a workflow
type ViewerRole string

const (
	RoleRecruiter ViewerRole = "recruiter"
	RoleObserver  ViewerRole = "observer"
	RoleAdmin     ViewerRole = "admin"
	RoleAssistant ViewerRole = "assistant"
)

// IsValid reports whether r is a known role.
func (r ViewerRole) IsValid() bool {
	_, ok := rolePermissions[r]
	return ok
}

// Permission names an action a viewer may take on a workflow
type Permission string

const (
	PermViewProcess        Permission = "view_process"
	PermViewCandidates     Permission = "view_candidates"
	PermViewResults        Permission = "view_results"
	PermExecuteNodes       Permission = "execute_nodes"
	PermScheduleInterviews Permission = "schedule_interviews"
	PermRecordResults      Permission = "record_results"
	PermAddNotes           Permission = "add_notes"
	PermOverrideResults    Permission = "override_results"
	PermManageAssignments  Permission = "manage_assignments"
)

// AllPermissions lists every known permission.
var AllPermissions = []Permission{
	PermViewProcess, PermViewCandidates, PermViewResults,
	PermExecuteNodes, PermScheduleInterviews, PermRecordResults, PermAddNotes,
	PermOverrideResults, PermManageAssignments,
}

// IsValid reports whether p is a known permission.
func (p Permission) IsValid() bool {
	for _, known := range AllPermissions {
		if p == known {
			return true
		}
	}
	return false
}

// ParsePermission validates a permission name from outside the core.
func ParsePermission(name string) (Permission, error) {
	p := Permission(name)
	if !p.IsValid() {
		return "", appErrors.NewValidationError("permission", "unknown permission '"+name+"'")
	}
	return p, nil
}

// PermissionSet is an unordered set of permissions
type PermissionSet map[Permission]bool

func newPermissionSet(perms ...Permission) PermissionSet {
	s := make(PermissionSet, len(perms))
	for _, p := range perms {
		s[p] = true
	}
	return s
}

func (s PermissionSet) union(perms ...Permission) PermissionSet {
	out := make(PermissionSet, len(s)+len(perms))
	for p := range s {
		out[p] = true
	}
	for _, p := range perms {
		out[p] = true
	}
	return out
}

// Sorted returns the permissions in name order.
func (s PermissionSet) Sorted() []Permission {
	out := make([]Permission, 0, len(s))
	for p, ok := range s {
		if ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Role defaults: admin ⊇ recruiter ⊇ observer; assistant stands apart.
var (
	observerDefaults  = newPermissionSet(PermViewProcess, PermViewCandidates, PermViewResults)
	recruiterDefaults = observerDefaults.union(PermExecuteNodes, PermScheduleInterviews, PermRecordResults, PermAddNotes)
	adminDefaults     = recruiterDefaults.union(PermOverrideResults, PermManageAssignments)
	assistantDefaults = newPermissionSet(PermViewProcess, PermScheduleInterviews, PermAddNotes)

	rolePermissions = map[ViewerRole]PermissionSet{
		RoleObserver:  observerDefaults,
		RoleRecruiter: recruiterDefaults,
		RoleAdmin:     adminDefaults,
		RoleAssistant: assistantDefaults,
	}
)

// DefaultPermissions returns a copy of the role's default set.
func DefaultPermissions(role ViewerRole) PermissionSet {
	return rolePermissions[role].union()
}

// Viewer grants one user a role on one workflow.
type Viewer struct {
	ID          string              `json:"id"`
	WorkflowID  string              `json:"workflow_id"`
	UserID      string              `json:"user_id"`
	Role        ViewerRole          `json:"role"`
	Permissions map[Permission]bool `json:"permissions,omitempty"`
	AddedBy     string              `json:"added_by"`
	AddedAt     time.Time           `json:"added_at"`
	LockVersion int64               `json:"lock_version"`
}

// HasPermission consults the override map first, then the role defaults.
func (v *Viewer) HasPermission(p Permission) bool {
	if allowed, ok := v.Permissions[p]; ok {
		return allowed
	}
	return rolePermissions[v.Role][p]
}

// EffectivePermissions resolves overrides against the role defaults.
func (v *Viewer) EffectivePermissions() PermissionSet {
	out := make(PermissionSet)
	for _, p := range AllPermissions {
		if v.HasPermission(p) {
			out[p] = true
		}
	}
	return out
}

// GrantPermission records an allow. The override map only keeps
// deviations from the role defaults, so granting a default drops any deny.
func (v *Viewer) GrantPermission(p Permission) {
	v.setOverride(p, true)
}

// RevokePermission records a deny, dropping any grant that deviated from
// the role default.
func (v *Viewer) RevokePermission(p Permission) {
	v.setOverride(p, false)
}

// ResetPermission removes any override so the role default applies.
func (v *Viewer) ResetPermission(p Permission) {
	delete(v.Permissions, p)
}

func (v *Viewer) setOverride(p Permission, allowed bool) {
	if rolePermissions[v.Role][p] == allowed {
		delete(v.Permissions, p)
		return
	}
	if v.Permissions == nil {
		v.Permissions = make(map[Permission]bool)
	}
	v.Permissions[p] = allowed
}

// ChangeRole switches the role, keeping overrides that still deviate.
func (v *Viewer) ChangeRole(role ViewerRole) error {
	if !role.IsValid() {
		return appErrors.NewValidationError("role", "unknown role '"+string(role)+"'")
	}
	v.Role = role
	for p, allowed := range v.Permissions {
		if rolePermissions[role][p] == allowed {
			delete(v.Permissions, p)
		}
	}
	return nil
}
