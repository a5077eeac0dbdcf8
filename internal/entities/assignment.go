package entities

import "time"

// Scope restricts a role assignment to specific resources.
// A global scope matches every resource in the business.
type Scope struct {
	IsGlobal   bool
	ProjectIDs []string
}

// ContainsProject reports whether the scope allows the given project id.
func (s Scope) ContainsProject(id string) bool {
	if s.IsGlobal {
		return true
	}
	for _, pid := range s.ProjectIDs {
		if pid == id {
			return true
		}
	}
	return false
}

// CustomPermission is a per-assignment override of a single permission.
// Granted=false is an explicit deny for that assignment. Resources, when
// set, restricts the override to specific resource ids. Conditions, when
// set, gate the override behind a condition evaluator.
type CustomPermission struct {
	Permission string         `json:"permission"`
	Granted    bool           `json:"granted"`
	Resources  []string       `json:"resources,omitempty"`
	Conditions map[string]any `json:"conditions,omitempty"`
}

// RoleAssignment binds a user to a role template within a business.
type RoleAssignment struct {
	ID                string
	UserID            string
	BusinessID        string
	RoleTemplateID    string
	IsActive          bool
	IsOwner           bool
	Scope             Scope
	CustomPermissions []CustomPermission
	AssignedBy        string
	AssignedAt        time.Time
	ExpiresAt         *time.Time // nil = never expires
}

// Active reports whether the assignment participates in permission checks
// at the given instant. Expired assignments are equivalent to inactive ones.
func (a *RoleAssignment) Active(now time.Time) bool {
	if !a.IsActive {
		return false
	}
	if a.ExpiresAt != nil && !a.ExpiresAt.After(now) {
		return false
	}
	return true
}

// FindCustomPermission returns the first custom permission override whose
// permission string matches name exactly, or nil.
func (a *RoleAssignment) FindCustomPermission(name string) *CustomPermission {
	for i := range a.CustomPermissions {
		if a.CustomPermissions[i].Permission == name {
			return &a.CustomPermissions[i]
		}
	}
	return nil
}
