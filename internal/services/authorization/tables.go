package authorization

import "github.com/halloran/castellan/internal/entities"

// MetaPermissionTable maps exact permission strings to accessors over a
// role template's meta-permission flags.
type MetaPermissionTable map[string]func(entities.MetaPermissions) bool

// DefaultMetaPermissions returns the documented capability mapping.
func DefaultMetaPermissions() MetaPermissionTable {
	return MetaPermissionTable{
		"invitation:create": func(m entities.MetaPermissions) bool { return m.CanInviteUsers },
		"project:create":    func(m entities.MetaPermissions) bool { return m.CanCreateProjects },
		"role:assign":       func(m entities.MetaPermissions) bool { return m.CanAssignRoles },
	}
}

// ScopeRule decides whether an assignment's scope allows a check against a
// specific resource id. businessID is the business the assignment belongs to.
type ScopeRule func(scope entities.Scope, businessID, resourceID string) bool

// ScopeRules maps a resource-kind name to the rule that constrains it.
// Kinds not present in the table never match a non-global scope.
type ScopeRules map[string]ScopeRule

// DefaultScopeRules returns the documented resource-kind mapping:
// project checks match the scope's project id list, business checks match
// the assignment's own business.
func DefaultScopeRules() ScopeRules {
	return ScopeRules{
		"project": func(scope entities.Scope, _, resourceID string) bool {
			return scope.ContainsProject(resourceID)
		},
		"business": func(_ entities.Scope, businessID, resourceID string) bool {
			return businessID == resourceID
		},
	}
}
