package seeding

import (
	"github.com/halloran/castellan/internal/entities"
)

// TemplateSpec describes a role template in the default catalog before it
// is bound to a business: the permission slice it receives is expressed as
// selector rules against the registry, and the parent is referenced by
// name so the seeder can resolve it after creation.
type TemplateSpec struct {
	Name           string
	Description    string
	HierarchyLevel int
	Rules          RuleSet
	Meta           entities.MetaPermissions
	ParentName     string
	Constraints    entities.RoleConstraints
}

func definition(resource, subResource, action, category string, implications ...string) *entities.PermissionDefinition {
	p := entities.Permission{Resource: resource, SubResource: subResource, Action: action}
	return &entities.PermissionDefinition{
		Resource:     resource,
		SubResource:  subResource,
		Action:       action,
		Name:         p.String(),
		Category:     category,
		IsSystem:     true,
		Implications: implications,
	}
}

// DefaultRegistry returns the permission catalog seeded for every new
// business. Write actions imply the corresponding read so templates that
// can change a thing can always see it.
func DefaultRegistry() []*entities.PermissionDefinition {
	return []*entities.PermissionDefinition{
		definition("business", "", "read", "business"),
		definition("business", "", "update", "business", "business:read"),
		definition("business", "", "manage", "business", "business:update", "business:read"),
		definition("business", "settings", "update", "business", "business:read"),

		definition("project", "", "read", "project"),
		definition("project", "", "create", "project", "project:read"),
		definition("project", "", "update", "project", "project:read"),
		definition("project", "", "delete", "project", "project:read"),
		definition("project", "members", "manage", "project", "project:read"),

		definition("contract", "", "read", "contract"),
		definition("contract", "", "create", "contract", "contract:read"),
		definition("contract", "", "update", "contract", "contract:read"),
		definition("contract", "", "approve", "contract", "contract:read"),

		definition("invitation", "", "create", "membership"),
		definition("invitation", "", "revoke", "membership"),
		definition("role", "", "read", "membership"),
		definition("role", "", "assign", "membership", "role:read"),

		definition("report", "", "read", "reporting"),
		definition("report", "", "export", "reporting", "report:read"),

		definition("admin", "", "manage", "admin"),
	}
}

// DefaultTemplates returns the role-template catalog in creation order.
// Each template's parent is the next less privileged one, so the grant
// walk accumulates from viewer upward; the order here puts parents first
// so the seeder can resolve ParentName against templates it has already
// created.
func DefaultTemplates() []TemplateSpec {
	return []TemplateSpec{
		{
			Name:           "viewer",
			Description:    "Read-only visibility into the business.",
			HierarchyLevel: 4,
			Rules: RuleSet{
				Include: []Selector{{Action: "read"}},
				Exclude: []Selector{{Resource: "admin"}},
			},
		},
		{
			Name:           "member",
			Description:    "Works inside projects they are assigned to.",
			HierarchyLevel: 3,
			Rules: RuleSet{
				Include: []Selector{
					{Resource: "project", Action: "update"},
					{Resource: "contract", Action: "update"},
				},
			},
			ParentName: "viewer",
		},
		{
			Name:           "manager",
			Description:    "Runs projects and contracts within the business.",
			HierarchyLevel: 2,
			Rules: RuleSet{
				Include: []Selector{
					{Resource: "project"},
					{Resource: "contract"},
					{Resource: "report"},
				},
				Exclude: []Selector{
					{Resource: "project", Action: "delete"},
					{Resource: "contract", Action: "approve"},
				},
			},
			Meta: entities.MetaPermissions{
				CanInviteUsers:    true,
				CanCreateProjects: true,
			},
			ParentName:  "member",
			Constraints: entities.RoleConstraints{MaxProjects: 25},
		},
		{
			Name:           "admin",
			Description:    "Manages the business day to day; no admin-surface access.",
			HierarchyLevel: 1,
			Rules: RuleSet{
				Include: []Selector{{All: true}},
				Exclude: []Selector{{Resource: "admin"}},
			},
			Meta: entities.MetaPermissions{
				CanInviteUsers:    true,
				CanCreateProjects: true,
				CanAssignRoles:    true,
			},
			ParentName: "manager",
		},
		{
			Name:           "owner",
			Description:    "Full control of the business, including admin surfaces.",
			HierarchyLevel: 0,
			Rules:          RuleSet{Include: []Selector{{All: true}}},
			Meta: entities.MetaPermissions{
				CanInviteUsers:    true,
				CanCreateProjects: true,
				CanAssignRoles:    true,
			},
			ParentName: "admin",
		},
	}
}
