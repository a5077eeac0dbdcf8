package entities

import "time"

// MetaPermissions are named capability flags on a role template that map to
// specific permission strings. An escape hatch predating full permission
// modeling; the mapping itself lives in the authorization package.
type MetaPermissions struct {
	CanInviteUsers    bool
	CanCreateProjects bool
	CanAssignRoles    bool
}

// RoleConstraints carries informational limits attached to a role template.
// Not enforced by the evaluator.
type RoleConstraints struct {
	MaxProjects int // 0 = unlimited
}

// RoleTemplate defines a role within a business: a set of base permission
// references, optional meta-permission flags, and an optional single parent
// template whose grants are inherited.
type RoleTemplate struct {
	ID                string
	BusinessID        string
	Name              string // unique per business
	Description       string
	IsSystem          bool
	HierarchyLevel    int // lower = more senior; display/ordering only
	BasePermissionIDs []string
	Meta              MetaPermissions
	ParentRoleID      string // empty = no parent; parent must belong to the same business
	Constraints       RoleConstraints
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
