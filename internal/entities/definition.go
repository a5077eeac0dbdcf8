package entities

import (
	"fmt"
	"time"
)

// PermissionDefinition is a catalog record describing a defined permission.
// A definition with an empty BusinessID is a global (system) permission;
// otherwise it is scoped to a single business.
type PermissionDefinition struct {
	ID           string
	BusinessID   string // empty = global
	Resource     string
	SubResource  string
	Action       string
	Name         string // derived: resource[:subResource]:action
	Description  string
	Category     string
	IsSystem     bool
	Implications []string // names of other permissions this one also grants
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Permission returns the value-type form of this definition.
func (d *PermissionDefinition) Permission() Permission {
	return Permission{Resource: d.Resource, SubResource: d.SubResource, Action: d.Action}
}

// IsGlobal reports whether the definition is a global (system-wide) permission.
func (d *PermissionDefinition) IsGlobal() bool {
	return d.BusinessID == ""
}

// Validate checks that Name is reconstructable from the resource parts.
func (d *PermissionDefinition) Validate() error {
	if d.Resource == "" || d.Action == "" {
		return fmt.Errorf("permission definition %s: resource and action are required", d.ID)
	}
	want := d.Permission().String()
	if d.Name != want {
		return fmt.Errorf("permission definition %s: name %q does not match parts (want %q)", d.ID, d.Name, want)
	}
	return nil
}

// Grants reports whether this definition grants the given permission,
// either directly (including wildcard names) or through its implications.
func (d *PermissionDefinition) Grants(p Permission) bool {
	if p.MatchedBy(d.Name) {
		return true
	}
	return d.Implies(p)
}

// Implies reports whether the permission appears in the implications list.
func (d *PermissionDefinition) Implies(p Permission) bool {
	name := p.String()
	for _, imp := range d.Implications {
		if imp == name {
			return true
		}
	}
	return false
}
