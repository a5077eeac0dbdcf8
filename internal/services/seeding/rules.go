package seeding

import (
	"github.com/halloran/castellan/internal/entities"
)

// Selector picks permission definitions out of a registry. Unset fields
// act as wildcards, with one asymmetry: a selector that names a
// SubResource only matches definitions that carry that exact
// sub-resource, while definitions with a sub-resource still match
// selectors that leave SubResource empty.
type Selector struct {
	Resource    string `json:"resource,omitempty"`
	SubResource string `json:"subResource,omitempty"`
	Action      string `json:"action,omitempty"`
	All         bool   `json:"all,omitempty"`
}

// Matches reports whether the definition satisfies the selector.
func (s Selector) Matches(def *entities.PermissionDefinition) bool {
	if s.All {
		return true
	}
	if s.Resource != "" && s.Resource != def.Resource {
		return false
	}
	if s.SubResource != "" && s.SubResource != def.SubResource {
		return false
	}
	if s.Action != "" && s.Action != def.Action {
		return false
	}
	return true
}

// RuleSet describes which slice of the permission registry a role
// template receives.
type RuleSet struct {
	Include []Selector `json:"include"`
	Exclude []Selector `json:"exclude,omitempty"`
}

// ApplyPermissionRules filters the registry down to the subset selected
// by the rule set. The base set is the union of definitions matching any
// include selector (everything, if an include selector has All set);
// exclude selectors then remove matches. Registry order is preserved.
func ApplyPermissionRules(defs []*entities.PermissionDefinition, rules RuleSet) []*entities.PermissionDefinition {
	includeAll := false
	for _, sel := range rules.Include {
		if sel.All {
			includeAll = true
			break
		}
	}

	var out []*entities.PermissionDefinition
	for _, def := range defs {
		included := includeAll
		if !included {
			for _, sel := range rules.Include {
				if sel.Matches(def) {
					included = true
					break
				}
			}
		}
		if !included {
			continue
		}

		excluded := false
		for _, sel := range rules.Exclude {
			if sel.Matches(def) {
				excluded = true
				break
			}
		}
		if !excluded {
			out = append(out, def)
		}
	}
	return out
}
