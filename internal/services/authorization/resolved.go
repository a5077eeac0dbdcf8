package authorization

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/halloran/castellan/internal/entities"
)

// ResolvedAssignment is one active assignment's contribution to a
// resource-independent answer: the flattened template-chain grants plus
// the assignment's exact-name overrides. Overrides carrying conditions
// cannot be precomputed; their permission names land in Conditional.
type ResolvedAssignment struct {
	Grants      []entities.Permission
	Overrides   map[string]bool
	Conditional map[string]bool
}

// ResolvedSet is the memoized form of a user's resource-independent
// permissions within a business. Decide walks it assignment by
// assignment with the same override-then-template order as live
// evaluation, so a memoized answer never differs from the evaluator's.
type ResolvedSet struct {
	Assignments []ResolvedAssignment
}

// Decide answers a resource-independent check from the set. ok is false
// when the answer depends on a condition-bearing override, in which case
// the caller must run live evaluation instead.
func (s *ResolvedSet) Decide(p entities.Permission) (granted, ok bool) {
	name := p.String()
	undecidable := false
	for _, a := range s.Assignments {
		if a.Conditional[name] {
			undecidable = true
			continue
		}
		if g, overridden := a.Overrides[name]; overridden {
			if g {
				return true, true
			}
			// Definitive deny for this assignment only; another
			// assignment may still grant.
			continue
		}
		if ContainsGrant(a.Grants, p) {
			return true, true
		}
	}
	if undecidable {
		return false, false
	}
	return false, true
}

// Permissions flattens the set into a grant list for display. A deny
// override removes its exact name; wildcard grants are reported as
// wildcards, so the list is a summary, not a decision surface.
func (s *ResolvedSet) Permissions() []entities.Permission {
	resolved := make(map[string]entities.Permission)
	for _, a := range s.Assignments {
		granted := make(map[string]entities.Permission, len(a.Grants))
		for _, p := range a.Grants {
			granted[p.String()] = p
		}
		for name, g := range a.Overrides {
			if g {
				addPermissionName(granted, name)
			} else {
				delete(granted, name)
			}
		}
		for name, p := range granted {
			resolved[name] = p
		}
	}
	perms := make([]entities.Permission, 0, len(resolved))
	for _, p := range resolved {
		perms = append(perms, p)
	}
	return perms
}

// ResolveSet computes the memoizable resource-independent permission
// state for a user within a business. Per active assignment it records
// the template-chain grants (base permissions, implications and
// meta-permission mappings), the condition-free exact-name overrides,
// and the names of condition-bearing overrides. Resource restrictions
// on an override are irrelevant here because checks that carry a
// resource id never consult a memoized set.
func (e *Evaluator) ResolveSet(ctx context.Context, userID, businessID string) (*ResolvedSet, error) {
	if businessID == "" {
		return nil, &MissingBusinessContextError{}
	}

	assignments, err := e.assignments.ListActiveByUser(ctx, userID, businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}

	now := e.now()
	set := &ResolvedSet{}
	for _, a := range assignments {
		if !a.Active(now) {
			continue
		}

		granted := make(map[string]entities.Permission)
		visited := make(map[string]bool)
		if err := e.collectTemplate(ctx, a.RoleTemplateID, visited, 0, granted); err != nil {
			return nil, err
		}

		ra := ResolvedAssignment{
			Grants:      make([]entities.Permission, 0, len(granted)),
			Overrides:   make(map[string]bool),
			Conditional: make(map[string]bool),
		}
		for _, p := range granted {
			ra.Grants = append(ra.Grants, p)
		}
		for _, cp := range a.CustomPermissions {
			p, err := entities.ParsePermission(cp.Permission)
			if err != nil {
				e.logger.Warn("skipping malformed custom permission",
					zap.String("assignment_id", a.ID),
					zap.String("permission", cp.Permission),
				)
				continue
			}
			name := p.String()
			// Only the first override per name applies, matching
			// FindCustomPermission.
			if _, seen := ra.Overrides[name]; seen || ra.Conditional[name] {
				continue
			}
			if len(cp.Conditions) > 0 {
				ra.Conditional[name] = true
				continue
			}
			ra.Overrides[name] = cp.Granted
		}
		set.Assignments = append(set.Assignments, ra)
	}
	return set, nil
}
