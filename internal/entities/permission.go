package entities

import (
	"fmt"
	"strings"
)

// MalformedPermissionError indicates a permission string that does not parse
// into two or three colon-separated parts.
type MalformedPermissionError struct {
	Input string
}

func (e *MalformedPermissionError) Error() string {
	return fmt.Sprintf("malformed permission %q: expected resource:action or resource:subResource:action", e.Input)
}

// Permission identifies a single grantable operation.
// Canonical string form is "resource:action" or "resource:subResource:action".
// The zero value is not a valid permission.
type Permission struct {
	Resource    string
	SubResource string
	Action      string
}

// ParsePermission parses the canonical string form into a Permission.
// Returns *MalformedPermissionError for anything other than two or three
// non-empty colon-separated parts.
func ParsePermission(s string) (Permission, error) {
	parts := strings.Split(s, ":")
	for _, p := range parts {
		if p == "" {
			return Permission{}, &MalformedPermissionError{Input: s}
		}
	}
	switch len(parts) {
	case 2:
		return Permission{Resource: parts[0], Action: parts[1]}, nil
	case 3:
		return Permission{Resource: parts[0], SubResource: parts[1], Action: parts[2]}, nil
	default:
		return Permission{}, &MalformedPermissionError{Input: s}
	}
}

// String returns the canonical string form. Inverse of ParsePermission.
func (p Permission) String() string {
	if p.SubResource != "" {
		return p.Resource + ":" + p.SubResource + ":" + p.Action
	}
	return p.Resource + ":" + p.Action
}

// Equal reports whether two permissions have the same canonical form.
func (p Permission) Equal(other Permission) bool {
	return p.String() == other.String()
}

// Implies reports whether holding p implies holding other.
// At the value level this is equality only; catalog implications are
// expanded by the evaluator, which has access to permission definitions.
func (p Permission) Implies(other Permission) bool {
	return p.Equal(other)
}

// MatchedBy reports whether a catalog permission name grants p, honoring
// the wildcard conventions "resource:*" and "*:*".
func (p Permission) MatchedBy(name string) bool {
	if name == p.String() {
		return true
	}
	if name == p.Resource+":*" {
		return true
	}
	return name == "*:*"
}
