package entities

import (
	"testing"
	"time"
)

func TestRoleAssignment_Active(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name       string
		assignment RoleAssignment
		want       bool
	}{
		{"active without expiry", RoleAssignment{IsActive: true}, true},
		{"inactive", RoleAssignment{IsActive: false}, false},
		{"active not yet expired", RoleAssignment{IsActive: true, ExpiresAt: &future}, true},
		{"active but expired", RoleAssignment{IsActive: true, ExpiresAt: &past}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.assignment.Active(now); got != tt.want {
				t.Errorf("Active() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScope_ContainsProject(t *testing.T) {
	global := Scope{IsGlobal: true}
	if !global.ContainsProject("P1") {
		t.Error("global scope should match any project")
	}

	restricted := Scope{ProjectIDs: []string{"P1", "P3"}}
	if !restricted.ContainsProject("P1") {
		t.Error("expected P1 to match restricted scope")
	}
	if restricted.ContainsProject("P2") {
		t.Error("did not expect P2 to match restricted scope")
	}
}

func TestRoleAssignment_FindCustomPermission(t *testing.T) {
	a := RoleAssignment{
		CustomPermissions: []CustomPermission{
			{Permission: "project:read", Granted: false},
			{Permission: "contract:manage", Granted: true, Resources: []string{"C1"}},
		},
	}

	if cp := a.FindCustomPermission("project:read"); cp == nil || cp.Granted {
		t.Errorf("expected explicit deny for project:read, got %+v", cp)
	}
	if cp := a.FindCustomPermission("project:delete"); cp != nil {
		t.Errorf("expected no override for project:delete, got %+v", cp)
	}
}
