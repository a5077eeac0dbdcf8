package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/halloran/castellan/internal/entities"
	"github.com/halloran/castellan/internal/repositories"
	"github.com/halloran/castellan/internal/services/access"
	"github.com/halloran/castellan/internal/services/authorization"
)

type fakeAdminRepo struct{ admins map[string]bool }

func (f *fakeAdminRepo) IsAdmin(ctx context.Context, userID string) (bool, error) {
	return f.admins[userID], nil
}
func (f *fakeAdminRepo) Create(ctx context.Context, rec *entities.AdminRecord) error { return nil }
func (f *fakeAdminRepo) Delete(ctx context.Context, userID string) error             { return nil }
func (f *fakeAdminRepo) List(ctx context.Context) ([]*entities.AdminRecord, error)   { return nil, nil }

type fakeAssignmentRepo struct{ assignments []*entities.RoleAssignment }

func (f *fakeAssignmentRepo) GetByID(ctx context.Context, id string) (*entities.RoleAssignment, error) {
	return nil, repositories.ErrNotFound
}
func (f *fakeAssignmentRepo) ListActiveByUser(ctx context.Context, userID, businessID string) ([]*entities.RoleAssignment, error) {
	var out []*entities.RoleAssignment
	for _, a := range f.assignments {
		if a.UserID == userID && a.BusinessID == businessID {
			out = append(out, a)
		}
	}
	return out, nil
}
func (f *fakeAssignmentRepo) Create(ctx context.Context, a *entities.RoleAssignment) error { return nil }
func (f *fakeAssignmentRepo) Deactivate(ctx context.Context, id string) error              { return nil }
func (f *fakeAssignmentRepo) SetCustomPermissions(ctx context.Context, id string, perms []entities.CustomPermission) error {
	return nil
}

type fakeTemplateRepo struct{ templates map[string]*entities.RoleTemplate }

func (f *fakeTemplateRepo) GetByID(ctx context.Context, id string) (*entities.RoleTemplate, error) {
	tpl, ok := f.templates[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return tpl, nil
}
func (f *fakeTemplateRepo) GetByName(ctx context.Context, businessID, name string) (*entities.RoleTemplate, error) {
	return nil, repositories.ErrNotFound
}
func (f *fakeTemplateRepo) ListByBusiness(ctx context.Context, businessID string) ([]*entities.RoleTemplate, error) {
	return nil, nil
}
func (f *fakeTemplateRepo) Create(ctx context.Context, tpl *entities.RoleTemplate) error { return nil }
func (f *fakeTemplateRepo) Update(ctx context.Context, tpl *entities.RoleTemplate) error { return nil }
func (f *fakeTemplateRepo) Delete(ctx context.Context, id string) error                  { return nil }
func (f *fakeTemplateRepo) CountActiveAssignments(ctx context.Context, id string) (int, error) {
	return 0, nil
}

type fakePermissionRepo struct{ definitions map[string]*entities.PermissionDefinition }

func (f *fakePermissionRepo) GetByID(ctx context.Context, id string) (*entities.PermissionDefinition, error) {
	def, ok := f.definitions[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return def, nil
}
func (f *fakePermissionRepo) GetByIDs(ctx context.Context, ids []string) ([]*entities.PermissionDefinition, error) {
	var out []*entities.PermissionDefinition
	for _, id := range ids {
		if def, ok := f.definitions[id]; ok {
			out = append(out, def)
		}
	}
	return out, nil
}
func (f *fakePermissionRepo) GetByNames(ctx context.Context, names []string, businessID string) ([]*entities.PermissionDefinition, error) {
	return nil, nil
}
func (f *fakePermissionRepo) ListGlobal(ctx context.Context) ([]*entities.PermissionDefinition, error) {
	return nil, nil
}
func (f *fakePermissionRepo) ListByBusiness(ctx context.Context, businessID string) ([]*entities.PermissionDefinition, error) {
	return nil, nil
}
func (f *fakePermissionRepo) Create(ctx context.Context, def *entities.PermissionDefinition) error {
	return nil
}
func (f *fakePermissionRepo) CreateBatch(ctx context.Context, defs []*entities.PermissionDefinition) error {
	return nil
}

// newTestServer grants alice project:read in business B1 and makes root a
// system admin.
func newTestServer() *Server {
	admins := &fakeAdminRepo{admins: map[string]bool{"root": true}}
	assignments := &fakeAssignmentRepo{assignments: []*entities.RoleAssignment{
		{
			ID: "a1", UserID: "alice", BusinessID: "B1", RoleTemplateID: "tpl-viewer",
			IsActive: true, Scope: entities.Scope{IsGlobal: true},
		},
	}}
	templates := &fakeTemplateRepo{templates: map[string]*entities.RoleTemplate{
		"tpl-viewer": {ID: "tpl-viewer", BusinessID: "B1", Name: "viewer", BasePermissionIDs: []string{"pd-read"}},
	}}
	permissions := &fakePermissionRepo{definitions: map[string]*entities.PermissionDefinition{
		"pd-read": {ID: "pd-read", Resource: "project", Action: "read", Name: "project:read"},
	}}

	evaluator := authorization.NewEvaluator(admins, assignments, templates, permissions, nil)
	return NewServer(access.NewService(evaluator, admins, assignments, nil), nil)
}

func TestHandleCheck(t *testing.T) {
	server := newTestServer()

	tests := []struct {
		name        string
		body        string
		wantStatus  int
		wantGranted bool
		wantSource  string
	}{
		{
			name:        "granted via base permission",
			body:        `{"userId":"alice","permission":"project:read","businessId":"B1"}`,
			wantStatus:  http.StatusOK,
			wantGranted: true,
			wantSource:  "base_permission",
		},
		{
			name:        "admin bypass",
			body:        `{"userId":"root","permission":"anything:goes","businessId":"B1"}`,
			wantStatus:  http.StatusOK,
			wantGranted: true,
			wantSource:  "system_admin",
		},
		{
			name:       "denied",
			body:       `{"userId":"alice","permission":"project:delete","businessId":"B1"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing business context denies",
			body:       `{"userId":"alice","permission":"project:read"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "malformed permission",
			body:       `{"userId":"alice","permission":"nope","businessId":"B1"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing fields",
			body:       `{"permission":"project:read"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid json",
			body:       `{`,
			wantStatus: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/check", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var resp checkResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Granted != tt.wantGranted {
				t.Errorf("granted = %v, want %v", resp.Granted, tt.wantGranted)
			}
			if tt.wantSource != "" && resp.Source != tt.wantSource {
				t.Errorf("source = %q, want %q", resp.Source, tt.wantSource)
			}
		})
	}
}

func TestHandlePermissions(t *testing.T) {
	server := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/v1/permissions?userId=alice&businessId=B1", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp permissionsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	found := false
	for _, name := range resp.Permissions {
		if name == "project:read" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected project:read in resolved set, got %v", resp.Permissions)
	}
}

func TestHandlePermissions_MissingParams(t *testing.T) {
	server := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/v1/permissions?userId=alice", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleHealth(t *testing.T) {
	server := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}
