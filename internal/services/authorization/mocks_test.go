package authorization

import (
	"context"
	"errors"

	"github.com/halloran/castellan/internal/entities"
	"github.com/halloran/castellan/internal/repositories"
)

type mockAdminRepository struct {
	admins map[string]bool
	err    error
}

func (m *mockAdminRepository) IsAdmin(ctx context.Context, userID string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	return m.admins[userID], nil
}

func (m *mockAdminRepository) Create(ctx context.Context, rec *entities.AdminRecord) error {
	if m.admins == nil {
		m.admins = make(map[string]bool)
	}
	m.admins[rec.UserID] = true
	return nil
}

func (m *mockAdminRepository) Delete(ctx context.Context, userID string) error {
	if !m.admins[userID] {
		return repositories.ErrNotFound
	}
	delete(m.admins, userID)
	return nil
}

func (m *mockAdminRepository) List(ctx context.Context) ([]*entities.AdminRecord, error) {
	var records []*entities.AdminRecord
	for userID := range m.admins {
		records = append(records, &entities.AdminRecord{UserID: userID})
	}
	return records, nil
}

type mockAssignmentRepository struct {
	assignments []*entities.RoleAssignment
	err         error
}

func (m *mockAssignmentRepository) GetByID(ctx context.Context, id string) (*entities.RoleAssignment, error) {
	for _, a := range m.assignments {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (m *mockAssignmentRepository) ListActiveByUser(ctx context.Context, userID, businessID string) ([]*entities.RoleAssignment, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*entities.RoleAssignment
	for _, a := range m.assignments {
		if a.UserID == userID && a.BusinessID == businessID && a.IsActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockAssignmentRepository) Create(ctx context.Context, a *entities.RoleAssignment) error {
	m.assignments = append(m.assignments, a)
	return nil
}

func (m *mockAssignmentRepository) Deactivate(ctx context.Context, id string) error {
	for _, a := range m.assignments {
		if a.ID == id {
			a.IsActive = false
			return nil
		}
	}
	return repositories.ErrNotFound
}

func (m *mockAssignmentRepository) SetCustomPermissions(ctx context.Context, id string, perms []entities.CustomPermission) error {
	for _, a := range m.assignments {
		if a.ID == id {
			a.CustomPermissions = perms
			return nil
		}
	}
	return repositories.ErrNotFound
}

type mockTemplateRepository struct {
	templates map[string]*entities.RoleTemplate
	err       error
}

func (m *mockTemplateRepository) GetByID(ctx context.Context, id string) (*entities.RoleTemplate, error) {
	if m.err != nil {
		return nil, m.err
	}
	tpl, ok := m.templates[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return tpl, nil
}

func (m *mockTemplateRepository) GetByName(ctx context.Context, businessID, name string) (*entities.RoleTemplate, error) {
	for _, tpl := range m.templates {
		if tpl.BusinessID == businessID && tpl.Name == name {
			return tpl, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (m *mockTemplateRepository) ListByBusiness(ctx context.Context, businessID string) ([]*entities.RoleTemplate, error) {
	var out []*entities.RoleTemplate
	for _, tpl := range m.templates {
		if tpl.BusinessID == businessID {
			out = append(out, tpl)
		}
	}
	return out, nil
}

func (m *mockTemplateRepository) Create(ctx context.Context, tpl *entities.RoleTemplate) error {
	if m.templates == nil {
		m.templates = make(map[string]*entities.RoleTemplate)
	}
	m.templates[tpl.ID] = tpl
	return nil
}

func (m *mockTemplateRepository) Update(ctx context.Context, tpl *entities.RoleTemplate) error {
	if _, ok := m.templates[tpl.ID]; !ok {
		return repositories.ErrNotFound
	}
	m.templates[tpl.ID] = tpl
	return nil
}

func (m *mockTemplateRepository) Delete(ctx context.Context, id string) error {
	if _, ok := m.templates[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(m.templates, id)
	return nil
}

func (m *mockTemplateRepository) CountActiveAssignments(ctx context.Context, id string) (int, error) {
	return 0, nil
}

type mockPermissionRepository struct {
	definitions map[string]*entities.PermissionDefinition // keyed by id
	err         error
}

func (m *mockPermissionRepository) GetByID(ctx context.Context, id string) (*entities.PermissionDefinition, error) {
	def, ok := m.definitions[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return def, nil
}

func (m *mockPermissionRepository) GetByIDs(ctx context.Context, ids []string) ([]*entities.PermissionDefinition, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*entities.PermissionDefinition
	for _, id := range ids {
		if def, ok := m.definitions[id]; ok {
			out = append(out, def)
		}
	}
	return out, nil
}

func (m *mockPermissionRepository) GetByNames(ctx context.Context, names []string, businessID string) ([]*entities.PermissionDefinition, error) {
	var out []*entities.PermissionDefinition
	for _, def := range m.definitions {
		for _, name := range names {
			if def.Name == name && (def.BusinessID == "" || def.BusinessID == businessID) {
				out = append(out, def)
			}
		}
	}
	return out, nil
}

func (m *mockPermissionRepository) ListGlobal(ctx context.Context) ([]*entities.PermissionDefinition, error) {
	var out []*entities.PermissionDefinition
	for _, def := range m.definitions {
		if def.IsGlobal() {
			out = append(out, def)
		}
	}
	return out, nil
}

func (m *mockPermissionRepository) ListByBusiness(ctx context.Context, businessID string) ([]*entities.PermissionDefinition, error) {
	var out []*entities.PermissionDefinition
	for _, def := range m.definitions {
		if def.BusinessID == businessID {
			out = append(out, def)
		}
	}
	return out, nil
}

func (m *mockPermissionRepository) Create(ctx context.Context, def *entities.PermissionDefinition) error {
	if m.definitions == nil {
		m.definitions = make(map[string]*entities.PermissionDefinition)
	}
	m.definitions[def.ID] = def
	return nil
}

func (m *mockPermissionRepository) CreateBatch(ctx context.Context, defs []*entities.PermissionDefinition) error {
	for _, def := range defs {
		if err := m.Create(ctx, def); err != nil {
			return err
		}
	}
	return nil
}

var errStoreDown = errors.New("store unavailable")
