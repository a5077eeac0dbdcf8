package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/halloran/castellan/internal/entities"
	"github.com/halloran/castellan/internal/repositories"
)

func templateRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "business_id", "name", "description", "is_system", "hierarchy_level",
		"base_permission_ids", "can_invite_users", "can_create_projects", "can_assign_roles",
		"parent_role_id", "max_projects", "created_at", "updated_at",
	})
}

func addTemplateRow(rows *sqlmock.Rows, id string, isSystem bool) *sqlmock.Rows {
	now := time.Now()
	return rows.AddRow(id, "B1", "manager", "", isSystem, 2,
		"{pd-1,pd-2}", true, true, false, "", 25, now, now)
}

func TestRoleTemplateRepository_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT .+ FROM role_templates WHERE id = \\$1").
		WithArgs("tpl-1").
		WillReturnRows(addTemplateRow(templateRows(), "tpl-1", false))

	repo := NewRoleTemplateRepository(db)
	tpl, err := repo.GetByID(context.Background(), "tpl-1")
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if tpl.Name != "manager" || len(tpl.BasePermissionIDs) != 2 {
		t.Errorf("unexpected template: %+v", tpl)
	}
	if !tpl.Meta.CanInviteUsers || tpl.Meta.CanAssignRoles {
		t.Errorf("unexpected meta flags: %+v", tpl.Meta)
	}
	if tpl.Constraints.MaxProjects != 25 {
		t.Errorf("max projects = %d, want 25", tpl.Constraints.MaxProjects)
	}
}

func TestRoleTemplateRepository_Delete_SystemTemplate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT .+ FROM role_templates WHERE id = \\$1").
		WithArgs("tpl-sys").
		WillReturnRows(addTemplateRow(templateRows(), "tpl-sys", true))

	repo := NewRoleTemplateRepository(db)
	err = repo.Delete(context.Background(), "tpl-sys")
	if !errors.Is(err, repositories.ErrSystemTemplate) {
		t.Errorf("expected ErrSystemTemplate, got %v", err)
	}
}

func TestRoleTemplateRepository_Delete_InUse(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT .+ FROM role_templates WHERE id = \\$1").
		WithArgs("tpl-1").
		WillReturnRows(addTemplateRow(templateRows(), "tpl-1", false))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM role_assignments").
		WithArgs("tpl-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	repo := NewRoleTemplateRepository(db)
	err = repo.Delete(context.Background(), "tpl-1")
	if !errors.Is(err, repositories.ErrTemplateInUse) {
		t.Errorf("expected ErrTemplateInUse, got %v", err)
	}
}

func TestRoleTemplateRepository_Update_SystemTemplate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT .+ FROM role_templates WHERE id = \\$1").
		WithArgs("tpl-sys").
		WillReturnRows(addTemplateRow(templateRows(), "tpl-sys", true))

	repo := NewRoleTemplateRepository(db)
	err = repo.Update(context.Background(), &entities.RoleTemplate{ID: "tpl-sys"})
	if !errors.Is(err, repositories.ErrSystemTemplate) {
		t.Errorf("expected ErrSystemTemplate, got %v", err)
	}
}
