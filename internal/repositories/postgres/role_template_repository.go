package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/halloran/castellan/internal/entities"
	"github.com/halloran/castellan/internal/repositories"
)

// RoleTemplateRepository implements repositories.RoleTemplateRepository using PostgreSQL.
type RoleTemplateRepository struct {
	db DBTX
}

// NewRoleTemplateRepository creates a new PostgreSQL role template repository.
func NewRoleTemplateRepository(db DBTX) *RoleTemplateRepository {
	return &RoleTemplateRepository{db: db}
}

const templateColumns = `id, business_id, name, description, is_system, hierarchy_level, base_permission_ids, can_invite_users, can_create_projects, can_assign_roles, COALESCE(parent_role_id, ''), max_projects, created_at, updated_at`

func scanTemplate(row interface{ Scan(...any) error }) (*entities.RoleTemplate, error) {
	var tpl entities.RoleTemplate
	var baseIDs pq.StringArray
	err := row.Scan(
		&tpl.ID,
		&tpl.BusinessID,
		&tpl.Name,
		&tpl.Description,
		&tpl.IsSystem,
		&tpl.HierarchyLevel,
		&baseIDs,
		&tpl.Meta.CanInviteUsers,
		&tpl.Meta.CanCreateProjects,
		&tpl.Meta.CanAssignRoles,
		&tpl.ParentRoleID,
		&tpl.Constraints.MaxProjects,
		&tpl.CreatedAt,
		&tpl.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	tpl.BasePermissionIDs = baseIDs
	return &tpl, nil
}

// GetByID retrieves a role template.
func (r *RoleTemplateRepository) GetByID(ctx context.Context, id string) (*entities.RoleTemplate, error) {
	query := fmt.Sprintf(`SELECT %s FROM role_templates WHERE id = $1`, templateColumns)
	tpl, err := scanTemplate(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, repositories.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role template: %w", err)
	}
	return tpl, nil
}

// GetByName retrieves a role template by its per-business unique name.
func (r *RoleTemplateRepository) GetByName(ctx context.Context, businessID, name string) (*entities.RoleTemplate, error) {
	query := fmt.Sprintf(`SELECT %s FROM role_templates WHERE business_id = $1 AND name = $2`, templateColumns)
	tpl, err := scanTemplate(r.db.QueryRowContext(ctx, query, businessID, name))
	if err == sql.ErrNoRows {
		return nil, repositories.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role template by name: %w", err)
	}
	return tpl, nil
}

// ListByBusiness retrieves all role templates for a business ordered by seniority.
func (r *RoleTemplateRepository) ListByBusiness(ctx context.Context, businessID string) ([]*entities.RoleTemplate, error) {
	query := fmt.Sprintf(`SELECT %s FROM role_templates WHERE business_id = $1 ORDER BY hierarchy_level`, templateColumns)
	rows, err := r.db.QueryContext(ctx, query, businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to query role templates: %w", err)
	}
	defer rows.Close()

	var tpls []*entities.RoleTemplate
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role template: %w", err)
		}
		tpls = append(tpls, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate role templates: %w", err)
	}
	return tpls, nil
}

// Create stores a new role template.
func (r *RoleTemplateRepository) Create(ctx context.Context, tpl *entities.RoleTemplate) error {
	if tpl.ID == "" {
		tpl.ID = uuid.NewString()
	}
	query := `
		INSERT INTO role_templates (id, business_id, name, description, is_system, hierarchy_level, base_permission_ids, can_invite_users, can_create_projects, can_assign_roles, parent_role_id, max_projects, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12, $13, $13)
	`
	_, err := r.db.ExecContext(ctx, query,
		tpl.ID,
		tpl.BusinessID,
		tpl.Name,
		tpl.Description,
		tpl.IsSystem,
		tpl.HierarchyLevel,
		pq.Array(tpl.BasePermissionIDs),
		tpl.Meta.CanInviteUsers,
		tpl.Meta.CanCreateProjects,
		tpl.Meta.CanAssignRoles,
		tpl.ParentRoleID,
		tpl.Constraints.MaxProjects,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to create role template: %w", err)
	}
	return nil
}

// Update replaces a template's mutable fields. System templates are immutable.
func (r *RoleTemplateRepository) Update(ctx context.Context, tpl *entities.RoleTemplate) error {
	current, err := r.GetByID(ctx, tpl.ID)
	if err != nil {
		return err
	}
	if current.IsSystem {
		return repositories.ErrSystemTemplate
	}
	query := `
		UPDATE role_templates
		SET description = $1, hierarchy_level = $2, base_permission_ids = $3,
		    can_invite_users = $4, can_create_projects = $5, can_assign_roles = $6,
		    parent_role_id = NULLIF($7, ''), max_projects = $8, updated_at = $9
		WHERE id = $10
	`
	_, err = r.db.ExecContext(ctx, query,
		tpl.Description,
		tpl.HierarchyLevel,
		pq.Array(tpl.BasePermissionIDs),
		tpl.Meta.CanInviteUsers,
		tpl.Meta.CanCreateProjects,
		tpl.Meta.CanAssignRoles,
		tpl.ParentRoleID,
		tpl.Constraints.MaxProjects,
		time.Now(),
		tpl.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update role template: %w", err)
	}
	return nil
}

// Delete removes a role template, refusing system templates and templates
// still referenced by active assignments.
func (r *RoleTemplateRepository) Delete(ctx context.Context, id string) error {
	tpl, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if tpl.IsSystem {
		return repositories.ErrSystemTemplate
	}
	count, err := r.CountActiveAssignments(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return repositories.ErrTemplateInUse
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM role_templates WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete role template: %w", err)
	}
	return nil
}

// CountActiveAssignments counts active assignments referencing the template.
func (r *RoleTemplateRepository) CountActiveAssignments(ctx context.Context, id string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM role_assignments WHERE role_template_id = $1 AND is_active = TRUE`
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count assignments: %w", err)
	}
	return count, nil
}
