package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/halloran/castellan/internal/entities"
	"github.com/halloran/castellan/internal/repositories"
)

// AssignmentRepository implements repositories.AssignmentRepository using PostgreSQL.
type AssignmentRepository struct {
	db DBTX
}

// NewAssignmentRepository creates a new PostgreSQL assignment repository.
func NewAssignmentRepository(db DBTX) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

const assignmentColumns = `id, user_id, business_id, role_template_id, is_active, is_owner, scope_is_global, scope_project_ids, custom_permissions, assigned_by, assigned_at, expires_at`

func scanAssignment(row interface{ Scan(...any) error }) (*entities.RoleAssignment, error) {
	var a entities.RoleAssignment
	var projectIDs pq.StringArray
	var customJSON []byte
	var expiresAt sql.NullTime
	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.BusinessID,
		&a.RoleTemplateID,
		&a.IsActive,
		&a.IsOwner,
		&a.Scope.IsGlobal,
		&projectIDs,
		&customJSON,
		&a.AssignedBy,
		&a.AssignedAt,
		&expiresAt,
	)
	if err != nil {
		return nil, err
	}
	a.Scope.ProjectIDs = projectIDs
	if expiresAt.Valid {
		t := expiresAt.Time
		a.ExpiresAt = &t
	}
	if len(customJSON) > 0 {
		if err := json.Unmarshal(customJSON, &a.CustomPermissions); err != nil {
			return nil, fmt.Errorf("failed to decode custom permissions: %w", err)
		}
	}
	return &a, nil
}

// GetByID retrieves an assignment.
func (r *AssignmentRepository) GetByID(ctx context.Context, id string) (*entities.RoleAssignment, error) {
	query := fmt.Sprintf(`SELECT %s FROM role_assignments WHERE id = $1`, assignmentColumns)
	a, err := scanAssignment(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, repositories.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return a, nil
}

// ListActiveByUser retrieves all active, unexpired assignments for a user
// within a business.
func (r *AssignmentRepository) ListActiveByUser(ctx context.Context, userID, businessID string) ([]*entities.RoleAssignment, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM role_assignments
		WHERE user_id = $1 AND business_id = $2 AND is_active = TRUE
		  AND (expires_at IS NULL OR expires_at > $3)
	`, assignmentColumns)
	rows, err := r.db.QueryContext(ctx, query, userID, businessID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	var assignments []*entities.RoleAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate assignments: %w", err)
	}
	return assignments, nil
}

// Create stores a new assignment.
func (r *AssignmentRepository) Create(ctx context.Context, a *entities.RoleAssignment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.AssignedAt.IsZero() {
		a.AssignedAt = time.Now()
	}
	customJSON, err := json.Marshal(a.CustomPermissions)
	if err != nil {
		return fmt.Errorf("failed to encode custom permissions: %w", err)
	}
	query := `
		INSERT INTO role_assignments (id, user_id, business_id, role_template_id, is_active, is_owner, scope_is_global, scope_project_ids, custom_permissions, assigned_by, assigned_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = r.db.ExecContext(ctx, query,
		a.ID,
		a.UserID,
		a.BusinessID,
		a.RoleTemplateID,
		a.IsActive,
		a.IsOwner,
		a.Scope.IsGlobal,
		pq.Array(a.Scope.ProjectIDs),
		customJSON,
		a.AssignedBy,
		a.AssignedAt,
		a.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create assignment: %w", err)
	}
	return nil
}

// Deactivate marks an assignment inactive.
func (r *AssignmentRepository) Deactivate(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE role_assignments SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate assignment: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

// SetCustomPermissions replaces the per-assignment permission overrides.
func (r *AssignmentRepository) SetCustomPermissions(ctx context.Context, id string, perms []entities.CustomPermission) error {
	customJSON, err := json.Marshal(perms)
	if err != nil {
		return fmt.Errorf("failed to encode custom permissions: %w", err)
	}
	result, err := r.db.ExecContext(ctx, `UPDATE role_assignments SET custom_permissions = $1 WHERE id = $2`, customJSON, id)
	if err != nil {
		return fmt.Errorf("failed to set custom permissions: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repositories.ErrNotFound
	}
	return nil
}
