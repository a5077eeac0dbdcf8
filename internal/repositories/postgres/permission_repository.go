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

// PermissionRepository implements repositories.PermissionRepository using PostgreSQL.
type PermissionRepository struct {
	db DBTX
}

// NewPermissionRepository creates a new PostgreSQL permission repository.
func NewPermissionRepository(db DBTX) *PermissionRepository {
	return &PermissionRepository{db: db}
}

const permissionColumns = `id, COALESCE(business_id, ''), resource, COALESCE(sub_resource, ''), action, name, description, category, is_system, implications, created_at, updated_at`

func scanPermission(row interface{ Scan(...any) error }) (*entities.PermissionDefinition, error) {
	var def entities.PermissionDefinition
	var implications pq.StringArray
	err := row.Scan(
		&def.ID,
		&def.BusinessID,
		&def.Resource,
		&def.SubResource,
		&def.Action,
		&def.Name,
		&def.Description,
		&def.Category,
		&def.IsSystem,
		&implications,
		&def.CreatedAt,
		&def.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	def.Implications = implications
	return &def, nil
}

// GetByID retrieves a single permission definition.
func (r *PermissionRepository) GetByID(ctx context.Context, id string) (*entities.PermissionDefinition, error) {
	query := fmt.Sprintf(`SELECT %s FROM permissions WHERE id = $1`, permissionColumns)
	def, err := scanPermission(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, repositories.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}
	return def, nil
}

// GetByIDs retrieves the definitions for the given ids, skipping missing ones.
func (r *PermissionRepository) GetByIDs(ctx context.Context, ids []string) ([]*entities.PermissionDefinition, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM permissions WHERE id = ANY($1)`, permissionColumns)
	return r.queryPermissions(ctx, query, pq.Array(ids))
}

// GetByNames retrieves definitions matching the given names. Global
// definitions always match; business-scoped ones match only the given business.
func (r *PermissionRepository) GetByNames(ctx context.Context, names []string, businessID string) ([]*entities.PermissionDefinition, error) {
	if len(names) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
		SELECT %s FROM permissions
		WHERE name = ANY($1) AND (business_id IS NULL OR business_id = $2)
	`, permissionColumns)
	return r.queryPermissions(ctx, query, pq.Array(names), businessID)
}

// ListGlobal retrieves all global (system) permission definitions.
func (r *PermissionRepository) ListGlobal(ctx context.Context) ([]*entities.PermissionDefinition, error) {
	query := fmt.Sprintf(`SELECT %s FROM permissions WHERE business_id IS NULL ORDER BY name`, permissionColumns)
	return r.queryPermissions(ctx, query)
}

// ListByBusiness retrieves all definitions scoped to a business.
func (r *PermissionRepository) ListByBusiness(ctx context.Context, businessID string) ([]*entities.PermissionDefinition, error) {
	query := fmt.Sprintf(`SELECT %s FROM permissions WHERE business_id = $1 ORDER BY name`, permissionColumns)
	return r.queryPermissions(ctx, query, businessID)
}

// Create stores a new permission definition.
func (r *PermissionRepository) Create(ctx context.Context, def *entities.PermissionDefinition) error {
	if err := def.Validate(); err != nil {
		return fmt.Errorf("invalid permission definition: %w", err)
	}
	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	query := `
		INSERT INTO permissions (id, business_id, resource, sub_resource, action, name, description, category, is_system, implications, created_at, updated_at)
		VALUES ($1, NULLIF($2, ''), $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $11)
	`
	_, err := r.db.ExecContext(ctx, query,
		def.ID,
		def.BusinessID,
		def.Resource,
		def.SubResource,
		def.Action,
		def.Name,
		def.Description,
		def.Category,
		def.IsSystem,
		pq.Array(def.Implications),
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to create permission: %w", err)
	}
	return nil
}

// CreateBatch stores multiple definitions. Atomicity is the caller's
// concern: the seeder runs this inside a transaction.
func (r *PermissionRepository) CreateBatch(ctx context.Context, defs []*entities.PermissionDefinition) error {
	for _, def := range defs {
		if err := r.Create(ctx, def); err != nil {
			return err
		}
	}
	return nil
}

func (r *PermissionRepository) queryPermissions(ctx context.Context, query string, args ...any) ([]*entities.PermissionDefinition, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query permissions: %w", err)
	}
	defer rows.Close()

	var defs []*entities.PermissionDefinition
	for rows.Next() {
		def, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate permissions: %w", err)
	}
	return defs, nil
}
