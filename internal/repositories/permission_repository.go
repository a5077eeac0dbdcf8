package repositories

import (
	"context"

	"github.com/halloran/castellan/internal/entities"
)

// PermissionRepository defines data access for the permission catalog.
type PermissionRepository interface {
	// GetByID retrieves a single permission definition.
	// Returns ErrNotFound if no definition matches.
	GetByID(ctx context.Context, id string) (*entities.PermissionDefinition, error)

	// GetByIDs retrieves the definitions for the given ids.
	// Missing ids are silently skipped.
	GetByIDs(ctx context.Context, ids []string) ([]*entities.PermissionDefinition, error)

	// GetByNames retrieves definitions matching the given names.
	// Global definitions always match; business-scoped definitions match
	// only when businessID is the same. Unknown names are skipped.
	GetByNames(ctx context.Context, names []string, businessID string) ([]*entities.PermissionDefinition, error)

	// ListGlobal retrieves all global (system) permission definitions.
	ListGlobal(ctx context.Context) ([]*entities.PermissionDefinition, error)

	// ListByBusiness retrieves all definitions scoped to a business.
	ListByBusiness(ctx context.Context, businessID string) ([]*entities.PermissionDefinition, error)

	// Create stores a new permission definition.
	Create(ctx context.Context, def *entities.PermissionDefinition) error

	// CreateBatch stores multiple definitions. Used by seeding; callers
	// that need atomicity run it inside a transaction.
	CreateBatch(ctx context.Context, defs []*entities.PermissionDefinition) error
}
