package repositories

import (
	"context"

	"github.com/halloran/castellan/internal/entities"
)

// RoleTemplateRepository defines data access for role templates.
type RoleTemplateRepository interface {
	// GetByID retrieves a role template. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id string) (*entities.RoleTemplate, error)

	// GetByName retrieves a role template by its per-business unique name.
	// Returns ErrNotFound if absent.
	GetByName(ctx context.Context, businessID, name string) (*entities.RoleTemplate, error)

	// ListByBusiness retrieves all role templates for a business,
	// ordered by hierarchy level.
	ListByBusiness(ctx context.Context, businessID string) ([]*entities.RoleTemplate, error)

	// Create stores a new role template.
	Create(ctx context.Context, tpl *entities.RoleTemplate) error

	// Update replaces a template's mutable fields.
	// Returns ErrSystemTemplate for system templates.
	Update(ctx context.Context, tpl *entities.RoleTemplate) error

	// Delete removes a role template. Returns ErrSystemTemplate for system
	// templates and ErrTemplateInUse while active assignments reference it.
	Delete(ctx context.Context, id string) error

	// CountActiveAssignments counts active assignments referencing the template.
	CountActiveAssignments(ctx context.Context, id string) (int, error)
}
