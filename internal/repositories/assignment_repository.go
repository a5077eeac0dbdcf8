package repositories

import (
	"context"

	"github.com/halloran/castellan/internal/entities"
)

// AssignmentRepository defines data access for role assignments.
type AssignmentRepository interface {
	// GetByID retrieves an assignment. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id string) (*entities.RoleAssignment, error)

	// ListActiveByUser retrieves all assignments for a user within a
	// business that are active and not expired.
	ListActiveByUser(ctx context.Context, userID, businessID string) ([]*entities.RoleAssignment, error)

	// Create stores a new assignment.
	Create(ctx context.Context, a *entities.RoleAssignment) error

	// Deactivate marks an assignment inactive. Returns ErrNotFound if absent.
	Deactivate(ctx context.Context, id string) error

	// SetCustomPermissions replaces the per-assignment permission overrides.
	// Returns ErrNotFound if the assignment is absent.
	SetCustomPermissions(ctx context.Context, id string, perms []entities.CustomPermission) error
}

// AdminRepository defines data access for the system administrator registry.
type AdminRepository interface {
	// IsAdmin reports whether the user is a system-wide administrator.
	IsAdmin(ctx context.Context, userID string) (bool, error)

	// Create registers a user as a system administrator.
	Create(ctx context.Context, rec *entities.AdminRecord) error

	// Delete removes a user from the registry. Returns ErrNotFound if absent.
	Delete(ctx context.Context, userID string) error

	// List retrieves all administrator records.
	List(ctx context.Context) ([]*entities.AdminRecord, error)
}
