package seeding

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/halloran/castellan/internal/entities"
	"github.com/halloran/castellan/internal/repositories/postgres"
)

// Seeder populates a new business with its permission catalog and role
// templates. The whole onboarding runs in one transaction: a business with
// permissions but no templates referencing them would be unusable, so
// partial seeding must never be observable.
type Seeder struct {
	db        *sql.DB
	registry  []*entities.PermissionDefinition
	templates []TemplateSpec
	logger    *zap.Logger
}

// NewSeeder creates a seeder over the default catalog.
func NewSeeder(db *sql.DB, logger *zap.Logger) *Seeder {
	return NewSeederWithCatalog(db, DefaultRegistry(), DefaultTemplates(), logger)
}

// NewSeederWithCatalog creates a seeder over a custom registry and
// template list. Templates must be ordered parents-first.
func NewSeederWithCatalog(db *sql.DB, registry []*entities.PermissionDefinition, templates []TemplateSpec, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{db: db, registry: registry, templates: templates, logger: logger}
}

// SeedBusiness creates the business-scoped permission definitions and role
// templates atomically.
func (s *Seeder) SeedBusiness(ctx context.Context, businessID string) error {
	if businessID == "" {
		return fmt.Errorf("seed business: business id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin seeding transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.seed(ctx, tx, businessID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seeding transaction: %w", err)
	}
	s.logger.Info("seeded business catalog",
		zap.String("business_id", businessID),
		zap.Int("permissions", len(s.registry)),
		zap.Int("templates", len(s.templates)),
	)
	return nil
}

func (s *Seeder) seed(ctx context.Context, tx *sql.Tx, businessID string) error {
	permissions := postgres.NewPermissionRepository(tx)
	templates := postgres.NewRoleTemplateRepository(tx)

	// Clone the registry so business-scoped copies get their own ids.
	defs := make([]*entities.PermissionDefinition, len(s.registry))
	for i, src := range s.registry {
		clone := *src
		clone.ID = ""
		clone.BusinessID = businessID
		defs[i] = &clone
	}
	if err := permissions.CreateBatch(ctx, defs); err != nil {
		return fmt.Errorf("failed to seed permissions for business %s: %w", businessID, err)
	}

	created := make(map[string]*entities.RoleTemplate, len(s.templates))
	for _, spec := range s.templates {
		selected := ApplyPermissionRules(defs, spec.Rules)
		ids := make([]string, len(selected))
		for i, def := range selected {
			ids[i] = def.ID
		}

		tpl := &entities.RoleTemplate{
			BusinessID:        businessID,
			Name:              spec.Name,
			Description:       spec.Description,
			IsSystem:          true,
			HierarchyLevel:    spec.HierarchyLevel,
			BasePermissionIDs: ids,
			Meta:              spec.Meta,
			Constraints:       spec.Constraints,
		}
		if spec.ParentName != "" {
			parent, ok := created[spec.ParentName]
			if !ok {
				return fmt.Errorf("template %q references unknown parent %q", spec.Name, spec.ParentName)
			}
			tpl.ParentRoleID = parent.ID
		}
		if err := templates.Create(ctx, tpl); err != nil {
			return fmt.Errorf("failed to seed template %q for business %s: %w", spec.Name, businessID, err)
		}
		created[spec.Name] = tpl
	}
	return nil
}
