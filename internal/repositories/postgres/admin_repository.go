package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/halloran/castellan/internal/entities"
	"github.com/halloran/castellan/internal/repositories"
)

// AdminRepository implements repositories.AdminRepository using PostgreSQL.
type AdminRepository struct {
	db DBTX
}

// NewAdminRepository creates a new PostgreSQL admin registry repository.
func NewAdminRepository(db DBTX) *AdminRepository {
	return &AdminRepository{db: db}
}

// IsAdmin reports whether the user is a system-wide administrator.
func (r *AdminRepository) IsAdmin(ctx context.Context, userID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM admins WHERE user_id = $1)`
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check admin registry: %w", err)
	}
	return exists, nil
}

// Create registers a user as a system administrator.
func (r *AdminRepository) Create(ctx context.Context, rec *entities.AdminRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	query := `
		INSERT INTO admins (user_id, granted_by, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, rec.UserID, rec.GrantedBy, rec.CreatedAt); err != nil {
		return fmt.Errorf("failed to create admin record: %w", err)
	}
	return nil
}

// Delete removes a user from the registry.
func (r *AdminRepository) Delete(ctx context.Context, userID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM admins WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete admin record: %w", err)
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

// List retrieves all administrator records.
func (r *AdminRepository) List(ctx context.Context) ([]*entities.AdminRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id, granted_by, created_at FROM admins ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query admin registry: %w", err)
	}
	defer rows.Close()

	var records []*entities.AdminRecord
	for rows.Next() {
		var rec entities.AdminRecord
		if err := rows.Scan(&rec.UserID, &rec.GrantedBy, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan admin record: %w", err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate admin records: %w", err)
	}
	return records, nil
}
