// Package access exposes the engine's call surface to collaborators:
// boolean convenience checks backed by the policy evaluator, a resolved
// permission-set cache, and the mutation paths that keep it coherent.
package access

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/halloran/castellan/internal/entities"
	"github.com/halloran/castellan/internal/repositories"
	"github.com/halloran/castellan/internal/services/authorization"
	"github.com/halloran/castellan/pkg/cache"
)

// Context carries the business and resource context of a check.
type Context struct {
	BusinessID     string
	ResourceID     string
	ResourceKind   string
	RequestContext map[string]any
}

// Service answers permission questions and owns the cache that memoizes
// resolved permission sets per user and business.
type Service struct {
	evaluator   *authorization.Evaluator
	admins      repositories.AdminRepository
	assignments repositories.AssignmentRepository

	cache    cache.Cache // optional
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewService creates an access service without caching.
func NewService(
	evaluator *authorization.Evaluator,
	admins repositories.AdminRepository,
	assignments repositories.AssignmentRepository,
	logger *zap.Logger,
) *Service {
	return NewServiceWithCache(evaluator, admins, assignments, nil, 0, logger)
}

// NewServiceWithCache creates an access service with permission-set caching.
func NewServiceWithCache(
	evaluator *authorization.Evaluator,
	admins repositories.AdminRepository,
	assignments repositories.AssignmentRepository,
	c cache.Cache,
	cacheTTL time.Duration,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		evaluator:   evaluator,
		admins:      admins,
		assignments: assignments,
		cache:       c,
		cacheTTL:    cacheTTL,
		logger:      logger,
	}
}

func cacheKey(userID, businessID string) string {
	return userID + ":" + businessID
}

// Check runs a full evaluation and returns the structured decision.
// Always bypasses the cache so callers get an authoritative source.
func (s *Service) Check(ctx context.Context, userID, permission string, c Context) (*authorization.Decision, error) {
	perm, err := entities.ParsePermission(permission)
	if err != nil {
		return nil, err
	}
	return s.evaluator.Evaluate(ctx, userID, perm, authorization.EvalContext{
		BusinessID:     c.BusinessID,
		ResourceID:     c.ResourceID,
		ResourceKind:   c.ResourceKind,
		RequestContext: c.RequestContext,
	}), nil
}

// HasPermission reports whether the user holds the permission in the given
// context. Resource-independent checks are answered from the cached
// resolved set when possible; checks carrying a resource id always run the
// evaluator, since scope filters and resource-restricted overrides make
// the answer resource-dependent.
func (s *Service) HasPermission(ctx context.Context, userID, permission string, c Context) (bool, error) {
	perm, err := entities.ParsePermission(permission)
	if err != nil {
		// Malformed permission strings are programmer errors, not denials.
		return false, err
	}

	if c.ResourceID != "" || s.cache == nil {
		return s.evaluate(ctx, userID, perm, c), nil
	}

	// Admin bypass mirrors the evaluator's rule order and keeps admin
	// grants out of the per-business cache.
	if isAdmin, err := s.admins.IsAdmin(ctx, userID); err == nil && isAdmin {
		return true, nil
	}
	if c.BusinessID == "" {
		return false, nil
	}

	key := cacheKey(userID, c.BusinessID)
	if value, found := s.cache.Get(ctx, key); found {
		if set, ok := value.(*authorization.ResolvedSet); ok {
			if granted, decided := set.Decide(perm); decided {
				return granted, nil
			}
			// A condition-bearing override touches this permission;
			// only live evaluation can answer.
			return s.evaluate(ctx, userID, perm, c), nil
		}
	}

	set, err := s.evaluator.ResolveSet(ctx, userID, c.BusinessID)
	if err != nil {
		s.logger.Error("failed to resolve permissions",
			zap.String("user_id", userID),
			zap.String("business_id", c.BusinessID),
			zap.Error(err),
		)
		return false, nil // fail closed
	}
	if err := s.cache.Set(ctx, key, set, s.cacheTTL); err != nil {
		s.logger.Warn("failed to populate permission cache", zap.String("key", key), zap.Error(err))
	}
	if granted, decided := set.Decide(perm); decided {
		return granted, nil
	}
	return s.evaluate(ctx, userID, perm, c), nil
}

func (s *Service) evaluate(ctx context.Context, userID string, perm entities.Permission, c Context) bool {
	dec := s.evaluator.Evaluate(ctx, userID, perm, authorization.EvalContext{
		BusinessID:     c.BusinessID,
		ResourceID:     c.ResourceID,
		ResourceKind:   c.ResourceKind,
		RequestContext: c.RequestContext,
	})
	return dec.Granted
}

// HasAnyPermission reports whether any of the permissions is held.
func (s *Service) HasAnyPermission(ctx context.Context, userID string, permissions []string, c Context) (bool, error) {
	for _, permission := range permissions {
		ok, err := s.HasPermission(ctx, userID, permission, c)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// HasAllPermissions reports whether every permission is held.
// Short-circuits on the first missing one.
func (s *Service) HasAllPermissions(ctx context.Context, userID string, permissions []string, c Context) (bool, error) {
	for _, permission := range permissions {
		ok, err := s.HasPermission(ctx, userID, permission, c)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// ResolvePermissions returns the flattened grant set for a user within a
// business, from cache when available.
func (s *Service) ResolvePermissions(ctx context.Context, userID, businessID string) ([]entities.Permission, error) {
	if s.cache != nil {
		if value, found := s.cache.Get(ctx, cacheKey(userID, businessID)); found {
			if set, ok := value.(*authorization.ResolvedSet); ok {
				return set.Permissions(), nil
			}
		}
	}
	set, err := s.evaluator.ResolveSet(ctx, userID, businessID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, cacheKey(userID, businessID), set, s.cacheTTL)
	}
	return set.Permissions(), nil
}

// IsSystemAdmin reports whether the user is in the admin registry.
func (s *Service) IsSystemAdmin(ctx context.Context, userID string) (bool, error) {
	return s.admins.IsAdmin(ctx, userID)
}

// IsBusinessOwner reports whether the user holds an active owner
// assignment in the business. Bypasses the full evaluator.
func (s *Service) IsBusinessOwner(ctx context.Context, userID, businessID string) (bool, error) {
	assignments, err := s.assignments.ListActiveByUser(ctx, userID, businessID)
	if err != nil {
		return false, fmt.Errorf("failed to list assignments: %w", err)
	}
	now := time.Now()
	for _, a := range assignments {
		if a.IsOwner && a.Active(now) {
			return true, nil
		}
	}
	return false, nil
}

// Invalidate drops the cached permission set for a user within a business.
func (s *Service) Invalidate(ctx context.Context, userID, businessID string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, cacheKey(userID, businessID))
}

// ClearCache drops every cached permission set.
func (s *Service) ClearCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Clear(ctx)
}

// AssignRole creates a role assignment and invalidates the affected cache
// entry before returning, so a check issued after this call never reads
// the pre-mutation set.
func (s *Service) AssignRole(ctx context.Context, a *entities.RoleAssignment) error {
	if err := s.assignments.Create(ctx, a); err != nil {
		return err
	}
	return s.Invalidate(ctx, a.UserID, a.BusinessID)
}

// RevokeAssignment deactivates an assignment and invalidates the affected
// cache entry before returning.
func (s *Service) RevokeAssignment(ctx context.Context, assignmentID string) error {
	a, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		return err
	}
	if err := s.assignments.Deactivate(ctx, assignmentID); err != nil {
		return err
	}
	return s.Invalidate(ctx, a.UserID, a.BusinessID)
}

// SetCustomPermissions replaces an assignment's overrides and invalidates
// the affected cache entry before returning.
func (s *Service) SetCustomPermissions(ctx context.Context, assignmentID string, perms []entities.CustomPermission) error {
	a, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		return err
	}
	if err := s.assignments.SetCustomPermissions(ctx, assignmentID, perms); err != nil {
		return err
	}
	return s.Invalidate(ctx, a.UserID, a.BusinessID)
}
