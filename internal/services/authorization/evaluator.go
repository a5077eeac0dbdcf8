package authorization

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/halloran/castellan/internal/entities"
	"github.com/halloran/castellan/internal/repositories"
)

const (
	// MaxInheritanceDepth caps the parent-template walk. The visited set
	// already stops cycles; the depth cap bounds pathological chains.
	MaxInheritanceDepth = 100

	// DefaultResourceKind is assumed when a check carries a resource id
	// but no resource kind.
	DefaultResourceKind = "project"
)

// Source identifies which rule produced a grant.
type Source string

const (
	SourceSystemAdmin      Source = "system_admin"
	SourceCustomPermission Source = "custom_permission"
	SourceMetaPermission   Source = "meta_permission"
	SourceBasePermission   Source = "base_permission"
	SourceImplied          Source = "implied_permission"
	SourceInherited        Source = "inherited_permission"
	SourceCache            Source = "cache"
)

// MissingBusinessContextError indicates a check that requires a business id
// but received none. The public Evaluate surface converts it to a deny.
type MissingBusinessContextError struct{}

func (e *MissingBusinessContextError) Error() string {
	return "permission check requires a business context"
}

// Decision is the structured result of a permission check.
type Decision struct {
	Granted bool
	Source  Source
	Details map[string]string
}

// EvalContext carries the business and resource context of a check.
type EvalContext struct {
	BusinessID     string
	ResourceID     string         // optional
	ResourceKind   string         // optional; defaults to DefaultResourceKind when ResourceID is set
	RequestContext map[string]any // optional; exposed to condition expressions as `request`
}

// Config tunes the evaluator's pluggable behavior.
type Config struct {
	// Conditions evaluates custom-permission condition objects. When nil,
	// assignments carrying conditions yield no grant (fail closed) unless
	// ConditionsWarnOnly is set.
	Conditions ConditionEvaluator

	// ConditionsWarnOnly restores the legacy behavior of logging and
	// ignoring conditions when no evaluator is configured. Not recommended
	// for security-sensitive deployments.
	ConditionsWarnOnly bool

	// Meta overrides the meta-permission capability mapping.
	Meta MetaPermissionTable

	// Scopes overrides the resource-kind scope mapping.
	Scopes ScopeRules

	Logger *zap.Logger
}

// Evaluator is the policy decision engine. It is stateless and safe for
// concurrent use; every store call goes through the injected repositories.
type Evaluator struct {
	admins      repositories.AdminRepository
	assignments repositories.AssignmentRepository
	templates   repositories.RoleTemplateRepository
	permissions repositories.PermissionRepository

	conditions         ConditionEvaluator
	conditionsWarnOnly bool
	meta               MetaPermissionTable
	scopes             ScopeRules
	logger             *zap.Logger
	now                func() time.Time
}

// NewEvaluator creates a policy evaluator. cfg may be nil for defaults.
func NewEvaluator(
	admins repositories.AdminRepository,
	assignments repositories.AssignmentRepository,
	templates repositories.RoleTemplateRepository,
	permissions repositories.PermissionRepository,
	cfg *Config,
) *Evaluator {
	if cfg == nil {
		cfg = &Config{}
	}
	meta := cfg.Meta
	if meta == nil {
		meta = DefaultMetaPermissions()
	}
	scopes := cfg.Scopes
	if scopes == nil {
		scopes = DefaultScopeRules()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		admins:             admins,
		assignments:        assignments,
		templates:          templates,
		permissions:        permissions,
		conditions:         cfg.Conditions,
		conditionsWarnOnly: cfg.ConditionsWarnOnly,
		meta:               meta,
		scopes:             scopes,
		logger:             logger,
		now:                time.Now,
	}
}

// Evaluate answers "does the user have the permission in this context".
// Denial is always a return value: data-layer failures are logged and
// converted to a deny whose Details distinguish them from a legitimate no.
func (e *Evaluator) Evaluate(ctx context.Context, userID string, perm entities.Permission, ec EvalContext) *Decision {
	decision, err := e.evaluate(ctx, userID, perm, ec)
	if err == nil {
		return decision
	}

	var missing *MissingBusinessContextError
	if errors.As(err, &missing) {
		return &Decision{Granted: false, Details: map[string]string{"reason": "missing_business_context"}}
	}

	e.logger.Error("permission evaluation failed",
		zap.String("user_id", userID),
		zap.String("permission", perm.String()),
		zap.String("business_id", ec.BusinessID),
		zap.String("resource_id", ec.ResourceID),
		zap.Error(err),
	)
	details := map[string]string{"error": "data_access"}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		details["error"] = "timeout"
	case errors.Is(err, context.Canceled):
		details["error"] = "canceled"
	}
	return &Decision{Granted: false, Details: details}
}

func (e *Evaluator) evaluate(ctx context.Context, userID string, perm entities.Permission, ec EvalContext) (*Decision, error) {
	// System admins bypass every other rule, including explicit denies.
	isAdmin, err := e.admins.IsAdmin(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check admin registry: %w", err)
	}
	if isAdmin {
		return &Decision{Granted: true, Source: SourceSystemAdmin}, nil
	}

	if ec.BusinessID == "" {
		return nil, &MissingBusinessContextError{}
	}

	assignments, err := e.assignments.ListActiveByUser(ctx, userID, ec.BusinessID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	if len(assignments) == 0 {
		return &Decision{Granted: false, Details: map[string]string{"reason": "no_assignments"}}, nil
	}

	now := e.now()
	for _, a := range assignments {
		if !a.Active(now) {
			continue
		}
		verdict, err := e.evaluateAssignment(ctx, userID, a, perm, ec)
		if err != nil {
			return nil, err
		}
		// A deny from one assignment does not veto a grant from another:
		// only a granting verdict short-circuits the loop.
		if verdict.matched && verdict.granted {
			return &Decision{
				Granted: true,
				Source:  verdict.source,
				Details: map[string]string{"assignment_id": a.ID},
			}, nil
		}
	}

	return &Decision{Granted: false}, nil
}

type assignmentVerdict struct {
	matched bool
	granted bool
	source  Source
}

func (e *Evaluator) evaluateAssignment(
	ctx context.Context,
	userID string,
	a *entities.RoleAssignment,
	perm entities.Permission,
	ec EvalContext,
) (assignmentVerdict, error) {
	// Scope filter: a non-global assignment only participates in checks
	// against resources its scope covers. Non-matching assignments are
	// skipped, not denied.
	if ec.ResourceID != "" && !a.Scope.IsGlobal {
		kind := ec.ResourceKind
		if kind == "" {
			kind = DefaultResourceKind
		}
		rule, ok := e.scopes[kind]
		if !ok || !rule(a.Scope, a.BusinessID, ec.ResourceID) {
			return assignmentVerdict{}, nil
		}
	}

	if cp := a.FindCustomPermission(perm.String()); cp != nil {
		if verdict, decided := e.applyCustomPermission(ctx, userID, a, cp, ec); decided {
			return verdict, nil
		}
	}

	visited := make(map[string]bool)
	granted, source, err := e.evaluateTemplate(ctx, a.RoleTemplateID, perm, visited, 0)
	if err != nil {
		return assignmentVerdict{}, err
	}
	if granted {
		return assignmentVerdict{matched: true, granted: true, source: source}, nil
	}
	return assignmentVerdict{}, nil
}

// applyCustomPermission resolves a matching custom override. The second
// return value is false when the override turns out not to apply (its
// condition is not satisfied) and evaluation should fall through to the
// role template.
func (e *Evaluator) applyCustomPermission(
	ctx context.Context,
	userID string,
	a *entities.RoleAssignment,
	cp *entities.CustomPermission,
	ec EvalContext,
) (assignmentVerdict, bool) {
	if len(cp.Resources) > 0 && ec.ResourceID != "" && !containsString(cp.Resources, ec.ResourceID) {
		// Definitive for this assignment only; other assignments may still grant.
		return assignmentVerdict{matched: true, granted: false, source: SourceCustomPermission}, true
	}

	if len(cp.Conditions) > 0 {
		if e.conditions == nil {
			if e.conditionsWarnOnly {
				e.logger.Warn("custom permission carries conditions but no condition evaluator is configured; conditions ignored",
					zap.String("assignment_id", a.ID),
					zap.String("permission", cp.Permission),
				)
				return assignmentVerdict{matched: true, granted: cp.Granted, source: SourceCustomPermission}, true
			}
			e.logger.Warn("custom permission carries conditions but no condition evaluator is configured; failing closed",
				zap.String("assignment_id", a.ID),
				zap.String("permission", cp.Permission),
			)
			return assignmentVerdict{matched: true, granted: false, source: SourceCustomPermission}, true
		}

		kind := ec.ResourceKind
		if kind == "" && ec.ResourceID != "" {
			kind = DefaultResourceKind
		}
		input := &ConditionInput{
			Subject:  map[string]any{"id": userID, "business_id": a.BusinessID},
			Resource: map[string]any{"id": ec.ResourceID, "kind": kind},
			Request:  ec.RequestContext,
		}
		ok, err := e.conditions.Evaluate(ctx, cp.Conditions, input)
		if err != nil {
			e.logger.Warn("condition evaluation failed; failing closed",
				zap.String("assignment_id", a.ID),
				zap.String("permission", cp.Permission),
				zap.Error(err),
			)
			return assignmentVerdict{matched: true, granted: false, source: SourceCustomPermission}, true
		}
		if !ok {
			// Condition not satisfied: the override does not apply at all,
			// so the role template still gets a say.
			return assignmentVerdict{}, false
		}
	}

	return assignmentVerdict{matched: true, granted: cp.Granted, source: SourceCustomPermission}, true
}

// evaluateTemplate checks a role template and its ancestor chain. The
// visited set guards against parentRoleId cycles: a repeated template id
// ends the walk for that branch (fail closed, no further inheritance).
func (e *Evaluator) evaluateTemplate(
	ctx context.Context,
	templateID string,
	perm entities.Permission,
	visited map[string]bool,
	depth int,
) (bool, Source, error) {
	if depth > MaxInheritanceDepth {
		return false, "", nil
	}
	if visited[templateID] {
		e.logger.Warn("cycle detected in role template hierarchy", zap.String("template_id", templateID))
		return false, "", nil
	}
	visited[templateID] = true

	tpl, err := e.templates.GetByID(ctx, templateID)
	if errors.Is(err, repositories.ErrNotFound) {
		// Dangling reference: this assignment contributes no grant.
		return false, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("failed to get role template %s: %w", templateID, err)
	}

	if accessor, ok := e.meta[perm.String()]; ok && accessor(tpl.Meta) {
		return true, inheritedAtDepth(SourceMetaPermission, depth), nil
	}

	defs, err := e.permissions.GetByIDs(ctx, tpl.BasePermissionIDs)
	if err != nil {
		return false, "", fmt.Errorf("failed to get base permissions for template %s: %w", templateID, err)
	}
	for _, def := range defs {
		if perm.MatchedBy(def.Name) {
			return true, inheritedAtDepth(SourceBasePermission, depth), nil
		}
		if def.Implies(perm) {
			return true, inheritedAtDepth(SourceImplied, depth), nil
		}
	}

	if tpl.ParentRoleID != "" {
		granted, _, err := e.evaluateTemplate(ctx, tpl.ParentRoleID, perm, visited, depth+1)
		if err != nil {
			return false, "", err
		}
		if granted {
			return true, SourceInherited, nil
		}
	}

	return false, "", nil
}

func inheritedAtDepth(source Source, depth int) Source {
	if depth > 0 {
		return SourceInherited
	}
	return source
}

// ResolvePermissions returns the flattened, resource-independent grant
// list for a user within a business: base permissions, implications, and
// meta-permission mappings across every active assignment's template
// chain, adjusted by condition-free custom overrides. The list is a
// display summary; decisions go through Evaluate or ResolvedSet.Decide.
func (e *Evaluator) ResolvePermissions(ctx context.Context, userID, businessID string) ([]entities.Permission, error) {
	set, err := e.ResolveSet(ctx, userID, businessID)
	if err != nil {
		return nil, err
	}
	return set.Permissions(), nil
}

func (e *Evaluator) collectTemplate(
	ctx context.Context,
	templateID string,
	visited map[string]bool,
	depth int,
	out map[string]entities.Permission,
) error {
	if depth > MaxInheritanceDepth || visited[templateID] {
		return nil
	}
	visited[templateID] = true

	tpl, err := e.templates.GetByID(ctx, templateID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get role template %s: %w", templateID, err)
	}

	for name, accessor := range e.meta {
		if accessor(tpl.Meta) {
			addPermissionName(out, name)
		}
	}

	defs, err := e.permissions.GetByIDs(ctx, tpl.BasePermissionIDs)
	if err != nil {
		return fmt.Errorf("failed to get base permissions for template %s: %w", templateID, err)
	}
	for _, def := range defs {
		addPermissionName(out, def.Name)
		for _, imp := range def.Implications {
			addPermissionName(out, imp)
		}
	}

	if tpl.ParentRoleID != "" {
		return e.collectTemplate(ctx, tpl.ParentRoleID, visited, depth+1, out)
	}
	return nil
}

// ContainsGrant reports whether a resolved permission set answers a check,
// honoring wildcard grants in the set.
func ContainsGrant(perms []entities.Permission, p entities.Permission) bool {
	for _, g := range perms {
		if p.MatchedBy(g.String()) {
			return true
		}
	}
	return false
}

func addPermissionName(out map[string]entities.Permission, name string) {
	p, err := entities.ParsePermission(name)
	if err != nil {
		return
	}
	out[p.String()] = p
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
