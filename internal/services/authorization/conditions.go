package authorization

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// ConditionInput carries the data a condition expression may inspect.
type ConditionInput struct {
	Subject  map[string]any // e.g. subject.id, subject.business_id
	Resource map[string]any // e.g. resource.id, resource.kind
	Request  map[string]any // request metadata supplied by the caller
}

// ConditionEvaluator evaluates the conditions object attached to a custom
// permission override. Implementations must return an error for condition
// shapes they do not understand; the evaluator treats errors as "condition
// not satisfied".
type ConditionEvaluator interface {
	Evaluate(ctx context.Context, conditions map[string]any, input *ConditionInput) (bool, error)
}

// CELConditions evaluates conditions of the form {"expression": "<cel>"}
// using CEL with subject, resource, and request variables in scope.
// Compiled programs are cached per expression.
type CELConditions struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewCELConditions creates a CEL-backed condition evaluator.
func NewCELConditions() (*CELConditions, error) {
	env, err := cel.NewEnv(
		cel.Variable("subject", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("resource", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("request", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &CELConditions{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Evaluate compiles (or reuses) the condition's expression and runs it.
// Any condition object without a string "expression" key is an unsupported
// condition kind and yields an error, never a grant.
func (c *CELConditions) Evaluate(ctx context.Context, conditions map[string]any, input *ConditionInput) (bool, error) {
	expression, ok := conditions["expression"].(string)
	if !ok || expression == "" {
		return false, fmt.Errorf("unsupported condition shape: expected {\"expression\": string}")
	}

	program, err := c.program(expression)
	if err != nil {
		return false, err
	}

	vars := map[string]any{
		"subject":  orEmpty(input.Subject),
		"resource": orEmpty(input.Resource),
		"request":  orEmpty(input.Request),
	}
	result, _, err := program.ContextEval(ctx, vars)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate condition: %w", err)
	}

	boolResult, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition did not evaluate to boolean, got: %T", result.Value())
	}
	return boolResult, nil
}

// ValidateExpression compiles an expression without evaluating it and
// checks that it returns a boolean.
func (c *CELConditions) ValidateExpression(expression string) error {
	ast, issues := c.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("invalid condition expression: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return fmt.Errorf("condition expression must return boolean, got: %s", ast.OutputType())
	}
	return nil
}

func (c *CELConditions) program(expression string) (cel.Program, error) {
	c.mu.RLock()
	program, ok := c.programs[expression]
	c.mu.RUnlock()
	if ok {
		return program, nil
	}

	ast, issues := c.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile condition expression: %w", issues.Err())
	}
	program, err := c.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create condition program: %w", err)
	}

	c.mu.Lock()
	c.programs[expression] = program
	c.mu.Unlock()
	return program, nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
