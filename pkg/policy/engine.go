package policy

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"
)

// Engine compiles and evaluates Rego policies against descriptors.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	logger   zerolog.Logger
}

// compiledPolicy is a policy with its parsed module.
type compiledPolicy struct {
	policy   *Policy
	module   *ast.Module
	compiled time.Time
}

// NewEngine creates a policy engine with the built-in policies loaded.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		logger:   logger.With().Str("component", "policy-engine").Logger(),
	}

	for _, p := range BuiltinPolicies() {
		if err := e.Register(p); err != nil {
			return nil, fmt.Errorf("failed to load built-in policy %s: %w", p.Name, err)
		}
	}
	return e, nil
}

// Register compiles and stores a policy, replacing any existing policy with
// the same name.
func (e *Engine) Register(policy Policy) error {
	module, err := ast.ParseModule(policy.Name, policy.Rego)
	if err != nil {
		return fmt.Errorf("failed to parse policy %s: %w", policy.Name, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies[policy.Name] = &compiledPolicy{
		policy:   &policy,
		module:   module,
		compiled: time.Now(),
	}
	return nil
}

// Replace swaps the custom policy set while keeping the built-ins, used by
// the loader's hot reload.
func (e *Engine) Replace(policies []Policy) error {
	fresh := make(map[string]*compiledPolicy, len(policies)+4)
	for _, p := range BuiltinPolicies() {
		module, err := ast.ParseModule(p.Name, p.Rego)
		if err != nil {
			return fmt.Errorf("failed to parse built-in policy %s: %w", p.Name, err)
		}
		pol := p
		fresh[p.Name] = &compiledPolicy{policy: &pol, module: module, compiled: time.Now()}
	}
	for _, p := range policies {
		module, err := ast.ParseModule(p.Name, p.Rego)
		if err != nil {
			return fmt.Errorf("failed to parse policy %s: %w", p.Name, err)
		}
		pol := p
		fresh[p.Name] = &compiledPolicy{policy: &pol, module: module, compiled: time.Now()}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies = fresh
	return nil
}

// Evaluate runs every enabled policy against the input and aggregates the
// violations. A policy that fails to evaluate is reported as its own
// violation rather than aborting the run.
func (e *Engine) Evaluate(ctx context.Context, in *Input) (*Result, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := &Result{
		Allowed:           true,
		EvaluatedPolicies: make([]string, 0, len(e.policies)),
		EvaluatedAt:       time.Now(),
	}

	for _, cp := range e.policies {
		if !cp.policy.Enabled {
			continue
		}
		result.EvaluatedPolicies = append(result.EvaluatedPolicies, cp.policy.Name)

		violations, err := e.evaluatePolicy(ctx, cp, in)
		if err != nil {
			e.logger.Error().Err(err).
				Str("policy", cp.policy.Name).
				Msg("Policy evaluation failed")
			result.Violations = append(result.Violations, Violation{
				Policy:   cp.policy.Name,
				Message:  fmt.Sprintf("policy evaluation failed: %v", err),
				Severity: SeverityWarning,
			})
			continue
		}
		result.Violations = append(result.Violations, violations...)
	}

	for _, v := range result.Violations {
		if v.Severity == SeverityError {
			result.Allowed = false
			break
		}
	}
	return result, nil
}

// evaluatePolicy runs one policy's deny query.
func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, in *Input) ([]Violation, error) {
	query := fmt.Sprintf("data.%s.deny", packagePath(cp.module))

	r := rego.New(
		rego.Module(cp.policy.Name, cp.policy.Rego),
		rego.Query(query),
		rego.Input(in),
	)

	results, err := r.Eval(ctx)
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var violations []Violation
	for _, result := range results {
		for _, expr := range result.Expressions {
			denySet, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, d := range denySet {
				violations = append(violations, e.toViolation(cp.policy, d))
			}
		}
	}
	return violations, nil
}

// toViolation converts a deny result into a Violation.
func (e *Engine) toViolation(policy *Policy, result interface{}) Violation {
	violation := Violation{
		Policy:   policy.Name,
		Severity: policy.Severity,
	}

	switch v := result.(type) {
	case string:
		violation.Message = v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			violation.Message = msg
		}
		if sev, ok := v["severity"].(string); ok {
			violation.Severity = Severity(sev)
		}
		if subject, ok := v["subject"].(string); ok {
			violation.Subject = subject
		}
	default:
		violation.Message = fmt.Sprintf("%v", result)
	}
	return violation
}

// Names returns the registered policy names, for display.
func (e *Engine) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.policies))
	for name := range e.policies {
		names = append(names, name)
	}
	return names
}

// packagePath extracts the Rego package path without the data prefix.
func packagePath(module *ast.Module) string {
	return strings.TrimPrefix(module.Package.Path.String(), "data.")
}
