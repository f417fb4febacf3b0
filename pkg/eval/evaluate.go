package eval

import (
	"context"
	"errors"
)

// Evaluation is the complete input to one evaluation run: the immutable
// source registry, the ordered overlay list, the static platform enumeration,
// and the declared shells. It carries no state between runs; every invocation
// re-runs the full transform.
type Evaluation struct {
	// Registry holds the declared source references.
	Registry *Registry

	// Overlays are applied to each platform's base package set in order.
	Overlays []Overlay

	// Platforms is the static enumeration of target platforms. Each entry
	// produces one independent output set.
	Platforms []Platform

	// Shells are the declared shell outputs, projected once per platform.
	Shells []ShellDecl
}

// Evaluate fans the evaluation out over the declared platforms and assembles
// the results. Platforms are evaluated independently: a platform's output
// never observes another platform's evaluation, and for a fixed registry,
// overlay list, and platform the output is identical across runs.
//
// The first failure aborts the whole evaluation with no partial output,
// matching the all-or-nothing contract of the external resolver.
func Evaluate(ctx context.Context, ev Evaluation, resolver Resolver) (Outputs, error) {
	outputs := make(Outputs, len(ev.Platforms))
	for _, platform := range ev.Platforms {
		shells, err := evaluatePlatform(ctx, ev, resolver, platform)
		if err != nil {
			return nil, err
		}
		outputs[platform] = shells
	}
	return outputs, nil
}

// evaluatePlatform runs the resolve-then-project pipeline for one platform.
func evaluatePlatform(ctx context.Context, ev Evaluation, resolver Resolver, platform Platform) (map[string]EnvironmentSpec, error) {
	pkgs, err := resolver.Resolve(ctx, ev.Registry, ev.Overlays, platform)
	if err != nil {
		// Resolver failures surface verbatim; only bare errors get wrapped
		// with evaluation context.
		var ee *EvalError
		if errors.As(err, &ee) {
			return nil, err
		}
		return nil, NewPermanentError("package set resolution failed", err).
			WithPlatform(platform).
			WithCode(ErrCodeResolve)
	}

	shells := make(map[string]EnvironmentSpec, len(ev.Shells))
	for _, decl := range ev.Shells {
		spec, err := ProjectEnvironment(pkgs, decl, platform, resolver)
		if err != nil {
			return nil, err
		}
		shells[decl.Name] = spec
	}
	return shells, nil
}
