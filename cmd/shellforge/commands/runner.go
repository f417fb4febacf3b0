package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"

	"github.com/shellforge/shellforge/pkg/descriptor"
	"github.com/shellforge/shellforge/pkg/eval"
	"github.com/shellforge/shellforge/pkg/lockfile"
	"github.com/shellforge/shellforge/pkg/policy"
	"github.com/shellforge/shellforge/pkg/telemetry"
)

// runner is the shared parse-validate-resolve-project pipeline behind the
// eval and watch commands. It carries the telemetry handles so every phase
// reports spans and counters against the same collectors across runs.
type runner struct {
	settings *Settings
	metrics  *telemetry.Metrics
	tracer   *telemetry.Tracer
	policies *policy.Engine
}

// newRunner builds a runner from the settings. A nil policy engine skips
// governance checks.
func newRunner(settings *Settings, policies *policy.Engine) (*runner, error) {
	metrics, err := newMetrics(settings)
	if err != nil {
		return nil, err
	}
	tracer, err := newTracer(settings)
	if err != nil {
		return nil, err
	}
	return &runner{
		settings: settings,
		metrics:  metrics,
		tracer:   tracer,
		policies: policies,
	}, nil
}

// Close flushes pending spans and shuts the tracer down.
func (r *runner) Close(ctx context.Context) {
	if err := r.tracer.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to shut down tracer")
	}
}

// Evaluate runs the full pipeline for one descriptor: parse, optional policy
// validation, resolution, and one projection per declared platform.
func (r *runner) Evaluate(ctx context.Context, path, lockPath string) (eval.Outputs, error) {
	evalID := uuid.New().String()
	logger := log.With().Str("eval_id", evalID).Logger()
	start := time.Now()

	r.metrics.RecordEvaluationStarted(path)
	ctx, span := r.tracer.StartEvaluationSpan(ctx, evalID, path)
	defer span.End()

	desc, err := r.parse(ctx, path)
	if err != nil {
		return nil, r.fail(span, start, err)
	}

	if r.policies != nil {
		if err := r.validatePolicies(ctx, desc, lockPath); err != nil {
			return nil, r.fail(span, start, err)
		}
	}

	res, cleanup, err := buildResolver(ctx, r.settings, r.metrics)
	if err != nil {
		return nil, r.fail(span, start, err)
	}
	defer cleanup()

	star := descriptor.NewStarlarkOverlays(r.settings.OverlayTimeout.Std())
	evaluation, err := desc.ToEvaluation(star, res.OverlayForInput)
	if err != nil {
		return nil, r.fail(span, start, err)
	}

	if err := applyLockfile(&evaluation, lockPath, logger); err != nil {
		return nil, r.fail(span, start, err)
	}

	// Platforms project independently, so each one gets its own span and
	// projection counter.
	outputs := make(eval.Outputs, len(evaluation.Platforms))
	for _, platform := range evaluation.Platforms {
		projected, err := r.projectPlatform(ctx, evalID, evaluation, platform, res)
		if err != nil {
			return nil, r.fail(span, start, err)
		}
		outputs[platform] = projected
	}

	r.metrics.RecordEvaluationCompleted("success", time.Since(start))
	telemetry.RecordSuccess(span)

	logger.Info().
		Int("platforms", len(evaluation.Platforms)).
		Int("shells", len(evaluation.Shells)).
		Dur("elapsed", time.Since(start)).
		Msg("Evaluation complete")

	return outputs, nil
}

// parse loads and validates the descriptor under its own span.
func (r *runner) parse(ctx context.Context, path string) (*descriptor.Descriptor, error) {
	ctx, span := r.tracer.StartSpan(ctx, "descriptor.parse",
		telemetry.AttrDescriptor.String(path))
	defer span.End()

	parser, err := descriptor.NewParser()
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	desc, err := parser.Parse(ctx, []string{path})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to parse descriptor: %w", err)
	}
	telemetry.RecordSuccess(span)
	return desc, nil
}

// validatePolicies runs the governance policies against the parsed
// descriptor and records every violation. Error-severity violations reject
// the descriptor.
func (r *runner) validatePolicies(ctx context.Context, desc *descriptor.Descriptor, lockPath string) error {
	ctx, span := r.tracer.StartSpan(ctx, "policy.validate")
	defer span.End()

	result, err := r.policies.Evaluate(ctx, &policy.Input{
		Descriptor: desc,
		Locked:     lockedInputs(lockPath),
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	for _, v := range result.Violations {
		r.metrics.RecordPolicyViolation(v.Policy, string(v.Severity))
		log.Warn().
			Str("policy", v.Policy).
			Str("severity", string(v.Severity)).
			Str("subject", v.Subject).
			Msg(v.Message)
	}
	if !result.Allowed {
		err := fmt.Errorf("descriptor rejected by policy (%d violation(s))", len(result.Violations))
		telemetry.RecordError(span, err)
		return err
	}
	telemetry.RecordSuccess(span)
	return nil
}

// projectPlatform evaluates a single platform's shells under a platform span.
func (r *runner) projectPlatform(ctx context.Context, evalID string, evaluation eval.Evaluation, platform eval.Platform, res eval.Resolver) (map[string]eval.EnvironmentSpec, error) {
	ctx, span := r.tracer.StartPlatformSpan(ctx, evalID, string(platform))
	defer span.End()
	timer := telemetry.NewTimer()

	single := eval.Evaluation{
		Registry:  evaluation.Registry,
		Overlays:  evaluation.Overlays,
		Platforms: []eval.Platform{platform},
		Shells:    evaluation.Shells,
	}
	outputs, err := eval.Evaluate(ctx, single, res)
	if err != nil {
		r.metrics.RecordPlatformProjection(string(platform), "failure", timer.Duration())
		telemetry.RecordError(span, err)
		return nil, err
	}

	for range evaluation.Overlays {
		r.metrics.RecordOverlayApplied(string(platform), "success")
	}
	r.metrics.RecordPlatformProjection(string(platform), "success", timer.Duration())
	telemetry.RecordSuccess(span)
	return outputs[platform], nil
}

// fail records a classified failure on the evaluation span and the error
// counters, then passes the error through.
func (r *runner) fail(span trace.Span, start time.Time, err error) error {
	var ee *eval.EvalError
	if errors.As(err, &ee) {
		r.metrics.RecordError(string(ee.Class), ee.Code)
		span.SetAttributes(
			telemetry.AttrErrorClass.String(string(ee.Class)),
			telemetry.AttrErrorCode.String(ee.Code),
		)
	}
	telemetry.RecordError(span, err)
	r.metrics.RecordEvaluationCompleted("failure", time.Since(start))
	return err
}

// applyLockfile pins the registry from the lockfile when one exists. A
// missing lockfile is not an error.
func applyLockfile(evaluation *eval.Evaluation, lockPath string, logger zerolog.Logger) error {
	if lockPath == "" {
		lockPath = lockfile.DefaultName
	}
	lf, err := lockfile.Read(lockPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	pinned, err := lf.Apply(evaluation.Registry)
	if err != nil {
		return fmt.Errorf("failed to apply lockfile: %w", err)
	}
	evaluation.Registry = pinned
	logger.Debug().Str("lockfile", lockPath).Msg("Applied lockfile pins")
	return nil
}
