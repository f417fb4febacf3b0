// Package telemetry provides observability for shellforge: structured
// logging via zerolog, distributed tracing via OpenTelemetry, and
// Prometheus metrics for evaluation runs.
//
// The package exposes a unified Telemetry handle that carries all three
// concerns and can travel through a context:
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//		return err
//	}
//	defer tel.Shutdown(ctx)
//
//	ctx = tel.WithContext(ctx)
//	logger := telemetry.FromContext(ctx).NewComponentLogger("resolver")
//	logger.Info("resolving packages")
//
// Evaluation-scoped fields keep log lines correlated:
//
//	logger = logger.WithEvalID(evalID).WithPlatform("x86_64-linux")
//
// Metrics satisfy the resolver's cache instrumentation interface, so a
// Metrics value can be passed directly to resolver.WithMetrics.
package telemetry
