package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "default config is valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing service name",
			mutate:  func(c *Config) { c.ServiceName = "" },
			wantErr: true,
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: true,
		},
		{
			name:    "invalid log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: true,
		},
		{
			name: "invalid exporter when tracing enabled",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.Exporter = "jaeger"
			},
			wantErr: true,
		},
		{
			name:    "sampling rate out of range",
			mutate:  func(c *Config) { c.Tracing.SamplingRate = 1.5 },
			wantErr: true,
		},
		{
			name: "metrics enabled without listen address",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.ListenAddress = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("Expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Unexpected validation error: %v", err)
			}
		})
	}
}

func TestLoggerComponentFields(t *testing.T) {
	logger, err := NewLogger(LoggingConfig{Level: "debug", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	child := logger.NewComponentLogger("resolver").WithEvalID("abc").WithPlatform("x86_64-linux")
	if child == nil {
		t.Fatal("Expected child logger")
	}

	ctx := child.WithContext(context.Background())
	if got := FromContext(ctx); got != child {
		t.Error("FromContext did not return the stored logger")
	}
}

func TestFromContext_Default(t *testing.T) {
	logger := FromContext(context.Background())
	if logger == nil {
		t.Fatal("Expected a fallback logger")
	}
}

func TestMetricsDisabledIsNoOp(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}

	// None of these must panic on the no-op instance.
	m.RecordEvaluationStarted("env.cue")
	m.RecordEvaluationCompleted("success", time.Second)
	m.RecordPlatformProjection("x86_64-linux", "success", time.Millisecond)
	m.RecordOverlayApplied("x86_64-linux", "success")
	m.ResolutionCacheHit("x86_64-linux")
	m.ResolutionCacheMiss("x86_64-linux")
	m.RecordPolicyViolation("pinned-inputs", "error")
	m.RecordError("permanent", "RESOLVE_FAILED")
}

func TestMetricsHandlerExposesCounters(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{
		Enabled:   true,
		Namespace: "shellforge",
		Path:      "/metrics",
	})
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}

	m.RecordEvaluationStarted("env.cue")
	m.ResolutionCacheMiss("x86_64-linux")
	m.ResolutionCacheHit("x86_64-linux")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, metric := range []string{
		"shellforge_evaluations_started_total",
		"shellforge_resolution_cache_hits_total",
		"shellforge_resolution_cache_misses_total",
	} {
		if !strings.Contains(body, metric) {
			t.Errorf("Metrics output missing %s", metric)
		}
	}
}

func TestNewTelemetry(t *testing.T) {
	cfg := DefaultConfig()
	tel, err := NewTelemetry(cfg)
	if err != nil {
		t.Fatalf("NewTelemetry failed: %v", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown failed: %v", err)
		}
	}()

	if tel.Logger == nil || tel.Tracer == nil || tel.Metrics == nil {
		t.Fatal("Telemetry components not initialized")
	}

	ctx := tel.WithContext(context.Background())
	if got := FromTelemetryContext(ctx); got != tel {
		t.Error("FromTelemetryContext did not return the stored telemetry")
	}
}

func TestTracerDisabled(t *testing.T) {
	tr, err := NewTracer(TracingConfig{Enabled: false}, "shellforge", "test", "test")
	if err != nil {
		t.Fatalf("NewTracer failed: %v", err)
	}

	ctx, span := tr.StartEvaluationSpan(context.Background(), "eval-1", "env.cue")
	if span == nil {
		t.Fatal("Expected a span")
	}
	span.End()

	if err := tr.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}
