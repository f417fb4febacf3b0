package commands

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shellforge/shellforge/pkg/eval"
	"github.com/shellforge/shellforge/pkg/policy"
)

const runnerDescriptor = `
description: "runner test environment"

inputs: {
	pkgdb: {url: "github:shellforge/pkgdb", rev: "7f1a09"}
}

platforms: ["x86_64-linux", "aarch64-darwin"]

shells: default: {
	buildInputs: ["fontconfig"]
}
`

const runnerDatabase = `packages: {
	"x86_64-linux": {
		fontconfig: {store_path: "/store/fontconfig", outputs: {lib: "/store/fontconfig/lib"}}
	}
	"aarch64-darwin": {
		fontconfig: {store_path: "/store/darwin/fontconfig", outputs: {lib: "/store/darwin/fontconfig/lib"}}
	}
}
`

// writeRunnerWorkspace lays out a descriptor and package database in a
// temporary directory and returns their paths.
func writeRunnerWorkspace(t *testing.T, descriptor string) (string, *Settings) {
	t.Helper()
	dir := t.TempDir()

	descPath := filepath.Join(dir, "env.cue")
	if err := os.WriteFile(descPath, []byte(descriptor), 0o644); err != nil {
		t.Fatalf("write descriptor: %v", err)
	}
	dbPath := filepath.Join(dir, "packages.cue")
	if err := os.WriteFile(dbPath, []byte(runnerDatabase), 0o644); err != nil {
		t.Fatalf("write database: %v", err)
	}

	settings := &Settings{
		Database:       dbPath,
		Metrics:        MetricsSettings{Enabled: true, ListenAddress: ":0"},
		OverlayTimeout: Duration(10 * time.Second),
	}
	return descPath, settings
}

// scrapeMetrics renders the runner's metrics endpoint body.
func scrapeMetrics(t *testing.T, r *runner) string {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	r.metrics.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics endpoint returned %d", rec.Code)
	}
	return rec.Body.String()
}

func TestRunnerEvaluateProjectsAllPlatforms(t *testing.T) {
	descPath, settings := writeRunnerWorkspace(t, runnerDescriptor)

	r, err := newRunner(settings, nil)
	if err != nil {
		t.Fatalf("newRunner: %v", err)
	}
	defer r.Close(context.Background())

	outputs, err := r.Evaluate(context.Background(), descPath, filepath.Join(t.TempDir(), "absent.lock"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if len(outputs) != 2 {
		t.Fatalf("expected 2 platforms, got %d", len(outputs))
	}
	linux, err := outputs.Shell("x86_64-linux", "default")
	if err != nil {
		t.Fatalf("Shell: %v", err)
	}
	if got := linux.ExtraVariables["LD_LIBRARY_PATH"]; got != "/store/fontconfig/lib" {
		t.Errorf("unexpected search path %q", got)
	}
	darwin, err := outputs.Shell("aarch64-darwin", "default")
	if err != nil {
		t.Fatalf("Shell: %v", err)
	}
	if got := darwin.ExtraVariables["DYLD_LIBRARY_PATH"]; got != "/store/darwin/fontconfig/lib" {
		t.Errorf("unexpected search path %q", got)
	}
}

func TestRunnerEvaluateRecordsPhaseMetrics(t *testing.T) {
	descPath, settings := writeRunnerWorkspace(t, runnerDescriptor)

	r, err := newRunner(settings, nil)
	if err != nil {
		t.Fatalf("newRunner: %v", err)
	}
	defer r.Close(context.Background())

	if _, err := r.Evaluate(context.Background(), descPath, filepath.Join(t.TempDir(), "absent.lock")); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	body := scrapeMetrics(t, r)
	for _, want := range []string{
		`shellforge_evaluations_started_total`,
		`shellforge_evaluations_completed_total{status="success"} 1`,
		`shellforge_platform_projections_total{platform="x86_64-linux",status="success"} 1`,
		`shellforge_platform_projections_total{platform="aarch64-darwin",status="success"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics body missing %q", want)
		}
	}
}

func TestRunnerEvaluateRecordsProjectionFailure(t *testing.T) {
	const missingPackage = `
description: "runner test environment"

inputs: {
	pkgdb: {url: "github:shellforge/pkgdb", rev: "7f1a09"}
}

platforms: ["x86_64-linux"]

shells: default: {
	buildInputs: ["no-such-package"]
}
`
	descPath, settings := writeRunnerWorkspace(t, missingPackage)

	r, err := newRunner(settings, nil)
	if err != nil {
		t.Fatalf("newRunner: %v", err)
	}
	defer r.Close(context.Background())

	if _, err := r.Evaluate(context.Background(), descPath, filepath.Join(t.TempDir(), "absent.lock")); err == nil {
		t.Fatal("expected undefined-package failure")
	}

	body := scrapeMetrics(t, r)
	for _, want := range []string{
		`shellforge_platform_projections_total{platform="x86_64-linux",status="failure"} 1`,
		`shellforge_evaluations_completed_total{status="failure"} 1`,
		`shellforge_errors_by_code_total{code="` + eval.ErrCodeUndefined + `"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics body missing %q", want)
		}
	}
}

func TestRunnerEvaluateEnforcesPolicies(t *testing.T) {
	const unpinned = `
description: "runner test environment"

inputs: {
	pkgdb: {url: "github:shellforge/pkgdb"}
}

platforms: ["x86_64-linux"]

shells: default: {
	buildInputs: ["fontconfig"]
}
`
	descPath, settings := writeRunnerWorkspace(t, unpinned)

	engine, err := policy.NewEngine(log.Logger)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	r, err := newRunner(settings, engine)
	if err != nil {
		t.Fatalf("newRunner: %v", err)
	}
	defer r.Close(context.Background())

	_, err = r.Evaluate(context.Background(), descPath, filepath.Join(t.TempDir(), "absent.lock"))
	if err == nil {
		t.Fatal("expected policy rejection for unpinned input")
	}
	if !strings.Contains(err.Error(), "rejected by policy") {
		t.Errorf("unexpected error: %v", err)
	}

	body := scrapeMetrics(t, r)
	if !strings.Contains(body, `shellforge_policy_violations_total`) {
		t.Errorf("metrics body missing policy violation counter")
	}
}
