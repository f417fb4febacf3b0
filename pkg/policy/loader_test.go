package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const maxPinsPolicy = `# Limits the number of declared inputs.
package shellforge.policies.maxinputs

import rego.v1

deny contains violation if {
	count(input.descriptor.inputs) > 16
	violation := {
		"message": "descriptor declares too many inputs",
		"severity": "warning",
	}
}
`

func TestLoadFromPaths_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "max-inputs.rego")
	if err := os.WriteFile(path, []byte(maxPinsPolicy), 0o644); err != nil {
		t.Fatalf("Failed to write policy file: %v", err)
	}

	loader := NewLoader(zerolog.New(nil).Level(zerolog.Disabled))
	policies, err := loader.LoadFromPaths(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("LoadFromPaths failed: %v", err)
	}

	if len(policies) != 1 {
		t.Fatalf("Expected 1 policy, got %d", len(policies))
	}
	p := policies[0]
	if p.Name != "max-inputs" {
		t.Errorf("Expected name max-inputs, got %s", p.Name)
	}
	if p.Description != "Limits the number of declared inputs." {
		t.Errorf("Unexpected description: %q", p.Description)
	}
	if p.Severity != SeverityWarning {
		t.Errorf("Expected default warning severity, got %s", p.Severity)
	}
	if !p.Enabled {
		t.Error("Loaded policy should be enabled")
	}
}

func TestLoadFromPaths_DirectorySkipsOtherFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "max-inputs.rego"), []byte(maxPinsPolicy), 0o644); err != nil {
		t.Fatalf("Failed to write policy file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("# notes\n"), 0o644); err != nil {
		t.Fatalf("Failed to write readme: %v", err)
	}

	loader := NewLoader(zerolog.New(nil).Level(zerolog.Disabled))
	policies, err := loader.LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("LoadFromPaths failed: %v", err)
	}

	if len(policies) != 1 {
		t.Fatalf("Expected 1 policy, got %d", len(policies))
	}
}

func TestLoadFromPaths_MissingPath(t *testing.T) {
	loader := NewLoader(zerolog.New(nil).Level(zerolog.Disabled))
	_, err := loader.LoadFromPaths(context.Background(), []string{"/nonexistent/policies"})
	if err == nil {
		t.Fatal("Expected error for missing path")
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "max-inputs.rego")
	if err := os.WriteFile(path, []byte(maxPinsPolicy), 0o644); err != nil {
		t.Fatalf("Failed to write policy file: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan []Policy, 1)
	loader := NewLoader(zerolog.New(nil).Level(zerolog.Disabled))
	err := loader.Watch(ctx, []string{dir}, func(policies []Policy) error {
		select {
		case reloaded <- policies:
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	// Give the watcher a moment before touching the file.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte(maxPinsPolicy), 0o644); err != nil {
		t.Fatalf("Failed to rewrite policy file: %v", err)
	}

	select {
	case policies := <-reloaded:
		if len(policies) != 1 {
			t.Errorf("Expected 1 reloaded policy, got %d", len(policies))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for reload")
	}
}
