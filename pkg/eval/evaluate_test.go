package eval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func twoPlatformFixture() *fixtureResolver {
	return &fixtureResolver{
		sets: map[Platform]PackageSet{
			"x86_64-linux": {
				"toolchain": libPackage("toolchain", "/store/linux/toolchain/lib"),
				"libx":      libPackage("libx", "/store/linux/libx/lib"),
				"linker":    toolPackage("linker"),
			},
			"aarch64-darwin": {
				"toolchain": libPackage("toolchain", "/store/darwin/toolchain/lib"),
				"libx":      libPackage("libx", "/store/darwin/libx/lib"),
				"linker":    toolPackage("linker"),
			},
		},
	}
}

func defaultShell() ShellDecl {
	return ShellDecl{
		Name:              "default",
		NativeBuildInputs: []string{"linker"},
		BuildInputs:       []string{"toolchain", "libx"},
	}
}

func TestEvaluateEndToEnd(t *testing.T) {
	reg, err := NewRegistry([]SourceReference{
		{Identifier: "pkgdb", Locator: "github:example/pkgdb", Revision: "pinned-revision-1"},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	outputs, err := Evaluate(context.Background(), Evaluation{
		Registry:  reg,
		Overlays:  []Overlay{definePackage("liby", "/store/liby")},
		Platforms: []Platform{"x86_64-linux", "aarch64-darwin"},
		Shells:    []ShellDecl{defaultShell()},
	}, twoPlatformFixture())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if len(outputs) != 2 {
		t.Fatalf("expected exactly 2 platform keys, got %d", len(outputs))
	}

	for _, platform := range []Platform{"x86_64-linux", "aarch64-darwin"} {
		shells, ok := outputs[platform]
		if !ok {
			t.Fatalf("missing outputs for %s", platform)
		}
		if len(shells) != 1 {
			t.Fatalf("%s: expected one shell output, got %d", platform, len(shells))
		}

		spec, err := outputs.Shell(platform, "default")
		if err != nil {
			t.Fatalf("%s: %v", platform, err)
		}
		if len(spec.NativeBuildInputs) != 1 || spec.NativeBuildInputs[0] != "linker" {
			t.Errorf("%s: unexpected nativeBuildInputs %v", platform, spec.NativeBuildInputs)
		}
		if len(spec.BuildInputs) != 2 || spec.BuildInputs[0] != "toolchain" || spec.BuildInputs[1] != "libx" {
			t.Errorf("%s: unexpected buildInputs %v", platform, spec.BuildInputs)
		}
	}

	linux, _ := outputs.Shell("x86_64-linux", "default")
	if got := linux.ExtraVariables["LD_LIBRARY_PATH"]; got != "/store/linux/toolchain/lib:/store/linux/libx/lib" {
		t.Errorf("unexpected linux search path %q", got)
	}
	darwin, _ := outputs.Shell("aarch64-darwin", "default")
	if got := darwin.ExtraVariables["DYLD_LIBRARY_PATH"]; got != "/store/darwin/toolchain/lib:/store/darwin/libx/lib" {
		t.Errorf("unexpected darwin search path %q", got)
	}
}

func TestEvaluatePlatformIndependence(t *testing.T) {
	reg, err := NewRegistry([]SourceReference{
		{Identifier: "pkgdb", Locator: "github:example/pkgdb", Revision: "rev-1"},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	encode := func(platforms []Platform) []byte {
		t.Helper()
		outputs, err := Evaluate(context.Background(), Evaluation{
			Registry:  reg,
			Platforms: platforms,
			Shells:    []ShellDecl{defaultShell()},
		}, twoPlatformFixture())
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		spec, err := outputs.Shell("x86_64-linux", "default")
		if err != nil {
			t.Fatalf("Shell: %v", err)
		}
		buf, err := json.Marshal(spec)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		return buf
	}

	alone := encode([]Platform{"x86_64-linux"})
	withDarwin := encode([]Platform{"x86_64-linux", "aarch64-darwin"})
	if !bytes.Equal(alone, withDarwin) {
		t.Errorf("adding a platform changed another platform's output:\n%s\n%s", alone, withDarwin)
	}
}

func TestEvaluateSurfacesResolverErrorVerbatim(t *testing.T) {
	reg, err := NewRegistry(nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	// The fixture has no database for this platform, so resolution fails the
	// way the external resolver would: fatal, no partial output.
	outputs, err := Evaluate(context.Background(), Evaluation{
		Registry:  reg,
		Platforms: []Platform{"x86_64-linux", "riscv64-linux"},
		Shells:    []ShellDecl{defaultShell()},
	}, twoPlatformFixture())
	if err == nil {
		t.Fatal("expected resolver failure to abort evaluation")
	}
	if outputs != nil {
		t.Error("expected no partial output on failure")
	}

	var ee *EvalError
	if !errors.As(err, &ee) {
		t.Fatalf("expected *EvalError, got %T", err)
	}
	if ee.Code != ErrCodeResolve {
		t.Errorf("expected code %s, got %s", ErrCodeResolve, ee.Code)
	}
	if ee.Platform != "riscv64-linux" {
		t.Errorf("expected failing platform in error, got %s", ee.Platform)
	}
}

func TestOutputsShellUnknownPlatform(t *testing.T) {
	outputs := Outputs{
		"x86_64-linux": {"default": {Name: "default", Platform: "x86_64-linux"}},
	}

	_, err := outputs.Shell("armv7l-linux", "default")
	if err == nil {
		t.Fatal("expected no-such-output error")
	}
	var ee *EvalError
	if !errors.As(err, &ee) || ee.Code != ErrCodeNoSuchOutput {
		t.Errorf("expected %s error, got %v", ErrCodeNoSuchOutput, err)
	}

	_, err = outputs.Shell("x86_64-linux", "ci")
	if err == nil {
		t.Fatal("expected no-such-output error for unknown shell name")
	}
}
