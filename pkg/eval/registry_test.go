package eval

import (
	"errors"
	"testing"
)

func TestNewRegistryRejectsDuplicateIdentifiers(t *testing.T) {
	_, err := NewRegistry([]SourceReference{
		{Identifier: "pkgdb", Locator: "github:example/pkgdb"},
		{Identifier: "pkgdb", Locator: "github:example/other"},
	})
	if err == nil {
		t.Fatal("expected error for duplicate identifier")
	}

	var ee *EvalError
	if !errors.As(err, &ee) {
		t.Fatalf("expected *EvalError, got %T", err)
	}
	if ee.Code != ErrCodeDuplicateInput {
		t.Errorf("expected code %s, got %s", ErrCodeDuplicateInput, ee.Code)
	}
	if ee.Input != "pkgdb" {
		t.Errorf("expected input pkgdb, got %s", ee.Input)
	}
}

func TestNewRegistryRejectsUnknownFollows(t *testing.T) {
	_, err := NewRegistry([]SourceReference{
		{Identifier: "utils", Locator: "github:example/utils", Follows: "missing"},
	})
	if err == nil {
		t.Fatal("expected error for unknown follows target")
	}

	var ee *EvalError
	if !errors.As(err, &ee) || ee.Code != ErrCodeUnknownInput {
		t.Errorf("expected %s error, got %v", ErrCodeUnknownInput, err)
	}
}

func TestRegistryResolveFollowsChain(t *testing.T) {
	reg, err := NewRegistry([]SourceReference{
		{Identifier: "pkgdb", Locator: "github:example/pkgdb", Revision: "rev-1"},
		{Identifier: "utils", Locator: "github:example/utils", Follows: "pkgdb"},
		{Identifier: "toolchain", Locator: "github:example/toolchain", Follows: "utils"},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	ref, ok := reg.Resolve("toolchain")
	if !ok {
		t.Fatal("expected toolchain to resolve")
	}
	if ref.Identifier != "toolchain" {
		t.Errorf("resolve must keep the original identifier, got %s", ref.Identifier)
	}
	if ref.Locator != "github:example/pkgdb" || ref.Revision != "rev-1" {
		t.Errorf("expected pkgdb locator and pin, got %s@%s", ref.Locator, ref.Revision)
	}
}

func TestRegistryResolveDetectsFollowsCycle(t *testing.T) {
	reg, err := NewRegistry([]SourceReference{
		{Identifier: "a", Locator: "github:example/a", Follows: "b"},
		{Identifier: "b", Locator: "github:example/b", Follows: "a"},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	if _, ok := reg.Resolve("a"); ok {
		t.Error("expected cyclic follows chain to fail resolution")
	}
}

func TestRegistryReferencesPreservesDeclarationOrder(t *testing.T) {
	refs := []SourceReference{
		{Identifier: "zeta", Locator: "github:example/zeta"},
		{Identifier: "alpha", Locator: "github:example/alpha"},
		{Identifier: "mid", Locator: "github:example/mid"},
	}
	reg, err := NewRegistry(refs)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	got := reg.References()
	if len(got) != len(refs) {
		t.Fatalf("expected %d references, got %d", len(refs), len(got))
	}
	for i := range refs {
		if got[i].Identifier != refs[i].Identifier {
			t.Errorf("position %d: expected %s, got %s", i, refs[i].Identifier, got[i].Identifier)
		}
	}
}
