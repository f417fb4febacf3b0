package descriptor

import (
	"fmt"
	"sort"

	"github.com/shellforge/shellforge/pkg/eval"
)

// Descriptor is the typed form of a parsed environment descriptor.
type Descriptor struct {
	// Description is free text with no semantic effect.
	Description string `json:"description,omitempty"`

	// Inputs maps source identifiers to their declarations.
	Inputs map[string]InputDecl `json:"inputs,omitempty" validate:"dive"`

	// Overlays is the ordered overlay list. Order is declaration order and
	// determines last-write-wins precedence.
	Overlays []OverlayDecl `json:"overlays,omitempty" validate:"dive"`

	// Platforms is the static target platform enumeration.
	Platforms []string `json:"platforms" validate:"required,min=1,dive,required"`

	// Shells maps output names to shell declarations.
	Shells map[string]ShellSpec `json:"shells" validate:"required,min=1,dive"`

	// SourceFiles are the CUE files the descriptor was parsed from.
	SourceFiles []string `json:"source_files,omitempty"`
}

// InputDecl declares one named external source.
type InputDecl struct {
	// URL is the origin locator (e.g. "github:owner/repo").
	URL string `json:"url,omitempty" validate:"required_without=Follows"`

	// Rev pins the source to an exact revision.
	Rev string `json:"rev,omitempty"`

	// Follows reuses another input's resolved source instead of URL/Rev.
	Follows string `json:"follows,omitempty"`
}

// OverlayDecl declares one overlay: either one exported by a pinned source
// or an inline Starlark script. Exactly one of the two fields is set.
type OverlayDecl struct {
	// Input names a declared input whose exported overlay is applied.
	Input string `json:"input,omitempty"`

	// Script is an inline Starlark overlay: a module defining
	// overlay(pkgs) that returns a package patch dict.
	Script string `json:"script,omitempty"`
}

// ShellSpec declares one development shell output.
type ShellSpec struct {
	// NativeBuildInputs are build-time-only tool package names.
	NativeBuildInputs []string `json:"nativeBuildInputs,omitempty"`

	// BuildInputs are full dependency package names; their library outputs
	// feed the derived search-path variable in this order.
	BuildInputs []string `json:"buildInputs,omitempty"`

	// Env carries extra environment variables through verbatim.
	Env map[string]string `json:"env,omitempty"`
}

// ValidationError is a parse or validation failure with source location.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the CUE path to the error (e.g. "shells.default").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	switch {
	case e.File != "" && e.Line > 0:
		return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
	case e.Path != "":
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	default:
		return e.Message
	}
}

// InputOverlayProvider compiles the overlay exported by a pinned source into
// an eval.Overlay. The reference resolver implements this from its package
// database; a real deployment would fetch the source and load its overlay.
type InputOverlayProvider func(identifier string) (eval.Overlay, error)

// ToEvaluation converts the descriptor into an evaluation input. Inline
// scripts are compiled with star; input-exported overlays are compiled with
// provider. Input identifiers enter the registry in lexical order so that the
// registry's declaration order is stable regardless of CUE field ordering.
func (d *Descriptor) ToEvaluation(star *StarlarkOverlays, provider InputOverlayProvider) (eval.Evaluation, error) {
	refs := make([]eval.SourceReference, 0, len(d.Inputs))
	for _, id := range sortedInputIDs(d.Inputs) {
		in := d.Inputs[id]
		refs = append(refs, eval.SourceReference{
			Identifier: id,
			Locator:    in.URL,
			Revision:   in.Rev,
			Follows:    in.Follows,
		})
	}
	registry, err := eval.NewRegistry(refs)
	if err != nil {
		return eval.Evaluation{}, err
	}

	overlays := make([]eval.Overlay, 0, len(d.Overlays))
	for i, decl := range d.Overlays {
		switch {
		case decl.Input != "" && decl.Script != "":
			return eval.Evaluation{}, fmt.Errorf("overlay %d declares both input and script", i)
		case decl.Input != "":
			if _, ok := d.Inputs[decl.Input]; !ok {
				return eval.Evaluation{}, fmt.Errorf("overlay %d references undeclared input %q", i, decl.Input)
			}
			if provider == nil {
				return eval.Evaluation{}, fmt.Errorf("overlay %d needs an input overlay provider", i)
			}
			ov, err := provider(decl.Input)
			if err != nil {
				return eval.Evaluation{}, fmt.Errorf("compile overlay for input %q: %w", decl.Input, err)
			}
			overlays = append(overlays, ov)
		case decl.Script != "":
			if star == nil {
				return eval.Evaluation{}, fmt.Errorf("overlay %d needs a starlark compiler", i)
			}
			ov, err := star.Compile(decl.Script)
			if err != nil {
				return eval.Evaluation{}, fmt.Errorf("compile overlay script %d: %w", i, err)
			}
			overlays = append(overlays, ov)
		default:
			return eval.Evaluation{}, fmt.Errorf("overlay %d declares neither input nor script", i)
		}
	}

	platforms := make([]eval.Platform, 0, len(d.Platforms))
	for _, p := range d.Platforms {
		platforms = append(platforms, eval.Platform(p))
	}

	shells := make([]eval.ShellDecl, 0, len(d.Shells))
	for _, name := range sortedShellNames(d.Shells) {
		spec := d.Shells[name]
		shells = append(shells, eval.ShellDecl{
			Name:              name,
			NativeBuildInputs: spec.NativeBuildInputs,
			BuildInputs:       spec.BuildInputs,
			Env:               spec.Env,
		})
	}

	return eval.Evaluation{
		Registry:  registry,
		Overlays:  overlays,
		Platforms: platforms,
		Shells:    shells,
	}, nil
}

func sortedInputIDs(inputs map[string]InputDecl) []string {
	ids := make([]string, 0, len(inputs))
	for id := range inputs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sortedShellNames(shells map[string]ShellSpec) []string {
	names := make([]string, 0, len(shells))
	for name := range shells {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
