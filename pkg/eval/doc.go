// Package eval implements the composition model at the heart of shellforge:
// it turns a declared set of pinned sources, an ordered overlay list, and a
// platform enumeration into per-platform development shell environments.
//
// The model is a single-pass, side-effect-free transform:
//
//	Registry + Overlays --Resolver--> PackageSet --Projector--> EnvironmentSpec
//
// evaluated once per declared platform and assembled into an addressable
// Outputs structure keyed by platform and shell name.
//
// # Pipeline
//
//  1. Registry - named source references (identifier -> locator + revision pin)
//  2. Overlay application - ordered package set patches, last write wins
//  3. Platform fan-out - one independent evaluation per declared platform
//  4. Environment projection - dependency lists to a shell environment,
//     including the derived library search-path variable
//  5. Output aggregation - {platform -> {shell name -> EnvironmentSpec}}
//
// Package resolution itself is delegated to a Resolver implementation; this
// package performs no filesystem or network I/O. Resolver failures propagate
// unchanged, with no local retry or recovery.
//
// # Usage
//
//	reg, err := eval.NewRegistry([]eval.SourceReference{
//	    {Identifier: "pkgdb", Locator: "github:shellforge/pkgdb", Revision: "a1b2c3"},
//	})
//	if err != nil {
//	    return err
//	}
//
//	outputs, err := eval.Evaluate(ctx, eval.Evaluation{
//	    Registry:  reg,
//	    Overlays:  overlays,
//	    Platforms: []eval.Platform{"x86_64-linux", "aarch64-darwin"},
//	    Shells:    []eval.ShellDecl{shell},
//	}, resolver)
//	if err != nil {
//	    return err
//	}
//
//	spec, err := outputs.Shell("x86_64-linux", "default")
//
// For a fixed registry, overlay list, and platform, Evaluate is deterministic:
// repeated runs produce byte-identical EnvironmentSpec values.
package eval
