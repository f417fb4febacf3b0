package eval

import "context"

// Resolver is the external resolver contract this package consumes. It owns
// dependency resolution, build-graph construction, and materialization;
// evaluation treats it as an opaque, correct service. Any failure it returns
// propagates unchanged: no retries, no timeouts, no partial output.
//
// Reproducibility is the resolver's contract: the same registry pins on the
// same platform must always yield an identical package set.
type Resolver interface {
	// Resolve produces the package set for one platform from the declared
	// sources, with the descriptor's overlays applied in order.
	Resolve(ctx context.Context, registry *Registry, overlays []Overlay, platform Platform) (PackageSet, error)

	// LibraryOutputPath maps a resolved package to its runtime library
	// directory. ok is false when the package has no library output; that is
	// a documented edge case, not an error.
	LibraryOutputPath(pkg Package) (dir string, ok bool)
}
