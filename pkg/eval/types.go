package eval

import "strings"

// Platform identifies a target OS+architecture combination, in the
// conventional "<arch>-<os>" form (e.g. "x86_64-linux", "aarch64-darwin").
// Beyond splitting off the OS component to pick the library search-path
// variable name, the value is treated as an opaque iteration key.
type Platform string

// OS returns the operating system component of the platform identifier,
// or the whole identifier if it does not follow the "<arch>-<os>" form.
func (p Platform) OS() string {
	s := string(p)
	if i := strings.LastIndex(s, "-"); i >= 0 {
		return s[i+1:]
	}
	return s
}

// LibraryPathVariable returns the name of the runtime linker search-path
// variable for this platform.
func (p Platform) LibraryPathVariable() string {
	if p.OS() == "darwin" {
		return "DYLD_LIBRARY_PATH"
	}
	return "LD_LIBRARY_PATH"
}

// ListSeparator returns the path-list separator convention for this platform.
func (p Platform) ListSeparator() string {
	return ":"
}

// SourceReference is a named, optionally pinned external source. Locator
// reachability and revision existence are the resolver's concern; this layer
// only guarantees identifier uniqueness within a Registry.
type SourceReference struct {
	// Identifier is the name the descriptor uses to refer to this source.
	Identifier string `json:"identifier" validate:"required"`

	// Locator is the origin URI (e.g. "github:owner/repo", "https://...").
	Locator string `json:"locator" validate:"required"`

	// Revision pins the source to an exact revision. Empty means unpinned;
	// the lock step or the resolver chooses a revision.
	Revision string `json:"revision,omitempty"`

	// Follows names another registry entry whose resolved source this entry
	// reuses instead of its own locator. Used to deduplicate transitive
	// sources (e.g. two inputs sharing one package collection).
	Follows string `json:"follows,omitempty"`
}

// Package is a resolved package descriptor. The resolver owns its contents;
// this layer only reads the output directories when deriving search paths.
type Package struct {
	// Name is the package name within its package set.
	Name string `json:"name"`

	// StorePath is the root directory of the materialized package.
	StorePath string `json:"store_path"`

	// Outputs maps output names to directories. The "lib" output, when
	// present, is the package's runtime library directory.
	Outputs map[string]string `json:"outputs,omitempty"`
}

// PackageSet maps package names to resolved package descriptors.
type PackageSet map[string]Package

// Clone returns a shallow copy of the set. Overlay application clones the
// base so that platform evaluations never share mutable state.
func (ps PackageSet) Clone() PackageSet {
	out := make(PackageSet, len(ps))
	for name, pkg := range ps {
		out[name] = pkg
	}
	return out
}

// Overlay patches a base package set. It receives the set accumulated so far
// and returns the packages it defines or overrides; it must not mutate the
// base. A failing overlay aborts the whole evaluation.
type Overlay func(base PackageSet) (PackageSet, error)

// ShellDecl declares one development shell: the tools needed to construct and
// use the shell itself, and the runtime dependencies of whatever is developed
// inside it.
type ShellDecl struct {
	// Name is the output name, conventionally "default".
	Name string `json:"name" validate:"required"`

	// NativeBuildInputs are build-time-only tools (analyzers, linkers).
	NativeBuildInputs []string `json:"native_build_inputs,omitempty"`

	// BuildInputs are full dependencies whose library outputs feed the
	// derived search-path variable, in declared order.
	BuildInputs []string `json:"build_inputs,omitempty"`

	// Env carries extra environment variables through verbatim. A declared
	// entry may not override the derived search-path variable.
	Env map[string]string `json:"env,omitempty"`
}

// EnvironmentSpec is the projected shell environment for one platform. It is
// a pure specification; materializing it on disk is the external evaluator's
// responsibility.
type EnvironmentSpec struct {
	// Name is the shell output name.
	Name string `json:"name"`

	// Platform is the platform this spec was projected for.
	Platform Platform `json:"platform"`

	// NativeBuildInputs lists build-time tool package names, declared order.
	NativeBuildInputs []string `json:"native_build_inputs"`

	// BuildInputs lists full dependency package names, declared order.
	BuildInputs []string `json:"build_inputs"`

	// ExtraVariables holds the derived library search-path variable plus any
	// declared extra environment entries.
	ExtraVariables map[string]string `json:"extra_variables"`
}

// Outputs is the final addressable structure: platform -> shell name ->
// EnvironmentSpec. Consumers look up by explicit pair; key iteration order
// carries no meaning.
type Outputs map[Platform]map[string]EnvironmentSpec

// Shell looks up the environment spec for a platform and shell name. A
// platform outside the declared enumeration yields ErrCodeNoSuchOutput, not
// an evaluation failure.
func (o Outputs) Shell(platform Platform, name string) (EnvironmentSpec, error) {
	shells, ok := o[platform]
	if !ok {
		return EnvironmentSpec{}, NewPermanentError("no outputs for platform", nil).
			WithInput(string(platform)).
			WithCode(ErrCodeNoSuchOutput)
	}
	spec, ok := shells[name]
	if !ok {
		return EnvironmentSpec{}, NewPermanentError("no such shell output", nil).
			WithInput(string(platform) + "/" + name).
			WithCode(ErrCodeNoSuchOutput)
	}
	return spec, nil
}
