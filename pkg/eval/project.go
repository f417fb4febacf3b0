package eval

import "strings"

// ProjectEnvironment projects one shell declaration onto a resolved package
// set, producing the environment specification for a platform.
//
// The library search-path variable is derived from BuildInputs in declared
// order: each input maps to its library output directory via the resolver,
// inputs without a library output contribute nothing, and the directories are
// joined with the platform's path-list separator. No deduplication is
// performed; duplicate declarations yield duplicate path entries. An empty
// BuildInputs list derives an empty string, with the variable still present.
//
// Every referenced package must exist in the set; a missing one is an
// undefined-package failure, surfaced the way the resolver would surface it.
// This function performs no I/O.
func ProjectEnvironment(pkgs PackageSet, decl ShellDecl, platform Platform, resolver Resolver) (EnvironmentSpec, error) {
	for _, name := range decl.NativeBuildInputs {
		if _, ok := pkgs[name]; !ok {
			return EnvironmentSpec{}, undefinedPackage(name, platform)
		}
	}

	libDirs := make([]string, 0, len(decl.BuildInputs))
	for _, name := range decl.BuildInputs {
		pkg, ok := pkgs[name]
		if !ok {
			return EnvironmentSpec{}, undefinedPackage(name, platform)
		}
		if dir, ok := resolver.LibraryOutputPath(pkg); ok {
			libDirs = append(libDirs, dir)
		}
	}

	libVar := platform.LibraryPathVariable()
	extra := make(map[string]string, len(decl.Env)+1)
	for k, v := range decl.Env {
		if k == libVar {
			continue
		}
		extra[k] = v
	}
	extra[libVar] = strings.Join(libDirs, platform.ListSeparator())

	return EnvironmentSpec{
		Name:              decl.Name,
		Platform:          platform,
		NativeBuildInputs: copyInputs(decl.NativeBuildInputs),
		BuildInputs:       copyInputs(decl.BuildInputs),
		ExtraVariables:    extra,
	}, nil
}

func undefinedPackage(name string, platform Platform) *EvalError {
	return NewPermanentError("shell references undefined package", nil).
		WithInput(name).
		WithPlatform(platform).
		WithCode(ErrCodeUndefined)
}

// copyInputs normalizes nil to an empty slice so projected specs always
// marshal the sequence, and detaches the spec from the declaration.
func copyInputs(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
