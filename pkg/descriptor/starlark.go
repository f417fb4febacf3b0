package descriptor

import (
	"fmt"
	"time"

	"go.starlark.net/starlark"

	"github.com/shellforge/shellforge/pkg/eval"
)

// StarlarkOverlays compiles inline Starlark overlay scripts into eval.Overlay
// functions. A script is a module defining
//
//	def overlay(pkgs):
//	    return {"name": {"store_path": "...", "outputs": {"lib": "..."}}}
//
// where pkgs is the accumulated package set as a dict of the same shape. The
// returned dict is the patch; returning an empty dict patches nothing.
// Scripts run sandboxed: no print, no module loading, a wall-clock budget
// enforced per application.
type StarlarkOverlays struct {
	timeout time.Duration
}

// NewStarlarkOverlays creates an overlay compiler with the given per-script
// execution budget.
func NewStarlarkOverlays(timeout time.Duration) *StarlarkOverlays {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &StarlarkOverlays{timeout: timeout}
}

// Compile executes the script module once to resolve its overlay function and
// returns an eval.Overlay that applies it. Compilation errors (syntax errors,
// missing overlay function) surface here; runtime errors surface when the
// overlay is applied.
func (so *StarlarkOverlays) Compile(script string) (eval.Overlay, error) {
	thread := so.newThread()
	globals, err := starlark.ExecFile(thread, "overlay.star", script, starlark.StringDict{})
	if err != nil {
		return nil, fmt.Errorf("overlay script failed to load: %w", err)
	}

	fn, ok := globals["overlay"]
	if !ok {
		return nil, fmt.Errorf("overlay script defines no overlay function")
	}
	callable, ok := fn.(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("overlay is not callable (got %s)", fn.Type())
	}

	return func(base eval.PackageSet) (eval.PackageSet, error) {
		return so.apply(callable, base)
	}, nil
}

// apply invokes the overlay function against the accumulated package set.
func (so *StarlarkOverlays) apply(fn starlark.Callable, base eval.PackageSet) (eval.PackageSet, error) {
	thread := so.newThread()

	deadline := time.Now().Add(so.timeout)
	done := make(chan struct{})
	defer close(done)
	go func() {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		select {
		case <-timer.C:
			thread.Cancel("execution budget exceeded")
		case <-done:
		}
	}()

	result, err := starlark.Call(thread, fn, starlark.Tuple{packageSetToStarlark(base)}, nil)
	if err != nil {
		return nil, fmt.Errorf("overlay call failed: %w", err)
	}

	dict, ok := result.(*starlark.Dict)
	if !ok {
		return nil, fmt.Errorf("overlay must return a dict, got %s", result.Type())
	}
	return packageSetFromStarlark(dict)
}

func (so *StarlarkOverlays) newThread() *starlark.Thread {
	return &starlark.Thread{
		Name: "shellforge-overlay",
		Print: func(_ *starlark.Thread, _ string) {
			// Suppressed: overlays are pure transformations.
		},
	}
}

// packageSetToStarlark converts a package set into the pkgs dict handed to
// overlay functions.
func packageSetToStarlark(ps eval.PackageSet) *starlark.Dict {
	dict := starlark.NewDict(len(ps))
	for name, pkg := range ps {
		outputs := starlark.NewDict(len(pkg.Outputs))
		for out, dir := range pkg.Outputs {
			_ = outputs.SetKey(starlark.String(out), starlark.String(dir))
		}
		entry := starlark.NewDict(3)
		_ = entry.SetKey(starlark.String("name"), starlark.String(pkg.Name))
		_ = entry.SetKey(starlark.String("store_path"), starlark.String(pkg.StorePath))
		_ = entry.SetKey(starlark.String("outputs"), outputs)
		_ = dict.SetKey(starlark.String(name), entry)
	}
	return dict
}

// packageSetFromStarlark converts an overlay's returned patch dict back into
// a package set.
func packageSetFromStarlark(dict *starlark.Dict) (eval.PackageSet, error) {
	patch := make(eval.PackageSet, dict.Len())
	for _, item := range dict.Items() {
		name, ok := item[0].(starlark.String)
		if !ok {
			return nil, fmt.Errorf("patch key must be a string, got %s", item[0].Type())
		}
		entry, ok := item[1].(*starlark.Dict)
		if !ok {
			return nil, fmt.Errorf("patch entry %s must be a dict, got %s", name, item[1].Type())
		}

		pkg := eval.Package{Name: string(name)}
		if v, found, _ := entry.Get(starlark.String("store_path")); found {
			s, ok := v.(starlark.String)
			if !ok {
				return nil, fmt.Errorf("patch entry %s: store_path must be a string", name)
			}
			pkg.StorePath = string(s)
		}
		if v, found, _ := entry.Get(starlark.String("outputs")); found {
			outs, ok := v.(*starlark.Dict)
			if !ok {
				return nil, fmt.Errorf("patch entry %s: outputs must be a dict", name)
			}
			pkg.Outputs = make(map[string]string, outs.Len())
			for _, out := range outs.Items() {
				outName, ok := out[0].(starlark.String)
				if !ok {
					return nil, fmt.Errorf("patch entry %s: output key must be a string", name)
				}
				dir, ok := out[1].(starlark.String)
				if !ok {
					return nil, fmt.Errorf("patch entry %s: output %s must be a string", name, outName)
				}
				pkg.Outputs[string(outName)] = string(dir)
			}
		}
		patch[string(name)] = pkg
	}
	return patch, nil
}
