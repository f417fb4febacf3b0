package eval

import "strconv"

// ApplyOverlays folds an ordered overlay list over a base package set. Each
// overlay sees the set accumulated so far and contributes a patch; when two
// overlays define the same package name, the later one wins. The base is
// cloned first, so callers keep an unmodified view.
//
// Last-write-wins in declaration order is a contract, not an accident of the
// merge: tests pin it.
func ApplyOverlays(base PackageSet, overlays []Overlay) (PackageSet, error) {
	acc := base.Clone()
	for i, overlay := range overlays {
		patch, err := overlay(acc)
		if err != nil {
			return nil, NewPermanentError("overlay application failed", err).
				WithCode(ErrCodeOverlay).
				WithInput(overlayName(i))
		}
		for name, pkg := range patch {
			acc[name] = pkg
		}
	}
	return acc, nil
}

func overlayName(index int) string {
	// Overlays are anonymous functions; index in declaration order is the
	// only stable handle for error reporting.
	return "overlay[" + strconv.Itoa(index) + "]"
}
