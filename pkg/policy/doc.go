// Package policy provides Open Policy Agent (OPA) governance for shellforge
// descriptors.
//
// Policies are Rego modules whose deny rules produce violations over a
// descriptor (and its lock state). Built-in policies cover the baseline
// reproducibility requirements: every input pinned or locked, lowercase input
// identifiers, a non-empty platform enumeration, and shells that declare at
// least one input. Custom policies load from .rego files or directories and
// can be hot-reloaded via the file watcher.
//
// Policy evaluation runs at validate time and is advisory plumbing around the
// evaluation pipeline; it never alters projection results.
package policy
