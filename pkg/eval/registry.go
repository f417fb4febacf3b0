package eval

// Registry is the immutable set of named source references a descriptor
// declares. It is an explicit value passed into evaluation, never a
// package-level singleton, so unrelated evaluations cannot couple through it.
type Registry struct {
	refs  map[string]SourceReference
	order []string
}

// NewRegistry builds a registry from source references in declaration order.
// Identifier uniqueness is the only invariant enforced here; locator
// reachability and revision existence fail at the resolver, not here.
// A Follows entry must name another identifier in the same registry.
func NewRegistry(refs []SourceReference) (*Registry, error) {
	r := &Registry{
		refs:  make(map[string]SourceReference, len(refs)),
		order: make([]string, 0, len(refs)),
	}
	for _, ref := range refs {
		if _, exists := r.refs[ref.Identifier]; exists {
			return nil, NewPermanentError("duplicate input identifier", nil).
				WithInput(ref.Identifier).
				WithCode(ErrCodeDuplicateInput)
		}
		r.refs[ref.Identifier] = ref
		r.order = append(r.order, ref.Identifier)
	}
	for _, ref := range refs {
		if ref.Follows == "" {
			continue
		}
		if _, ok := r.refs[ref.Follows]; !ok {
			return nil, NewPermanentError("follows reference names unknown input", nil).
				WithInput(ref.Identifier).
				WithCode(ErrCodeUnknownInput)
		}
	}
	return r, nil
}

// Lookup returns the reference for an identifier. Follows chains are not
// resolved here; callers that care use Resolve.
func (r *Registry) Lookup(identifier string) (SourceReference, bool) {
	ref, ok := r.refs[identifier]
	return ref, ok
}

// Resolve returns the effective reference for an identifier, chasing Follows
// links. An acyclic chain is bounded by the registry size; a walk that is
// still following after that many steps is a cycle and reports failure.
func (r *Registry) Resolve(identifier string) (SourceReference, bool) {
	ref, ok := r.refs[identifier]
	if !ok {
		return SourceReference{}, false
	}
	for range r.order {
		if ref.Follows == "" {
			return ref, true
		}
		next := r.refs[ref.Follows]
		ref = SourceReference{
			Identifier: ref.Identifier,
			Locator:    next.Locator,
			Revision:   next.Revision,
			Follows:    next.Follows,
		}
	}
	return SourceReference{}, false
}

// References returns the source references in declaration order. The slice
// is a copy; the registry stays immutable.
func (r *Registry) References() []SourceReference {
	out := make([]SourceReference, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.refs[id])
	}
	return out
}

// Len returns the number of declared references.
func (r *Registry) Len() int {
	return len(r.order)
}
