// Package lockfile reads and writes the shellforge lockfile, which pins
// every declared input to an exact revision so that repeated evaluations
// resolve an identical package set.
//
// The lockfile is JSON with one node per input, each carrying the original
// (declared) reference and the locked (pinned) reference, plus an integrity
// hash when the pinner provides one. Follows relationships are recorded as
// node links and re-resolved at load time.
package lockfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/shellforge/shellforge/pkg/eval"
)

// DefaultName is the conventional lockfile name next to the descriptor.
const DefaultName = "shellforge.lock"

// Version is the lockfile schema version this package writes.
const Version = 1

// Ref is a source reference inside a lock node.
type Ref struct {
	// URL is the origin locator.
	URL string `json:"url,omitempty"`

	// Rev is the revision. Always set on locked refs.
	Rev string `json:"rev,omitempty"`

	// NarHash is the content integrity hash of the locked source, when the
	// pinner provides one.
	NarHash string `json:"narHash,omitempty"`

	// LastModified is the source's last-modified time in Unix seconds.
	LastModified int64 `json:"lastModified,omitempty"`
}

// Node is one locked input.
type Node struct {
	// Original is the reference as declared in the descriptor.
	Original *Ref `json:"original,omitempty"`

	// Locked is the pinned reference. Nil on a pure follows node.
	Locked *Ref `json:"locked,omitempty"`

	// Follows names the node this input reuses instead of its own locator.
	Follows string `json:"follows,omitempty"`
}

// Lockfile is the full pin set for a descriptor.
type Lockfile struct {
	// Version is the schema version.
	Version int `json:"version"`

	// Nodes maps input identifiers to their lock nodes.
	Nodes map[string]Node `json:"nodes"`
}

// Pinner resolves an unpinned source reference to an exact revision. The
// reference resolver implements this; a real deployment would query the
// source's distribution channel.
type Pinner interface {
	Pin(ctx context.Context, ref eval.SourceReference) (Ref, error)
}

// Read loads a lockfile from disk.
func Read(path string) (*Lockfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lockfile: %w", err)
	}

	var lf Lockfile
	if err := json.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("failed to parse lockfile %s: %w", path, err)
	}
	if lf.Version != Version {
		return nil, fmt.Errorf("unsupported lockfile version %d in %s", lf.Version, path)
	}
	return &lf, nil
}

// Write stores the lockfile with stable formatting, so that re-locking an
// unchanged descriptor produces a byte-identical file.
func (lf *Lockfile) Write(path string) error {
	data, err := json.MarshalIndent(lf, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode lockfile: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write lockfile: %w", err)
	}
	return nil
}

// Lock pins every registry entry. Entries that already carry a revision keep
// it; unpinned entries are pinned through the pinner; follows entries record
// the link and pin nothing of their own.
func Lock(ctx context.Context, registry *eval.Registry, pinner Pinner) (*Lockfile, error) {
	lf := &Lockfile{
		Version: Version,
		Nodes:   make(map[string]Node, registry.Len()),
	}

	for _, ref := range registry.References() {
		node := Node{
			Original: &Ref{URL: ref.Locator, Rev: ref.Revision},
			Follows:  ref.Follows,
		}
		switch {
		case ref.Follows != "":
			// Pinned through the target node.
		case ref.Revision != "":
			node.Locked = &Ref{URL: ref.Locator, Rev: ref.Revision}
		default:
			if pinner == nil {
				return nil, fmt.Errorf("input %s is unpinned and no pinner is available", ref.Identifier)
			}
			locked, err := pinner.Pin(ctx, ref)
			if err != nil {
				return nil, fmt.Errorf("failed to pin input %s: %w", ref.Identifier, err)
			}
			node.Locked = &locked
		}
		lf.Nodes[ref.Identifier] = node
	}

	return lf, nil
}

// Apply returns a registry with every entry pinned to its locked revision.
// Inputs missing from the lockfile keep their declared reference; stale lock
// nodes without a matching input are dropped.
func (lf *Lockfile) Apply(registry *eval.Registry) (*eval.Registry, error) {
	refs := registry.References()
	out := make([]eval.SourceReference, 0, len(refs))
	for _, ref := range refs {
		node, ok := lf.Nodes[ref.Identifier]
		if !ok || node.Locked == nil {
			out = append(out, ref)
			continue
		}
		out = append(out, eval.SourceReference{
			Identifier: ref.Identifier,
			Locator:    node.Locked.URL,
			Revision:   node.Locked.Rev,
			Follows:    ref.Follows,
		})
	}
	return eval.NewRegistry(out)
}

// Identifiers returns the locked input names in lexical order, for stable
// display.
func (lf *Lockfile) Identifiers() []string {
	ids := make([]string, 0, len(lf.Nodes))
	for id := range lf.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
