package resolver

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/shellforge/shellforge/pkg/eval"
)

// PackageEntry is one package definition in the database.
type PackageEntry struct {
	// StorePath is the root directory of the materialized package.
	StorePath string `json:"store_path"`

	// Outputs maps output names to directories; "lib" is the library output.
	Outputs map[string]string `json:"outputs,omitempty"`
}

// Revision is a pinnable revision for a source, with an optional integrity
// hash.
type Revision struct {
	Rev     string `json:"rev"`
	NarHash string `json:"narHash,omitempty"`
}

// Database is the static package database backing the reference resolver.
type Database struct {
	// Packages maps platform identifiers to package sets.
	Packages map[string]map[string]PackageEntry `json:"packages"`

	// Overlays maps input identifiers to the package patch that source
	// exports.
	Overlays map[string]map[string]PackageEntry `json:"overlays,omitempty"`

	// Revisions maps input identifiers to their current pinnable revision.
	Revisions map[string]Revision `json:"revisions,omitempty"`
}

// LoadDatabase reads and decodes a CUE package database file.
func LoadDatabase(path string) (*Database, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read package database: %w", err)
	}
	return ParseDatabase(string(content), path)
}

// ParseDatabase decodes a CUE package database from a string.
func ParseDatabase(content, filename string) (*Database, error) {
	ctx := cuecontext.New()
	val := ctx.CompileString(content, cue.Filename(filename))
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse package database %s: %w", filename, err)
	}

	var db Database
	if err := val.Decode(&db); err != nil {
		return nil, fmt.Errorf("failed to decode package database %s: %w", filename, err)
	}
	if len(db.Packages) == 0 {
		return nil, fmt.Errorf("package database %s declares no platforms", filename)
	}
	return &db, nil
}

// packageSet converts a platform's entries into an eval.PackageSet.
func (db *Database) packageSet(platform eval.Platform) (eval.PackageSet, bool) {
	entries, ok := db.Packages[string(platform)]
	if !ok {
		return nil, false
	}
	ps := make(eval.PackageSet, len(entries))
	for name, e := range entries {
		ps[name] = eval.Package{Name: name, StorePath: e.StorePath, Outputs: e.Outputs}
	}
	return ps, true
}

// overlayPatch converts an input's exported overlay into an eval.PackageSet
// patch.
func (db *Database) overlayPatch(identifier string) (eval.PackageSet, bool) {
	entries, ok := db.Overlays[identifier]
	if !ok {
		return nil, false
	}
	patch := make(eval.PackageSet, len(entries))
	for name, e := range entries {
		patch[name] = eval.Package{Name: name, StorePath: e.StorePath, Outputs: e.Outputs}
	}
	return patch, true
}
