package stores

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when no cached resolution exists for a key.
var ErrNotFound = errors.New("resolution not found")

// ResolutionRecord is one cached package set resolution.
type ResolutionRecord struct {
	// Digest is the hex SHA-256 of the canonical pin encoding.
	Digest string `json:"digest"`

	// Platform is the platform the set was resolved for.
	Platform string `json:"platform"`

	// Packages is the resolved package set, JSON-encoded.
	Packages json.RawMessage `json:"packages"`

	// ResolvedAt is when the resolution was first cached.
	ResolvedAt time.Time `json:"resolved_at"`
}

// ResolutionStore caches package set resolutions.
type ResolutionStore interface {
	// Get retrieves a cached resolution, or ErrNotFound.
	Get(ctx context.Context, digest, platform string) (*ResolutionRecord, error)

	// Put stores a resolution. Re-putting an existing key is a no-op: the
	// reproducibility contract guarantees the payload is identical.
	Put(ctx context.Context, record *ResolutionRecord) error

	// List returns all cached resolutions, newest first.
	List(ctx context.Context) ([]ResolutionRecord, error)

	// Prune removes resolutions older than the cutoff and reports how many
	// were removed.
	Prune(ctx context.Context, olderThan time.Time) (int64, error)

	// Close releases the underlying database.
	Close() error
}
