package resolver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/shellforge/shellforge/pkg/eval"
	"github.com/shellforge/shellforge/pkg/lockfile"
	"github.com/shellforge/shellforge/pkg/stores"
)

// CacheMetrics receives cache hit/miss events. telemetry.Metrics implements
// it; tests use a counter stub.
type CacheMetrics interface {
	ResolutionCacheHit(platform string)
	ResolutionCacheMiss(platform string)
}

// Static implements eval.Resolver from a package database, with an optional
// resolution cache. It also implements lockfile.Pinner and provides the
// overlays that pinned sources export.
type Static struct {
	db      *Database
	cache   stores.ResolutionStore
	metrics CacheMetrics
	logger  zerolog.Logger
}

// Option configures a Static resolver.
type Option func(*Static)

// WithCache attaches a resolution cache.
func WithCache(cache stores.ResolutionStore) Option {
	return func(s *Static) { s.cache = cache }
}

// WithMetrics attaches cache metrics.
func WithMetrics(m CacheMetrics) Option {
	return func(s *Static) { s.metrics = m }
}

// WithLogger attaches a logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Static) {
		s.logger = logger.With().Str("component", "resolver").Logger()
	}
}

// NewStatic creates a resolver over the given package database.
func NewStatic(db *Database, opts ...Option) *Static {
	s := &Static{db: db, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve produces the package set for one platform: base set from the
// database (through the cache when one is attached), then the overlays in
// declaration order.
func (s *Static) Resolve(ctx context.Context, registry *eval.Registry, overlays []eval.Overlay, platform eval.Platform) (eval.PackageSet, error) {
	if err := s.checkPins(registry); err != nil {
		return nil, err
	}

	base, err := s.baseSet(ctx, registry, platform)
	if err != nil {
		return nil, err
	}
	return eval.ApplyOverlays(base, overlays)
}

// LibraryOutputPath maps a package to its "lib" output directory.
func (s *Static) LibraryOutputPath(pkg eval.Package) (string, bool) {
	dir, ok := pkg.Outputs["lib"]
	return dir, ok && dir != ""
}

// OverlayForInput returns the overlay a pinned source exports, as declared in
// the database. Satisfies descriptor.InputOverlayProvider.
func (s *Static) OverlayForInput(identifier string) (eval.Overlay, error) {
	patch, ok := s.db.overlayPatch(identifier)
	if !ok {
		return nil, eval.NewPermanentError("source exports no overlay", nil).
			WithInput(identifier).
			WithCode(eval.ErrCodeUnknownInput)
	}
	return func(eval.PackageSet) (eval.PackageSet, error) {
		return patch, nil
	}, nil
}

// Pin resolves an unpinned source to its current revision. Satisfies
// lockfile.Pinner.
func (s *Static) Pin(_ context.Context, ref eval.SourceReference) (lockfile.Ref, error) {
	rev, ok := s.db.Revisions[ref.Identifier]
	if !ok {
		return lockfile.Ref{}, eval.NewPermanentError("no revision known for source", nil).
			WithInput(ref.Identifier).
			WithCode(eval.ErrCodeResolve)
	}
	return lockfile.Ref{URL: ref.Locator, Rev: rev.Rev, NarHash: rev.NarHash}, nil
}

// checkPins rejects registries whose effective references carry neither a pin
// nor a known revision: an unpinned source cannot resolve reproducibly.
func (s *Static) checkPins(registry *eval.Registry) error {
	for _, ref := range registry.References() {
		effective, ok := registry.Resolve(ref.Identifier)
		if !ok {
			return eval.NewPermanentError("follows chain does not terminate", nil).
				WithInput(ref.Identifier).
				WithCode(eval.ErrCodeUnknownInput)
		}
		if effective.Revision == "" {
			if _, known := s.db.Revisions[effective.Identifier]; !known {
				return eval.NewPermanentError("source is unpinned and unknown to the database", nil).
					WithInput(ref.Identifier).
					WithCode(eval.ErrCodeResolve)
			}
		}
	}
	return nil
}

// baseSet loads the platform's base package set, consulting the cache first.
func (s *Static) baseSet(ctx context.Context, registry *eval.Registry, platform eval.Platform) (eval.PackageSet, error) {
	digest := PinDigest(registry)

	if s.cache != nil {
		rec, err := s.cache.Get(ctx, digest, string(platform))
		switch {
		case err == nil:
			if s.metrics != nil {
				s.metrics.ResolutionCacheHit(string(platform))
			}
			s.logger.Debug().Str("digest", digest).Str("platform", string(platform)).Msg("resolution cache hit")
			var ps eval.PackageSet
			if err := json.Unmarshal(rec.Packages, &ps); err != nil {
				return nil, fmt.Errorf("corrupt cached resolution %s: %w", digest, err)
			}
			return ps, nil
		case errors.Is(err, stores.ErrNotFound):
			if s.metrics != nil {
				s.metrics.ResolutionCacheMiss(string(platform))
			}
		default:
			return nil, fmt.Errorf("resolution cache lookup failed: %w", err)
		}
	}

	base, ok := s.db.packageSet(platform)
	if !ok {
		return nil, eval.NewPermanentError("package database has no entries for platform", nil).
			WithPlatform(platform).
			WithCode(eval.ErrCodeResolve)
	}

	if s.cache != nil {
		encoded, err := json.Marshal(base)
		if err != nil {
			return nil, fmt.Errorf("failed to encode resolution: %w", err)
		}
		if err := s.cache.Put(ctx, &stores.ResolutionRecord{
			Digest:   digest,
			Platform: string(platform),
			Packages: encoded,
		}); err != nil {
			// Cache failures never fail the resolution itself.
			s.logger.Warn().Err(err).Str("digest", digest).Msg("failed to cache resolution")
		}
	}

	return base, nil
}

// PinDigest computes the hex SHA-256 of the canonical pin encoding: one
// "identifier=locator@revision" line per effective reference, sorted by
// identifier. Identical pin sets digest identically regardless of declaration
// order.
func PinDigest(registry *eval.Registry) string {
	refs := registry.References()
	lines := make([]string, 0, len(refs))
	for _, ref := range refs {
		effective, ok := registry.Resolve(ref.Identifier)
		if !ok {
			effective = ref
		}
		lines = append(lines, fmt.Sprintf("%s=%s@%s", ref.Identifier, effective.Locator, effective.Revision))
	}
	sort.Strings(lines)

	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}
