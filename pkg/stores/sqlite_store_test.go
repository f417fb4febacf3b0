package stores

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{Path: filepath.Join(t.TempDir(), "cache.db")})
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNewSQLiteStoreRequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestInitHonorsPoolSettings(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path:            filepath.Join(t.TempDir(), "cache.db"),
		MaxOpenConns:    3,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
	})
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if got := store.db.Stats().MaxOpenConnections; got != 3 {
		t.Errorf("MaxOpenConnections = %d, want 3", got)
	}
}

func TestNewSQLiteStoreDefaultsPoolSettings(t *testing.T) {
	store, err := NewSQLiteStore(Config{Path: filepath.Join(t.TempDir(), "cache.db")})
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if store.cfg.MaxOpenConns != 25 || store.cfg.MaxIdleConns != 5 {
		t.Errorf("unexpected pool defaults: %d/%d", store.cfg.MaxOpenConns, store.cfg.MaxIdleConns)
	}
	if store.cfg.ConnMaxLifetime != 5*time.Minute {
		t.Errorf("unexpected lifetime default: %s", store.cfg.ConnMaxLifetime)
	}
}

func TestPutAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	packages := json.RawMessage(`{"toolchain":{"name":"toolchain","store_path":"/store/toolchain"}}`)
	rec := &ResolutionRecord{
		Digest:   "aabbcc",
		Platform: "x86_64-linux",
		Packages: packages,
	}
	if err := store.Put(ctx, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Get(ctx, "aabbcc", "x86_64-linux")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got.Packages) != string(packages) {
		t.Errorf("payload mismatch: %s", got.Packages)
	}
	if got.ResolvedAt.IsZero() {
		t.Error("resolved_at not recorded")
	}
}

func TestGetMissingReturnsErrNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "nope", "x86_64-linux")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPutIsIdempotentPerKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := &ResolutionRecord{
		Digest:     "aabbcc",
		Platform:   "x86_64-linux",
		Packages:   json.RawMessage(`{"a":{}}`),
		ResolvedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := store.Put(ctx, first); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Same key again: the original record wins. Reproducible resolution
	// means the payload could not legitimately differ.
	second := &ResolutionRecord{
		Digest:   "aabbcc",
		Platform: "x86_64-linux",
		Packages: json.RawMessage(`{"b":{}}`),
	}
	if err := store.Put(ctx, second); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Get(ctx, "aabbcc", "x86_64-linux")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got.Packages) != `{"a":{}}` {
		t.Errorf("existing record overwritten: %s", got.Packages)
	}
}

func TestPlatformsAreSeparateKeys(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, platform := range []string{"x86_64-linux", "aarch64-darwin"} {
		err := store.Put(ctx, &ResolutionRecord{
			Digest:   "aabbcc",
			Platform: platform,
			Packages: json.RawMessage(`{"p":"` + platform + `"}`),
		})
		if err != nil {
			t.Fatalf("Put %s: %v", platform, err)
		}
	}

	linux, err := store.Get(ctx, "aabbcc", "x86_64-linux")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(linux.Packages) != `{"p":"x86_64-linux"}` {
		t.Errorf("cross-platform payload leak: %s", linux.Packages)
	}
}

func TestListAndPrune(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	old := &ResolutionRecord{
		Digest:     "old",
		Platform:   "x86_64-linux",
		Packages:   json.RawMessage(`{}`),
		ResolvedAt: time.Now().UTC().Add(-48 * time.Hour),
	}
	fresh := &ResolutionRecord{
		Digest:   "fresh",
		Platform: "x86_64-linux",
		Packages: json.RawMessage(`{}`),
	}
	for _, rec := range []*ResolutionRecord{old, fresh} {
		if err := store.Put(ctx, rec); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	records, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Digest != "fresh" {
		t.Errorf("expected newest first, got %s", records[0].Digest)
	}

	pruned, err := store.Prune(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if pruned != 1 {
		t.Errorf("expected 1 pruned record, got %d", pruned)
	}

	if _, err := store.Get(ctx, "old", "x86_64-linux"); !errors.Is(err, ErrNotFound) {
		t.Errorf("pruned record still present: %v", err)
	}
}
