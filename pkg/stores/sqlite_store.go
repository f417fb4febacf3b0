package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements ResolutionStore on a local SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration. Zero pool values take defaults.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance. Init must be called
// before use.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	return &SQLiteStore{cfg: cfg}, nil
}

// Init opens the database, enables WAL mode, and runs migrations.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", s.cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return s.migrate()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// migrate applies embedded schema migrations.
func (s *SQLiteStore) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Get retrieves a cached resolution, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, digest, platform string) (*ResolutionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT digest, platform, packages, resolved_at
		 FROM resolutions WHERE digest = ? AND platform = ?`,
		digest, platform)

	var rec ResolutionRecord
	var resolvedAt string
	if err := row.Scan(&rec.Digest, &rec.Platform, &rec.Packages, &resolvedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query resolution: %w", err)
	}

	t, err := time.Parse(time.RFC3339Nano, resolvedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse resolved_at: %w", err)
	}
	rec.ResolvedAt = t
	return &rec, nil
}

// Put stores a resolution. An existing key keeps its original record.
func (s *SQLiteStore) Put(ctx context.Context, record *ResolutionRecord) error {
	if record.Digest == "" || record.Platform == "" {
		return fmt.Errorf("digest and platform are required")
	}
	resolvedAt := record.ResolvedAt
	if resolvedAt.IsZero() {
		resolvedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO resolutions (digest, platform, packages, resolved_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(digest, platform) DO NOTHING`,
		record.Digest, record.Platform, []byte(record.Packages),
		resolvedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to store resolution: %w", err)
	}
	return nil
}

// List returns all cached resolutions, newest first.
func (s *SQLiteStore) List(ctx context.Context) ([]ResolutionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT digest, platform, packages, resolved_at
		 FROM resolutions ORDER BY resolved_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list resolutions: %w", err)
	}
	defer rows.Close()

	var out []ResolutionRecord
	for rows.Next() {
		var rec ResolutionRecord
		var resolvedAt string
		if err := rows.Scan(&rec.Digest, &rec.Platform, &rec.Packages, &resolvedAt); err != nil {
			return nil, fmt.Errorf("failed to scan resolution: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, resolvedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse resolved_at: %w", err)
		}
		rec.ResolvedAt = t
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Prune removes resolutions older than the cutoff.
func (s *SQLiteStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM resolutions WHERE resolved_at < ?`,
		olderThan.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("failed to prune resolutions: %w", err)
	}
	return res.RowsAffected()
}
