package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rs/zerolog/log"
	"github.com/shellforge/shellforge/pkg/resolver"
	"github.com/shellforge/shellforge/pkg/stores"
	"github.com/shellforge/shellforge/pkg/telemetry"
)

// DefaultSettingsName is the conventional settings file name next to the
// descriptor.
const DefaultSettingsName = "shellforge.yaml"

// Settings are the tool-level settings read from shellforge.yaml. They
// configure the reference resolver and the cache, not the descriptor itself.
type Settings struct {
	// Database is the path to the package database file (CUE).
	Database string `yaml:"database"`

	// Cache configures the SQLite resolution cache.
	Cache CacheSettings `yaml:"cache"`

	// PolicyPaths are extra directories or files with custom .rego policies.
	PolicyPaths []string `yaml:"policy_paths"`

	// Metrics configures the Prometheus endpoint, used by watch mode.
	Metrics MetricsSettings `yaml:"metrics"`

	// Tracing configures OpenTelemetry span export.
	Tracing TracingSettings `yaml:"tracing"`

	// OverlayTimeout bounds each Starlark overlay invocation.
	OverlayTimeout Duration `yaml:"overlay_timeout"`
}

// Duration is a time.Duration that unmarshals from YAML strings like "10s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the setting as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// CacheSettings configures the resolution cache store.
type CacheSettings struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// MetricsSettings configures the Prometheus metrics endpoint.
type MetricsSettings struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address"`
}

// TracingSettings configures the OpenTelemetry trace exporter.
type TracingSettings struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
}

// newMetrics builds the telemetry metrics collector from the settings.
func newMetrics(settings *Settings) (*telemetry.Metrics, error) {
	return telemetry.NewMetrics(telemetry.MetricsConfig{
		Enabled:       settings.Metrics.Enabled,
		ListenAddress: settings.Metrics.ListenAddress,
		Path:          "/metrics",
		Namespace:     "shellforge",
	})
}

// newTracer builds the evaluation tracer from the settings.
func newTracer(settings *Settings) (*telemetry.Tracer, error) {
	return telemetry.NewTracer(telemetry.TracingConfig{
		Enabled:            settings.Tracing.Enabled,
		Exporter:           settings.Tracing.Exporter,
		Endpoint:           settings.Tracing.Endpoint,
		SamplingRate:       settings.Tracing.SamplingRate,
		Insecure:           settings.Tracing.Insecure,
		MaxExportBatchSize: 512,
		ExportTimeout:      30 * time.Second,
	}, "shellforge", appVersion, "development")
}

// DefaultSettings returns the settings used when no settings file exists.
func DefaultSettings() *Settings {
	return &Settings{
		Database: "packages.cue",
		Cache: CacheSettings{
			Enabled: true,
			Path:    filepath.Join(".shellforge", "cache.db"),
		},
		OverlayTimeout: Duration(10 * time.Second),
	}
}

// LoadSettings reads settings from path, or from DefaultSettingsName when
// path is empty. A missing file yields the defaults.
func LoadSettings(path string) (*Settings, error) {
	explicit := path != ""
	if path == "" {
		path = DefaultSettingsName
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return DefaultSettings(), nil
		}
		return nil, fmt.Errorf("failed to read settings %s: %w", path, err)
	}

	settings := DefaultSettings()
	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings %s: %w", path, err)
	}
	return settings, nil
}

// buildResolver constructs the reference resolver from the settings: package
// database plus optional SQLite cache. The returned cleanup closes the cache.
func buildResolver(ctx context.Context, settings *Settings, metrics resolver.CacheMetrics) (*resolver.Static, func(), error) {
	db, err := resolver.LoadDatabase(settings.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load package database: %w", err)
	}

	opts := []resolver.Option{
		resolver.WithLogger(log.Logger),
	}
	if metrics != nil {
		opts = append(opts, resolver.WithMetrics(metrics))
	}

	cleanup := func() {}
	if settings.Cache.Enabled {
		if err := os.MkdirAll(filepath.Dir(settings.Cache.Path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
		store, err := stores.NewSQLiteStore(stores.Config{Path: settings.Cache.Path})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create cache store: %w", err)
		}
		if err := store.Init(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to initialize cache store: %w", err)
		}
		opts = append(opts, resolver.WithCache(store))
		cleanup = func() {
			if err := store.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close cache store")
			}
		}
	}

	return resolver.NewStatic(db, opts...), cleanup, nil
}
