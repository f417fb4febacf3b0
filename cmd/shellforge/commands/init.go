package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/shellforge/shellforge/pkg/stores"
)

const exampleDescriptor = `description: "Development environment"

inputs: {
	nixpkgs: {
		url: "github:NixOS/nixpkgs"
		rev: "0000000000000000000000000000000000000000"
	}
	toolchain: {
		url: "github:shellforge/toolchain"
		follows: "nixpkgs"
	}
}

overlays: [
	{input: "toolchain"},
	{script: """
		def overlay(base):
		    return {}
		"""},
]

platforms: ["x86_64-linux", "aarch64-darwin"]

shells: {
	default: {
		nativeBuildInputs: ["pkg-config"]
		buildInputs: [
			"toolchain",
			"fontconfig",
			"freetype",
			"libX11",
			"libXcursor",
			"libXrandr",
			"libXi",
		]
		env: {
			WINIT_UNIX_BACKEND: "x11"
		}
	}
}
`

const examplePackageDatabase = `packages: {
	"x86_64-linux": {
		toolchain: {store_path: "/store/toolchain", outputs: {lib: "/store/toolchain/lib"}}
		fontconfig: {store_path: "/store/fontconfig", outputs: {lib: "/store/fontconfig/lib"}}
		freetype: {store_path: "/store/freetype", outputs: {lib: "/store/freetype/lib"}}
		libX11: {store_path: "/store/libX11", outputs: {lib: "/store/libX11/lib"}}
		libXcursor: {store_path: "/store/libXcursor", outputs: {lib: "/store/libXcursor/lib"}}
		libXrandr: {store_path: "/store/libXrandr", outputs: {lib: "/store/libXrandr/lib"}}
		libXi: {store_path: "/store/libXi", outputs: {lib: "/store/libXi/lib"}}
		"pkg-config": {store_path: "/store/pkg-config"}
	}
	"aarch64-darwin": {
		toolchain: {store_path: "/store/darwin/toolchain", outputs: {lib: "/store/darwin/toolchain/lib"}}
		fontconfig: {store_path: "/store/darwin/fontconfig", outputs: {lib: "/store/darwin/fontconfig/lib"}}
		freetype: {store_path: "/store/darwin/freetype", outputs: {lib: "/store/darwin/freetype/lib"}}
		libX11: {store_path: "/store/darwin/libX11", outputs: {lib: "/store/darwin/libX11/lib"}}
		libXcursor: {store_path: "/store/darwin/libXcursor", outputs: {lib: "/store/darwin/libXcursor/lib"}}
		libXrandr: {store_path: "/store/darwin/libXrandr", outputs: {lib: "/store/darwin/libXrandr/lib"}}
		libXi: {store_path: "/store/darwin/libXi", outputs: {lib: "/store/darwin/libXi/lib"}}
		"pkg-config": {store_path: "/store/darwin/pkg-config"}
	}
}

overlays: {
	toolchain: {
		toolchain: {store_path: "/store/toolchain-nightly", outputs: {lib: "/store/toolchain-nightly/lib"}}
	}
}

revisions: {
	nixpkgs: {rev: "0000000000000000000000000000000000000000", narHash: "sha256-0000000000000000000000000000000000000000000="}
}
`

const exampleSettings = `# Shellforge settings

# Package database backing the reference resolver
database: packages.cue

# SQLite resolution cache
cache:
  enabled: true
  path: .shellforge/cache.db

# Extra policy files or directories (.rego)
policy_paths: []

# Prometheus metrics endpoint
metrics:
  enabled: false
  listen_address: ":9090"

# OpenTelemetry trace export (exporter: otlp, stdout, none)
tracing:
  enabled: false
  exporter: stdout
  sampling_rate: 1.0

# Per-overlay Starlark execution budget
overlay_timeout: 10s
`

func newInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Scaffold a descriptor workspace",
		Long: `Scaffold a descriptor workspace: an example descriptor, a package
database for the reference resolver, the tool settings, and the resolution
cache.`,
		Example: `  # Scaffold in the current directory
  shellforge init

  # Scaffold in a new directory
  shellforge init ./my-env`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			ctx := cmd.Context()

			log.Info().Str("dir", dir).Msg("Initializing workspace")

			if err := os.MkdirAll(filepath.Join(dir, ".shellforge"), 0o755); err != nil {
				return fmt.Errorf("failed to create workspace directory: %w", err)
			}

			files := map[string]string{
				"env.cue":           exampleDescriptor,
				"packages.cue":      examplePackageDatabase,
				DefaultSettingsName: exampleSettings,
			}
			for name, content := range files {
				path := filepath.Join(dir, name)
				if _, err := os.Stat(path); err == nil && !force {
					fmt.Printf("- Skipped existing %s\n", path)
					continue
				}
				if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
					return fmt.Errorf("failed to write %s: %w", path, err)
				}
				fmt.Printf("- Created %s\n", path)
			}

			// Initialize the resolution cache database.
			cachePath := filepath.Join(dir, ".shellforge", "cache.db")
			store, err := stores.NewSQLiteStore(stores.Config{Path: cachePath})
			if err != nil {
				return fmt.Errorf("failed to create cache store: %w", err)
			}
			if err := store.Init(ctx); err != nil {
				return fmt.Errorf("failed to initialize cache store: %w", err)
			}
			if err := store.Close(); err != nil {
				return fmt.Errorf("failed to close cache store: %w", err)
			}
			fmt.Printf("- Initialized resolution cache: %s\n", cachePath)

			fmt.Println("\nNext steps:")
			fmt.Println("  shellforge validate")
			fmt.Println("  shellforge lock")
			fmt.Println("  shellforge eval")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing files")

	return cmd
}
