// Package descriptor parses and validates shellforge environment descriptors.
//
// A descriptor is a CUE file (or directory package) declaring the pinned
// external sources, the ordered overlay list, the target platform
// enumeration, and the development shells of a project:
//
//	description: "molcanvas dev environment"
//
//	inputs: {
//	    pkgdb:     {url: "github:shellforge/pkgdb", rev: "7f1a09"}
//	    toolchain: {url: "github:shellforge/toolchain-overlay", rev: "442be0"}
//	    utils:     {url: "github:shellforge/utils", follows: "pkgdb"}
//	}
//
//	overlays: [
//	    {input: "toolchain"},
//	    {script: #"""
//	        def overlay(pkgs):
//	            return {"libx": {"store_path": "/store/libx-patched"}}
//	        """#},
//	]
//
//	platforms: ["x86_64-linux", "aarch64-darwin"]
//
//	shells: default: {
//	    nativeBuildInputs: ["pkg-config", "mold"]
//	    buildInputs: ["toolchain", "libX11", "fontconfig", "freetype"]
//	    env: {WINIT_UNIX_BACKEND: "x11"}
//	}
//
// Parsing unifies the loaded CUE sources with the built-in descriptor schema,
// decodes into typed structs, and validates struct invariants. Inline Starlark
// overlay scripts are compiled by StarlarkOverlays into eval.Overlay
// functions; overlays exported by pinned sources are compiled by the
// resolver. The derived library search-path variable is never declared here;
// it is computed during projection.
package descriptor
