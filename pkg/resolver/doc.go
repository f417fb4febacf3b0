// Package resolver provides the reference implementation of the external
// resolver contract (eval.Resolver).
//
// The static resolver answers from a package database file: a CUE document
// mapping platforms to package entries, plus the overlays and revisions the
// declared sources export. It performs no network I/O, which makes it
// suitable for hermetic tests, air-gapped evaluation, and as the executable
// specification of what a production resolver must provide.
//
// Base package sets are cached in an SQLite store keyed by the digest of the
// canonical pin encoding and the platform. Reproducible resolution makes the
// cache safe: a key can never map to two different package sets. Overlays are
// applied after cache retrieval, since they are functions and not part of the
// pin encoding.
package resolver
