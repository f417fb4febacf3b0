// Package stores provides the SQLite-backed resolution cache used by the
// reference resolver.
//
// Resolution is reproducible by contract: the same input pins on the same
// platform always yield an identical package set. That makes cached package
// sets safe to reuse indefinitely, keyed by the digest of the canonical pin
// encoding plus the platform identifier. The cache is an implementation
// detail of the resolver; the evaluation layer itself carries no state
// between runs.
//
// The store uses modernc.org/sqlite (no cgo) in WAL mode, with schema
// migrations embedded via golang-migrate.
package stores
