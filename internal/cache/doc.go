// Package cache keeps a local replica of a network-hosted database file pair
// (primary data file plus companion log file) under a per-user cache root.
// Slots are named <stem>_<sha1(origin)><ext> so the same origin always maps to
// the same slot. Freshness is decided from file modification times only: a
// slot is refreshed when it is missing or the origin is strictly newer.
//
// Syncer exposes the two operations callers need: EnsureCacheReady pulls the
// origin into the slot before the database engine opens it, TrySyncBack pushes
// the slot home and reports the outcome as a SyncResult instead of failing.
// All file access goes through an afero.Fs so tests can run in memory.
package cache
