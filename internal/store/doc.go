// Package store persists session tokens so the relay does not have to run
// the credential command on every start.
//
// # Token Cache
//
// TokenCache is a small key-value interface keyed by account identifier:
//
//   - GetToken(ctx, account): cached token or ErrNotFound
//   - PutToken(ctx, account, token): insert or replace
//   - DeleteToken(ctx, account): forget an account
//   - ListTokens(ctx): every cached entry, ordered by account
//
// SQLiteStore implements it on top of modernc.org/sqlite. MemoryStore is a
// map-backed implementation for tests.
//
// # Sealing
//
// When a secret is configured, token values are sealed with NaCl secretbox
// before they are written, using a key derived from the secret with SHA-256.
// Reading a sealed value with a different secret fails with ErrSealed.
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;
//
// Database file location defaults to ~/.local/share/coven/relay-tokens.db.
package store
