// Package session owns the authenticated backend session handles.
//
// A Pool is built once at startup by Bootstrap from the configured accounts.
// Each account either carries a literal session token or an email/password
// pair that is exchanged for a token by running an external command. Tokens
// are cached per account so restarts do not re-run the command.
//
// Accounts that fail to produce a token are left out of the pool; the relay
// keeps running as long as at least one account succeeded. Acquire picks a
// handle uniformly at random. Selection is not health or latency aware.
package session
