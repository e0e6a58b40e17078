// ABOUTME: TokenCache interface and data types for relay persistence
// ABOUTME: Keyed by account identifier; values are backend session tokens

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrSealed is returned when a sealed token cannot be opened with the configured secret.
var ErrSealed = errors.New("token is sealed with a different secret")

// CachedToken is one entry of the token cache.
type CachedToken struct {
	Account   string
	Token     string
	UpdatedAt time.Time
}

// TokenCache stores session tokens per account.
type TokenCache interface {
	GetToken(ctx context.Context, account string) (string, error)
	PutToken(ctx context.Context, account, token string) error
	DeleteToken(ctx context.Context, account string) error
	ListTokens(ctx context.Context) ([]*CachedToken, error)
}
