// ABOUTME: In-memory TokenCache implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory TokenCache.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]*CachedToken
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]*CachedToken)}
}

// GetToken returns the cached token for account.
func (m *MemoryStore) GetToken(ctx context.Context, account string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tokens[account]
	if !ok {
		return "", ErrNotFound
	}
	return t.Token, nil
}

// PutToken stores the token for account.
func (m *MemoryStore) PutToken(ctx context.Context, account, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tokens[account] = &CachedToken{Account: account, Token: token, UpdatedAt: time.Now().UTC()}
	return nil
}

// DeleteToken removes the token for account.
func (m *MemoryStore) DeleteToken(ctx context.Context, account string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tokens[account]; !ok {
		return ErrNotFound
	}
	delete(m.tokens, account)
	return nil
}

// ListTokens returns copies of every entry ordered by account.
func (m *MemoryStore) ListTokens(ctx context.Context) ([]*CachedToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tokens := make([]*CachedToken, 0, len(m.tokens))
	for _, t := range m.tokens {
		c := *t
		tokens = append(tokens, &c)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].Account < tokens[j].Account })
	return tokens, nil
}

var _ TokenCache = (*MemoryStore)(nil)
