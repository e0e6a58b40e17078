// ABOUTME: Tests for session pool selection and startup bootstrap
// ABOUTME: Covers empty pools, random spread, and graceful exclusion of failed accounts

package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_Empty(t *testing.T) {
	p := NewPool()

	_, err := p.Acquire()
	assert.ErrorIs(t, err, ErrNoBackendAvailable)
	assert.Equal(t, 0, p.Size())
}

func TestPool_SkipsEmptyTokens(t *testing.T) {
	p := NewPool(Handle{Account: "a", Token: ""}, Handle{Account: "b", Token: "tb"})

	require.Equal(t, 1, p.Size())
	h, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, "b", h.Account)
	assert.Equal(t, []string{"b"}, p.Accounts())
}

func TestPool_SpreadsAcrossHandles(t *testing.T) {
	p := NewPool(
		Handle{Account: "a", Token: "ta"},
		Handle{Account: "b", Token: "tb"},
		Handle{Account: "c", Token: "tc"},
	)

	seen := make(map[string]int)
	for i := 0; i < 600; i++ {
		h, err := p.Acquire()
		require.NoError(t, err)
		seen[h.Account]++
	}

	assert.Len(t, seen, 3, "every handle should be picked at least once")
	for acct, n := range seen {
		assert.Greater(t, n, 50, "account %s picked too rarely", acct)
	}
}

// fakeSource returns tokens from a map and records calls.
type fakeSource struct {
	mu     sync.Mutex
	tokens map[string]string
	calls  []string
}

func (f *fakeSource) Token(ctx context.Context, account, secret string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, account)
	tok, ok := f.tokens[account]
	if !ok {
		return "", errors.Join(ErrCredentialAcquisition, errors.New("login rejected"))
	}
	return tok, nil
}

func TestBootstrap_ExcludesFailures(t *testing.T) {
	src := &fakeSource{tokens: map[string]string{"good@x": "tok-good"}}
	accounts := []Account{
		{ID: "literal@x", Token: "tok-literal"},
		{ID: "good@x", Secret: "pw"},
		{ID: "bad@x", Secret: "pw"},
		{ID: "incomplete@x"},
	}

	pool := Bootstrap(context.Background(), accounts, src, nil)

	assert.Equal(t, 2, pool.Size())
	assert.ElementsMatch(t, []string{"literal@x", "good@x"}, pool.Accounts())
}

func TestResolve_PreservesOrder(t *testing.T) {
	src := &fakeSource{tokens: map[string]string{"a": "ta", "b": "tb"}}
	results := Resolve(context.Background(), []Account{
		{ID: "b", Secret: "s"},
		{ID: "missing", Secret: "s"},
		{ID: "a", Secret: "s"},
	}, src, nil)

	require.Len(t, results, 3)
	assert.Equal(t, "b", results[0].Account)
	assert.Equal(t, "tb", results[0].Handle.Token)
	assert.ErrorIs(t, results[1].Err, ErrCredentialAcquisition)
	assert.Equal(t, "ta", results[2].Handle.Token)
}

func TestBootstrap_NoSource(t *testing.T) {
	pool := Bootstrap(context.Background(), []Account{{ID: "a", Secret: "s"}}, nil, nil)

	_, err := pool.Acquire()
	assert.ErrorIs(t, err, ErrNoBackendAvailable)
}
