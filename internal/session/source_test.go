// ABOUTME: Tests for credential sources
// ABOUTME: Covers command output parsing, exit failures, and cache hits/misses/expiry

package session

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-relay/internal/store"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "login.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
	return path
}

func TestCommandSource_LastLineIsToken(t *testing.T) {
	script := writeScript(t, `echo "logging in as $1"
echo "using secret $2" >&2
echo "token-for-$1"
echo ""
`)
	src := &CommandSource{Command: []string{"/bin/sh", script}}

	tok, err := src.Token(context.Background(), "a@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "token-for-a@example.com", tok)
}

func TestCommandSource_NonZeroExit(t *testing.T) {
	script := writeScript(t, `echo "bad password" >&2
exit 3
`)
	src := &CommandSource{Command: []string{"/bin/sh", script}}

	_, err := src.Token(context.Background(), "a", "pw")
	require.ErrorIs(t, err, ErrCredentialAcquisition)
	assert.Contains(t, err.Error(), "bad password")
}

func TestCommandSource_EmptyOutput(t *testing.T) {
	script := writeScript(t, "exit 0\n")
	src := &CommandSource{Command: []string{"/bin/sh", script}}

	_, err := src.Token(context.Background(), "a", "pw")
	assert.ErrorIs(t, err, ErrCredentialAcquisition)
}

func TestCommandSource_NoCommand(t *testing.T) {
	_, err := (&CommandSource{}).Token(context.Background(), "a", "pw")
	assert.ErrorIs(t, err, ErrCredentialAcquisition)
}

func TestCommandSource_Timeout(t *testing.T) {
	script := writeScript(t, "exec sleep 5\n")
	src := &CommandSource{Command: []string{"/bin/sh", script}, Timeout: 50 * time.Millisecond}

	_, err := src.Token(context.Background(), "a", "pw")
	assert.ErrorIs(t, err, ErrCredentialAcquisition)
}

func TestCachedSource_HitSkipsSource(t *testing.T) {
	cache := store.NewMemoryStore()
	require.NoError(t, cache.PutToken(context.Background(), "a", "cached"))
	inner := &fakeSource{tokens: map[string]string{"a": "fresh"}}

	src := NewCachedSource(inner, cache, nil)
	tok, err := src.Token(context.Background(), "a", "pw")

	require.NoError(t, err)
	assert.Equal(t, "cached", tok)
	assert.Empty(t, inner.calls)
}

func TestCachedSource_MissStoresResult(t *testing.T) {
	cache := store.NewMemoryStore()
	inner := &fakeSource{tokens: map[string]string{"a": "fresh"}}

	src := NewCachedSource(inner, cache, nil)
	tok, err := src.Token(context.Background(), "a", "pw")
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok)

	stored, err := cache.GetToken(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "fresh", stored)
}

func TestCachedSource_FailureNotCached(t *testing.T) {
	cache := store.NewMemoryStore()
	src := NewCachedSource(&fakeSource{}, cache, nil)

	_, err := src.Token(context.Background(), "a", "pw")
	require.ErrorIs(t, err, ErrCredentialAcquisition)

	_, err = cache.GetToken(context.Background(), "a")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "a",
		"exp": exp.Unix(),
	}).SignedString([]byte("irrelevant"))
	require.NoError(t, err)
	return tok
}

func TestCachedSource_ExpiredJWTReacquired(t *testing.T) {
	cache := store.NewMemoryStore()
	expired := signedToken(t, time.Now().Add(-time.Hour))
	require.NoError(t, cache.PutToken(context.Background(), "a", expired))
	inner := &fakeSource{tokens: map[string]string{"a": "fresh"}}

	src := NewCachedSource(inner, cache, nil)
	tok, err := src.Token(context.Background(), "a", "pw")

	require.NoError(t, err)
	assert.Equal(t, "fresh", tok)
	assert.Equal(t, []string{"a"}, inner.calls)
}

func TestTokenExpired(t *testing.T) {
	now := time.Now()

	assert.False(t, tokenExpired("opaque-session-token", now))
	assert.False(t, tokenExpired(signedToken(t, now.Add(time.Hour)), now))
	assert.True(t, tokenExpired(signedToken(t, now.Add(-time.Minute)), now))

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "a"}).SignedString([]byte("k"))
	require.NoError(t, err)
	assert.False(t, tokenExpired(noExp, now))
}
