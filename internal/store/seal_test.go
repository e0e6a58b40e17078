// ABOUTME: Tests for sealed token storage
// ABOUTME: Verifies values are not stored in plain text and wrong secrets are rejected

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealedToken_RoundTrip(t *testing.T) {
	s := newTestStore(t, WithSecret("hunter2"))
	ctx := context.Background()

	require.NoError(t, s.PutToken(ctx, "a@example.com", "session-token"))

	var raw string
	require.NoError(t, s.db.QueryRow(`SELECT token FROM session_tokens WHERE account = ?`, "a@example.com").Scan(&raw))
	assert.NotContains(t, raw, "session-token")

	got, err := s.GetToken(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "session-token", got)
}

func TestSealedToken_WrongSecret(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "relay.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(dbPath, WithSecret("right"))
	require.NoError(t, err)
	require.NoError(t, s.PutToken(ctx, "a@example.com", "tok"))
	require.NoError(t, s.Close())

	wrong, err := NewSQLiteStore(dbPath, WithSecret("wrong"))
	require.NoError(t, err)
	defer wrong.Close()

	_, err = wrong.GetToken(ctx, "a@example.com")
	assert.ErrorIs(t, err, ErrSealed)

	plain, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer plain.Close()

	_, err = plain.GetToken(ctx, "a@example.com")
	assert.ErrorIs(t, err, ErrSealed)
}

func TestWithSecret_EmptyLeavesPlainText(t *testing.T) {
	s := newTestStore(t, WithSecret(""))
	require.NoError(t, s.PutToken(context.Background(), "a", "plain"))

	var raw string
	require.NoError(t, s.db.QueryRow(`SELECT token FROM session_tokens WHERE account = 'a'`).Scan(&raw))
	assert.Equal(t, "plain", raw)
}

func TestMemoryStore(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	_, err := m.GetToken(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.PutToken(ctx, "b", "tb"))
	require.NoError(t, m.PutToken(ctx, "a", "ta"))

	got, err := m.GetToken(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "ta", got)

	list, err := m.ListTokens(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Account)
	assert.Equal(t, "b", list[1].Account)

	require.NoError(t, m.DeleteToken(ctx, "a"))
	assert.ErrorIs(t, m.DeleteToken(ctx, "a"), ErrNotFound)
}
