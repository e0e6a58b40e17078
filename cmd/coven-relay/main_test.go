// ABOUTME: Tests for serve wiring helpers in main
// ABOUTME: Checks account conversion from config to session credentials

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-relay/internal/config"
)

func TestAccountsFrom(t *testing.T) {
	cfg := &config.Config{Accounts: []config.AccountConfig{
		{Email: "a@example.com", Password: "pw"},
		{SessionToken: "tok-123456789"},
	}}

	got := accountsFrom(cfg)

	require.Len(t, got, 2)
	assert.Equal(t, "a@example.com", got[0].ID)
	assert.Equal(t, "pw", got[0].Secret)
	assert.Equal(t, "tok-123456789", got[1].Token)
	assert.NotContains(t, got[1].ID, "tok-123")
}
