// ABOUTME: Credential sources that exchange account secrets for session tokens
// ABOUTME: CommandSource shells out; CachedSource fronts any source with a TokenCache

package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/2389/coven-relay/internal/store"
)

// ErrCredentialAcquisition is returned when no session token could be obtained.
var ErrCredentialAcquisition = errors.New("credential acquisition failed")

// Source exchanges an account identifier and secret for a session token.
type Source interface {
	Token(ctx context.Context, account, secret string) (string, error)
}

// CommandSource runs an external command with the account and secret appended
// to its arguments. The last non-empty line of stdout is the token.
type CommandSource struct {
	Command []string
	Timeout time.Duration
}

// Token runs the command and returns the token it printed.
func (s *CommandSource) Token(ctx context.Context, account, secret string) (string, error) {
	if len(s.Command) == 0 {
		return "", fmt.Errorf("%w: no credential command configured", ErrCredentialAcquisition)
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	args := append(append([]string{}, s.Command[1:]...), account, secret)
	cmd := exec.CommandContext(ctx, s.Command[0], args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%w: running %s: %v: %s",
			ErrCredentialAcquisition, s.Command[0], err, strings.TrimSpace(stderr.String()))
	}

	token := lastLine(stdout.String())
	if token == "" {
		return "", fmt.Errorf("%w: %s printed no token", ErrCredentialAcquisition, s.Command[0])
	}
	return token, nil
}

// lastLine returns the last non-empty line of s, trimmed.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

// CachedSource serves tokens from a TokenCache and falls back to Source on a
// miss. Cached JWTs whose exp claim has passed count as a miss.
type CachedSource struct {
	source Source
	cache  store.TokenCache
	logger *slog.Logger
	now    func() time.Time
}

// NewCachedSource wraps source with cache.
func NewCachedSource(source Source, cache store.TokenCache, logger *slog.Logger) *CachedSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedSource{
		source: source,
		cache:  cache,
		logger: logger.With("component", "credentials"),
		now:    time.Now,
	}
}

// Token returns the cached token for account or acquires and caches a new one.
func (s *CachedSource) Token(ctx context.Context, account, secret string) (string, error) {
	cached, err := s.cache.GetToken(ctx, account)
	switch {
	case err == nil && !tokenExpired(cached, s.now()):
		s.logger.Debug("using cached session token", "account", account)
		return cached, nil
	case err == nil:
		s.logger.Info("cached session token expired", "account", account)
	case !errors.Is(err, store.ErrNotFound):
		s.logger.Warn("reading token cache", "account", account, "error", err)
	}

	token, err := s.source.Token(ctx, account, secret)
	if err != nil {
		return "", err
	}

	if err := s.cache.PutToken(ctx, account, token); err != nil {
		s.logger.Warn("writing token cache", "account", account, "error", err)
	}
	return token, nil
}

// tokenExpired reports whether token is a JWT with an exp claim at or before now.
// Tokens that are not JWTs, or carry no exp claim, never expire.
func tokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !exp.After(now)
}
