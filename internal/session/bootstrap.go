// ABOUTME: Startup resolution of configured accounts into a session Pool
// ABOUTME: Accounts are resolved concurrently; failures are logged and excluded

package session

import (
	"context"
	"log/slog"
	"sync"
)

// Account is one configured backend account.
type Account struct {
	// ID identifies the account (usually an email address).
	ID string
	// Secret is exchanged for a token when Token is empty.
	Secret string
	// Token is a literal session token; it takes precedence over Secret.
	Token string
}

// Result records what happened to one account during Bootstrap.
type Result struct {
	Account string
	Handle  Handle
	Err     error
}

// Resolve turns every account into a Result, in the order given.
func Resolve(ctx context.Context, accounts []Account, source Source, logger *slog.Logger) []Result {
	if logger == nil {
		logger = slog.Default()
	}

	results := make([]Result, len(accounts))
	var wg sync.WaitGroup
	for i, acct := range accounts {
		wg.Add(1)
		go func(i int, acct Account) {
			defer wg.Done()
			results[i] = resolveOne(ctx, acct, source)
		}(i, acct)
	}
	wg.Wait()

	for _, r := range results {
		if r.Err != nil {
			logger.Warn("account excluded from session pool", "account", r.Account, "error", r.Err)
		}
	}
	return results
}

func resolveOne(ctx context.Context, acct Account, source Source) Result {
	r := Result{Account: acct.ID}
	switch {
	case acct.Token != "":
		r.Handle = Handle{Account: acct.ID, Token: acct.Token}
	case acct.ID != "" && acct.Secret != "" && source != nil:
		token, err := source.Token(ctx, acct.ID, acct.Secret)
		if err != nil {
			r.Err = err
			return r
		}
		r.Handle = Handle{Account: acct.ID, Token: token}
	default:
		r.Err = ErrCredentialAcquisition
	}
	return r
}

// Bootstrap resolves accounts and builds a Pool from the ones that succeeded.
func Bootstrap(ctx context.Context, accounts []Account, source Source, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}

	var handles []Handle
	for _, r := range Resolve(ctx, accounts, source, logger) {
		if r.Err == nil {
			handles = append(handles, r.Handle)
		}
	}
	pool := NewPool(handles...)
	logger.Info("session pool ready", "size", pool.Size(), "configured", len(accounts))
	return pool
}
