// ABOUTME: The accounts command: resolves configured accounts and reports the pool
// ABOUTME: Also lists and forgets cached session tokens

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"

	"github.com/2389/coven-relay/internal/config"
	"github.com/2389/coven-relay/internal/session"
	"github.com/2389/coven-relay/internal/store"
)

func runAccounts(ctx context.Context, args []string) error {
	configPath := config.Path()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config from %s: %w", configPath, err)
	}
	logger := setupLogger(config.LoggingConfig{Level: "warn", Format: cfg.Logging.Format})

	cache, err := store.NewSQLiteStore(cfg.Credentials.CachePath, store.WithSecret(cfg.Credentials.CacheSecret))
	if err != nil {
		return fmt.Errorf("opening token cache: %w", err)
	}
	defer cache.Close()

	if len(args) > 0 {
		switch args[0] {
		case "forget":
			if len(args) != 2 {
				return fmt.Errorf("usage: coven-relay accounts forget ACCOUNT")
			}
			return forgetAccount(ctx, cache, args[1])
		default:
			return fmt.Errorf("unknown accounts subcommand: %s", args[0])
		}
	}

	return showAccounts(ctx, cfg, cache, logger)
}

func showAccounts(ctx context.Context, cfg *config.Config, cache *store.SQLiteStore, logger *slog.Logger) error {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	gray := color.New(color.FgHiBlack)

	results := session.Resolve(ctx, accountsFrom(cfg), credentialSource(cfg, cache, logger), logger)

	usable := 0
	fmt.Println("Accounts:")
	for _, r := range results {
		if r.Err != nil {
			red.Print("  ✗ ")
			fmt.Printf("%-32s ", r.Account)
			gray.Println(r.Err)
			continue
		}
		usable++
		green.Print("  ✓ ")
		fmt.Println(r.Account)
	}
	fmt.Println()
	fmt.Printf("Session pool: %d of %d accounts usable\n", usable, len(results))

	cached, err := cache.ListTokens(ctx)
	if err != nil {
		return fmt.Errorf("listing cached tokens: %w", err)
	}
	if len(cached) > 0 {
		fmt.Println()
		fmt.Println("Cached tokens:")
		for _, t := range cached {
			fmt.Printf("  %-32s ", t.Account)
			gray.Printf("updated %s\n", t.UpdatedAt.Local().Format(time.DateTime))
		}
	}

	if usable == 0 {
		return session.ErrNoBackendAvailable
	}
	return nil
}

func forgetAccount(ctx context.Context, cache store.TokenCache, account string) error {
	if err := cache.DeleteToken(ctx, account); err != nil {
		return fmt.Errorf("forgetting %s: %w", account, err)
	}
	color.New(color.FgGreen).Fprintf(os.Stdout, "✓ Forgot cached token for %s\n", account)
	return nil
}
