// ABOUTME: Entry point for coven-relay
// ABOUTME: Wires the session pool, dispatcher and Matrix transport together

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/coven-relay/internal/backend"
	"github.com/2389/coven-relay/internal/config"
	"github.com/2389/coven-relay/internal/conversation"
	"github.com/2389/coven-relay/internal/dispatch"
	"github.com/2389/coven-relay/internal/format"
	"github.com/2389/coven-relay/internal/matrix"
	"github.com/2389/coven-relay/internal/relay"
	"github.com/2389/coven-relay/internal/session"
	"github.com/2389/coven-relay/internal/store"
)

// version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                                 _
  ___ _____   _____ _ __        _ __ ___| | __ _ _   _
 / __/ _ \ \ / / _ \ '_ \ _____| '__/ _ \ |/ _' | | | |
| (_| (_) \ V /  __/ | | |_____| | |  __/ | (_| | |_| |
 \___\___/ \_/ \___|_| |_|     |_|  \___|_|\__,_|\__, |
                                                 |___/
`

func main() {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch command {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "accounts":
		err = runAccounts(ctx, os.Args[2:])
	case "help", "-h", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: coven-relay [command]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                     Relay Matrix messages to the backend (default)")
	fmt.Println("  init                      Create a new config file interactively")
	fmt.Println("  accounts                  Resolve configured accounts and show the session pool")
	fmt.Println("  accounts forget ACCOUNT   Drop a cached session token")
}

func runServe(ctx context.Context) error {
	configPath := config.Path()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config from %s: %w", configPath, err)
	}
	logger := setupLogger(cfg.Logging)

	dataPath := config.DataDir()
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:     %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Homeserver: %s\n", cfg.Matrix.Homeserver)
	green.Print("    ▶ ")
	fmt.Printf("Backend:    %s\n", cfg.Backend.URL)
	green.Print("    ▶ ")
	fmt.Printf("Trigger:    %s\n", cfg.Relay.Trigger)
	if cfg.Matrix.RecoveryKey != "" {
		green.Print("    ▶ ")
		fmt.Println("Encryption: enabled")
	}
	fmt.Println()

	cache, err := store.NewSQLiteStore(cfg.Credentials.CachePath, store.WithSecret(cfg.Credentials.CacheSecret))
	if err != nil {
		return fmt.Errorf("opening token cache: %w", err)
	}
	defer cache.Close()

	pool := session.Bootstrap(ctx, accountsFrom(cfg), credentialSource(cfg, cache, logger), logger)
	if pool.Size() == 0 {
		logger.Warn("no usable backend sessions; every message will get a failure note")
	}

	client := backend.NewClient(cfg.Backend.URL, cfg.Backend.Timeout)
	registry := conversation.NewRegistry(pool, func(h session.Handle) conversation.Conversation {
		return client.NewConversation(h)
	}, logger)

	formatter := format.New(format.Options{
		Trigger:        cfg.Relay.Trigger,
		QuoteDelimiter: cfg.Relay.QuoteDelimiter,
		Separator:      cfg.Relay.Separator,
	})

	dispatcher := dispatch.New(registry, formatter, dispatch.Options{
		Attempts:     cfg.Relay.MaxAttempts,
		Backoff:      cfg.Relay.Backoff,
		ResetKeyword: cfg.Relay.ResetKeyword,
	}, logger)
	defer dispatcher.Close()

	separator := cfg.Relay.Separator
	if separator == "" {
		separator = format.DefaultSeparator
	}
	bridge, err := matrix.New(matrix.Options{
		Homeserver:     cfg.Matrix.Homeserver,
		UserID:         cfg.Matrix.UserID,
		AccessToken:    cfg.Matrix.AccessToken,
		Username:       cfg.Matrix.Username,
		Password:       cfg.Matrix.Password,
		AllowedRooms:   cfg.Matrix.AllowedRooms,
		RespondToSelf:  cfg.Matrix.RespondToSelf,
		RenderMarkdown: cfg.Matrix.RenderMarkdown,
		DedupeWindow:   cfg.Relay.DedupeWindow,
		Separator:      separator,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	if err := bridge.Login(ctx); err != nil {
		return fmt.Errorf("matrix login: %w", err)
	}

	if cfg.Matrix.RecoveryKey != "" {
		crypto, err := matrix.SetupCrypto(ctx, bridge, cfg.Matrix.RecoveryKey, dataPath)
		if err != nil {
			return fmt.Errorf("setting up encryption: %w", err)
		}
		defer crypto.Close()
	} else {
		logger.Info("encryption disabled (no recovery key)")
	}

	r := relay.New(bridge, dispatcher, formatter, relay.Options{PingKeyword: cfg.Relay.PingKeyword}, logger)

	logger.Info("starting coven-relay",
		"config", configPath,
		"sessions", pool.Size(),
		"attempts", cfg.Relay.MaxAttempts,
		"backoff", cfg.Relay.Backoff,
	)
	return bridge.Run(ctx, r.Handle)
}

// accountsFrom maps configured accounts onto session accounts.
func accountsFrom(cfg *config.Config) []session.Account {
	accounts := make([]session.Account, 0, len(cfg.Accounts))
	for _, a := range cfg.Accounts {
		accounts = append(accounts, session.Account{
			ID:     a.ID(),
			Secret: a.Password,
			Token:  a.SessionToken,
		})
	}
	return accounts
}

// credentialSource returns the cached command source, or nil when every
// account carries a literal token.
func credentialSource(cfg *config.Config, cache store.TokenCache, logger *slog.Logger) session.Source {
	if len(cfg.Credentials.Command) == 0 {
		return nil
	}
	return session.NewCachedSource(&session.CommandSource{
		Command: cfg.Credentials.Command,
		Timeout: cfg.Credentials.Timeout,
	}, cache, logger)
}
