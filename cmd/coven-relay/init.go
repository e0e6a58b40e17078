// ABOUTME: The init command: writes a starter relay.toml interactively
// ABOUTME: Prompts for Matrix login, backend URL and the first account

package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"github.com/2389/coven-relay/internal/config"
)

func runInit() error {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println("    Interactive Setup")
	fmt.Println("    -----------------")
	fmt.Println()

	configPath := config.Path()
	reader := bufio.NewReader(os.Stdin)

	ask := func(prompt, fallback string) string {
		green.Print("    ▶ ")
		fmt.Print(prompt)
		answer, _ := reader.ReadString('\n')
		answer = strings.TrimSpace(answer)
		if answer == "" {
			return fallback
		}
		return answer
	}

	if _, err := os.Stat(configPath); err == nil {
		yellow.Printf("    Config already exists at %s\n", configPath)
		fmt.Print("    Overwrite? [y/N]: ")
		answer, _ := reader.ReadString('\n')
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Println("    Aborted.")
			return nil
		}
		fmt.Println()
	}

	homeserver := ask("Matrix homeserver URL [https://matrix.org]: ", "https://matrix.org")
	username := ask("Matrix username: ", "")
	password := ask("Matrix password: ", "")
	recoveryKey := ask("Matrix recovery key (optional, for E2EE): ", "")
	backendURL := ask("Backend URL [http://localhost:3000]: ", "http://localhost:3000")
	trigger := ask(fmt.Sprintf("Trigger keyword [%s]: ", config.DefaultTrigger), config.DefaultTrigger)
	email := ask("First account email (leave empty to use a session token): ", "")

	var account string
	if email != "" {
		accountPassword := ask("Account password: ", "")
		command := ask("Token command [poetry run python3 generate_session.py]: ", "poetry run python3 generate_session.py")
		account = fmt.Sprintf(`[[accounts]]
email = %q
password = %q

[credentials]
# Run with the email and password appended; the last line printed is the token.
command = %s
`, email, accountPassword, tomlStringList(strings.Fields(command)))
	} else {
		token := ask("Session token: ", "")
		account = fmt.Sprintf(`[[accounts]]
session_token = %q
`, token)
	}

	content := fmt.Sprintf(`# coven-relay configuration
# Generated by coven-relay init

[matrix]
homeserver = %q
username = %q
password = %q
`, homeserver, username, password)
	if recoveryKey != "" {
		content += fmt.Sprintf("recovery_key = %q\n", recoveryKey)
	}
	content += fmt.Sprintf(`# Only respond in these rooms (empty = all joined rooms)
allowed_rooms = []

[backend]
url = %q
timeout = "2m"

%s
[relay]
trigger = %q
max_attempts = %d
backoff = "1s"

[logging]
level = "info"
format = "text"
`, backendURL, account, trigger, config.DefaultMaxAttempts)

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Println()
	green.Printf("    ✓ Config written to %s\n", configPath)
	fmt.Println()
	fmt.Println("    Next steps:")
	fmt.Println("    1. Check the accounts: coven-relay accounts")
	fmt.Println("    2. Run: coven-relay serve")
	fmt.Println()
	return nil
}

// tomlStringList renders args as a TOML array of strings.
func tomlStringList(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = fmt.Sprintf("%q", a)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
