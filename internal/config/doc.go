// Package config loads coven-relay configuration.
//
// The file is TOML (.toml) or YAML (.yaml, .yml), chosen by extension.
// ${VAR} references are expanded from the environment before decoding, and
// duration fields are written as Go duration strings ("30s", "1m").
//
// # Example
//
//	[matrix]
//	homeserver = "https://matrix.org"
//	username = "archer"
//	password = "${MATRIX_PASSWORD}"
//	allowed_rooms = []
//
//	[backend]
//	url = "http://localhost:3000"
//	timeout = "2m"
//
//	[[accounts]]
//	email = "someone@example.com"
//	password = "${ACCOUNT_PASSWORD}"
//
//	[[accounts]]
//	session_token = "${SESSION_TOKEN}"
//
//	[credentials]
//	command = ["poetry", "run", "python3", "generate_session.py"]
//	cache_secret = "${TOKEN_CACHE_SECRET}"
//
//	[relay]
//	trigger = "archer"
//	max_attempts = 2
//	backoff = "1s"
//
//	[logging]
//	level = "info"
//	format = "text"
//
// Accounts with only an email and password need credentials.command, which
// is run with the email and password appended and must print the session
// token as its last line of output.
package config
