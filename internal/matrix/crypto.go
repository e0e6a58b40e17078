// ABOUTME: Optional end-to-end encryption for the Matrix bridge
// ABOUTME: Wraps mautrix cryptohelper with a per-user SQLite store and device reset

package matrix

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/crypto/cryptohelper"
)

// Crypto owns the encryption state for one logged-in client.
type Crypto struct {
	helper *cryptohelper.CryptoHelper
	logger *slog.Logger
}

// SetupCrypto enables E2EE on b's client. The store lives in dataDir and is
// recreated if it belongs to a different device. A recovery key, when given,
// is used for cross-signing; failure there is logged and encryption stays on.
func SetupCrypto(ctx context.Context, b *Bridge, recoveryKey, dataDir string) (*Crypto, error) {
	logger := b.logger.With("subsystem", "crypto")
	client := b.Client()

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	userID := client.UserID.String()
	dbPath := filepath.Join(dataDir, fmt.Sprintf("relay-crypto-%s.db", slugify(userID)))
	logger.Info("setting up encryption", "db", dbPath)

	helper, err := openCryptoHelper(ctx, client, deriveStoreKey(userID), dbPath, logger)
	if err != nil {
		return nil, err
	}
	client.Crypto = helper

	c := &Crypto{helper: helper, logger: logger}
	if recoveryKey == "" {
		logger.Info("encryption enabled without cross-signing")
		return c, nil
	}

	machine := helper.Machine()
	if machine == nil {
		logger.Warn("crypto machine not initialized; skipping recovery key")
		return c, nil
	}
	if err := machine.VerifyWithRecoveryKey(ctx, recoveryKey); err != nil {
		logger.Warn("recovery key verification failed", "error", err)
	} else {
		logger.Info("device verified with recovery key")
	}
	return c, nil
}

// Close releases the crypto store.
func (c *Crypto) Close() error {
	if c == nil || c.helper == nil {
		return nil
	}
	return c.helper.Close()
}

// slugify turns a Matrix user ID into a filesystem-safe name:
// @archer:matrix.org becomes archer_matrix.org.
func slugify(userID string) string {
	s := strings.TrimPrefix(userID, "@")
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ':':
			b.WriteByte('_')
		}
	}
	return b.String()
}

// deriveStoreKey returns a deterministic 32-byte pickle key for userID.
func deriveStoreKey(userID string) []byte {
	h := sha256.Sum256([]byte("coven-relay-crypto:" + userID))
	return h[:]
}

func openCryptoHelper(ctx context.Context, client *mautrix.Client, storeKey []byte, dbPath string, logger *slog.Logger) (*cryptohelper.CryptoHelper, error) {
	// The check runs before the helper opens the file so the database is not locked.
	mismatch, err := storedDeviceDiffers(dbPath, client.DeviceID.String())
	switch {
	case err != nil:
		logger.Debug("could not read stored device ID", "error", err)
	case mismatch:
		logger.Warn("crypto store belongs to another device, resetting it")
		if err := removeDatabase(dbPath); err != nil {
			return nil, err
		}
	}

	helper, err := cryptohelper.NewCryptoHelper(client, storeKey, dbPath)
	if err != nil {
		return nil, fmt.Errorf("creating crypto helper: %w", err)
	}
	if err := helper.Init(ctx); err != nil {
		return nil, fmt.Errorf("initializing crypto helper: %w", err)
	}
	return helper, nil
}

// storedDeviceDiffers reports whether the crypto store at dbPath holds an
// account for a device other than deviceID. A missing store never differs.
func storedDeviceDiffers(dbPath, deviceID string) (bool, error) {
	if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return false, err
	}
	defer db.Close()

	var stored string
	err = db.QueryRow("SELECT device_id FROM crypto_account LIMIT 1").Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return stored != deviceID, nil
}

func removeDatabase(dbPath string) error {
	if err := os.Remove(dbPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing old crypto database: %w", err)
	}
	_ = os.Remove(dbPath + "-wal")
	_ = os.Remove(dbPath + "-shm")
	return nil
}
