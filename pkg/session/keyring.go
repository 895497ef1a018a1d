package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/zalando/go-keyring"

	"fetchkit/pkg/logger"
)

const (
	keyringService = "fetchkit"
	keyringPrefix  = "session_"
)

// KeyringStore persists the session blob in the system keychain
type KeyringStore struct {
	account string
	logger  logger.Logger
}

// NewKeyringStore creates a keychain-backed session store for the given
// account. It fails if no keyring backend is available.
func NewKeyringStore(account string) (*KeyringStore, error) {
	if account == "" {
		return nil, fmt.Errorf("account is required for keyring sessions")
	}

	// Test if keyring is available
	testKey := "test_availability"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, testKey)

	return &KeyringStore{
		account: account,
		logger:  logger.GetLogger(),
	}, nil
}

// Load reads the session from the keychain
func (k *KeyringStore) Load() (*Blob, bool) {
	data, err := keyring.Get(keyringService, k.key())
	if err != nil {
		if err != keyring.ErrNotFound {
			k.logger.WithError(err).Warn("Failed to read session from keyring")
		}
		return nil, false
	}

	var blob Blob
	if err := json.Unmarshal([]byte(data), &blob); err != nil {
		k.logger.WithError(err).Warn("Keyring session is corrupt, discarding")
		_ = keyring.Delete(keyringService, k.key())
		return nil, false
	}

	if !blob.Valid() {
		k.logger.WithFields(map[string]interface{}{
			"version":  blob.Version,
			"expected": SchemaVersion,
		}).Warn("Session schema mismatch, discarding")
		_ = keyring.Delete(keyringService, k.key())
		return nil, false
	}

	return &blob, true
}

// Save writes the session to the keychain
func (k *KeyringStore) Save(blob *Blob) error {
	if blob == nil {
		return fmt.Errorf("cannot save nil session")
	}

	// Stamp a copy so the caller's blob is not mutated
	stamped := *blob
	stamped.UpdatedAt = time.Now()

	data, err := json.Marshal(&stamped)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := keyring.Set(keyringService, k.key(), string(data)); err != nil {
		return fmt.Errorf("failed to store session in keyring: %w", err)
	}

	return nil
}

// Invalidate removes the session from the keychain
func (k *KeyringStore) Invalidate() error {
	if err := keyring.Delete(keyringService, k.key()); err != nil && err != keyring.ErrNotFound {
		return fmt.Errorf("failed to delete session from keyring: %w", err)
	}
	return nil
}

func (k *KeyringStore) key() string {
	return keyringPrefix + k.account
}
