package session

import (
	"fmt"

	"fetchkit/pkg/config"
)

// NewStoreFromConfig builds the session store named by the configuration
func NewStoreFromConfig(cfg *config.SessionConfig) (Store, error) {
	switch cfg.Store {
	case "", "file":
		return NewFileStore(cfg.File)
	case "encrypted":
		return NewEncryptedFileStore(cfg.File)
	case "keyring":
		return NewKeyringStore(cfg.Account)
	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.Store)
	}
}
