package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"fetchkit/pkg/logger"
)

const (
	saltSize   = 32
	keySize    = 32
	iterations = 100000
)

// EncryptedFileStore persists the session blob AES-GCM encrypted on disk.
// The key is derived from a passphrase with PBKDF2, with a fresh salt per
// write.
type EncryptedFileStore struct {
	path       string
	passphrase string
	logger     logger.Logger
	mu         sync.Mutex
}

// envelope is the on-disk structure wrapping the encrypted blob
type envelope struct {
	Salt      string    `json:"salt"`
	Encrypted string    `json:"encrypted"`
	Version   int       `json:"version"`
	Modified  time.Time `json:"modified"`
}

// NewEncryptedFileStore creates an encrypted session store at the given path.
// The passphrase comes from FETCHKIT_PASSPHRASE, or from a generated
// .passphrase file next to the session file.
func NewEncryptedFileStore(path string) (*EncryptedFileStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create session directory: %w", err)
		}
	}

	store := &EncryptedFileStore{
		path:   path,
		logger: logger.GetLogger(),
	}

	passphrase, err := store.getPassphrase()
	if err != nil {
		return nil, fmt.Errorf("failed to get passphrase: %w", err)
	}
	store.passphrase = passphrase

	return store, nil
}

// Load reads and decrypts the persisted session. Undecryptable or stale
// files are removed so the next run starts clean.
func (e *EncryptedFileStore) Load() (*Blob, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	content, err := os.ReadFile(e.path)
	if err != nil {
		if !os.IsNotExist(err) {
			e.logger.WithError(err).Warn("Failed to read session file")
		}
		return nil, false
	}

	var env envelope
	if err := json.Unmarshal(content, &env); err != nil {
		e.logger.WithError(err).Warn("Session file is corrupt, discarding")
		e.remove()
		return nil, false
	}

	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		e.logger.WithError(err).Warn("Session salt is corrupt, discarding")
		e.remove()
		return nil, false
	}

	encrypted, err := base64.StdEncoding.DecodeString(env.Encrypted)
	if err != nil {
		e.logger.WithError(err).Warn("Session payload is corrupt, discarding")
		e.remove()
		return nil, false
	}

	key := pbkdf2.Key([]byte(e.passphrase), salt, iterations, keySize, sha256.New)

	decrypted, err := decrypt(encrypted, key)
	if err != nil {
		e.logger.WithError(err).Warn("Failed to decrypt session, discarding")
		e.remove()
		return nil, false
	}

	var blob Blob
	if err := json.Unmarshal(decrypted, &blob); err != nil {
		e.logger.WithError(err).Warn("Decrypted session is corrupt, discarding")
		e.remove()
		return nil, false
	}

	if !blob.Valid() {
		e.logger.WithFields(map[string]interface{}{
			"version":  blob.Version,
			"expected": SchemaVersion,
		}).Warn("Session schema mismatch, discarding")
		e.remove()
		return nil, false
	}

	return &blob, true
}

// Save encrypts and writes the session atomically
func (e *EncryptedFileStore) Save(blob *Blob) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if blob == nil {
		return fmt.Errorf("cannot save nil session")
	}

	// Stamp a copy so the caller's blob is not mutated
	stamped := *blob
	stamped.UpdatedAt = time.Now()

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	key := pbkdf2.Key([]byte(e.passphrase), salt, iterations, keySize, sha256.New)

	plaintext, err := json.Marshal(&stamped)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	encrypted, err := encrypt(plaintext, key)
	if err != nil {
		return fmt.Errorf("failed to encrypt session: %w", err)
	}

	env := envelope{
		Salt:      base64.StdEncoding.EncodeToString(salt),
		Encrypted: base64.StdEncoding.EncodeToString(encrypted),
		Version:   SchemaVersion,
		Modified:  time.Now(),
	}

	content, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	tempPath := e.path + ".tmp"
	if err := os.WriteFile(tempPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}

	if err := os.Rename(tempPath, e.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename session file: %w", err)
	}

	return nil
}

// Invalidate removes the persisted session
func (e *EncryptedFileStore) Invalidate() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := os.Remove(e.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

// remove deletes the session file best-effort. Caller holds the lock.
func (e *EncryptedFileStore) remove() {
	if err := os.Remove(e.path); err != nil && !os.IsNotExist(err) {
		e.logger.WithError(err).Warn("Failed to remove session file")
	}
}

// getPassphrase retrieves or generates the passphrase for encryption
func (e *EncryptedFileStore) getPassphrase() (string, error) {
	if pass := os.Getenv("FETCHKIT_PASSPHRASE"); pass != "" {
		return pass, nil
	}

	passphrasePath := filepath.Join(filepath.Dir(e.path), ".passphrase")

	content, err := os.ReadFile(passphrasePath)
	if err == nil && len(content) > 0 {
		return string(content), nil
	}
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to read passphrase file: %w", err)
	}

	// Generate a random passphrase and persist it for future runs
	raw := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", fmt.Errorf("failed to generate passphrase: %w", err)
	}
	passphrase := base64.StdEncoding.EncodeToString(raw)

	if err := os.WriteFile(passphrasePath, []byte(passphrase), 0600); err != nil {
		return "", fmt.Errorf("failed to write passphrase file: %w", err)
	}

	return passphrase, nil
}

// encrypt seals plaintext with AES-GCM
func encrypt(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// decrypt opens an AES-GCM sealed payload
func decrypt(ciphertext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	return gcm.Open(nil, nonce, ciphertext[gcm.NonceSize():], nil)
}
