package session

import "time"

// SchemaVersion is the current session blob schema. Blobs persisted by an
// older build are treated as absent rather than migrated.
const SchemaVersion = 1

// Blob holds everything needed to resume an authenticated session:
// cookies, bearer tokens, and the user agent they were issued under.
type Blob struct {
	Version   int               `json:"version"`
	Account   string            `json:"account"`
	Cookies   map[string]string `json:"cookies"`
	Tokens    map[string]string `json:"tokens"`
	UserAgent string            `json:"user_agent"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// NewBlob creates an empty session blob for the given account
func NewBlob(account string) *Blob {
	now := time.Now()
	return &Blob{
		Version:   SchemaVersion,
		Account:   account,
		Cookies:   make(map[string]string),
		Tokens:    make(map[string]string),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Valid reports whether the blob matches the current schema. A saved blob
// always loads back, credentials or not; whether a credential-less session
// is worth resuming is the authenticator's call.
func (b *Blob) Valid() bool {
	return b != nil && b.Version == SchemaVersion
}

// HasCredentials reports whether the blob carries at least one cookie or
// token.
func (b *Blob) HasCredentials() bool {
	return b != nil && (len(b.Cookies) > 0 || len(b.Tokens) > 0)
}
