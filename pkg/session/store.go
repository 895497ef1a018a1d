package session

// Store persists session blobs between runs.
//
// Load never fails: a missing file, unreadable file, corrupt payload, or
// schema mismatch all report no session, so callers fall through to a
// fresh login instead of aborting. Save and Invalidate report real errors
// since silently losing a session is worse than surfacing the failure.
type Store interface {
	// Load returns the persisted session, or ok=false when none is usable
	Load() (*Blob, bool)
	// Save persists the session atomically
	Save(blob *Blob) error
	// Invalidate removes the persisted session; absent sessions are not an error
	Invalidate() error
}
