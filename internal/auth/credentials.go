package auth

import (
	"errors"
	"fmt"
)

// Sentinel errors for credential resolution.
var (
	// ErrUnknownKey indicates the API key is absent from the store or
	// syntactically invalid. The two cases are deliberately not
	// distinguishable by callers.
	ErrUnknownKey = errors.New("invalid API key")
)

// Directory resolves a user's current grants at authentication time.
// Implemented by the user registry; a nil Directory disables the lookup
// and principals fall back to their config-seeded grants.
type Directory interface {
	// Grants returns the user's permissions and sensor scope, or ok=false
	// if the user is not present in the directory.
	Grants(userID string) (permissions []Permission, allowedSensors []string, ok bool)
}

// KeyEntry binds one API key to a role and, for regular keys, a user ID
// plus seed grants. With a directory configured the seeds only bootstrap
// the registry; the directory is authoritative afterwards.
type KeyEntry struct {
	Key            string
	Role           Role
	UserID         string
	Permissions    []Permission
	AllowedSensors []string
}

// CredentialStore maps API keys to principals. The key set is fixed at
// construction; per-user grants are re-read from the directory on every
// resolve so admin mutations apply to subsequent authentications.
//
// Thread Safety:
//   - Safe for concurrent use; the key map is never mutated after New.
type CredentialStore struct {
	keys      map[string]KeyEntry
	directory Directory
}

// NewCredentialStore builds a store from the configured key entries.
//
// Parameters:
//   - entries: API keys with their role bindings
//   - directory: registry lookup for regular principals, may be nil
//
// Returns:
//   - *CredentialStore: ready for concurrent Resolve calls
//   - error: if an entry has an invalid key format, unknown role, or a
//     regular entry lacks a user ID
func NewCredentialStore(entries []KeyEntry, directory Directory) (*CredentialStore, error) {
	keys := make(map[string]KeyEntry, len(entries))
	for i, e := range entries {
		if !IsValidAPIKey(e.Key) {
			return nil, fmt.Errorf("api key entry %d: invalid key format", i)
		}
		if !IsValidRole(e.Role) {
			return nil, fmt.Errorf("api key entry %d: unknown role %q", i, e.Role)
		}
		if e.Role == RoleRegular && e.UserID == "" {
			return nil, fmt.Errorf("api key entry %d: regular key requires a user_id", i)
		}
		if _, dup := keys[e.Key]; dup {
			return nil, fmt.Errorf("api key entry %d: duplicate key", i)
		}
		keys[e.Key] = e
	}
	return &CredentialStore{keys: keys, directory: directory}, nil
}

// Resolve maps an API key to its principal.
//
// Unknown and malformed keys both return ErrUnknownKey; the store never
// partially matches. Regular principals are assembled from the directory's
// current grants. A user the directory does not know holds no grants at
// all: removing a user revokes access even though their key still
// authenticates. The entry's config-seeded grants apply only when the
// store has no directory.
func (s *CredentialStore) Resolve(apiKey string) (Principal, error) {
	if !IsValidAPIKey(apiKey) {
		return Principal{}, ErrUnknownKey
	}
	entry, ok := s.keys[apiKey]
	if !ok {
		return Principal{}, ErrUnknownKey
	}

	if entry.Role == RoleAdmin {
		return Principal{Role: RoleAdmin}, nil
	}

	p := Principal{Role: RoleRegular, UserID: entry.UserID}
	if s.directory == nil {
		p.Permissions = append([]Permission(nil), entry.Permissions...)
		p.AllowedSensors = append([]string(nil), entry.AllowedSensors...)
		return p, nil
	}

	perms, sensors, found := s.directory.Grants(entry.UserID)
	if !found {
		return p, nil
	}
	p.Permissions = perms
	p.AllowedSensors = sensors
	return p, nil
}

// Len returns the number of configured API keys.
func (s *CredentialStore) Len() int {
	return len(s.keys)
}
