package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chloestaris/iot-sensor/internal/auth"
)

// Sentinel errors for registry operations.
var (
	// ErrUnknownUser indicates a mutation targeted a user that does not exist.
	ErrUnknownUser = errors.New("unknown user")

	// ErrInvalidPermission indicates a grant/revoke named an unrecognised
	// permission.
	ErrInvalidPermission = errors.New("invalid permission")

	// ErrInvalidUserID indicates an empty user ID.
	ErrInvalidUserID = errors.New("invalid user ID")
)

// User is one registry entry.
type User struct {
	UserID         string            `json:"user_id"`
	Permissions    []auth.Permission `json:"permissions"`
	AllowedSensors []string          `json:"allowed_sensors"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// clone returns a deep copy so callers never share the registry's slices.
// Empty sets stay empty (non-nil) rather than collapsing to nil.
func (u User) clone() User {
	if u.Permissions != nil {
		u.Permissions = append(make([]auth.Permission, 0, len(u.Permissions)), u.Permissions...)
	}
	if u.AllowedSensors != nil {
		u.AllowedSensors = append(make([]string, 0, len(u.AllowedSensors)), u.AllowedSensors...)
	}
	return u
}

// Repository persists registry entries. May be nil for memory-only
// operation (tests).
type Repository interface {
	SaveUser(ctx context.Context, user User) error
	DeleteUser(ctx context.Context, userID string) error
	LoadUsers(ctx context.Context) ([]User, error)
}

// Registry holds the user directory shared by all sessions.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Mutations for the same
//     user serialise on one mutex; reads may proceed concurrently.
type Registry struct {
	mu    sync.RWMutex
	users map[string]User
	repo  Repository
}

// New creates an empty registry. repo may be nil.
func New(repo Repository) *Registry {
	return &Registry{
		users: make(map[string]User),
		repo:  repo,
	}
}

// Load populates the registry from persisted entries. Call once at
// startup, before serving traffic.
func (r *Registry) Load(ctx context.Context) error {
	if r.repo == nil {
		return nil
	}
	users, err := r.repo.LoadUsers(ctx)
	if err != nil {
		return fmt.Errorf("loading registry: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range users {
		r.users[u.UserID] = u
	}
	return nil
}

// Seed adds a user only if absent, without touching existing entries.
// Used to load config-declared users at startup so a restart does not
// clobber grants made at runtime.
func (r *Registry) Seed(ctx context.Context, userID string, permissions []auth.Permission, allowedSensors []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[userID]; exists {
		return nil
	}
	return r.putLocked(ctx, userID, permissions, allowedSensors)
}

// AddUser creates a user with the given grants. Re-adding an existing
// user overwrites it.
func (r *Registry) AddUser(ctx context.Context, userID string, permissions []auth.Permission, allowedSensors []string) error {
	if userID == "" {
		return ErrInvalidUserID
	}
	for _, p := range permissions {
		if !auth.IsValidPermission(p) {
			return fmt.Errorf("%w: %s", ErrInvalidPermission, p)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.putLocked(ctx, userID, permissions, allowedSensors)
}

// RemoveUser deletes a user. Removing a non-existent user is a no-op
// success, not an error.
func (r *Registry) RemoveUser(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[userID]; !exists {
		return nil
	}
	if r.repo != nil {
		if err := r.repo.DeleteUser(ctx, userID); err != nil {
			return fmt.Errorf("deleting user %s: %w", userID, err)
		}
	}
	delete(r.users, userID)
	return nil
}

// Grant adds a permission to the target user. When sensorID is non-empty
// it is also added to the user's allowed-sensors scope. Targeting an
// unknown user is an error.
func (r *Registry) Grant(ctx context.Context, userID string, permission auth.Permission, sensorID string) error {
	if !auth.IsValidPermission(permission) {
		return fmt.Errorf("%w: %s", ErrInvalidPermission, permission)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	u, exists := r.users[userID]
	if !exists {
		return ErrUnknownUser
	}

	u = u.clone()
	if !containsPermission(u.Permissions, permission) {
		u.Permissions = append(u.Permissions, permission)
	}
	if sensorID != "" && !containsString(u.AllowedSensors, sensorID) {
		u.AllowedSensors = append(u.AllowedSensors, sensorID)
	}
	return r.saveLocked(ctx, u)
}

// Revoke removes a permission from the target user. When sensorID is
// non-empty it is also removed from the user's allowed-sensors scope.
// Targeting an unknown user is an error; revoking a permission the user
// does not hold is a no-op.
func (r *Registry) Revoke(ctx context.Context, userID string, permission auth.Permission, sensorID string) error {
	if !auth.IsValidPermission(permission) {
		return fmt.Errorf("%w: %s", ErrInvalidPermission, permission)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	u, exists := r.users[userID]
	if !exists {
		return ErrUnknownUser
	}

	u = u.clone()
	u.Permissions = removePermission(u.Permissions, permission)
	if sensorID != "" {
		u.AllowedSensors = removeString(u.AllowedSensors, sensorID)
	}
	return r.saveLocked(ctx, u)
}

// Lookup returns a copy of the user's entry.
func (r *Registry) Lookup(userID string) (User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[userID]
	if !ok {
		return User{}, false
	}
	return u.clone(), true
}

// Grants implements auth.Directory.
func (r *Registry) Grants(userID string) ([]auth.Permission, []string, bool) {
	u, ok := r.Lookup(userID)
	if !ok {
		return nil, nil, false
	}
	return u.Permissions, u.AllowedSensors, true
}

// Size returns the number of registered users.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// putLocked writes a full entry, preserving CreatedAt on overwrite.
// Caller holds r.mu.
func (r *Registry) putLocked(ctx context.Context, userID string, permissions []auth.Permission, allowedSensors []string) error {
	now := time.Now().UTC()
	u := User{
		UserID:         userID,
		Permissions:    append([]auth.Permission(nil), permissions...),
		AllowedSensors: append([]string(nil), allowedSensors...),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if existing, ok := r.users[userID]; ok {
		u.CreatedAt = existing.CreatedAt
	}
	return r.saveLocked(ctx, u)
}

// saveLocked persists then applies an entry. Caller holds r.mu.
func (r *Registry) saveLocked(ctx context.Context, u User) error {
	u.UpdatedAt = time.Now().UTC()
	if r.repo != nil {
		if err := r.repo.SaveUser(ctx, u); err != nil {
			return fmt.Errorf("saving user %s: %w", u.UserID, err)
		}
	}
	r.users[u.UserID] = u
	return nil
}

func containsPermission(perms []auth.Permission, p auth.Permission) bool {
	for _, held := range perms {
		if held == p {
			return true
		}
	}
	return false
}

func removePermission(perms []auth.Permission, p auth.Permission) []auth.Permission {
	out := perms[:0]
	for _, held := range perms {
		if held != p {
			out = append(out, held)
		}
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
