package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chloestaris/iot-sensor/internal/auth"
)

// SQLiteRepository implements Repository using the users table.
// Permission and sensor lists are stored as JSON arrays.
type SQLiteRepository struct {
	db *sql.DB
}

// NewRepository creates a new SQLite-backed user repository.
func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// SaveUser upserts a registry entry.
func (r *SQLiteRepository) SaveUser(ctx context.Context, user User) error {
	perms, err := json.Marshal(user.Permissions)
	if err != nil {
		return fmt.Errorf("encoding permissions: %w", err)
	}
	sensors, err := json.Marshal(user.AllowedSensors)
	if err != nil {
		return fmt.Errorf("encoding allowed sensors: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO users (user_id, permissions, allowed_sensors, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   permissions = excluded.permissions,
		   allowed_sensors = excluded.allowed_sensors,
		   updated_at = excluded.updated_at`,
		user.UserID, string(perms), string(sensors),
		user.CreatedAt.UTC().Format(time.RFC3339),
		user.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving user: %w", err)
	}
	return nil
}

// DeleteUser removes a registry entry. Deleting an absent user is not
// an error.
func (r *SQLiteRepository) DeleteUser(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM users WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	return nil
}

// LoadUsers returns all persisted registry entries.
func (r *SQLiteRepository) LoadUsers(ctx context.Context) ([]User, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT user_id, permissions, allowed_sensors, created_at, updated_at FROM users")
	if err != nil {
		return nil, fmt.Errorf("loading users: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return users, nil
}

func scanUser(rows *sql.Rows) (User, error) {
	var u User
	var perms, sensors, createdAt, updatedAt string

	if err := rows.Scan(&u.UserID, &perms, &sensors, &createdAt, &updatedAt); err != nil {
		return User{}, fmt.Errorf("scanning user: %w", err)
	}
	if err := json.Unmarshal([]byte(perms), &u.Permissions); err != nil {
		return User{}, fmt.Errorf("decoding permissions for %s: %w", u.UserID, err)
	}
	if err := json.Unmarshal([]byte(sensors), &u.AllowedSensors); err != nil {
		return User{}, fmt.Errorf("decoding allowed sensors for %s: %w", u.UserID, err)
	}

	var err error
	if u.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return User{}, fmt.Errorf("parsing created_at for %s: %w", u.UserID, err)
	}
	if u.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return User{}, fmt.Errorf("parsing updated_at for %s: %w", u.UserID, err)
	}

	// Normalise JSON nulls to empty sets.
	if u.Permissions == nil {
		u.Permissions = []auth.Permission{}
	}
	if u.AllowedSensors == nil {
		u.AllowedSensors = []string{}
	}
	return u, nil
}
