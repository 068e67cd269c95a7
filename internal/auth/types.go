package auth

import "regexp"

// apiKeyPattern defines the valid format for API keys:
// alphanumeric and hyphens only.
var apiKeyPattern = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)

// minAPIKeyLength is the minimum accepted API key length.
const minAPIKeyLength = 32

// IsValidAPIKey checks if an API key meets format requirements.
// Keys must be at least 32 characters, alphanumeric with hyphens.
func IsValidAPIKey(key string) bool {
	return len(key) >= minAPIKeyLength && apiKeyPattern.MatchString(key)
}

// Role represents an authorisation tier in the system.
type Role string

const (
	// RoleRegular is a sensor client with explicit permission grants.
	// Zero permissions = no access beyond authentication.
	RoleRegular Role = "regular"

	// RoleAdmin has full control: ingestion, user management, permission
	// grants, and rate-limit configuration. Bypasses permission and
	// sensor-scope checks entirely.
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of roles an API key may be bound to.
var ValidRoles = []Role{RoleRegular, RoleAdmin}

// IsValidRole returns true if the role is a recognised authorisation tier.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Permission represents a named capability in the system.
type Permission string

// Permission constants. These are the wire values used in admin
// grant/revoke messages and in configuration files.
const (
	PermReadSensor       Permission = "READ_SENSOR"
	PermWriteSensor      Permission = "WRITE_SENSOR"
	PermManageSensors    Permission = "MANAGE_SENSORS"
	PermManageUsers      Permission = "MANAGE_USERS"
	PermManageRateLimits Permission = "MANAGE_RATE_LIMITS"
)

// ValidPermissions is the set of grantable permissions.
var ValidPermissions = []Permission{
	PermReadSensor,
	PermWriteSensor,
	PermManageSensors,
	PermManageUsers,
	PermManageRateLimits,
}

// IsValidPermission returns true if the permission is a recognised capability.
func IsValidPermission(p Permission) bool {
	for _, v := range ValidPermissions {
		if p == v {
			return true
		}
	}
	return false
}

// Principal is the authenticated identity bound to a session after a
// successful API-key lookup. For admin principals the permission and
// sensor-scope fields are empty and never consulted.
type Principal struct {
	Role           Role
	UserID         string
	Permissions    []Permission
	AllowedSensors []string
}

// IsAdmin returns true for admin principals.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// HasPermission returns true if the principal holds the named permission.
// Admin principals implicitly hold every permission.
func (p Principal) HasPermission(perm Permission) bool {
	if p.Role == RoleAdmin {
		return true
	}
	for _, held := range p.Permissions {
		if held == perm {
			return true
		}
	}
	return false
}

// SensorInScope returns true if the principal may target the given sensor.
// An empty allowed-sensors set means no restriction has been configured.
func (p Principal) SensorInScope(sensorID string) bool {
	if p.Role == RoleAdmin || len(p.AllowedSensors) == 0 {
		return true
	}
	for _, s := range p.AllowedSensors {
		if s == sensorID {
			return true
		}
	}
	return false
}
