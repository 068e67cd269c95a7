package auth

import "errors"

// ErrInsufficientPermissions indicates the principal's role or permission
// set does not cover the attempted action.
var ErrInsufficientPermissions = errors.New("insufficient permissions")

// ActionKind classifies what an authenticated message is trying to do.
type ActionKind int

const (
	// ActionSensorWrite is a sensor_data submission for one sensor.
	ActionSensorWrite ActionKind = iota

	// ActionAdmin is any admin-path action. Admin actions are role-gated:
	// no permission grant lets a regular principal perform them.
	ActionAdmin
)

// Action is a single authorisation request.
type Action struct {
	Kind ActionKind

	// SensorID is the target sensor for ActionSensorWrite; ignored otherwise.
	SensorID string
}

// Authorize decides whether the principal may perform the action.
//
// Admin principals are allowed unconditionally. Regular principals are
// denied every admin action, and allowed a sensor write only when they
// hold WRITE_SENSOR and the target sensor is within their scope (an empty
// allowed-sensors set means unrestricted).
//
// Returns nil when allowed, ErrInsufficientPermissions otherwise.
func Authorize(p Principal, a Action) error {
	if p.Role == RoleAdmin {
		return nil
	}

	switch a.Kind {
	case ActionSensorWrite:
		if !p.HasPermission(PermWriteSensor) {
			return ErrInsufficientPermissions
		}
		if !p.SensorInScope(a.SensorID) {
			return ErrInsufficientPermissions
		}
		return nil
	case ActionAdmin:
		return ErrInsufficientPermissions
	default:
		return ErrInsufficientPermissions
	}
}
