package gateway

import (
	"encoding/json"

	"github.com/chloestaris/iot-sensor/internal/sensor"
)

// Wire error strings. These are part of the protocol contract; clients
// match on them.
const (
	errInvalidAPIKey        = "invalid API key"
	errNotAuthenticated     = "not authenticated"
	errInvalidJSON          = "invalid JSON format"
	errUnrecognizedMessage  = "unrecognized message"
	errInsufficientPerms    = "insufficient permissions"
	errRateLimitExceeded    = "rate limit exceeded"
	errInvalidSensorData    = "invalid sensor data format"
	errUnknownAdminAction   = "unknown admin action"
	errUnknownUserOperation = "unknown operation"
)

// Admin action names on the wire.
const (
	actionSystemStats        = "system_stats"
	actionManageUser         = "manage_user"
	actionManagePermissions  = "manage_permissions"
	actionConfigureRateLimit = "configure_rate_limit"
	actionAuditLog           = "audit_log"
)

// inbound is the envelope for every request. Raw fields distinguish
// "absent" from "present but malformed".
type inbound struct {
	APIKey     *string         `json:"api_key"`
	SensorData json.RawMessage `json:"sensor_data"`
	Admin      json.RawMessage `json:"admin"`
}

// adminRequest carries the union of all admin action fields.
type adminRequest struct {
	Action    string `json:"action"`
	Operation string `json:"operation"`

	// manage_user
	UserID         string   `json:"user_id"`
	Permissions    []string `json:"permissions"`
	AllowedSensors []string `json:"allowed_sensors"`

	// manage_permissions
	TargetUser string `json:"target_user"`
	Permission string `json:"permission"`
	SensorID   string `json:"sensor_id"`

	// configure_rate_limit
	ClientID      string `json:"client_id"`
	MaxRequests   int    `json:"max_requests"`
	WindowSeconds int    `json:"window_seconds"`

	// audit_log
	FilterAction string `json:"filter_action"`
	TargetID     string `json:"target_id"`
	Limit        int    `json:"limit"`
	Offset       int    `json:"offset"`
}

// Result is the outcome of handling one inbound frame.
type Result struct {
	// Response is the JSON frame to send back, nil if the session is
	// already closed.
	Response []byte

	// Close indicates the connection must be terminated after sending
	// the response.
	Close bool
}

func errorResult(msg string) Result {
	return Result{Response: marshalResponse(map[string]any{"error": msg})}
}

func closeResult(msg string) Result {
	return Result{Response: marshalResponse(map[string]any{"error": msg}), Close: true}
}

func okResult(fields map[string]any) Result {
	return Result{Response: marshalResponse(fields)}
}

func ackResult(message string) Result {
	return okResult(map[string]any{"status": "success", "message": message})
}

// marshalResponse encodes a response map. The maps are built from
// marshal-safe values only, so failure is a programming error.
func marshalResponse(fields map[string]any) []byte {
	b, err := json.Marshal(fields)
	if err != nil {
		return []byte(`{"error":"internal error"}`)
	}
	return b
}

// parseReading decodes the sensor_data object. Mistyped fields are a
// format error; missing ones fall through to the validator.
func parseReading(raw json.RawMessage) (sensor.Reading, error) {
	var r sensor.Reading
	if err := json.Unmarshal(raw, &r); err != nil {
		return sensor.Reading{}, err
	}
	return r, nil
}
