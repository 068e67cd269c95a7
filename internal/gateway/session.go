package gateway

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/chloestaris/iot-sensor/internal/auth"
	"github.com/chloestaris/iot-sensor/internal/audit"
	"github.com/chloestaris/iot-sensor/internal/ratelimit"
	"github.com/chloestaris/iot-sensor/internal/registry"
	"github.com/chloestaris/iot-sensor/internal/sensor"
)

// State is the session's position in its lifecycle. Transitions only
// move forward: Unauthenticated → Authenticated → Closed.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateClosed
)

// Sink receives validated readings for forwarding (MQTT, InfluxDB).
type Sink interface {
	Ingest(ctx context.Context, r sensor.Reading) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, r sensor.Reading) error

// Ingest implements Sink.
func (f SinkFunc) Ingest(ctx context.Context, r sensor.Reading) error {
	return f(ctx, r)
}

// Deps are the shared components a session consults. Credentials,
// Limiter, Validator, and Registry are required; the rest may be nil.
type Deps struct {
	Credentials *auth.CredentialStore
	Limiter     *ratelimit.Limiter
	Validator   *sensor.Validator
	Registry    *registry.Registry
	Audit       audit.Repository
	Sink        Sink
	Logger      *slog.Logger

	// Connections reports the current connection count for system_stats.
	Connections func() int

	// Stats receives each system_stats snapshot for telemetry export.
	// Optional.
	Stats func(fields map[string]any)
}

// Session is one connection's state machine. It is driven by a single
// read loop and is not safe for concurrent Handle calls; that is how
// strict in-order processing is guaranteed.
type Session struct {
	id        string
	state     State
	principal auth.Principal
	deps      Deps
	log       *slog.Logger
}

// NewSession creates an unauthenticated session.
func NewSession(deps Deps) *Session {
	id := "ses-" + uuid.NewString()[:8]
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		id:    id,
		state: StateUnauthenticated,
		deps:  deps,
		log:   log.With(slog.String("session_id", id)),
	}
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.state
}

// Principal returns the bound principal; zero before authentication.
func (s *Session) Principal() auth.Principal {
	return s.principal
}

// Close marks the session closed. Subsequent Handle calls produce no
// response.
func (s *Session) Close() {
	s.state = StateClosed
}

// Handle processes one inbound frame and returns the response frame.
// Each message runs to completion before the caller reads the next, so
// responses never overtake their requests.
func (s *Session) Handle(ctx context.Context, raw []byte) Result {
	if s.state == StateClosed {
		return Result{}
	}

	var msg inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		if s.state == StateUnauthenticated {
			s.state = StateClosed
			return closeResult(errInvalidJSON)
		}
		return errorResult(errInvalidJSON)
	}

	if s.state == StateUnauthenticated {
		return s.handleAuth(msg)
	}

	switch {
	case msg.APIKey != nil:
		// Re-authentication on a live session is not part of the
		// protocol; the principal binding is immutable.
		return errorResult(errUnrecognizedMessage)
	case msg.SensorData != nil:
		return s.handleSensorData(ctx, msg.SensorData)
	case msg.Admin != nil:
		return s.handleAdmin(ctx, msg.Admin)
	default:
		return errorResult(errUnrecognizedMessage)
	}
}

// handleAuth resolves the one permitted authentication attempt.
func (s *Session) handleAuth(msg inbound) Result {
	if msg.APIKey == nil {
		s.state = StateClosed
		return closeResult(errNotAuthenticated)
	}

	principal, err := s.deps.Credentials.Resolve(*msg.APIKey)
	if err != nil {
		s.log.Warn("authentication failed")
		s.state = StateClosed
		return closeResult(errInvalidAPIKey)
	}

	s.principal = principal
	s.state = StateAuthenticated
	s.log.Info("session authenticated",
		slog.String("role", string(principal.Role)),
		slog.String("user_id", principal.UserID))

	response := map[string]any{"status": "authenticated"}
	if principal.IsAdmin() {
		response["role"] = "admin"
	}
	return okResult(response)
}

// handleSensorData runs the ingestion pipeline: rate limit,
// authorisation, validation, then the sink.
func (s *Session) handleSensorData(ctx context.Context, raw json.RawMessage) Result {
	if !s.deps.Limiter.Admit(s.clientID()) {
		return errorResult(errRateLimitExceeded)
	}

	reading, err := parseReading(raw)
	if err != nil {
		return errorResult(errInvalidSensorData)
	}

	action := auth.Action{Kind: auth.ActionSensorWrite, SensorID: reading.SensorID}
	if err := auth.Authorize(s.principal, action); err != nil {
		return errorResult(errInsufficientPerms)
	}

	if err := s.deps.Validator.Validate(reading); err != nil {
		return errorResult(err.Error())
	}

	if s.deps.Sink != nil {
		if err := s.deps.Sink.Ingest(ctx, reading); err != nil {
			// The reading was accepted; forwarding is best-effort and
			// retried downstream by the sink's own reconnect logic.
			s.log.Error("ingestion sink failed",
				slog.String("sensor_id", reading.SensorID),
				slog.String("error", err.Error()))
		}
	}

	return okResult(map[string]any{
		"status":  "success",
		"message": "Sensor data received",
	})
}

// clientID keys the rate limiter: the bound user for regular sessions,
// a shared bucket for admin sessions.
func (s *Session) clientID() string {
	if s.principal.IsAdmin() {
		return "admin"
	}
	return s.principal.UserID
}
