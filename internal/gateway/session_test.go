package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/chloestaris/iot-sensor/internal/auth"
	"github.com/chloestaris/iot-sensor/internal/audit"
	"github.com/chloestaris/iot-sensor/internal/ratelimit"
	"github.com/chloestaris/iot-sensor/internal/registry"
	"github.com/chloestaris/iot-sensor/internal/sensor"
)

const (
	testAdminKey   = "admin-0000000000000000000000000000000000"
	testRegularKey = "regular-00000000000000000000000000000000"
)

// memAudit is an in-memory audit.Repository for gateway tests.
type memAudit struct {
	entries []audit.AuditLog
}

func (m *memAudit) Create(_ context.Context, log *audit.AuditLog) error {
	m.entries = append(m.entries, *log)
	return nil
}

func (m *memAudit) List(_ context.Context, _ audit.Filter) (*audit.ListResult, error) {
	return &audit.ListResult{Logs: m.entries, Total: len(m.entries)}, nil
}

// captureSink records ingested readings.
type captureSink struct {
	readings []sensor.Reading
}

func (c *captureSink) Ingest(_ context.Context, r sensor.Reading) error {
	c.readings = append(c.readings, r)
	return nil
}

// testEnv wires real components around fresh in-memory state.
type testEnv struct {
	reg     *registry.Registry
	limiter *ratelimit.Limiter
	audit   *memAudit
	sink    *captureSink
	deps    Deps
}

func newTestEnv(t *testing.T, defaultLimit ratelimit.Limit) *testEnv {
	t.Helper()

	reg := registry.New(nil)
	if err := reg.AddUser(context.Background(), "u1",
		[]auth.Permission{auth.PermWriteSensor}, []string{"s1"}); err != nil {
		t.Fatalf("AddUser() error: %v", err)
	}

	creds, err := auth.NewCredentialStore([]auth.KeyEntry{
		{Key: testAdminKey, Role: auth.RoleAdmin},
		{
			Key:            testRegularKey,
			Role:           auth.RoleRegular,
			UserID:         "u1",
			Permissions:    []auth.Permission{auth.PermWriteSensor},
			AllowedSensors: []string{"s1"},
		},
	}, reg)
	if err != nil {
		t.Fatalf("NewCredentialStore() error: %v", err)
	}

	limiter, err := ratelimit.New(defaultLimit, nil)
	if err != nil {
		t.Fatalf("ratelimit.New() error: %v", err)
	}

	env := &testEnv{
		reg:     reg,
		limiter: limiter,
		audit:   &memAudit{},
		sink:    &captureSink{},
	}
	env.deps = Deps{
		Credentials: creds,
		Limiter:     limiter,
		Validator:   sensor.NewValidator(60),
		Registry:    reg,
		Audit:       env.audit,
		Sink:        env.sink,
		Connections: func() int { return 1 },
	}
	return env
}

// send handles a frame and decodes the response.
func send(t *testing.T, s *Session, frame string) (map[string]any, Result) {
	t.Helper()

	result := s.Handle(context.Background(), []byte(frame))
	if result.Response == nil {
		return nil, result
	}
	var decoded map[string]any
	if err := json.Unmarshal(result.Response, &decoded); err != nil {
		t.Fatalf("response is not valid JSON: %v (%s)", err, result.Response)
	}
	return decoded, result
}

// authenticate brings a session to the Authenticated state.
func authenticate(t *testing.T, s *Session, apiKey string) {
	t.Helper()

	resp, result := send(t, s, fmt.Sprintf(`{"api_key":%q}`, apiKey))
	if result.Close {
		t.Fatalf("authentication should succeed, got %v", resp)
	}
	if resp["status"] != "authenticated" {
		t.Fatalf("auth response = %v", resp)
	}
}

func sensorFrame(sensorID string) string {
	return fmt.Sprintf(
		`{"sensor_data":{"sensor_id":%q,"type":"temperature","value":21.5,"timestamp":%d,"unit":"celsius"}}`,
		sensorID, time.Now().Unix())
}

func TestHandle_UnknownKeyClosesSession(t *testing.T) {
	env := newTestEnv(t, ratelimit.Limit{MaxRequests: 100, WindowSeconds: 60})
	s := NewSession(env.deps)

	resp, result := send(t, s, `{"api_key":"zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz"}`)
	if resp["error"] != "invalid API key" {
		t.Errorf("response = %v, want invalid API key error", resp)
	}
	if !result.Close {
		t.Error("auth failure must close the connection")
	}
	if s.State() != StateClosed {
		t.Error("session should be Closed, never Authenticated")
	}

	// Closed sessions produce nothing.
	if _, result := send(t, s, sensorFrame("s1")); result.Response != nil {
		t.Error("closed session should not respond")
	}
}

func TestHandle_FirstMessageMustBeAuth(t *testing.T) {
	env := newTestEnv(t, ratelimit.Limit{MaxRequests: 100, WindowSeconds: 60})
	s := NewSession(env.deps)

	resp, result := send(t, s, sensorFrame("s1"))
	if resp["error"] != "not authenticated" || !result.Close {
		t.Errorf("non-auth first message: resp=%v close=%v", resp, result.Close)
	}
}

func TestHandle_InvalidJSONBeforeAuth(t *testing.T) {
	env := newTestEnv(t, ratelimit.Limit{MaxRequests: 100, WindowSeconds: 60})
	s := NewSession(env.deps)

	resp, result := send(t, s, `{not json`)
	if resp["error"] != "invalid JSON format" || !result.Close {
		t.Errorf("malformed first frame: resp=%v close=%v", resp, result.Close)
	}
}

func TestHandle_AuthResponseShape(t *testing.T) {
	env := newTestEnv(t, ratelimit.Limit{MaxRequests: 100, WindowSeconds: 60})

	admin := NewSession(env.deps)
	resp, _ := send(t, admin, fmt.Sprintf(`{"api_key":%q}`, testAdminKey))
	if resp["status"] != "authenticated" || resp["role"] != "admin" {
		t.Errorf("admin auth response = %v", resp)
	}

	regular := NewSession(env.deps)
	resp, _ = send(t, regular, fmt.Sprintf(`{"api_key":%q}`, testRegularKey))
	if resp["status"] != "authenticated" {
		t.Errorf("regular auth response = %v", resp)
	}
	if _, present := resp["role"]; present {
		t.Error("role field must be absent for regular principals")
	}
}

func TestHandle_SecondAPIKeyRejected(t *testing.T) {
	env := newTestEnv(t, ratelimit.Limit{MaxRequests: 100, WindowSeconds: 60})
	s := NewSession(env.deps)
	authenticate(t, s, testAdminKey)

	resp, result := send(t, s, fmt.Sprintf(`{"api_key":%q}`, testAdminKey))
	if resp["error"] != "unrecognized message" {
		t.Errorf("re-auth response = %v", resp)
	}
	if result.Close || s.State() != StateAuthenticated {
		t.Error("re-auth attempt must not change session state")
	}
}

func TestHandle_UnrecognizedShape(t *testing.T) {
	env := newTestEnv(t, ratelimit.Limit{MaxRequests: 100, WindowSeconds: 60})
	s := NewSession(env.deps)
	authenticate(t, s, testAdminKey)

	resp, _ := send(t, s, `{"ping":true}`)
	if resp["error"] != "unrecognized message" {
		t.Errorf("response = %v", resp)
	}
}

func TestHandle_SensorDataAck(t *testing.T) {
	env := newTestEnv(t, ratelimit.Limit{MaxRequests: 100, WindowSeconds: 60})
	s := NewSession(env.deps)
	authenticate(t, s, testAdminKey)

	resp, _ := send(t, s, sensorFrame("s1"))
	if resp["status"] != "success" || resp["message"] != "Sensor data received" {
		t.Errorf("ingestion ack = %v", resp)
	}
	if len(env.sink.readings) != 1 || env.sink.readings[0].SensorID != "s1" {
		t.Errorf("sink should receive the reading, got %v", env.sink.readings)
	}
}

func TestHandle_SensorScopeEnforced(t *testing.T) {
	env := newTestEnv(t, ratelimit.Limit{MaxRequests: 100, WindowSeconds: 60})
	s := NewSession(env.deps)
	authenticate(t, s, testRegularKey)

	// u1 is scoped to s1.
	resp, _ := send(t, s, sensorFrame("s1"))
	if resp["status"] != "success" {
		t.Errorf("in-scope submission = %v", resp)
	}

	resp, _ = send(t, s, sensorFrame("s2"))
	if resp["error"] != "insufficient permissions" {
		t.Errorf("out-of-scope submission = %v", resp)
	}
	if len(env.sink.readings) != 1 {
		t.Error("denied reading must not reach the sink")
	}
}

func TestHandle_ValidationErrors(t *testing.T) {
	env := newTestEnv(t, ratelimit.Limit{MaxRequests: 100, WindowSeconds: 60})
	s := NewSession(env.deps)
	authenticate(t, s, testAdminKey)

	tests := []struct {
		name    string
		frame   string
		wantErr string
	}{
		{
			"unknown type",
			fmt.Sprintf(`{"sensor_data":{"sensor_id":"s1","type":"radiation","value":1,"timestamp":%d,"unit":"ppm"}}`, time.Now().Unix()),
			"unknown sensor type",
		},
		{
			"invalid unit",
			fmt.Sprintf(`{"sensor_data":{"sensor_id":"s1","type":"temperature","value":1,"timestamp":%d,"unit":"lux"}}`, time.Now().Unix()),
			"invalid unit",
		},
		{
			"out of range",
			fmt.Sprintf(`{"sensor_data":{"sensor_id":"s1","type":"temperature","value":9999,"timestamp":%d,"unit":"celsius"}}`, time.Now().Unix()),
			"value out of range",
		},
		{
			"mistyped value",
			`{"sensor_data":{"sensor_id":"s1","type":"temperature","value":"hot","timestamp":1,"unit":"celsius"}}`,
			"invalid sensor data format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := send(t, s, tt.frame)
			if resp["error"] != tt.wantErr {
				t.Errorf("response = %v, want error %q", resp, tt.wantErr)
			}
		})
	}
	if len(env.sink.readings) != 0 {
		t.Error("invalid readings must not reach the sink")
	}
}

func TestHandle_RateLimit(t *testing.T) {
	env := newTestEnv(t, ratelimit.Limit{MaxRequests: 2, WindowSeconds: 60})
	s := NewSession(env.deps)
	authenticate(t, s, testRegularKey)

	for i := 0; i < 2; i++ {
		if resp, _ := send(t, s, sensorFrame("s1")); resp["status"] != "success" {
			t.Fatalf("request %d = %v", i+1, resp)
		}
	}
	resp, result := send(t, s, sensorFrame("s1"))
	if resp["error"] != "rate limit exceeded" {
		t.Errorf("throttled response = %v", resp)
	}
	if result.Close {
		t.Error("throttling must not close the connection")
	}
}

func TestHandle_RegularDeniedAdminActions(t *testing.T) {
	env := newTestEnv(t, ratelimit.Limit{MaxRequests: 100, WindowSeconds: 60})
	s := NewSession(env.deps)
	authenticate(t, s, testRegularKey)

	frames := []string{
		`{"admin":{"action":"system_stats"}}`,
		`{"admin":{"action":"manage_user","operation":"add","user_id":"u2"}}`,
		`{"admin":{"action":"configure_rate_limit","client_id":"u1","max_requests":1000,"window_seconds":60}}`,
	}
	for _, frame := range frames {
		resp, _ := send(t, s, frame)
		if resp["error"] != "insufficient permissions" {
			t.Errorf("admin frame from regular = %v", resp)
		}
	}
	if env.reg.Size() != 1 {
		t.Error("denied admin actions must have no side effects")
	}
}
