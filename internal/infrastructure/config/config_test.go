package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeConfig writes a temporary config file and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

const validConfig = `
server:
  port: 9002
security:
  api_keys:
    - key: "admin-api-key-12345678901234567890123456789012"
      role: admin
    - key: "test-api-key-12345678901234567890123456789012"
      role: regular
      user_id: test_user
      permissions: [WRITE_SENSOR]
`

func TestLoad_Valid(t *testing.T) {
	path := writeConfig(t, validConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 9002 {
		t.Errorf("port = %d, want 9002", cfg.Server.Port)
	}
	if len(cfg.Security.APIKeys) != 2 {
		t.Fatalf("api_keys = %d entries, want 2", len(cfg.Security.APIKeys))
	}
	if cfg.Security.APIKeys[0].Role != "admin" {
		t.Errorf("first key role = %q, want admin", cfg.Security.APIKeys[0].Role)
	}
	if cfg.Security.APIKeys[1].UserID != "test_user" {
		t.Errorf("second key user_id = %q, want test_user", cfg.Security.APIKeys[1].UserID)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, validConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Security.RateLimit.MaxRequests != 100 {
		t.Errorf("default max_requests = %d, want 100", cfg.Security.RateLimit.MaxRequests)
	}
	if cfg.Security.RateLimit.WindowSeconds != 60 {
		t.Errorf("default window_seconds = %d, want 60", cfg.Security.RateLimit.WindowSeconds)
	}
	if cfg.WebSocket.Path != "/ws" {
		t.Errorf("default websocket path = %q, want /ws", cfg.WebSocket.Path)
	}
	if !cfg.Security.DoSProtection.Enabled {
		t.Error("dos_protection should be enabled by default")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Load() should fail for missing file")
	}
}

func TestValidate_NoAPIKeys(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9002\n")

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() should fail without API keys")
	}
	if !strings.Contains(err.Error(), "api_keys") {
		t.Errorf("error should mention api_keys, got: %v", err)
	}
}

func TestValidate_ShortAPIKey(t *testing.T) {
	path := writeConfig(t, `
security:
  api_keys:
    - key: "too-short"
      role: admin
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() should fail for short API key")
	}
	if !strings.Contains(err.Error(), "32 characters") {
		t.Errorf("error should mention minimum length, got: %v", err)
	}
}

func TestValidate_RegularKeyWithoutUserID(t *testing.T) {
	path := writeConfig(t, `
security:
  api_keys:
    - key: "test-api-key-12345678901234567890123456789012"
      role: regular
`)

	if _, err := Load(path); err == nil {
		t.Fatal("Load() should fail for regular key without user_id")
	}
}

func TestValidate_BadRole(t *testing.T) {
	path := writeConfig(t, `
security:
  api_keys:
    - key: "test-api-key-12345678901234567890123456789012"
      role: superuser
`)

	if _, err := Load(path); err == nil {
		t.Fatal("Load() should fail for unknown role")
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, validConfig)

	t.Setenv("SENSORGATE_DATABASE_PATH", "/tmp/override.db")
	t.Setenv("SENSORGATE_SERVER_PORT", "9100")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Database.Path != "/tmp/override.db" {
		t.Errorf("database path = %q, want env override", cfg.Database.Path)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("server port = %d, want 9100", cfg.Server.Port)
	}
}

func TestEnvOverride_AdminKey(t *testing.T) {
	path := writeConfig(t, validConfig)

	t.Setenv("SENSORGATE_ADMIN_API_KEY", "env-admin-key-123456789012345678901234567890")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	found := false
	for _, entry := range cfg.Security.APIKeys {
		if entry.Key == "env-admin-key-123456789012345678901234567890" && entry.Role == "admin" {
			found = true
		}
	}
	if !found {
		t.Error("admin key from environment should be appended to api_keys")
	}
}
