package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const validYAML = `
server:
  host: "0.0.0.0"
  port: 8080
database:
  host: "localhost"
  port: 5432
  name: "sessiond"
  user: "sessiond"
  password: "secret"
  sslmode: "disable"
auth:
  api_key: "test-key-123"
session:
  debounce_ms: 1500
  retry_backoff_ms: 5000
  init_timeout_ms: 5000
  min_dirty: 2
  timer_state_dir: "/var/lib/sessiond"
`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestLoadValid verifies that a well-formed YAML config loads with all
// fields populated.
func TestLoadValid(t *testing.T) {
	cfg, err := Load(writeTemp(t, validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("server.host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("server.port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Name != "sessiond" {
		t.Errorf("database.name = %q, want %q", cfg.Database.Name, "sessiond")
	}
	if cfg.Auth.APIKey != "test-key-123" {
		t.Errorf("auth.api_key = %q, want %q", cfg.Auth.APIKey, "test-key-123")
	}
	if got := cfg.Session.Debounce(); got != 1500*time.Millisecond {
		t.Errorf("session debounce = %v, want 1.5s", got)
	}
	if got := cfg.Session.InitTimeout(); got != 5*time.Second {
		t.Errorf("session init timeout = %v, want 5s", got)
	}
	if cfg.Session.MinDirty != 2 {
		t.Errorf("session.min_dirty = %d, want 2", cfg.Session.MinDirty)
	}
}

// TestEnvOverride verifies that SESSIOND_ env vars take precedence over
// YAML values.
func TestEnvOverride(t *testing.T) {
	t.Setenv("SESSIOND_DB_HOST", "db.internal")
	t.Setenv("SESSIOND_SERVER_PORT", "9999")
	t.Setenv("SESSIOND_TIMER_STATE_DIR", "/tmp/timers")

	cfg, err := Load(writeTemp(t, validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Host != "db.internal" {
		t.Errorf("database.host = %q, want env override", cfg.Database.Host)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("server.port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Session.TimerStateDir != "/tmp/timers" {
		t.Errorf("timer_state_dir = %q, want env override", cfg.Session.TimerStateDir)
	}
}

// TestValidation verifies required fields are enforced.
func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing server port", `
database: {host: h, port: 5432, name: n, user: u}
auth: {api_key: k}
`},
		{"missing db host", `
server: {port: 8080}
database: {port: 5432, name: n, user: u}
auth: {api_key: k}
`},
		{"missing api key", `
server: {port: 8080}
database: {host: h, port: 5432, name: n, user: u}
`},
		{"negative debounce", `
server: {port: 8080}
database: {host: h, port: 5432, name: n, user: u}
auth: {api_key: k}
session: {debounce_ms: -1}
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeTemp(t, tt.yaml)); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

// TestDSN verifies connection string assembly and the sslmode default.
func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "localhost", Port: 5432, Name: "sessiond", User: "u", Password: "p"}
	want := "postgres://u:p@localhost:5432/sessiond?sslmode=disable"
	if got := d.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
