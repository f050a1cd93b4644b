package config

import (
	"errors"
	"os"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Check defaults
	if cfg.Env != "development" {
		t.Errorf("Expected Env to be development, got %s", cfg.Env)
	}

	if cfg.API.BaseURL != "https://api.sigtech.com" {
		t.Errorf("Expected default API URL, got %s", cfg.API.BaseURL)
	}

	if cfg.API.WaitTimeout != 300*time.Second {
		t.Errorf("Expected WaitTimeout to be 300s, got %v", cfg.API.WaitTimeout)
	}

	if cfg.Platform.Workers != 8 {
		t.Errorf("Expected Workers to be 8, got %d", cfg.Platform.Workers)
	}

	if cfg.Redis.Enabled {
		t.Error("Expected Redis to be disabled by default")
	}
}

func TestLoadWithCustomValues(t *testing.T) {
	os.Setenv("ENV", "production")
	os.Setenv("SIGTECH_API_URL", "api.framework.prod.sigtech.com/")
	os.Setenv("SIGTECH_API_KEY", "secret")
	os.Setenv("SIGTECH_API_WAIT_TIMEOUT", "60")
	os.Setenv("SIGTECH_API_WAIT_TIMER", "false")
	os.Setenv("SIGTECH_UPLOAD_WORKERS", "3")

	defer func() {
		os.Unsetenv("ENV")
		os.Unsetenv("SIGTECH_API_URL")
		os.Unsetenv("SIGTECH_API_KEY")
		os.Unsetenv("SIGTECH_API_WAIT_TIMEOUT")
		os.Unsetenv("SIGTECH_API_WAIT_TIMER")
		os.Unsetenv("SIGTECH_UPLOAD_WORKERS")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.API.BaseURL != "https://api.framework.prod.sigtech.com" {
		t.Errorf("Expected normalized URL, got %s", cfg.API.BaseURL)
	}

	if cfg.API.APIKey != "secret" {
		t.Errorf("Expected APIKey to be secret, got %s", cfg.API.APIKey)
	}

	if cfg.API.WaitTimeout != time.Minute {
		t.Errorf("Expected WaitTimeout to be 1m, got %v", cfg.API.WaitTimeout)
	}

	if cfg.API.WaitTimer {
		t.Error("Expected WaitTimer to be false")
	}

	if cfg.Platform.Workers != 3 {
		t.Errorf("Expected Workers to be 3, got %d", cfg.Platform.Workers)
	}
}

func TestValidateInvalidEnv(t *testing.T) {
	os.Setenv("ENV", "invalid")
	defer os.Unsetenv("ENV")

	_, err := Load()
	if err == nil {
		t.Error("Expected error when ENV is invalid, got nil")
	}
}

func TestValidateWorkers(t *testing.T) {
	os.Setenv("SIGTECH_UPLOAD_WORKERS", "0")
	defer os.Unsetenv("SIGTECH_UPLOAD_WORKERS")

	_, err := Load()
	if err == nil {
		t.Error("Expected error when SIGTECH_UPLOAD_WORKERS is 0, got nil")
	}
}

func TestAPIConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     APIConfig
		wantErr error
	}{
		{"missing key", APIConfig{BaseURL: "https://x"}, ErrMissingAPIKey},
		{"blank key", APIConfig{BaseURL: "https://x", APIKey: "   "}, ErrMissingAPIKey},
		{"ok", APIConfig{BaseURL: "https://x", APIKey: "k"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPlatformConfigValidate(t *testing.T) {
	if err := (PlatformConfig{}).Validate(); !errors.Is(err, ErrMissingPlatformToken) {
		t.Errorf("Expected ErrMissingPlatformToken, got %v", err)
	}
	if err := (PlatformConfig{Token: "t"}).Validate(); err != nil {
		t.Errorf("Expected nil, got %v", err)
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://api.sigtech.com", "https://api.sigtech.com"},
		{"https://api.sigtech.com/", "https://api.sigtech.com"},
		{"api.sigtech.com", "https://api.sigtech.com"},
		{"http://localhost:8080", "http://localhost:8080"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := normalizeURL(tt.in); got != tt.want {
			t.Errorf("normalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGetEnvAsSeconds(t *testing.T) {
	os.Setenv("TEST_SECONDS", "45")
	defer os.Unsetenv("TEST_SECONDS")

	if got := getEnvAsSeconds("TEST_SECONDS", 10); got != 45*time.Second {
		t.Errorf("Expected 45s, got %v", got)
	}
	if got := getEnvAsSeconds("TEST_SECONDS_MISSING", 10); got != 10*time.Second {
		t.Errorf("Expected 10s, got %v", got)
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	os.Setenv("TEST_DURATION", "2h")
	defer os.Unsetenv("TEST_DURATION")

	duration := getEnvAsDuration("TEST_DURATION", "1h")
	expected := 2 * time.Hour

	if duration != expected {
		t.Errorf("Expected duration to be %v, got %v", expected, duration)
	}
}

func TestGetEnvAsFloat(t *testing.T) {
	os.Setenv("TEST_FLOAT", "2.5")
	defer os.Unsetenv("TEST_FLOAT")

	if got := getEnvAsFloat("TEST_FLOAT", 1); got != 2.5 {
		t.Errorf("Expected 2.5, got %v", got)
	}
	if got := getEnvAsFloat("TEST_FLOAT_MISSING", 1); got != 1 {
		t.Errorf("Expected 1, got %v", got)
	}
}

func TestGetEnvAsBool(t *testing.T) {
	os.Setenv("TEST_BOOL", "true")
	defer os.Unsetenv("TEST_BOOL")

	value := getEnvAsBool("TEST_BOOL", false)
	if value != true {
		t.Errorf("Expected value to be true, got %v", value)
	}
}
