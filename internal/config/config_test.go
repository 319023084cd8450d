// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/delve/internal/controller"
)

// TestConfig_Default tests that Default() returns a valid config.
func TestConfig_Default(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.Stream.SummaryLength != 400 {
		t.Errorf("SummaryLength = %d, want 400", cfg.Stream.SummaryLength)
	}
	if cfg.Stream.StallTimeoutSecs != 300 {
		t.Errorf("StallTimeoutSecs = %d, want 300", cfg.Stream.StallTimeoutSecs)
	}
	if cfg.Storage.Backend != "file" {
		t.Errorf("Storage.Backend = %q, want file", cfg.Storage.Backend)
	}
}

// TestConfig_Validate tests configuration validation.
func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"valid default config", func(*Config) {}, ""},
		{"relative base url", func(c *Config) { c.Backend.BaseURL = "localhost" }, "backend.base_url"},
		{"ftp base url", func(c *Config) { c.Backend.BaseURL = "ftp://host" }, "backend.base_url"},
		{"negative rate", func(c *Config) { c.Backend.RequestsPerSecond = -1 }, "backend.requests_per_second"},
		{"zero summary", func(c *Config) { c.Stream.SummaryLength = 0 }, "stream.summary_length"},
		{"zero stall timeout", func(c *Config) { c.Stream.StallTimeoutSecs = 0 }, "stream.stall_timeout_secs"},
		{"zero step", func(c *Config) { c.Typing.Step = 0 }, "typing.step"},
		{"negative initial delay", func(c *Config) { c.Typing.InitialDelayMs = -5 }, "typing.initial_delay_ms"},
		{"zero initial delay", func(c *Config) { c.Typing.InitialDelayMs = 0 }, ""},
		{"unknown store", func(c *Config) { c.Storage.Backend = "redis" }, "storage.backend"},
		{"firestore without project", func(c *Config) { c.Storage.Backend = "firestore" }, "storage.firestore_project"},
		{"firestore with project", func(c *Config) {
			c.Storage.Backend = "firestore"
			c.Storage.FirestoreProject = "p"
		}, ""},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad glamour style", func(c *Config) { c.UI.GlamourStyle = "neon" }, "ui.glamour_style"},
		{"bad default mode", func(c *Config) { c.UI.DefaultMode = "fast" }, "ui.default_mode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.field == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			var errs ValidateErrors
			if !errors.As(err, &errs) {
				t.Fatalf("Validate() error = %v, want ValidateErrors", err)
			}
			if len(errs) != 1 || errs[0].Field != tt.field {
				t.Errorf("Validate() errors = %v, want one for %s", errs, tt.field)
			}
		})
	}
}

// TestConfig_LoadFromPathTOML tests that file values override defaults and
// omitted values keep them.
func TestConfig_LoadFromPathTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[backend]
base_url = "https://research.example.com/api"
requests_per_second = 2.5

[storage]
backend = "sqlite"
sqlite_path = "` + filepath.ToSlash(filepath.Join(dir, "s.db")) + `"

[typing]
speed_ms = 5
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}
	if cfg.Backend.BaseURL != "https://research.example.com/api" {
		t.Errorf("BaseURL = %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.RequestsPerSecond != 2.5 {
		t.Errorf("RequestsPerSecond = %v", cfg.Backend.RequestsPerSecond)
	}
	if cfg.Storage.Backend != "sqlite" || cfg.Storage.SQLitePath != filepath.ToSlash(filepath.Join(dir, "s.db")) {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.Typing.SpeedMs != 5 || cfg.Typing.InitialDelayMs != 250 {
		t.Errorf("Typing = %+v", cfg.Typing)
	}
	if cfg.Stream.SummaryLength != 400 {
		t.Errorf("SummaryLength = %d, want default", cfg.Stream.SummaryLength)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 && os.PathSeparator == '/' {
		t.Errorf("config permissions = %o, want owner-only", perm)
	}
}

// TestConfig_LoadFromPathInvalid tests that an invalid file is rejected.
func TestConfig_LoadFromPathInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[storage]\nbackend = \"tape\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := LoadFromPath(path)
	if err == nil || !strings.Contains(err.Error(), "storage.backend") {
		t.Errorf("LoadFromPath() error = %v, want storage.backend failure", err)
	}
}

// TestConfig_SaveRoundTrip tests that saved TOML and JSON load back.
func TestConfig_SaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Backend.APIKey = "secret"
	cfg.Storage.Backend = "memory"
	cfg.UI.DefaultMode = "research"

	for _, name := range []string{"config.toml", "config.json"} {
		path := filepath.Join(dir, name)
		var err error
		if strings.HasSuffix(name, ".json") {
			err = SaveJSON(cfg, path)
		} else {
			err = SaveTOML(cfg, path)
		}
		if err != nil {
			t.Fatalf("save %s: %v", name, err)
		}

		got, err := LoadFromPath(path)
		if err != nil {
			t.Fatalf("load %s: %v", name, err)
		}
		if got.Backend.APIKey != "secret" || got.Storage.Backend != "memory" || got.UI.DefaultMode != "research" {
			t.Errorf("%s round trip = %+v", name, got)
		}
	}
}

// TestConfig_EnvOverrides tests DELVE_* variables.
func TestConfig_EnvOverrides(t *testing.T) {
	t.Setenv("DELVE_BASE_URL", "https://env.example.com")
	t.Setenv("DELVE_STORE", "memory")
	t.Setenv("DELVE_LOG_LEVEL", "debug")
	t.Setenv("DELVE_API_KEY", "  ")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	if cfg.Backend.BaseURL != "https://env.example.com" {
		t.Errorf("BaseURL = %q", cfg.Backend.BaseURL)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("Storage.Backend = %q", cfg.Storage.Backend)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
	if cfg.Backend.APIKey != "" {
		t.Errorf("blank DELVE_API_KEY applied: %q", cfg.Backend.APIKey)
	}
}

// TestConfig_GetSet tests Get and Set methods with dot notation.
func TestConfig_GetSet(t *testing.T) {
	cfg := Default()

	val, err := cfg.Get("storage.backend")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if val != "file" {
		t.Errorf("Get('storage.backend') = %v, want 'file'", val)
	}

	if err := cfg.Set("stream.stall_timeout_secs", "60"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if cfg.Stream.StallTimeoutSecs != 60 {
		t.Errorf("StallTimeoutSecs = %d after Set", cfg.Stream.StallTimeoutSecs)
	}
	if err := cfg.Set("storage.watch", "false"); err != nil || cfg.Storage.Watch {
		t.Errorf("Set('storage.watch') error = %v, value = %v", err, cfg.Storage.Watch)
	}
	if err := cfg.Set("typing.step", "many"); err == nil {
		t.Error("Set() with a non-integer should fail")
	}

	for _, key := range []string{"invalid.key", "storage", "storage.backend.x", ""} {
		if _, err := cfg.Get(key); err == nil {
			t.Errorf("Get(%q) should return an error", key)
		}
	}
}

func TestGetAllKeys(t *testing.T) {
	keys := GetAllKeys()
	for _, want := range []string{"version", "backend.base_url", "storage.firestore_collection", "ui.default_mode"} {
		if !slices.Contains(keys, want) {
			t.Errorf("GetAllKeys() missing %q", want)
		}
	}
	cfg := Default()
	for _, key := range keys {
		if _, err := cfg.Get(key); err != nil {
			t.Errorf("Get(%q) error = %v", key, err)
		}
	}
}

// TestConfig_StringRedacts tests that String never prints the API key.
func TestConfig_StringRedacts(t *testing.T) {
	cfg := Default()
	cfg.Backend.APIKey = "sk-very-secret"

	out := cfg.String()
	if strings.Contains(out, "sk-very-secret") {
		t.Error("String() leaked the API key")
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Error("String() should mark the redaction")
	}
	if cfg.Backend.APIKey != "sk-very-secret" {
		t.Error("String() modified the original config")
	}
}

func TestConfig_Converters(t *testing.T) {
	cfg := Default()
	cfg.Backend.RequestTimeoutSecs = 30
	cfg.Backend.RawReplies = true
	cfg.Stream.StallTimeoutSecs = 90
	cfg.UI.DefaultMode = "research"
	cfg.Storage.Backend = "sqlite"
	cfg.Storage.SQLitePath = "/tmp/x.db"

	bc := cfg.BackendClientConfig()
	if bc.Timeout != 30*time.Second || bc.BaseURL != cfg.Backend.BaseURL {
		t.Errorf("BackendClientConfig() = %+v", bc)
	}

	so := cfg.StorageOptions()
	if so.Backend != "sqlite" || so.SQLitePath != "/tmp/x.db" {
		t.Errorf("StorageOptions() = %+v", so)
	}

	co := cfg.ControllerOptions()
	if co.DefaultMode != controller.ModeResearch {
		t.Errorf("DefaultMode = %v", co.DefaultMode)
	}
	if co.StallTimeout != 90*time.Second || !co.RawReplies {
		t.Errorf("ControllerOptions() = %+v", co)
	}
	if co.Typing.Speed != 12*time.Millisecond || co.Typing.InitialDelay != 250*time.Millisecond {
		t.Errorf("Typing = %+v", co.Typing)
	}
}
