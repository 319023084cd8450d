// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/delve/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete delve configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Research service connection
	Backend BackendConfig `toml:"backend" json:"backend"`

	// Request lifecycle
	Stream StreamConfig `toml:"stream" json:"stream"`

	// Reply reveal animation
	Typing TypingConfig `toml:"typing" json:"typing"`

	// Session persistence
	Storage StorageConfig `toml:"storage" json:"storage"`

	// Structured logging
	Log LogConfig `toml:"log" json:"log"`

	// Terminal UI
	UI UIConfig `toml:"ui" json:"ui"`
}

// BackendConfig contains research service settings.
type BackendConfig struct {
	// BaseURL is the root of the research service API
	BaseURL string `toml:"base_url" json:"base_url"`
	// APIKey is sent as a bearer token when set
	APIKey string `toml:"api_key" json:"api_key"`
	// RequestTimeoutSecs bounds single-shot requests. Streams are not bounded.
	RequestTimeoutSecs int `toml:"request_timeout_secs" json:"request_timeout_secs"`
	// RequestsPerSecond paces outgoing requests (0 = unlimited)
	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second"`
	// Burst is the pacing burst size
	Burst int `toml:"burst" json:"burst"`
	// RawReplies asks the service for unformatted replies
	RawReplies bool `toml:"raw_replies" json:"raw_replies"`
}

// StreamConfig contains request lifecycle settings.
type StreamConfig struct {
	// SummaryLength is the rune length of a research answer summary
	SummaryLength int `toml:"summary_length" json:"summary_length"`
	// StallTimeoutSecs fails a request that makes no progress
	StallTimeoutSecs int `toml:"stall_timeout_secs" json:"stall_timeout_secs"`
}

// TypingConfig contains reveal animation settings.
type TypingConfig struct {
	SpeedMs        int `toml:"speed_ms" json:"speed_ms"`
	InitialDelayMs int `toml:"initial_delay_ms" json:"initial_delay_ms"`
	// Step is the number of grapheme clusters revealed per frame
	Step int `toml:"step" json:"step"`
}

// StorageConfig contains session store settings.
type StorageConfig struct {
	// Backend is one of "file", "sqlite", "firestore", "memory"
	Backend string `toml:"backend" json:"backend"`
	// Dir holds one JSON document per session (file backend)
	Dir string `toml:"dir" json:"dir"`
	// MaxSessions caps the file backend (0 = default)
	MaxSessions int `toml:"max_sessions" json:"max_sessions"`
	// SQLitePath is the database file (sqlite backend)
	SQLitePath string `toml:"sqlite_path" json:"sqlite_path"`
	// FirestoreProject is the Google Cloud project (firestore backend)
	FirestoreProject string `toml:"firestore_project" json:"firestore_project"`
	// FirestoreCollection holds the session documents
	FirestoreCollection string `toml:"firestore_collection" json:"firestore_collection"`
	// Watch refreshes the session list when another process writes
	Watch bool `toml:"watch" json:"watch"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is one of "debug", "info", "warn", "error"
	Level string `toml:"level" json:"level"`
	// File receives log output (empty = stderr)
	File string `toml:"file" json:"file"`
	// Development enables human-readable output and DPanic panics
	Development bool `toml:"development" json:"development"`
}

// UIConfig contains UI preferences.
type UIConfig struct {
	// GlamourStyle is the markdown style: "auto", "dark", "light", "notty"
	GlamourStyle string `toml:"glamour_style" json:"glamour_style"`
	// DefaultMode is "chat" or "research"
	DefaultMode string `toml:"default_mode" json:"default_mode"`
	// ShowStageLog lists every stage of the current request
	ShowStageLog bool `toml:"show_stage_log" json:"show_stage_log"`
}

// Allowed values for enumerated settings.
var (
	validStorageBackends = []string{"file", "sqlite", "firestore", "memory"}
	validLogLevels       = []string{"debug", "info", "warn", "error"}
	validGlamourStyles   = []string{"auto", "dark", "light", "notty"}
	validModes           = []string{"chat", "research"}
)

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a new Config with default values.
func Default() *Config {
	return &Config{
		Version: "1",
		Backend: BackendConfig{
			BaseURL:            "http://localhost:8080",
			RequestTimeoutSecs: 300,
			RequestsPerSecond:  0,
			Burst:              1,
		},
		Stream: StreamConfig{
			SummaryLength:    400,
			StallTimeoutSecs: 300,
		},
		Typing: TypingConfig{
			SpeedMs:        12,
			InitialDelayMs: 250,
			Step:           1,
		},
		Storage: StorageConfig{
			Backend:             "file",
			FirestoreCollection: "sessions",
			Watch:               true,
		},
		Log: LogConfig{
			Level: "info",
		},
		UI: UIConfig{
			GlamourStyle: "auto",
			DefaultMode:  "chat",
			ShowStageLog: true,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the delve configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".delve"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ensureSecurePermissions restricts a config file to its owner, since it may
// hold an API key.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode&0077 != 0 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last. A file that fails to parse is
// reported alongside a usable default configuration.
func Load() (*Config, error) {
	var loadErr error

	if path, err := ConfigPathTOML(); err == nil && fileExists(path) {
		cfg, err := LoadFromPath(path)
		if err == nil {
			return cfg, nil
		}
		loadErr = err
	} else if path, err := ConfigPathJSON(); err == nil && fileExists(path) {
		cfg, err := LoadFromPath(path)
		if err == nil {
			return cfg, nil
		}
		loadErr = err
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, loadErr
}

// LoadTOML decodes a TOML file over cfg.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		fmt.Fprintf(os.Stderr, "Warning: unknown config keys in %s: %s\n", path, strings.Join(keys, ", "))
	}
	return nil
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadFromPath loads configuration from a specific file path with full
// validation. Values missing from the file keep their defaults.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration to a TOML file readable only by its
// owner.
func SaveTOML(cfg *Config, path string) error {
	var buf strings.Builder
	buf.WriteString("# delve configuration file\n")
	buf.WriteString("# Generated by delve - edit with care\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, []byte(buf.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON writes the configuration to a JSON file readable only by its
// owner.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Backend
	if u, err := url.Parse(c.Backend.BaseURL); err != nil || u.Host == "" {
		add("backend.base_url", "must be an absolute URL, got %q", c.Backend.BaseURL)
	} else if u.Scheme != "http" && u.Scheme != "https" {
		add("backend.base_url", "scheme must be http or https, got %q", u.Scheme)
	}
	if c.Backend.RequestTimeoutSecs < 0 {
		add("backend.request_timeout_secs", "must not be negative")
	}
	if c.Backend.RequestsPerSecond < 0 {
		add("backend.requests_per_second", "must not be negative")
	}
	if c.Backend.Burst < 0 {
		add("backend.burst", "must not be negative")
	}

	// Stream
	if c.Stream.SummaryLength <= 0 {
		add("stream.summary_length", "must be positive")
	}
	if c.Stream.StallTimeoutSecs <= 0 {
		add("stream.stall_timeout_secs", "must be positive")
	}

	// Typing
	if c.Typing.SpeedMs <= 0 {
		add("typing.speed_ms", "must be positive")
	}
	if c.Typing.InitialDelayMs < 0 {
		add("typing.initial_delay_ms", "must not be negative")
	}
	if c.Typing.Step < 1 {
		add("typing.step", "must be at least 1")
	}

	// Storage
	if !slices.Contains(validStorageBackends, c.Storage.Backend) {
		add("storage.backend", "must be one of %s, got %q", strings.Join(validStorageBackends, ", "), c.Storage.Backend)
	}
	if c.Storage.Backend == "firestore" && c.Storage.FirestoreProject == "" {
		add("storage.firestore_project", "is required for the firestore backend")
	}
	if c.Storage.MaxSessions < 0 {
		add("storage.max_sessions", "must not be negative")
	}

	// Log
	if !slices.Contains(validLogLevels, c.Log.Level) {
		add("log.level", "must be one of %s, got %q", strings.Join(validLogLevels, ", "), c.Log.Level)
	}

	// UI
	if !slices.Contains(validGlamourStyles, c.UI.GlamourStyle) {
		add("ui.glamour_style", "must be one of %s, got %q", strings.Join(validGlamourStyles, ", "), c.UI.GlamourStyle)
	}
	if !slices.Contains(validModes, c.UI.DefaultMode) {
		add("ui.default_mode", "must be chat or research, got %q", c.UI.DefaultMode)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills empty values and resolves paths under the config
// directory.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = defaults.Backend.BaseURL
	}
	if c.Stream.SummaryLength == 0 {
		c.Stream.SummaryLength = defaults.Stream.SummaryLength
	}
	if c.Stream.StallTimeoutSecs == 0 {
		c.Stream.StallTimeoutSecs = defaults.Stream.StallTimeoutSecs
	}
	if c.Typing.SpeedMs == 0 {
		c.Typing.SpeedMs = defaults.Typing.SpeedMs
	}
	if c.Typing.Step == 0 {
		c.Typing.Step = defaults.Typing.Step
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = defaults.Storage.Backend
	}
	if c.Storage.FirestoreCollection == "" {
		c.Storage.FirestoreCollection = defaults.Storage.FirestoreCollection
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	c.Log.Level = strings.ToLower(c.Log.Level)
	if c.UI.GlamourStyle == "" {
		c.UI.GlamourStyle = defaults.UI.GlamourStyle
	}
	if c.UI.DefaultMode == "" {
		c.UI.DefaultMode = defaults.UI.DefaultMode
	}

	dir, err := ConfigDir()
	if err != nil {
		return
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = filepath.Join(dir, "sessions")
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = filepath.Join(dir, "sessions.db")
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - DELVE_BASE_URL: overrides backend.base_url
//   - DELVE_API_KEY: overrides backend.api_key
//   - DELVE_STORE: overrides storage.backend
//   - DELVE_STORE_DIR: overrides storage.dir
//   - DELVE_SQLITE_PATH: overrides storage.sqlite_path
//   - DELVE_FIRESTORE_PROJECT: overrides storage.firestore_project
//   - DELVE_LOG_LEVEL: overrides log.level
//   - DELVE_LOG_FILE: overrides log.file
//   - DELVE_MODE: overrides ui.default_mode
func (c *Config) ApplyEnvOverrides() {
	overrides := []struct {
		env    string
		target *string
	}{
		{"DELVE_BASE_URL", &c.Backend.BaseURL},
		{"DELVE_API_KEY", &c.Backend.APIKey},
		{"DELVE_STORE", &c.Storage.Backend},
		{"DELVE_STORE_DIR", &c.Storage.Dir},
		{"DELVE_SQLITE_PATH", &c.Storage.SQLitePath},
		{"DELVE_FIRESTORE_PROJECT", &c.Storage.FirestoreProject},
		{"DELVE_LOG_LEVEL", &c.Log.Level},
		{"DELVE_LOG_FILE", &c.Log.File},
		{"DELVE_MODE", &c.UI.DefaultMode},
	}
	for _, o := range overrides {
		if v := strings.TrimSpace(os.Getenv(o.env)); v != "" {
			*o.target = v
		}
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "storage.backend").
func (c *Config) Get(key string) (any, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g., "storage.backend").
// String values are converted to the field's type.
func (c *Config) Set(key string, value any) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

// lookup finds the field for a dotted key by its toml tag.
func (c *Config) lookup(key string) (reflect.Value, error) {
	if strings.TrimSpace(key) == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field, ok := fieldByTag(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct {
				return reflect.Value{}, fmt.Errorf("field '%s' is a section", key)
			}
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if tomlName(t.Field(i)) == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func tomlName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
	return name
}

// setFieldValue sets a reflect.Value from a value with type conversion.
func setFieldValue(field reflect.Value, value any) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %w", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %w", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			boolVal, err := strconv.ParseBool(strVal)
			if err != nil {
				return fmt.Errorf("invalid boolean value: %w", err)
			}
			field.SetBool(boolVal)
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) && val.Kind() != reflect.String {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	var keys []string
	var walk func(t reflect.Type, prefix string)
	walk = func(t reflect.Type, prefix string) {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			name := prefix + tomlName(f)
			if f.Type.Kind() == reflect.Struct {
				walk(f.Type, name+".")
				continue
			}
			keys = append(keys, name)
		}
	}
	walk(reflect.TypeOf(Config{}), "")
	return keys
}

// =============================================================================
// HELPERS
// =============================================================================

// Clone creates a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns the config as JSON with secrets redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Backend.APIKey != "" {
		safe.Backend.APIKey = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}
