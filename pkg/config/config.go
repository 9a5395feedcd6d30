package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/smbconn/pkg/identity"
)

// Config represents the smbconn configuration.
//
// This structure captures the static configuration of the daemon:
//   - Logging configuration
//   - Telemetry/tracing configuration
//   - Metrics and admin API servers
//   - Transport settings (dial timeout, retries, signing)
//   - Connection manager settings
//   - Mounts: sessions and shares to establish at start
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (SMBCONN_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Admin contains the admin API server configuration
	Admin AdminConfig `mapstructure:"admin" yaml:"admin"`

	// Transport selects and tunes the SMB transport
	Transport TransportConfig `mapstructure:"transport" yaml:"transport"`

	// Manager tunes the connection manager
	Manager ManagerConfig `mapstructure:"manager" yaml:"manager"`

	// RunAs is the local identity mounts are requested under.
	// Default: the identity of the process
	RunAs *identity.Cred `mapstructure:"run_as" yaml:"run_as,omitempty"`

	// Mounts are connected by 'smbconn serve' at start
	Mounts []MountConfig `mapstructure:"mounts" validate:"dive" yaml:"mounts,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false (opt-in for telemetry)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317" (standard OTLP gRPC port)
	Endpoint string `mapstructure:"endpoint" validate:"required_if=Enabled true" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0 (sample all)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL)
	// Default: "http://localhost:4040"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	// Default: cpu, inuse_space, goroutines, mutex_duration, block_duration.
	// Mutex and block profiles show where callers wait on session locks.
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP server are enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// AdminConfig configures the admin HTTP API.
type AdminConfig struct {
	// Enabled controls whether the admin API is served
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port of the admin API
	// Default: 8080
	Port int `mapstructure:"port" validate:"min=1,max=65535" yaml:"port"`

	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// JWT configures token issuance for the admin API
	JWT JWTConfig `mapstructure:"jwt" yaml:"jwt"`

	// Users may log in to the admin API
	Users []AdminUser `mapstructure:"users" validate:"dive" yaml:"users,omitempty"`
}

// JWTConfig configures admin API tokens.
type JWTConfig struct {
	// Secret signs tokens (HMAC-SHA256). At least 32 characters.
	// Generated by 'smbconn config init'.
	Secret string `mapstructure:"secret" validate:"omitempty,min=32" yaml:"secret"`

	// AccessTokenDuration is the token lifetime
	// Default: 1h
	AccessTokenDuration time.Duration `mapstructure:"access_token_duration" yaml:"access_token_duration"`
}

// AdminUser is an admin API account.
type AdminUser struct {
	Username string `mapstructure:"username" validate:"required" yaml:"username"`

	// PasswordHash is the bcrypt hash of the password
	// Generate with: smbconn config hash-password
	PasswordHash string `mapstructure:"password_hash" validate:"required" yaml:"password_hash"`
}

// TransportConfig selects and tunes the transport.
type TransportConfig struct {
	// Type is "smb2" (network) or "memory" (in-process, for testing)
	// Default: smb2
	Type string `mapstructure:"type" validate:"required,oneof=smb2 memory" yaml:"type"`

	// DialTimeout bounds each TCP connect attempt
	// Default: 10s
	DialTimeout time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`

	// MaxRetries is the number of dial retries after the first attempt
	// Default: 3
	MaxRetries int `mapstructure:"max_retries" validate:"gte=0" yaml:"max_retries"`

	// InitialInterval and MaxInterval bound the exponential backoff
	// between dial attempts
	InitialInterval time.Duration `mapstructure:"initial_interval" yaml:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval" yaml:"max_interval"`

	// RequireSigning refuses servers that do not sign messages
	RequireSigning bool `mapstructure:"require_signing" yaml:"require_signing"`
}

// ManagerConfig tunes the connection manager.
type ManagerConfig struct {
	// TeardownTimeout bounds the logoff and tree disconnect sent when an
	// object is torn down
	// Default: 5s
	TeardownTimeout time.Duration `mapstructure:"teardown_timeout" yaml:"teardown_timeout"`
}

const defaultMaxRetries = 3

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SMBCONN_*)
//  2. Configuration file
//  3. Default values
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages.
// It checks if the config file exists and provides user-friendly instructions if not.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  smbconn config init\n\n"+
				"Or specify a custom config file:\n"+
				"  smbconn <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  smbconn config init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the file may carry a JWT secret, password hashes and NT hashes.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: SMBCONN_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("SMBCONN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("transport.max_retries", defaultMaxRetries)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// $XDG_CONFIG_HOME/smbconn/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		octalModeDecodeHook(),
		durationDecodeHook(),
	)
}

// OctalMode is a permission mode written in octal in config files
// ("0750"). ModeExact is spelled "exact" after a pipe: "0750|exact".
type OctalMode uint32

const octalExact = 0o10000

// ParseOctalMode parses the config file notation.
func ParseOctalMode(s string) (OctalMode, error) {
	s = strings.TrimSpace(s)
	var exact bool
	if base, ok := strings.CutSuffix(s, "|exact"); ok {
		s, exact = base, true
	}
	n, err := strconv.ParseUint(strings.TrimPrefix(s, "0o"), 8, 32)
	if err != nil || n > 0o777 {
		return 0, fmt.Errorf("invalid mode %q: want octal permission bits such as 0750", s)
	}
	m := OctalMode(n)
	if exact {
		m |= octalExact
	}
	return m, nil
}

func (m OctalMode) String() string {
	if m&octalExact != 0 {
		return fmt.Sprintf("%04o|exact", uint32(m&0o777))
	}
	return fmt.Sprintf("%04o", uint32(m&0o777))
}

// MarshalYAML writes the octal notation so saved files round-trip.
func (m OctalMode) MarshalYAML() (any, error) {
	return m.String(), nil
}

// UnmarshalYAML accepts the octal notation.
func (m *OctalMode) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParseOctalMode(value.Value)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// octalModeDecodeHook converts "0750" style strings to OctalMode. Plain
// integers are taken as already decoded bits.
func octalModeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(OctalMode(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return ParseOctalMode(v)
		case int:
			return OctalMode(v), nil
		case int64:
			return OctalMode(v), nil
		case float64:
			return OctalMode(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook returns a mapstructure decode hook that converts strings
// to time.Duration. This enables config files to use human-readable durations
// like "30s", "5m", "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "smbconn")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "smbconn")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
