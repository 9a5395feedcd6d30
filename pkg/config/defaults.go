package config

import (
	"strings"
	"time"

	"github.com/marmos91/smbconn/pkg/smbconn"
)

// ApplyDefaults replaces zero values with defaults. Load calls it after
// the file and the environment have been merged, and before Validate.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownTimeoutDefaults(cfg)
	applyMetricsDefaults(&cfg.Metrics)
	applyAdminDefaults(&cfg.Admin)
	applyTransportDefaults(&cfg.Transport)
	applyManagerDefaults(&cfg.Manager)
	for i := range cfg.Mounts {
		applyMountDefaults(&cfg.Mounts[i])
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}

	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	applyProfilingDefaults(&cfg.Profiling)
}

// Profiling defaults to the lock contention profiles alongside CPU.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}

	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"goroutines",
			"mutex_duration",
			"block_duration",
		}
	}
}

func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// applyAdminDefaults sets admin API server defaults.
func applyAdminDefaults(cfg *AdminConfig) {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.JWT.AccessTokenDuration == 0 {
		cfg.JWT.AccessTokenDuration = time.Hour
	}
}

// applyTransportDefaults sets dial and retry defaults.
func applyTransportDefaults(cfg *TransportConfig) {
	if cfg.Type == "" {
		cfg.Type = "smb2"
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	// MaxRetries of 0 is a valid explicit choice. Its default of 3 is
	// registered with viper in setupViper.
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 200 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 5 * time.Second
	}
}

// applyManagerDefaults sets connection manager defaults.
func applyManagerDefaults(cfg *ManagerConfig) {
	if cfg.TeardownTimeout == 0 {
		cfg.TeardownTimeout = smbconn.DefaultTeardownTimeout
	}
}

// applyMountDefaults fills in permission bits left unset.
func applyMountDefaults(mc *MountConfig) {
	if mc.Mode == 0 {
		mc.Mode = 0o700
	}
	if mc.ShareMode == 0 {
		mc.ShareMode = 0o755
	}
	if mc.ShareType == "" {
		mc.ShareType = "any"
	}
}

// GetDefaultConfig returns the configuration used when no file exists.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Transport: TransportConfig{
			MaxRetries: defaultMaxRetries,
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
