package commands

import (
	"fmt"

	"github.com/marmos91/smbconn/internal/logger"
	"github.com/marmos91/smbconn/pkg/config"
	"github.com/marmos91/smbconn/pkg/identity"
	"github.com/marmos91/smbconn/pkg/metrics"
	"github.com/marmos91/smbconn/pkg/smbconn"
	"github.com/marmos91/smbconn/pkg/transport"
	"github.com/marmos91/smbconn/pkg/transport/memory"
	"github.com/marmos91/smbconn/pkg/transport/smb2"

	// Import prometheus metrics to register init() functions
	_ "github.com/marmos91/smbconn/pkg/metrics/prometheus"
)

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// newTransport builds the transport selected by the configuration.
func newTransport(cfg config.TransportConfig) (transport.Transport, error) {
	switch cfg.Type {
	case "memory":
		return memory.New(), nil
	case "smb2", "":
		return smb2.New(smb2.Config{
			DialTimeout:     cfg.DialTimeout,
			MaxRetries:      uint64(cfg.MaxRetries),
			InitialInterval: cfg.InitialInterval,
			MaxInterval:     cfg.MaxInterval,
			RequireSigning:  cfg.RequireSigning,
		}), nil
	default:
		return nil, fmt.Errorf("unknown transport type %q", cfg.Type)
	}
}

// newManager builds the connection manager. Metrics are attached when
// the registry has been initialized.
func newManager(cfg *config.Config) (*smbconn.Manager, error) {
	tr, err := newTransport(cfg.Transport)
	if err != nil {
		return nil, err
	}
	opts := []smbconn.Option{smbconn.WithTeardownTimeout(cfg.Manager.TeardownTimeout)}
	if m := metrics.NewConnMetrics(); m != nil {
		opts = append(opts, smbconn.WithMetrics(m))
	}
	return smbconn.NewManager(tr, opts...), nil
}

// runAs returns the identity requests are made under.
func runAs(cfg *config.Config) (identity.Cred, error) {
	if cfg.RunAs != nil {
		return *cfg.RunAs, nil
	}
	cred, err := identity.FromProcess()
	if err != nil {
		return identity.Cred{}, fmt.Errorf("%w (set run_as in the config file)", err)
	}
	return cred, nil
}

// getConfigSource returns a description of where the config was loaded from
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
