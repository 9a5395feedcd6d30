package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/marmos91/smbconn/cmd/smbconn/cmdutil"
	"github.com/marmos91/smbconn/internal/logger"
	"github.com/marmos91/smbconn/internal/telemetry"
	"github.com/marmos91/smbconn/pkg/adminapi"
	"github.com/marmos91/smbconn/pkg/config"
	connerrors "github.com/marmos91/smbconn/pkg/conn/errors"
	"github.com/marmos91/smbconn/pkg/identity"
	"github.com/marmos91/smbconn/pkg/metrics"
	"github.com/marmos91/smbconn/pkg/smbconn"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the connection manager",
	Long: `Run the connection manager in the foreground.

Every mount in the configuration is connected at start and kept
referenced until shutdown. The admin API and the metrics endpoint are
started when enabled.

Examples:
  # Serve with the default config location
  smbconn serve

  # Serve with a custom config
  smbconn serve --config /etc/smbconn/config.yaml

  # Override settings from the environment
  SMBCONN_LOGGING_LEVEL=DEBUG smbconn serve`,
	RunE: runServe,
}

// mount is a configured session, and share, referenced while serving.
type mount struct {
	name    string
	session *smbconn.Session
	share   *smbconn.Share
}

func (m *mount) release() {
	if m.share != nil {
		if err := m.share.Rele(); err != nil {
			logger.Warn("Share release failed", "mount", m.name, logger.Err(err))
		}
	}
	if err := m.session.Rele(); err != nil {
		logger.Warn("Session release failed", "mount", m.name, logger.Err(err))
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	configFile := cmdutil.Flags.ConfigFile

	cfg, err := config.MustLoad(configFile)
	if err != nil {
		return err
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "smbconn",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "smbconn",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	logger.Info("Configuration loaded", "source", getConfigSource(configFile))
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}
	if cfg.Telemetry.Profiling.Enabled {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint, "profile_types", cfg.Telemetry.Profiling.ProfileTypes)
	}

	// Metrics first so the manager picks up its collectors.
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	mgr, err := newManager(cfg)
	if err != nil {
		return err
	}
	cred, err := runAs(cfg)
	if err != nil {
		return err
	}
	logger.Info("Connection manager ready", "transport", cfg.Transport.Type, "run_as", cred.String())

	mounts, err := connectMounts(ctx, mgr, cred, cfg.Mounts)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Enabled {
		ms := metrics.NewServer(cfg.Metrics.Port)
		g.Go(func() error { return ms.Start(gctx) })
	} else {
		logger.Info("Metrics collection disabled")
	}
	if cfg.Admin.Enabled {
		as, err := adminapi.NewServer(cfg.Admin, mgr)
		if err != nil {
			releaseMounts(mounts)
			return err
		}
		g.Go(func() error { return as.Start(gctx) })
	} else {
		logger.Info("Admin API disabled")
	}

	if err := watchLogLevel(gctx, g, configFile); err != nil {
		logger.Warn("Config reload disabled", logger.Err(err))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("smbconn is running. Press Ctrl+C to stop.", "mounts", len(mounts))

	var serveErr error
	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown")
	case <-gctx.Done():
		// A server failed. Wait below collects its error.
	}
	cancel()
	if err := g.Wait(); err != nil {
		logger.Error("Server error", logger.Err(err))
		serveErr = err
	}

	releaseMounts(mounts)
	if err := shutdownManager(mgr, cfg); err != nil {
		return errors.Join(serveErr, err)
	}
	logger.Info("smbconn stopped")
	return serveErr
}

// watchLogLevel applies logging.level changes in the config file while
// serving. Other settings take effect on restart.
func watchLogLevel(ctx context.Context, g *errgroup.Group, configFile string) error {
	if configFile == "" {
		configFile = config.GetDefaultConfigPath()
	}
	w, err := config.NewWatcher(configFile)
	if err != nil {
		return err
	}
	g.Go(func() error {
		return w.Run(ctx, func(cfg *config.Config) {
			if logger.GetLevel().String() == strings.ToUpper(cfg.Logging.Level) {
				return
			}
			logger.SetLevel(cfg.Logging.Level)
			logger.Info("Log level changed", "level", cfg.Logging.Level)
		}, func(err error) {
			logger.Warn("Config reload failed", logger.Err(err))
		})
	})
	return nil
}

// connectMounts establishes every configured mount. On failure the
// mounts connected so far are released again.
func connectMounts(ctx context.Context, mgr *smbconn.Manager, cred identity.Cred, cfgs []config.MountConfig) ([]*mount, error) {
	mounts := make([]*mount, 0, len(cfgs))
	for i := range cfgs {
		mc := &cfgs[i]
		spec, shareSpec, err := mc.Specs()
		if err != nil {
			releaseMounts(mounts)
			return nil, err
		}

		sess, share, err := mgr.LookupOrCreate(ctx, cred, spec, shareSpec)
		if err != nil {
			releaseMounts(mounts)
			return nil, fmt.Errorf("mount %s: %w", mc.Name, err)
		}
		mounts = append(mounts, &mount{name: mc.Name, session: sess, share: share})
		logger.Info("Mount connected", "mount", mc.Name, logger.Server(mc.Server), logger.SessionID(sess.ID()), logger.Share(mc.Share))
	}
	return mounts, nil
}

func releaseMounts(mounts []*mount) {
	for i := len(mounts) - 1; i >= 0; i-- {
		mounts[i].release()
	}
}

// shutdownManager stops the manager, forcing it when callers still hold
// references.
func shutdownManager(mgr *smbconn.Manager, cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	err := mgr.Shutdown(ctx, false)
	if connerrors.CodeOf(err) != connerrors.ErrBusy {
		return err
	}
	logger.Warn("Sessions still referenced, forcing shutdown", logger.Err(err))
	return mgr.Shutdown(ctx, true)
}
