// no-dozed is the privileged daemon: it aggregates inhibition requests from
// client sessions and holds a systemd-logind sleep lock while any session
// wants the system awake.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ericghara/no-doze/internal/config"
	"github.com/ericghara/no-doze/internal/daemon"
	"github.com/ericghara/no-doze/internal/inhibit"
	"github.com/ericghara/no-doze/internal/logger"
	"github.com/ericghara/no-doze/internal/protocol"
	"github.com/ericghara/no-doze/internal/utils"
)

const pidFile = "/run/no-doze/no-dozed.pid"

var (
	// Version information (set during build)
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "no-dozed",
	Short: "no-dozed holds a system sleep lock while any session requests it",
	Long: `no-dozed listens on a unix socket for inhibition requests from per-user
no-doze clients. It refcounts the sessions that want the system awake and
holds a single systemd-logind block-mode sleep lock while the count is above
zero. A delay-mode watcher gives clients a last chance to object before the
system suspends.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the sleep inhibition daemon",
	Long: `Start the sleep inhibition daemon.

The daemon will:
  restrict its socket to the configured group
  track inhibition requests per client session
  hold the logind sleep lock while any session inhibits
  notify clients before suspend and after resume

Examples:
  no-dozed serve                       # Uses /etc/no-doze/no-dozed.yml
  no-dozed serve -c custom.yml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("error loading configuration: %w", err)
		}
		return serve(cfg)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("no-dozed %s\n", Version)
		fmt.Printf("Git Commit: %s\n", GitCommit)
		fmt.Printf("Build Date: %s\n", BuildDate)
		fmt.Printf("Go Version: %s\n", runtime.Version())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is /etc/no-doze/no-dozed.yml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func loadConfig(path string) (*config.DaemonConfig, error) {
	if path == "" {
		path = "/etc/no-doze/no-dozed.yml"
		if _, err := os.Stat(path); os.IsNotExist(err) {
			// run on defaults when no config file is installed
			return config.ParseDaemonYAML(nil)
		}
	}
	return config.LoadDaemonConfig(path)
}

// serve wires the lock manager, the session server and the sleep watcher
// together and runs until a shutdown signal arrives
func serve(cfg *config.DaemonConfig) error {
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)

	if os.Geteuid() != 0 {
		logger.Warn("Not running as root; the block-mode sleep lock may be refused")
	}

	if err := utils.WritePIDFile(pidFile); err != nil {
		logger.WithError(err).WithField("path", pidFile).Warn("Failed to write PID file")
	} else {
		defer utils.RemovePIDFile(pidFile)
	}

	blockLock, err := inhibit.NewLogind(cfg.Who, cfg.Why, inhibit.ModeBlock)
	if err != nil {
		return err
	}
	defer blockLock.Close()

	manager := inhibit.NewManager(blockLock, cfg.AcquireRetry)
	server := daemon.NewServer(cfg, manager)
	if err := server.Listen(); err != nil {
		return err
	}

	// sessions learn about acquisition failures so they can log locally
	manager.SetOnError(func(err error) {
		server.Broadcast(protocol.NewError(protocol.ErrKindLockAcquisition, err.Error()))
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	startWatcher(ctx, cfg, server)

	if cfg.Status.Enabled {
		status := daemon.NewStatusServer(server, cfg.Status.Listen)
		go func() {
			if err := status.Start(); err != nil {
				logger.WithError(err).Error("Status endpoint failed")
			}
		}()
		defer status.Shutdown(context.Background())
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		logger.Info("Shutdown signal received")
		cancel()
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(ctx)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			logger.WithError(err).Error("Server failed")
		}
	}

	server.Shutdown()
	logger.Info("no-dozed shutdown complete")
	return nil
}

// startWatcher hooks the pre-suspend notification up to the session server.
// The daemon keeps running without it; only last-chance checks are lost.
func startWatcher(ctx context.Context, cfg *config.DaemonConfig, server *daemon.Server) {
	signals, err := inhibit.SubscribePrepareForSleep(ctx)
	if err != nil {
		logger.WithError(err).Error("Sleep watcher unavailable, last-chance checks disabled")
		return
	}

	delayLock, err := inhibit.NewLogind(cfg.Who, "Giving sessions a last chance to inhibit sleep.", inhibit.ModeDelay)
	if err != nil {
		logger.WithError(err).Error("Sleep watcher unavailable, last-chance checks disabled")
		return
	}

	watcher := inhibit.NewWatcher(delayLock, signals,
		server.NotifyPrepareSleep, server.NotifyResume)
	go func() {
		defer delayLock.Close()
		watcher.Run(ctx)
	}()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
