package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ericghara/no-doze/internal/client"
	"github.com/ericghara/no-doze/internal/config"
	"github.com/ericghara/no-doze/internal/logger"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the inhibiting-condition checks for this session",
	Long: `Run periodic checks for the configured inhibiting conditions and report
inhibition requests to the no-dozed daemon.

The client keeps running across daemon restarts, reconnecting with backoff.
Configuration changes are picked up without a restart.

Examples:
  no-doze run                       # Uses ~/.config/no-doze/no-doze.yml
  no-doze run -c custom.yml         # Use a custom config file
  no-doze run --log-level debug`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadClientConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("error loading configuration: %w", err)
		}
		return runClient(cfg)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// runClient runs the aggregator until interrupted
func runClient(cfg *config.ClientConfig) error {
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)

	if os.Geteuid() == 0 {
		logger.Warn("Running as root; conditions should normally run in a user session")
	}

	aggregator, err := client.New(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		logger.Info("Shutdown signal received")
		cancel()
	}()

	if path, _ := resolveConfigFile(cfgFile); path != "" {
		if err := aggregator.WatchConfig(ctx, path); err != nil {
			logger.WithError(err).Warn("Config watch unavailable")
		}
	}

	if err := aggregator.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
