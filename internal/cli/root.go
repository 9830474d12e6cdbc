// Package cli implements the no-doze client command line interface.
package cli

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "no-doze",
	Short: "no-doze keeps the system awake while work is in progress",
	Long: `no-doze runs periodic checks for inhibiting conditions (active processes,
ssh sessions, media playback, torrent transfers) and asks the no-dozed daemon
to block system sleep while any of them holds.

Conditions are configured per user; the daemon aggregates requests from all
sessions and holds a single systemd-logind sleep lock while at least one
session wants the system awake.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Called once by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ~/.config/no-doze/no-doze.yml)")

	rootCmd.PersistentFlags().String("socket", "", "daemon socket path")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")

	viper.BindPFlag("socket", rootCmd.PersistentFlags().Lookup("socket"))
	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))

	viper.SetEnvPrefix("NO_DOZE")
	viper.AutomaticEnv()
}
