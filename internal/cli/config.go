package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/ericghara/no-doze/internal/config"
)

// loadClientConfig resolves and loads the client configuration, then applies
// flag and environment overrides bound through viper
func loadClientConfig(configFile string) (*config.ClientConfig, error) {
	path, err := resolveConfigFile(configFile)
	if err != nil {
		return nil, err
	}

	var cfg *config.ClientConfig
	if path != "" {
		cfg, err = config.LoadClientConfig(path)
		if err != nil {
			return nil, err
		}
	} else {
		// no config file is fine; overrides and defaults carry the day
		cfg, err = config.ParseClientYAML(nil)
		if err != nil {
			return nil, err
		}
	}

	if socket := viper.GetString("socket"); socket != "" {
		cfg.SocketPath = socket
	}
	if level := viper.GetString("logging.level"); level != "" {
		cfg.Logging.Level = level
	}
	if format := viper.GetString("logging.format"); format != "" {
		cfg.Logging.Format = format
	}
	return cfg, nil
}

// resolveConfigFile returns the explicit path when given, otherwise the first
// existing file among the conventional locations. Empty means no config file.
func resolveConfigFile(configFile string) (string, error) {
	if configFile != "" {
		return configFile, nil
	}

	var candidates []string
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".config", "no-doze", "no-doze.yml"),
			filepath.Join(home, ".config", "no-doze", "no-doze.yaml"),
		)
	}
	candidates = append(candidates, "/etc/no-doze/no-doze.yml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", nil
}
