package condition

import (
	"fmt"

	"github.com/ericghara/no-doze/internal/config"
	"github.com/ericghara/no-doze/internal/logger"
)

// FromConfig builds the closed set of conditions enabled by the client
// configuration. Conditions with duplicate names are rejected.
func FromConfig(cfg *config.ClientConfig) ([]Condition, error) {
	var conditions []Condition
	seen := make(map[string]bool)

	add := func(c Condition) error {
		if seen[c.Name()] {
			return fmt.Errorf("condition %s registered twice", c.Name())
		}
		seen[c.Name()] = true
		conditions = append(conditions, c)
		logger.WithCondition(c.Name()).WithField("period", c.Period()).
			Info("Registered inhibiting condition")
		return nil
	}

	for _, p := range cfg.Processes {
		if err := add(NewActiveProcess(p)); err != nil {
			return nil, err
		}
	}
	if cfg.SSH.Enabled {
		if err := add(NewSSHSession(cfg.SSH)); err != nil {
			return nil, err
		}
	}
	if cfg.Plex.Enabled {
		if err := add(NewPlex(cfg.Plex)); err != nil {
			return nil, err
		}
	}
	if cfg.Qbittorrent.Downloading.Enabled {
		if err := add(NewQbittorrent(cfg.Qbittorrent, ChannelDownloading)); err != nil {
			return nil, err
		}
	}
	if cfg.Qbittorrent.Seeding.Enabled {
		if err := add(NewQbittorrent(cfg.Qbittorrent, ChannelSeeding)); err != nil {
			return nil, err
		}
	}

	return conditions, nil
}
