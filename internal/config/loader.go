package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// yamlClientConfig is the on-disk shape of the client configuration
type yamlClientConfig struct {
	Logging LogConfig `yaml:"logging"`
	General struct {
		Socket       string `yaml:"socket"`
		StartupDelay string `yaml:"startup_delay"`
		CheckTimeout string `yaml:"check_timeout"`
		Reconnect    string `yaml:"reconnect_delay"`
	} `yaml:"general"`
	FailurePolicy struct {
		RetryDelay  string `yaml:"retry_delay"`
		MaxFailures int    `yaml:"max_failures"`
	} `yaml:"failure_policy"`
	Conditions struct {
		ActiveProcess struct {
			Processes []struct {
				Name   string `yaml:"name"`
				Period string `yaml:"period"`
			} `yaml:"processes"`
		} `yaml:"active_process"`
		SSH *struct {
			Period     string `yaml:"period"`
			MaxPeriods int    `yaml:"max_periods"`
		} `yaml:"ssh"`
		Plex *struct {
			BaseURL          string `yaml:"base_url"`
			Token            string `yaml:"token"`
			Period           string `yaml:"period"`
			MaxPeriodsPaused int    `yaml:"max_periods_paused"`
		} `yaml:"plex"`
		Qbittorrent *struct {
			HostURL     string `yaml:"host_url"`
			Username    string `yaml:"username"`
			Password    string `yaml:"password"`
			Downloading *struct {
				Period       string `yaml:"period"`
				MinSpeedKBps int    `yaml:"min_speed_kbps"`
			} `yaml:"downloading"`
			Seeding *struct {
				Period       string `yaml:"period"`
				MinSpeedKBps int    `yaml:"min_speed_kbps"`
			} `yaml:"seeding"`
		} `yaml:"qbittorrent"`
	} `yaml:"conditions"`
}

// yamlDaemonConfig is the on-disk shape of the daemon configuration
type yamlDaemonConfig struct {
	Logging LogConfig `yaml:"logging"`
	Socket  struct {
		Path         string `yaml:"path"`
		Group        string `yaml:"group"`
		PingInterval string `yaml:"ping_interval"`
		MaxMissed    int    `yaml:"max_missed_pongs"`
		SeqExpiry    string `yaml:"seq_expiry"`
	} `yaml:"socket"`
	Inhibit struct {
		Who          string `yaml:"who"`
		Why          string `yaml:"why"`
		GraceWindow  string `yaml:"grace_window"`
		AcquireRetry string `yaml:"acquire_retry"`
	} `yaml:"inhibit"`
	Status struct {
		Enabled bool   `yaml:"enabled"`
		Listen  string `yaml:"listen"`
	} `yaml:"status"`
}

// LoadClientConfig loads and resolves the client configuration from a YAML file
func LoadClientConfig(filename string) (*ClientConfig, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return ParseClientYAML(content)
}

// LoadDaemonConfig loads and resolves the daemon configuration from a YAML file
func LoadDaemonConfig(filename string) (*DaemonConfig, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return ParseDaemonYAML(content)
}

// ParseClientYAML parses and validates the client YAML configuration
func ParseClientYAML(content []byte) (*ClientConfig, error) {
	var yc yamlClientConfig
	if err := yaml.Unmarshal(content, &yc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg := &ClientConfig{
		Logging:      yc.Logging,
		SocketPath:   yc.General.Socket,
		StartupDelay: parseDuration(yc.General.StartupDelay, 0),
		CheckTimeout: parseDuration(yc.General.CheckTimeout, DefaultCheckTimeout),
		Reconnect:    parseDuration(yc.General.Reconnect, DefaultReconnect),
		FailurePolicy: FailurePolicy{
			RetryDelay:  parseDuration(yc.FailurePolicy.RetryDelay, DefaultRetryDelay),
			MaxFailures: yc.FailurePolicy.MaxFailures,
		},
	}
	if cfg.SocketPath == "" {
		cfg.SocketPath = DefaultSocketPath
	}
	if cfg.FailurePolicy.MaxFailures <= 0 {
		cfg.FailurePolicy.MaxFailures = DefaultMaxFailures
	}

	for _, p := range yc.Conditions.ActiveProcess.Processes {
		if p.Name == "" {
			return nil, fmt.Errorf("active_process entry is missing a name")
		}
		cfg.Processes = append(cfg.Processes, ProcessCondition{
			Name:   p.Name,
			Period: clampPeriod(parseDuration(p.Period, DefaultPeriod)),
		})
	}

	if s := yc.Conditions.SSH; s != nil {
		cfg.SSH = SSHCondition{
			Enabled:    true,
			Period:     clampPeriod(parseDuration(s.Period, DefaultPeriod)),
			MaxPeriods: s.MaxPeriods,
		}
		if cfg.SSH.MaxPeriods <= 0 {
			cfg.SSH.MaxPeriods = int(^uint(0) >> 1)
		}
	}

	if p := yc.Conditions.Plex; p != nil {
		if p.BaseURL == "" || p.Token == "" {
			return nil, fmt.Errorf("plex condition requires base_url and token")
		}
		cfg.Plex = PlexCondition{
			Enabled:          true,
			BaseURL:          p.BaseURL,
			Token:            p.Token,
			Period:           clampPeriod(parseDuration(p.Period, DefaultPeriod)),
			MaxPeriodsPaused: p.MaxPeriodsPaused,
		}
	}

	if q := yc.Conditions.Qbittorrent; q != nil {
		if q.HostURL == "" {
			return nil, fmt.Errorf("qbittorrent condition requires host_url")
		}
		cfg.Qbittorrent = QbitCondition{
			HostURL:  q.HostURL,
			Username: q.Username,
			Password: q.Password,
		}
		if q.Downloading != nil {
			cfg.Qbittorrent.Downloading = QbitChannel{
				Enabled:      true,
				Period:       clampPeriod(parseDuration(q.Downloading.Period, DefaultPeriod)),
				MinSpeedKBps: q.Downloading.MinSpeedKBps,
			}
		}
		if q.Seeding != nil {
			cfg.Qbittorrent.Seeding = QbitChannel{
				Enabled:      true,
				Period:       clampPeriod(parseDuration(q.Seeding.Period, DefaultPeriod)),
				MinSpeedKBps: q.Seeding.MinSpeedKBps,
			}
		}
	}

	return cfg, nil
}

// ParseDaemonYAML parses and validates the daemon YAML configuration
func ParseDaemonYAML(content []byte) (*DaemonConfig, error) {
	var yc yamlDaemonConfig
	if err := yaml.Unmarshal(content, &yc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg := &DaemonConfig{
		Logging:      yc.Logging,
		SocketPath:   yc.Socket.Path,
		SocketGroup:  yc.Socket.Group,
		Who:          yc.Inhibit.Who,
		Why:          yc.Inhibit.Why,
		GraceWindow:  parseDuration(yc.Inhibit.GraceWindow, DefaultGraceWindow),
		AcquireRetry: parseDuration(yc.Inhibit.AcquireRetry, DefaultAcquireRetry),
		PingInterval: parseDuration(yc.Socket.PingInterval, DefaultPingInterval),
		MaxMissed:    yc.Socket.MaxMissed,
		SeqExpiry:    parseDuration(yc.Socket.SeqExpiry, DefaultSeqExpiry),
		Status: StatusConfig{
			Enabled: yc.Status.Enabled,
			Listen:  yc.Status.Listen,
		},
	}
	if cfg.SocketPath == "" {
		cfg.SocketPath = DefaultSocketPath
	}
	if cfg.SocketGroup == "" {
		cfg.SocketGroup = DefaultSocketGroup
	}
	if cfg.Who == "" {
		cfg.Who = DefaultInhibitWho
	}
	if cfg.Why == "" {
		cfg.Why = DefaultInhibitWhy
	}
	if cfg.MaxMissed <= 0 {
		cfg.MaxMissed = DefaultMaxMissed
	}
	if cfg.Status.Enabled && cfg.Status.Listen == "" {
		cfg.Status.Listen = "127.0.0.1:9893"
	}

	return cfg, nil
}

// parseDuration parses a duration string, falling back to a default on empty
// or invalid input
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return fallback
}

// clampPeriod enforces the minimum condition polling period
func clampPeriod(d time.Duration) time.Duration {
	if d < MinPeriod {
		return MinPeriod
	}
	return d
}
