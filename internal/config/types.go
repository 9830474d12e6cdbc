package config

import (
	"time"
)

// Constants for configuration defaults and limits
const (
	// Socket defaults
	DefaultSocketPath  = "/run/no-doze/no-dozed.sock"
	DefaultSocketGroup = "no-doze"
	DefaultSocketPerms = 0o660

	// Liveness
	DefaultPingInterval = 30 * time.Second
	DefaultMaxMissed    = 2
	DefaultSeqExpiry    = 1 * time.Hour

	// Inhibition
	DefaultInhibitWho   = "no-dozed"
	DefaultInhibitWhy   = "A monitored process or event is in progress."
	DefaultGraceWindow  = 500 * time.Millisecond
	DefaultAcquireRetry = 2 * time.Second

	// Client scheduling
	DefaultCheckTimeout = 10 * time.Second
	DefaultRetryDelay   = 30 * time.Second
	DefaultMaxFailures  = 3
	DefaultReconnect    = 1 * time.Second
	MaxReconnectDelay   = 30 * time.Second

	// Condition periods
	DefaultPeriod = 5 * time.Minute
	MinPeriod     = 5 * time.Second
)

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // "text" or "json"
}

// FailurePolicy controls how a misbehaving condition check is retried and
// eventually disabled
type FailurePolicy struct {
	RetryDelay  time.Duration
	MaxFailures int
}

// ProcessCondition names a process whose presence inhibits sleep
type ProcessCondition struct {
	Name   string
	Period time.Duration
}

// SSHCondition inhibits sleep while incoming ssh sessions are established
type SSHCondition struct {
	Enabled    bool
	Period     time.Duration
	MaxPeriods int
}

// PlexCondition inhibits sleep while the Plex server reports active playback
type PlexCondition struct {
	Enabled          bool
	BaseURL          string
	Token            string
	Period           time.Duration
	MaxPeriodsPaused int
}

// QbitChannel configures one transfer direction of the qBittorrent condition
type QbitChannel struct {
	Enabled      bool
	Period       time.Duration
	MinSpeedKBps int
}

// QbitCondition inhibits sleep while qBittorrent transfers exceed a rate
// threshold
type QbitCondition struct {
	HostURL     string
	Username    string
	Password    string
	Downloading QbitChannel
	Seeding     QbitChannel
}

// ClientConfig is the resolved configuration for the per-user client
type ClientConfig struct {
	Logging       LogConfig
	SocketPath    string
	StartupDelay  time.Duration
	CheckTimeout  time.Duration
	Reconnect     time.Duration
	FailurePolicy FailurePolicy

	Processes   []ProcessCondition
	SSH         SSHCondition
	Plex        PlexCondition
	Qbittorrent QbitCondition
}

// StatusConfig configures the daemon's optional read-only status endpoint
type StatusConfig struct {
	Enabled bool
	Listen  string
}

// DaemonConfig is the resolved configuration for the privileged daemon
type DaemonConfig struct {
	Logging      LogConfig
	SocketPath   string
	SocketGroup  string
	Who          string
	Why          string
	GraceWindow  time.Duration
	AcquireRetry time.Duration
	PingInterval time.Duration
	MaxMissed    int
	SeqExpiry    time.Duration
	Status       StatusConfig
}
