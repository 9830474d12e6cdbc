package config

import (
	"testing"
	"time"
)

func TestParseClientYAML(t *testing.T) {
	content := []byte(`
logging:
  level: debug
  format: json
general:
  socket: /tmp/test.sock
  check_timeout: 5s
failure_policy:
  retry_delay: 10s
  max_failures: 2
conditions:
  active_process:
    processes:
      - name: ffmpeg
        period: 2m
      - name: rsync
  ssh:
    period: 5m
    max_periods: 12
  qbittorrent:
    host_url: http://localhost:8080
    downloading:
      period: 3m
      min_speed_kbps: 100
`)

	cfg, err := ParseClientYAML(content)
	if err != nil {
		t.Fatalf("ParseClientYAML failed: %v", err)
	}

	if cfg.SocketPath != "/tmp/test.sock" {
		t.Errorf("Expected socket path /tmp/test.sock, got %s", cfg.SocketPath)
	}
	if cfg.CheckTimeout != 5*time.Second {
		t.Errorf("Expected check timeout 5s, got %v", cfg.CheckTimeout)
	}
	if cfg.FailurePolicy.RetryDelay != 10*time.Second {
		t.Errorf("Expected retry delay 10s, got %v", cfg.FailurePolicy.RetryDelay)
	}
	if cfg.FailurePolicy.MaxFailures != 2 {
		t.Errorf("Expected max failures 2, got %d", cfg.FailurePolicy.MaxFailures)
	}

	if len(cfg.Processes) != 2 {
		t.Fatalf("Expected 2 process conditions, got %d", len(cfg.Processes))
	}
	if cfg.Processes[0].Name != "ffmpeg" || cfg.Processes[0].Period != 2*time.Minute {
		t.Errorf("Unexpected first process condition: %+v", cfg.Processes[0])
	}
	if cfg.Processes[1].Period != DefaultPeriod {
		t.Errorf("Expected default period for rsync, got %v", cfg.Processes[1].Period)
	}

	if !cfg.SSH.Enabled || cfg.SSH.MaxPeriods != 12 {
		t.Errorf("Unexpected ssh condition: %+v", cfg.SSH)
	}
	if cfg.Plex.Enabled {
		t.Error("Plex should be disabled when absent from config")
	}
	if !cfg.Qbittorrent.Downloading.Enabled || cfg.Qbittorrent.Seeding.Enabled {
		t.Errorf("Unexpected qbittorrent channels: %+v", cfg.Qbittorrent)
	}
}

func TestParseClientYAMLDefaults(t *testing.T) {
	cfg, err := ParseClientYAML([]byte("{}"))
	if err != nil {
		t.Fatalf("ParseClientYAML failed: %v", err)
	}
	if cfg.SocketPath != DefaultSocketPath {
		t.Errorf("Expected default socket path, got %s", cfg.SocketPath)
	}
	if cfg.FailurePolicy.MaxFailures != DefaultMaxFailures {
		t.Errorf("Expected default max failures, got %d", cfg.FailurePolicy.MaxFailures)
	}
	if cfg.CheckTimeout != DefaultCheckTimeout {
		t.Errorf("Expected default check timeout, got %v", cfg.CheckTimeout)
	}
}

func TestParseClientYAMLErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"Nameless process", "conditions:\n  active_process:\n    processes:\n      - period: 2m\n"},
		{"Plex missing token", "conditions:\n  plex:\n    base_url: http://localhost:32400\n"},
		{"Qbittorrent missing host", "conditions:\n  qbittorrent:\n    username: admin\n"},
		{"Malformed YAML", "conditions: ["},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseClientYAML([]byte(tt.content)); err == nil {
				t.Error("Expected parse error, got nil")
			}
		})
	}
}

func TestPeriodClamping(t *testing.T) {
	content := []byte(`
conditions:
  active_process:
    processes:
      - name: short
        period: 1s
`)
	cfg, err := ParseClientYAML(content)
	if err != nil {
		t.Fatalf("ParseClientYAML failed: %v", err)
	}
	if cfg.Processes[0].Period != MinPeriod {
		t.Errorf("Expected period to clamp to %v, got %v", MinPeriod, cfg.Processes[0].Period)
	}
}

func TestParseDaemonYAML(t *testing.T) {
	content := []byte(`
logging:
  level: info
socket:
  path: /tmp/nd.sock
  group: power
  ping_interval: 15s
  max_missed_pongs: 3
  seq_expiry: 30m
inhibit:
  who: test-daemon
  why: testing
  grace_window: 250ms
status:
  enabled: true
`)

	cfg, err := ParseDaemonYAML(content)
	if err != nil {
		t.Fatalf("ParseDaemonYAML failed: %v", err)
	}
	if cfg.SocketPath != "/tmp/nd.sock" || cfg.SocketGroup != "power" {
		t.Errorf("Unexpected socket config: %s %s", cfg.SocketPath, cfg.SocketGroup)
	}
	if cfg.PingInterval != 15*time.Second || cfg.MaxMissed != 3 {
		t.Errorf("Unexpected liveness config: %v %d", cfg.PingInterval, cfg.MaxMissed)
	}
	if cfg.SeqExpiry != 30*time.Minute {
		t.Errorf("Unexpected seq expiry: %v", cfg.SeqExpiry)
	}
	if cfg.Who != "test-daemon" || cfg.GraceWindow != 250*time.Millisecond {
		t.Errorf("Unexpected inhibit config: %s %v", cfg.Who, cfg.GraceWindow)
	}
	if !cfg.Status.Enabled || cfg.Status.Listen != "127.0.0.1:9893" {
		t.Errorf("Unexpected status config: %+v", cfg.Status)
	}
}

func TestParseDaemonYAMLDefaults(t *testing.T) {
	cfg, err := ParseDaemonYAML([]byte("{}"))
	if err != nil {
		t.Fatalf("ParseDaemonYAML failed: %v", err)
	}
	if cfg.SocketPath != DefaultSocketPath {
		t.Errorf("Expected default socket path, got %s", cfg.SocketPath)
	}
	if cfg.SocketGroup != DefaultSocketGroup {
		t.Errorf("Expected default socket group, got %s", cfg.SocketGroup)
	}
	if cfg.Who != DefaultInhibitWho || cfg.Why != DefaultInhibitWhy {
		t.Errorf("Expected default inhibit identity, got %s / %s", cfg.Who, cfg.Why)
	}
	if cfg.GraceWindow != DefaultGraceWindow {
		t.Errorf("Expected default grace window, got %v", cfg.GraceWindow)
	}
	if cfg.SeqExpiry != DefaultSeqExpiry {
		t.Errorf("Expected default seq expiry, got %v", cfg.SeqExpiry)
	}
	if cfg.Status.Enabled {
		t.Error("Status endpoint should default to disabled")
	}
}
