package condition

import (
	"bufio"
	"context"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/ericghara/no-doze/internal/config"
)

// remoteHost matches the "(host)" column `who` prints for remote logins
var remoteHost = regexp.MustCompile(`\(([\w.:-]+)\)\s*$`)

// SSHSession inhibits sleep while incoming ssh sessions are established.
// Only remote logins count; local terminals do not inhibit. MaxPeriods bounds
// how long an idle but connected session keeps the machine awake.
type SSHSession struct {
	period     time.Duration
	maxPeriods int
	inhibited  int

	// sessions lists remote login lines; replaced in tests
	sessions func(ctx context.Context) (string, error)
}

// NewSSHSession creates a condition watching for established ssh sessions
func NewSSHSession(cfg config.SSHCondition) *SSHSession {
	return &SSHSession{
		period:     cfg.Period,
		maxPeriods: cfg.MaxPeriods,
		sessions:   whoSessions,
	}
}

func (s *SSHSession) Name() string {
	return "ssh-session"
}

func (s *SSHSession) Period() time.Duration {
	return s.period
}

// Check reports whether any remote session is established, up to the
// configured number of consecutive inhibiting periods
func (s *SSHSession) Check(ctx context.Context) (bool, error) {
	out, err := s.sessions(ctx)
	if err != nil {
		return false, err
	}

	active := false
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		if remoteHost.MatchString(scanner.Text()) {
			active = true
			break
		}
	}

	if active {
		s.inhibited++
	} else {
		s.inhibited = 0
	}
	return s.inhibited > 0 && s.inhibited <= s.maxPeriods, nil
}

// whoSessions lists current logins via who(1)
func whoSessions(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "who").Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}
