package condition

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ericghara/no-doze/internal/config"
)

// ActiveProcess inhibits sleep while a process with the configured name is
// running. Process names are matched against /proc/<pid>/comm, so names
// longer than the kernel's 15-character comm limit are truncated to match.
type ActiveProcess struct {
	name    string
	process string
	period  time.Duration
	procDir string
}

// NewActiveProcess creates a condition watching for the named process
func NewActiveProcess(cfg config.ProcessCondition) *ActiveProcess {
	process := cfg.Name
	// comm values are truncated by the kernel
	if len(process) > 15 {
		process = process[:15]
	}
	return &ActiveProcess{
		name:    fmt.Sprintf("active-process/%s", cfg.Name),
		process: process,
		period:  cfg.Period,
		procDir: "/proc",
	}
}

func (a *ActiveProcess) Name() string {
	return a.name
}

func (a *ActiveProcess) Period() time.Duration {
	return a.period
}

// Check scans the process table for a matching comm entry
func (a *ActiveProcess) Check(ctx context.Context) (bool, error) {
	entries, err := os.ReadDir(a.procDir)
	if err != nil {
		return false, err
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if !entry.IsDir() || !isNumeric(entry.Name()) {
			continue
		}
		comm, err := os.ReadFile(filepath.Join(a.procDir, entry.Name(), "comm"))
		if err != nil {
			// process exited mid-scan
			continue
		}
		if strings.TrimSpace(string(comm)) == a.process {
			return true, nil
		}
	}
	return false, nil
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
