// Package utils holds small helpers shared by the daemon and client.
package utils

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// WritePIDFile writes the current process PID to a file
func WritePIDFile(pidFile string) error {
	pid := os.Getpid()
	return os.WriteFile(pidFile, []byte(strconv.Itoa(pid)), 0644)
}

// RemovePIDFile removes the PID file
func RemovePIDFile(pidFile string) {
	os.Remove(pidFile)
}

// ReadPIDFile returns the PID recorded in the file
func ReadPIDFile(pidFile string) (int, error) {
	pidData, err := os.ReadFile(pidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("no-dozed is not running (PID file not found)")
		}
		return 0, fmt.Errorf("failed to read PID file: %v", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(pidData)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in file: %v", err)
	}
	return pid, nil
}
