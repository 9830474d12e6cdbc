package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteAndReadPIDFile(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "no-dozed.pid")

	if err := WritePIDFile(pidFile); err != nil {
		t.Fatalf("WritePIDFile failed: %v", err)
	}

	pid, err := ReadPIDFile(pidFile)
	if err != nil {
		t.Fatalf("ReadPIDFile failed: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("Expected PID %d, got %d", os.Getpid(), pid)
	}

	RemovePIDFile(pidFile)
	if _, err := os.Stat(pidFile); !os.IsNotExist(err) {
		t.Error("Expected PID file removed")
	}
}

func TestReadPIDFileMissing(t *testing.T) {
	if _, err := ReadPIDFile(filepath.Join(t.TempDir(), "missing.pid")); err == nil {
		t.Error("Expected error for missing PID file")
	}
}

func TestReadPIDFileInvalid(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "bad.pid")
	if err := os.WriteFile(pidFile, []byte("not-a-pid"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	if _, err := ReadPIDFile(pidFile); err == nil {
		t.Error("Expected error for malformed PID file")
	}
}
