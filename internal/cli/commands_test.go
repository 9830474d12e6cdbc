package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestRootCommand(t *testing.T) {
	// completion and help are added automatically by cobra
	expectedCommands := []string{"run", "version"}

	actualCommands := []string{}
	for _, cmd := range rootCmd.Commands() {
		actualCommands = append(actualCommands, cmd.Name())
	}

	for _, expected := range expectedCommands {
		found := false
		for _, actual := range actualCommands {
			if actual == expected {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected command '%s' not found in root command. Available: %v", expected, actualCommands)
		}
	}
}

func TestRunCommandFlags(t *testing.T) {
	expectedFlags := []string{
		"config",
		"socket",
		"log-level",
		"log-format",
	}

	for _, flagName := range expectedFlags {
		flag := runCmd.Flags().Lookup(flagName)
		if flag == nil {
			flag = rootCmd.PersistentFlags().Lookup(flagName)
		}
		if flag == nil {
			t.Errorf("Expected flag '%s' not found in run command", flagName)
		}
	}
}

func TestCommandHelp(t *testing.T) {
	commands := []*cobra.Command{rootCmd, runCmd, versionCmd}

	for _, cmd := range commands {
		if cmd.Short == "" {
			t.Errorf("Command '%s' missing short description", cmd.Name())
		}
		if cmd.Long == "" && cmd.Name() != "version" {
			t.Errorf("Command '%s' missing long description", cmd.Name())
		}
	}
}

func TestCommandExamples(t *testing.T) {
	if !strings.Contains(runCmd.Long, "Examples:") {
		t.Error("Run command should include examples in help text")
	}
}

func TestLoadClientConfigMissingFile(t *testing.T) {
	if _, err := loadClientConfig(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Error("expected error for an explicitly named missing config file")
	}
}

func TestLoadClientConfigDefaults(t *testing.T) {
	// with no config file anywhere, defaults apply
	t.Setenv("HOME", t.TempDir())

	cfg, err := loadClientConfig("")
	if err != nil {
		t.Fatalf("expected defaults without a config file, got error: %v", err)
	}
	if cfg.SocketPath == "" {
		t.Error("expected default socket path")
	}
}

func TestLoadClientConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "no-doze.yml")
	content := `
general:
  socket: /tmp/test.sock
conditions:
  active_process:
    processes:
      - name: ffmpeg
        period: 1m
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := loadClientConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.SocketPath != "/tmp/test.sock" {
		t.Errorf("expected socket from file, got %s", cfg.SocketPath)
	}
	if len(cfg.Processes) != 1 || cfg.Processes[0].Name != "ffmpeg" {
		t.Errorf("expected one process condition, got %+v", cfg.Processes)
	}
}
