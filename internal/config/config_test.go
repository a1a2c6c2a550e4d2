package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/amonks/timekeep/internal/config"
	"github.com/amonks/timekeep/internal/testsupport"
)

func writeGlobalConfig(t *testing.T, homeDir, content string) {
	t.Helper()
	configDir := filepath.Join(homeDir, ".config", "timekeep")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "config.toml"), []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write global config: %v", err)
	}
}

func TestLoad_NotFound(t *testing.T) {
	testsupport.SetupTestHome(t)
	tmpDir := t.TempDir()

	cfg, err := config.Load(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg == nil {
		t.Fatal("expected non-nil config")
	}

	if cfg.Gateway.URL != "" {
		t.Error("expected empty gateway url")
	}

	if got := cfg.GatewayURL(); got != "127.0.0.1:7465" {
		t.Errorf("GatewayURL() = %q, expected default", got)
	}
}

func TestLoad_Full(t *testing.T) {
	testsupport.SetupTestHome(t)
	tmpDir := t.TempDir()

	configContent := `
[gateway]
url = " http://tracker.internal:9000 "
user = "alice"
beacon-timeout = "3s"

[timer]
tick = "500ms"

[lifecycle]
grace-delay = "2s"
flush-timeout = "1m"

[server]
port = 9000
data-dir = "/var/lib/timekeep"
`

	if err := os.WriteFile(filepath.Join(tmpDir, config.ProjectFile), []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := config.Load(tmpDir)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Gateway.URL != "http://tracker.internal:9000" {
		t.Errorf("URL = %q, expected trimmed url", cfg.Gateway.URL)
	}
	if cfg.Gateway.User != "alice" {
		t.Errorf("User = %q, expected %q", cfg.Gateway.User, "alice")
	}
	if cfg.Gateway.BeaconTimeout != 3*time.Second {
		t.Errorf("BeaconTimeout = %v, expected 3s", cfg.Gateway.BeaconTimeout)
	}
	if cfg.Timer.Tick != 500*time.Millisecond {
		t.Errorf("Tick = %v, expected 500ms", cfg.Timer.Tick)
	}
	if cfg.Lifecycle.GraceDelay != 2*time.Second {
		t.Errorf("GraceDelay = %v, expected 2s", cfg.Lifecycle.GraceDelay)
	}
	if cfg.Lifecycle.FlushTimeout != time.Minute {
		t.Errorf("FlushTimeout = %v, expected 1m", cfg.Lifecycle.FlushTimeout)
	}
	if cfg.ServerPort() != 9000 {
		t.Errorf("ServerPort() = %d, expected 9000", cfg.ServerPort())
	}
	if cfg.Server.DataDir != "/var/lib/timekeep" {
		t.Errorf("DataDir = %q", cfg.Server.DataDir)
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	testsupport.SetupTestHome(t)
	tmpDir := t.TempDir()

	if err := os.WriteFile(filepath.Join(tmpDir, config.ProjectFile), []byte("[gateway\nurl = "), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	_, err := config.Load(tmpDir)
	if err == nil {
		t.Fatal("expected error for invalid TOML")
	}
	if !strings.Contains(err.Error(), "parse config file") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_RejectsNegativeDuration(t *testing.T) {
	testsupport.SetupTestHome(t)
	tmpDir := t.TempDir()

	if err := os.WriteFile(filepath.Join(tmpDir, config.ProjectFile), []byte("[lifecycle]\ngrace-delay = \"-1s\"\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	_, err := config.Load(tmpDir)
	if err == nil || !strings.Contains(err.Error(), "lifecycle.grace-delay") {
		t.Fatalf("expected grace-delay error, got %v", err)
	}
}

func TestLoad_UsesGlobalWhenProjectMissing(t *testing.T) {
	homeDir := testsupport.SetupTestHome(t)
	tmpDir := t.TempDir()

	writeGlobalConfig(t, homeDir, `
[gateway]
url = "global:7000"
user = "global-user"

[timer]
tick = "2s"
`)

	cfg, err := config.Load(tmpDir)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Gateway.URL != "global:7000" {
		t.Errorf("URL = %q, expected %q", cfg.Gateway.URL, "global:7000")
	}
	if cfg.Gateway.User != "global-user" {
		t.Errorf("User = %q, expected %q", cfg.Gateway.User, "global-user")
	}
	if cfg.Timer.Tick != 2*time.Second {
		t.Errorf("Tick = %v, expected 2s", cfg.Timer.Tick)
	}
}

func TestLoad_ProjectOverridesGlobal(t *testing.T) {
	homeDir := testsupport.SetupTestHome(t)
	tmpDir := t.TempDir()

	writeGlobalConfig(t, homeDir, `
[gateway]
url = "global:7000"
user = "global-user"

[server]
port = 7000
`)

	projectContent := `
[gateway]
user = ""

[server]
port = 8000
`
	if err := os.WriteFile(filepath.Join(tmpDir, config.ProjectFile), []byte(projectContent), 0644); err != nil {
		t.Fatalf("failed to write project config: %v", err)
	}

	cfg, err := config.Load(tmpDir)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Gateway.URL != "global:7000" {
		t.Errorf("URL = %q, expected global value", cfg.Gateway.URL)
	}
	if cfg.Gateway.User != "" {
		t.Errorf("User = %q, expected project to clear it", cfg.Gateway.User)
	}
	if cfg.ServerPort() != 8000 {
		t.Errorf("ServerPort() = %d, expected 8000", cfg.ServerPort())
	}
}
