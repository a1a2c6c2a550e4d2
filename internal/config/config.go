// Package config handles loading timekeep.toml configuration files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/amonks/timekeep/internal/paths"
)

// DefaultPort is the port the reference backend listens on.
const DefaultPort = 7465

// ProjectFile is the name of the per-project config file.
const ProjectFile = "timekeep.toml"

// Config represents the timekeep.toml configuration file.
type Config struct {
	Gateway   Gateway   `toml:"gateway"`
	Timer     Timer     `toml:"timer"`
	Lifecycle Lifecycle `toml:"lifecycle"`
	Server    Server    `toml:"server"`
}

// Gateway configures how the CLI reaches the backend.
type Gateway struct {
	// URL is the backend base URL or host:port.
	URL string `toml:"url"`
	// User is the default user when nobody is signed in.
	User string `toml:"user"`
	// BeaconTimeout bounds one fire-and-forget delivery.
	BeaconTimeout time.Duration `toml:"beacon-timeout"`
}

// Timer configures the local timer.
type Timer struct {
	Tick time.Duration `toml:"tick"`
}

// Lifecycle configures signal-triggered flushes.
type Lifecycle struct {
	GraceDelay   time.Duration `toml:"grace-delay"`
	FlushTimeout time.Duration `toml:"flush-timeout"`
}

// Server configures the reference backend.
type Server struct {
	Port    int    `toml:"port"`
	DataDir string `toml:"data-dir"`
}

// GatewayURL returns the configured backend address, falling back to the
// local reference backend.
func (c *Config) GatewayURL() string {
	if c.Gateway.URL != "" {
		return c.Gateway.URL
	}
	return fmt.Sprintf("127.0.0.1:%d", c.ServerPort())
}

// ServerPort returns the configured port or DefaultPort.
func (c *Config) ServerPort() int {
	if c.Server.Port != 0 {
		return c.Server.Port
	}
	return DefaultPort
}

// Load loads configuration from the project directory and the global config
// file. Returns an empty config if no config files exist.
func Load(projectDir string) (*Config, error) {
	globalPath, err := globalConfigPath()
	if err != nil {
		return nil, err
	}

	globalCfg, globalMeta, err := loadConfigFile(globalPath)
	if err != nil {
		return nil, err
	}

	projectCfg, projectMeta, err := loadConfigFile(filepath.Join(projectDir, ProjectFile))
	if err != nil {
		return nil, err
	}

	merged := mergeConfigs(globalCfg, projectCfg, globalMeta, projectMeta)
	if err := merged.validate(); err != nil {
		return nil, err
	}
	return merged, nil
}

func globalConfigPath() (string, error) {
	dir, err := paths.DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

func loadConfigFile(path string) (*Config, toml.MetaData, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Config{}, toml.MetaData{}, nil
	}
	if err != nil {
		return nil, toml.MetaData{}, fmt.Errorf("read config file %s: %w", path, err)
	}

	var cfg Config
	meta, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, toml.MetaData{}, fmt.Errorf("parse config file %s: %w", path, err)
	}

	return &cfg, meta, nil
}

func mergeConfigs(globalCfg, projectCfg *Config, globalMeta, projectMeta toml.MetaData) *Config {
	if globalCfg == nil {
		globalCfg = &Config{}
	}
	if projectCfg == nil {
		projectCfg = &Config{}
	}

	merged := Config{}
	merged.Gateway.URL = mergeString(projectMeta.IsDefined("gateway", "url"), projectCfg.Gateway.URL, globalCfg.Gateway.URL)
	merged.Gateway.User = mergeString(projectMeta.IsDefined("gateway", "user"), projectCfg.Gateway.User, globalCfg.Gateway.User)
	merged.Gateway.BeaconTimeout = mergeValue(projectMeta.IsDefined("gateway", "beacon-timeout"), projectCfg.Gateway.BeaconTimeout, globalCfg.Gateway.BeaconTimeout)
	merged.Timer.Tick = mergeValue(projectMeta.IsDefined("timer", "tick"), projectCfg.Timer.Tick, globalCfg.Timer.Tick)
	merged.Lifecycle.GraceDelay = mergeValue(projectMeta.IsDefined("lifecycle", "grace-delay"), projectCfg.Lifecycle.GraceDelay, globalCfg.Lifecycle.GraceDelay)
	merged.Lifecycle.FlushTimeout = mergeValue(projectMeta.IsDefined("lifecycle", "flush-timeout"), projectCfg.Lifecycle.FlushTimeout, globalCfg.Lifecycle.FlushTimeout)
	merged.Server.Port = mergeValue(projectMeta.IsDefined("server", "port"), projectCfg.Server.Port, globalCfg.Server.Port)
	merged.Server.DataDir = mergeString(projectMeta.IsDefined("server", "data-dir"), projectCfg.Server.DataDir, globalCfg.Server.DataDir)

	return &merged
}

func mergeString(projectDefined bool, projectValue, globalValue string) string {
	return strings.TrimSpace(mergeValue(projectDefined, projectValue, globalValue))
}

func mergeValue[T any](projectDefined bool, projectValue, globalValue T) T {
	if projectDefined {
		return projectValue
	}
	return globalValue
}

func (c *Config) validate() error {
	durations := []struct {
		key   string
		value time.Duration
	}{
		{"gateway.beacon-timeout", c.Gateway.BeaconTimeout},
		{"timer.tick", c.Timer.Tick},
		{"lifecycle.grace-delay", c.Lifecycle.GraceDelay},
		{"lifecycle.flush-timeout", c.Lifecycle.FlushTimeout},
	}
	for _, d := range durations {
		if d.value < 0 {
			return fmt.Errorf("%s must not be negative", d.key)
		}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	return nil
}
