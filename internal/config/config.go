// Package config loads dungeonmaster settings from the user config, a
// project override and DUNGEONMASTER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ProjectConfigName is the project-level override file.
const ProjectConfigName = ".dungeonmaster.yaml"

// EnvPrefix prefixes environment overrides, e.g. DUNGEONMASTER_CLAUDE_MODEL.
const EnvPrefix = "DUNGEONMASTER"

// Config holds all configuration for dungeonmaster.
type Config struct {
	Orchestration OrchestrationConfig `mapstructure:"orchestration"`
	Timeouts      TimeoutsConfig      `mapstructure:"timeouts"`
	Claude        ClaudeConfig        `mapstructure:"claude"`
	Ward          WardConfig          `mapstructure:"ward"`
	TUI           TUIConfig           `mapstructure:"tui"`
	Paths         PathsConfig         `mapstructure:"paths"`
}

// OrchestrationConfig controls how many agents run and how deep followups go.
type OrchestrationConfig struct {
	SlotCount        int `mapstructure:"slot_count"`
	MaxFollowupDepth int `mapstructure:"max_followup_depth"`
}

// TimeoutsConfig holds per-activity time limits. Zero disables a limit.
type TimeoutsConfig struct {
	Agent time.Duration `mapstructure:"agent"`
	Ward  time.Duration `mapstructure:"ward"`
}

// ClaudeConfig selects the agent CLI.
type ClaudeConfig struct {
	Binary string `mapstructure:"binary"`
	Model  string `mapstructure:"model"`
}

// WardConfig configures the verification command.
type WardConfig struct {
	Command    string `mapstructure:"command"`
	MaxRetries int    `mapstructure:"max_retries"`
}

// TUIConfig holds TUI display settings.
type TUIConfig struct {
	RefreshRate time.Duration `mapstructure:"refresh_rate"`
}

// PathsConfig locates the dungeonmaster home holding config.json and guilds.
type PathsConfig struct {
	Home string `mapstructure:"home"`
}

// Load reads configuration with this precedence, highest first:
//  1. DUNGEONMASTER_* environment variables
//  2. .dungeonmaster.yaml in workDir or one of its parents
//  3. $XDG_CONFIG_HOME/dungeonmaster/config.yaml
//  4. built-in defaults
func Load(workDir string) (*Config, error) {
	v := newViper()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir())
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(workDir); projectConfig != "" {
		pv := viper.New()
		pv.SetConfigFile(projectConfig)
		if err := pv.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading project config %s: %w", projectConfig, err)
		}
		if err := v.MergeConfigMap(pv.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	return decode(v)
}

// LoadFromPath loads configuration from one file on top of the defaults.
func LoadFromPath(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Paths.Home = expandHome(os.ExpandEnv(cfg.Paths.Home))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the orchestrator cannot run with.
func (c *Config) Validate() error {
	if c.Orchestration.SlotCount < 1 {
		return fmt.Errorf("orchestration.slot_count must be at least 1, got %d", c.Orchestration.SlotCount)
	}
	if c.Orchestration.MaxFollowupDepth < 0 {
		return fmt.Errorf("orchestration.max_followup_depth must not be negative, got %d", c.Orchestration.MaxFollowupDepth)
	}
	if c.Ward.MaxRetries < 1 {
		return fmt.Errorf("ward.max_retries must be at least 1, got %d", c.Ward.MaxRetries)
	}
	if c.Timeouts.Agent < 0 || c.Timeouts.Ward < 0 {
		return errors.New("timeouts must not be negative")
	}
	return nil
}

// UserConfigPath returns the path to the user config file.
func UserConfigPath() string {
	return filepath.Join(userConfigDir(), "config.yaml")
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("orchestration.slot_count", d.Orchestration.SlotCount)
	v.SetDefault("orchestration.max_followup_depth", d.Orchestration.MaxFollowupDepth)
	v.SetDefault("timeouts.agent", d.Timeouts.Agent.String())
	v.SetDefault("timeouts.ward", d.Timeouts.Ward.String())
	v.SetDefault("claude.binary", d.Claude.Binary)
	v.SetDefault("claude.model", d.Claude.Model)
	v.SetDefault("ward.command", d.Ward.Command)
	v.SetDefault("ward.max_retries", d.Ward.MaxRetries)
	v.SetDefault("tui.refresh_rate", d.TUI.RefreshRate.String())
	v.SetDefault("paths.home", "~/.dungeonmaster")
}

// userConfigDir returns the XDG config directory for dungeonmaster.
func userConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dungeonmaster")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "dungeonmaster")
	}
	return filepath.Join(home, ".config", "dungeonmaster")
}

// findProjectConfig searches for .dungeonmaster.yaml in dir and its parents.
func findProjectConfig(dir string) string {
	if dir == "" {
		var err error
		if dir, err = os.Getwd(); err != nil {
			return ""
		}
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(dir, ProjectConfigName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Orchestration: OrchestrationConfig{
			SlotCount:        3,
			MaxFollowupDepth: 3,
		},
		Timeouts: TimeoutsConfig{
			Agent: 30 * time.Minute,
			Ward:  10 * time.Minute,
		},
		Claude: ClaudeConfig{
			Binary: "claude",
		},
		Ward: WardConfig{
			Command:    "npx dungeonmaster-ward",
			MaxRetries: 3,
		},
		TUI: TUIConfig{
			RefreshRate: 100 * time.Millisecond,
		},
		Paths: PathsConfig{
			Home: expandHome("~/.dungeonmaster"),
		},
	}
}
