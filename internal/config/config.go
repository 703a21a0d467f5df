// Package config loads taskgantt configuration from files and environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for taskgantt.
type Config struct {
	Propagation PropagationConfig `mapstructure:"propagation"`
	Analysis    AnalysisConfig    `mapstructure:"analysis"`
	ClickUp     ClickUpConfig     `mapstructure:"clickup"`
	Server      ServerConfig      `mapstructure:"server"`
	DB          DBConfig          `mapstructure:"db"`
	Log         LogConfig         `mapstructure:"log"`
}

// PropagationConfig controls the status propagator.
type PropagationConfig struct {
	// ParentBlockedIfAnyChildBlocked forces a parent to blocked when any
	// direct child is blocked. Default: true.
	ParentBlockedIfAnyChildBlocked bool `mapstructure:"parent_blocked_if_any_child_blocked"`

	// MaxPasses caps fixed-point iteration. Default: 10.
	MaxPasses int `mapstructure:"max_passes"`

	// ApplyDependencyStatus enables the dependency-driven status pass.
	// Default: true.
	ApplyDependencyStatus bool `mapstructure:"apply_dependency_status"`
}

// AnalysisConfig controls chain, risk, and blocker analysis.
type AnalysisConfig struct {
	// DependencyChainLength is the chain length above which a chain with
	// blocked members is critical. Default: 5.
	DependencyChainLength int `mapstructure:"dependency_chain_length"`

	// BlockerAgeDays is the age above which a blocker is high severity.
	// Default: 3.
	BlockerAgeDays int `mapstructure:"blocker_age_days"`

	// InactivityThresholdDays normalizes the inactivity risk factor.
	// Default: 7.
	InactivityThresholdDays int `mapstructure:"inactivity_threshold_days"`

	// MaxSubtasksForLog caps the subtask count in the complexity factor's
	// log normalization. Default: 20.
	MaxSubtasksForLog int `mapstructure:"max_subtasks_for_log"`
}

// ClickUpConfig holds credentials and scope for the ClickUp API.
type ClickUpConfig struct {
	// APIToken authorizes requests. Taken from TASKGANTT_CLICKUP_API_TOKEN
	// when not set in the file.
	APIToken string `mapstructure:"api_token"`

	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string `mapstructure:"base_url"`

	// TeamID scopes team-wide task fetches.
	TeamID string `mapstructure:"team_id"`

	// ListID scopes list fetches; used when TeamID is empty.
	ListID string `mapstructure:"list_id"`

	// IncludeClosed requests closed tasks too. Default: true.
	IncludeClosed bool `mapstructure:"include_closed"`

	// IncludeSubtasks requests subtasks. Default: true.
	IncludeSubtasks bool `mapstructure:"include_subtasks"`

	// Timeout bounds a single API request. Default: 30s.
	Timeout time.Duration `mapstructure:"timeout"`
}

// ServerConfig controls the dashboard API server.
type ServerConfig struct {
	// Addr is the listen address. Default: ":8080".
	Addr string `mapstructure:"addr"`
}

// DBConfig controls the snapshot database.
type DBConfig struct {
	// Path is the SQLite file location. Default: ~/.taskgantt/taskgantt.db.
	Path string `mapstructure:"path"`
}

// LogConfig controls logging.
type LogConfig struct {
	// Level is one of trace, debug, info, warn, error. Default: "info".
	Level string `mapstructure:"level"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		Propagation: PropagationConfig{
			ParentBlockedIfAnyChildBlocked: true,
			MaxPasses:                      10,
			ApplyDependencyStatus:          true,
		},
		Analysis: AnalysisConfig{
			DependencyChainLength:   5,
			BlockerAgeDays:          3,
			InactivityThresholdDays: 7,
			MaxSubtasksForLog:       20,
		},
		ClickUp: ClickUpConfig{
			BaseURL:         "https://api.clickup.com/api/v2",
			IncludeClosed:   true,
			IncludeSubtasks: true,
			Timeout:         30 * time.Second,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		DB: DBConfig{
			Path: defaultDBPath(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the given file, falling back to
// ~/.taskgantt/config.yaml and then ./taskgantt.yaml. Environment variables
// prefixed with TASKGANTT_ override file values. Missing files are not an
// error; defaults apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TASKGANTT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else if found := findConfigFile(); found != "" {
		v.SetConfigFile(found)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", found, err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyFixups()
	return cfg, nil
}

// applyFixups replaces zero or negative thresholds with defaults so a
// partially-filled file never produces divide-by-zero style behavior.
func (c *Config) applyFixups() {
	def := DefaultConfig()
	if c.Propagation.MaxPasses <= 0 {
		c.Propagation.MaxPasses = def.Propagation.MaxPasses
	}
	if c.Analysis.DependencyChainLength <= 0 {
		c.Analysis.DependencyChainLength = def.Analysis.DependencyChainLength
	}
	if c.Analysis.BlockerAgeDays <= 0 {
		c.Analysis.BlockerAgeDays = def.Analysis.BlockerAgeDays
	}
	if c.Analysis.InactivityThresholdDays <= 0 {
		c.Analysis.InactivityThresholdDays = def.Analysis.InactivityThresholdDays
	}
	if c.Analysis.MaxSubtasksForLog <= 0 {
		c.Analysis.MaxSubtasksForLog = def.Analysis.MaxSubtasksForLog
	}
	if c.ClickUp.BaseURL == "" {
		c.ClickUp.BaseURL = def.ClickUp.BaseURL
	}
	if c.ClickUp.Timeout <= 0 {
		c.ClickUp.Timeout = def.ClickUp.Timeout
	}
	if c.Server.Addr == "" {
		c.Server.Addr = def.Server.Addr
	}
	if c.DB.Path == "" {
		c.DB.Path = def.DB.Path
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}

func setDefaults(v *viper.Viper) {
	def := DefaultConfig()
	v.SetDefault("propagation.parent_blocked_if_any_child_blocked", def.Propagation.ParentBlockedIfAnyChildBlocked)
	v.SetDefault("propagation.max_passes", def.Propagation.MaxPasses)
	v.SetDefault("propagation.apply_dependency_status", def.Propagation.ApplyDependencyStatus)
	v.SetDefault("analysis.dependency_chain_length", def.Analysis.DependencyChainLength)
	v.SetDefault("analysis.blocker_age_days", def.Analysis.BlockerAgeDays)
	v.SetDefault("analysis.inactivity_threshold_days", def.Analysis.InactivityThresholdDays)
	v.SetDefault("analysis.max_subtasks_for_log", def.Analysis.MaxSubtasksForLog)
	// String keys without file values still need registering so
	// AutomaticEnv can surface them through Unmarshal.
	v.SetDefault("clickup.api_token", "")
	v.SetDefault("clickup.team_id", "")
	v.SetDefault("clickup.list_id", "")
	v.SetDefault("clickup.base_url", def.ClickUp.BaseURL)
	v.SetDefault("clickup.include_closed", def.ClickUp.IncludeClosed)
	v.SetDefault("clickup.include_subtasks", def.ClickUp.IncludeSubtasks)
	v.SetDefault("clickup.timeout", def.ClickUp.Timeout)
	v.SetDefault("server.addr", def.Server.Addr)
	v.SetDefault("db.path", def.DB.Path)
	v.SetDefault("log.level", def.Log.Level)
}

func findConfigFile() string {
	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, ".taskgantt", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if cwd, err := os.Getwd(); err == nil {
		p := filepath.Join(cwd, "taskgantt.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "taskgantt.db"
	}
	return filepath.Join(home, ".taskgantt", "taskgantt.db")
}
