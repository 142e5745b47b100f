// Package config provides YAML-based configuration loading for Hearth.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// cronParser matches the 5-field expressions used by the daemon scheduler.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Config is the top-level Hearth configuration, loaded from hearth.yaml.
type Config struct {
	Workspace WorkspaceConfig `yaml:"workspace"`
	Database  DatabaseConfig  `yaml:"database"`
	Emergency EmergencyConfig `yaml:"emergency"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Telegraph TelegraphConfig `yaml:"telegraph"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Digest    DigestConfig    `yaml:"digest"`
	Notify    NotifyConfig    `yaml:"notify"`
}

// WorkspaceConfig identifies the shared workspace and its two members.
type WorkspaceConfig struct {
	ID      string         `yaml:"id"`
	Name    string         `yaml:"name"`
	Members []MemberConfig `yaml:"members"`
}

// MemberConfig is one of the two workspace members.
type MemberConfig struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	ChatIDs []string `yaml:"chat_ids"` // Slack/Discord user ids that map to this member
}

// DatabaseConfig holds connection settings for the relational store.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "mysql" (MySQL/Dolt) or "sqlite"
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Database string `yaml:"database"`
	Path     string `yaml:"path"` // sqlite file path
}

// EmergencyConfig controls the emergency pause and its offline queue.
type EmergencyConfig struct {
	DefaultDurationMinutes int    `yaml:"default_duration_minutes"`
	LocalStore             string `yaml:"local_store"`    // sqlite file backing the durable queue
	DrainSchedule          string `yaml:"drain_schedule"` // cron expression for queue drain retries
}

// AnalysisConfig tunes the risk analyzer and loop detector.
type AnalysisConfig struct {
	AutoApply           bool `yaml:"auto_apply"`
	LoopWindowMinutes   int  `yaml:"loop_window_minutes"`
	LoopThreshold       int  `yaml:"loop_threshold"`
	EvaluateIntervalSec int  `yaml:"evaluate_interval_sec"`
}

// TelegraphConfig configures the chat bridge used for partner notification.
type TelegraphConfig struct {
	Platform string        `yaml:"platform"` // "slack", "discord", or "" to disable
	Channel  string        `yaml:"channel"`
	Slack    SlackConfig   `yaml:"slack"`
	Discord  DiscordConfig `yaml:"discord"`
}

// SlackConfig holds Slack Socket Mode credentials.
type SlackConfig struct {
	BotToken string `yaml:"bot_token"`
	AppToken string `yaml:"app_token"`
}

// DiscordConfig holds Discord bot credentials.
type DiscordConfig struct {
	BotToken string `yaml:"bot_token"`
}

// DashboardConfig configures the HTTP API server.
type DashboardConfig struct {
	Port int `yaml:"port"`
}

// DigestConfig schedules the partnership digest posted to chat.
type DigestConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Schedule  string `yaml:"schedule"`
	RangeDays int    `yaml:"range_days"`
}

// NotifyConfig adds a local notification hook alongside chat.
type NotifyConfig struct {
	// Command is a shell template run for every state change, e.g.
	// "notify-send 'Hearth' '{{.State}}: {{.Topic}}'".
	Command string `yaml:"command"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Member returns the member whose id or chat id matches, or false.
func (c *Config) Member(id string) (MemberConfig, bool) {
	for _, m := range c.Workspace.Members {
		if m.ID == id {
			return m, true
		}
		for _, chatID := range m.ChatIDs {
			if chatID == id {
				return m, true
			}
		}
	}
	return MemberConfig{}, false
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Workspace.Name == "" {
		c.Workspace.Name = c.Workspace.ID
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
		if c.Database.Database == "" && c.Workspace.ID != "" {
			c.Database.Database = "hearth_" + c.Workspace.ID
		}
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "hearth.db"
	}
	if c.Emergency.DefaultDurationMinutes == 0 {
		c.Emergency.DefaultDurationMinutes = 20
	}
	if c.Emergency.LocalStore == "" {
		c.Emergency.LocalStore = ".hearth/local.db"
	}
	if c.Emergency.DrainSchedule == "" {
		c.Emergency.DrainSchedule = "@every 30s"
	}
	if c.Analysis.LoopWindowMinutes == 0 {
		c.Analysis.LoopWindowMinutes = 60
	}
	if c.Analysis.LoopThreshold == 0 {
		c.Analysis.LoopThreshold = 3
	}
	if c.Analysis.EvaluateIntervalSec == 0 {
		c.Analysis.EvaluateIntervalSec = 300
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8080
	}
	if c.Digest.Schedule == "" {
		c.Digest.Schedule = "0 9 * * 1"
	}
	if c.Digest.RangeDays == 0 {
		c.Digest.RangeDays = 7
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Workspace.ID == "" {
		errs = append(errs, "workspace.id is required")
	}
	if len(c.Workspace.Members) != 2 {
		errs = append(errs, fmt.Sprintf("workspace.members must list exactly 2 members (got %d)", len(c.Workspace.Members)))
	}
	seen := make(map[string]bool)
	for i, m := range c.Workspace.Members {
		if m.ID == "" {
			errs = append(errs, fmt.Sprintf("workspace.members[%d].id is required", i))
			continue
		}
		if seen[m.ID] {
			errs = append(errs, fmt.Sprintf("workspace.members[%d].id %q is duplicated", i, m.ID))
		}
		seen[m.ID] = true
	}
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported (use mysql or sqlite)", c.Database.Driver))
	}
	if c.Emergency.DefaultDurationMinutes < 0 {
		errs = append(errs, "emergency.default_duration_minutes must be positive")
	}
	if _, err := cronParser.Parse(c.Emergency.DrainSchedule); err != nil {
		errs = append(errs, fmt.Sprintf("emergency.drain_schedule: %v", err))
	}
	if c.Analysis.LoopThreshold < 2 {
		errs = append(errs, "analysis.loop_threshold must be at least 2")
	}
	switch c.Telegraph.Platform {
	case "":
	case "slack":
		if c.Telegraph.Slack.BotToken == "" || c.Telegraph.Slack.AppToken == "" {
			errs = append(errs, "telegraph.slack.bot_token and telegraph.slack.app_token are required")
		}
	case "discord":
		if c.Telegraph.Discord.BotToken == "" {
			errs = append(errs, "telegraph.discord.bot_token is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("telegraph.platform %q is not supported", c.Telegraph.Platform))
	}
	if c.Digest.Enabled {
		if _, err := cronParser.Parse(c.Digest.Schedule); err != nil {
			errs = append(errs, fmt.Sprintf("digest.schedule: %v", err))
		}
		switch c.Digest.RangeDays {
		case 7, 30, 90:
		default:
			errs = append(errs, "digest.range_days must be 7, 30, or 90")
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
