// Package config provides YAML-based configuration loading for cab,
// with CAB_* environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// DefaultLookupURL is the public tenant lookup service. It maps a company
// tax ID to the host and port of that company's dispatch backend.
const DefaultLookupURL = "https://app.atp-online.ru/driver_app/get_info.php"

// Config is the top-level cab configuration, loaded from cab.yaml.
type Config struct {
	LookupURL    string        `yaml:"lookup_url" env:"CAB_LOOKUP_URL"`
	StorePath    string        `yaml:"store_path" env:"CAB_STORE_PATH"`
	PollInterval time.Duration `yaml:"poll_interval" env:"CAB_POLL_INTERVAL"`

	Dashboard DashboardConfig `yaml:"dashboard"`
	Bridge    BridgeConfig    `yaml:"bridge"`
}

// DashboardConfig holds settings for the local web dashboard.
type DashboardConfig struct {
	Port int `yaml:"port" env:"CAB_DASHBOARD_PORT"`
}

// BridgeConfig configures mirroring of dispatcher chat and status changes
// to external channels. An adapter is enabled when its token is set.
type BridgeConfig struct {
	Slack    SlackConfig    `yaml:"slack"`
	Discord  DiscordConfig  `yaml:"discord"`
	Telegram TelegramConfig `yaml:"telegram"`

	// DigestCron is a 5-field cron expression for the periodic digest.
	// Empty disables the digest.
	DigestCron string `yaml:"digest_cron" env:"CAB_DIGEST_CRON"`
}

// SlackConfig holds Slack bridge credentials.
type SlackConfig struct {
	BotToken  string `yaml:"bot_token" env:"CAB_SLACK_BOT_TOKEN"`
	ChannelID string `yaml:"channel_id" env:"CAB_SLACK_CHANNEL_ID"`
}

// DiscordConfig holds Discord bridge credentials.
type DiscordConfig struct {
	BotToken  string `yaml:"bot_token" env:"CAB_DISCORD_BOT_TOKEN"`
	ChannelID string `yaml:"channel_id" env:"CAB_DISCORD_CHANNEL_ID"`
}

// TelegramConfig holds Telegram bridge credentials.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token" env:"CAB_TELEGRAM_BOT_TOKEN"`
	ChatID   int64  `yaml:"chat_id" env:"CAB_TELEGRAM_CHAT_ID"`
}

// Load reads a YAML config file from path, applies environment overrides,
// and returns a validated Config. A missing file is not an error: defaults
// plus environment variables alone are a valid configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			data = nil
		} else {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes, overlays CAB_* environment variables, and
// returns a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse: %w", err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.LookupURL == "" {
		c.LookupURL = DefaultLookupURL
	}
	if c.StorePath == "" {
		c.StorePath = os.ExpandEnv("${HOME}/.cab/cab.db")
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Second
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8380
	}
}

// validate checks that all present fields are consistent.
func (c *Config) validate() error {
	var errs []string
	if !strings.HasPrefix(c.LookupURL, "http://") && !strings.HasPrefix(c.LookupURL, "https://") {
		errs = append(errs, "lookup_url must be an http(s) URL")
	}
	if c.PollInterval < time.Second {
		errs = append(errs, "poll_interval must be at least 1s")
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		errs = append(errs, "dashboard.port must be a valid TCP port")
	}
	if c.Bridge.Slack.BotToken != "" && c.Bridge.Slack.ChannelID == "" {
		errs = append(errs, "bridge.slack.channel_id is required when slack is enabled")
	}
	if c.Bridge.Discord.BotToken != "" && c.Bridge.Discord.ChannelID == "" {
		errs = append(errs, "bridge.discord.channel_id is required when discord is enabled")
	}
	if c.Bridge.Telegram.BotToken != "" && c.Bridge.Telegram.ChatID == 0 {
		errs = append(errs, "bridge.telegram.chat_id is required when telegram is enabled")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
