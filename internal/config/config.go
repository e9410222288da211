// Package config loads daemon configuration from a YAML file with sane
// defaults, using Viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// WebhookConfig holds optional notification forwarding targets.
type WebhookConfig struct {
	SlackURL   string `mapstructure:"slack_url" yaml:"slack_url"`
	DiscordURL string `mapstructure:"discord_url" yaml:"discord_url"`
}

// Config is the top-level daemon configuration.
type Config struct {
	// DataDir holds the SQLite database and PID file.
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`

	// Port is the HTTP API port for the serve command.
	Port int `mapstructure:"port" yaml:"port"`

	// RolloverSpec is the cron expression for the daily rollover.
	RolloverSpec string `mapstructure:"rollover_spec" yaml:"rollover_spec"`

	// AlarmBuffer is the fired-alarm channel capacity.
	AlarmBuffer int `mapstructure:"alarm_buffer" yaml:"alarm_buffer"`

	Webhooks WebhookConfig `mapstructure:"webhooks" yaml:"webhooks"`
}

// DefaultDataDir returns ~/.routined, honoring the ROUTINED_DATA override.
func DefaultDataDir() string {
	if dir := os.Getenv("ROUTINED_DATA"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".routined"
	}
	return filepath.Join(home, ".routined")
}

// DefaultConfigPath returns <data dir>/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(DefaultDataDir(), "config.yaml")
}

func defaults() *Config {
	return &Config{
		DataDir:      DefaultDataDir(),
		Port:         8080,
		RolloverSpec: "0 0 * * *",
		AlarmBuffer:  64,
	}
}

// Load reads configuration from path. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path == "" {
		path = DefaultConfigPath()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("port", cfg.Port)
	v.SetDefault("rollover_spec", cfg.RolloverSpec)
	v.SetDefault("alarm_buffer", cfg.AlarmBuffer)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return cfg, nil
}

// DBPath returns the SQLite database location under the data dir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "routined.db")
}

// PIDPath returns the daemon PID file location under the data dir.
func (c *Config) PIDPath() string {
	return filepath.Join(c.DataDir, "daemon.pid")
}
