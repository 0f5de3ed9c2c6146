package config

import (
	"fmt"
)

// Theme names accepted for the console UI.
const (
	ThemeDark  = "dark"
	ThemeLight = "light"
)

// Config represents the main Overlook configuration
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Client (console UI) configuration
	Client ClientConfig `json:"client" mapstructure:"client"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig holds backend server configuration
type ServerConfig struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`

	// AgentCommand is the command (argv) launched for each new session. The
	// session id is appended as the final argument.
	AgentCommand []string `json:"agent_command" mapstructure:"agent_command"`

	// SweepSchedule is the cron expression for the stale-session sweep.
	SweepSchedule string `json:"sweep_schedule" mapstructure:"sweep_schedule"`
}

// ClientConfig holds console UI configuration
type ClientConfig struct {
	// ServerURL is the base URL of the overlook server, e.g. http://localhost:1818
	ServerURL string `json:"server_url" mapstructure:"server_url"`

	// Theme is the persisted UI theme preference: dark or light
	Theme string `json:"theme" mapstructure:"theme"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"`
	File    string `json:"file" mapstructure:"file"`
	Console bool   `json:"console" mapstructure:"console"`
	Pretty  bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:          "127.0.0.1",
			Port:          1818,
			SweepSchedule: "*/10 * * * *",
		},
		Client: ClientConfig{
			ServerURL: "http://127.0.0.1:1818",
			Theme:     ThemeDark,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Pretty:  true,
		},
	}
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Client.Theme != ThemeDark && c.Client.Theme != ThemeLight {
		return fmt.Errorf("invalid theme: %q (must be %q or %q)", c.Client.Theme, ThemeDark, ThemeLight)
	}
	if c.Client.ServerURL == "" {
		return fmt.Errorf("client server_url is required")
	}
	return nil
}
