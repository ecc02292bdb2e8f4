// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// Required credentials are checked by Validate, not by Load.
package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	// Discord
	DiscordBotToken string

	// Twitch
	TwitchClientID     string
	TwitchAccessToken  string
	TwitchRefreshToken string

	// Engine
	CheckInterval        time.Duration
	MaxStreamersPerGuild int

	// Storage
	DataFile string

	// HTTP
	HTTPAddr string
}

// Load reads environment variables and applies defaults. It never fails on
// missing credentials; call Validate before starting the bot.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.DiscordBotToken = os.Getenv("DISCORD_BOT_TOKEN")
	cfg.TwitchClientID = os.Getenv("TWITCH_CLIENT_ID")
	cfg.TwitchAccessToken = os.Getenv("TWITCH_ACCESS_TOKEN")
	cfg.TwitchRefreshToken = os.Getenv("TWITCH_REFRESH_TOKEN")

	cfg.CheckInterval = 60 * time.Second
	if v := os.Getenv("CHECK_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid CHECK_INTERVAL (duration): %w", err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("CHECK_INTERVAL must be positive, got %s", d)
		}
		cfg.CheckInterval = d
	}

	cfg.MaxStreamersPerGuild = 5

	cfg.DataFile = os.Getenv("DATA_FILE")
	if cfg.DataFile == "" {
		cfg.DataFile = "database.json"
	}

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	return cfg, nil
}

// Validate checks the credentials the bot cannot run without.
func (c *Config) Validate() error {
	if c.DiscordBotToken == "" {
		return fmt.Errorf("missing DISCORD_BOT_TOKEN")
	}
	if c.TwitchClientID == "" {
		return fmt.Errorf("missing TWITCH_CLIENT_ID")
	}
	if c.TwitchRefreshToken == "" {
		return fmt.Errorf("missing TWITCH_REFRESH_TOKEN")
	}
	return nil
}
