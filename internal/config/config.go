// Package config handles daemon configuration from environment variables.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the daemon-level configuration. The user-editable watch
// ruleset is not part of this; it lives in the durable store.
type Config struct {
	ListenAddr   string `envconfig:"LISTEN_ADDR" default:":8420"`
	DatabasePath string `envconfig:"DATABASE_PATH" default:"./data/hawk.db"`
	RedisAddr    string `envconfig:"REDIS_ADDR"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`

	RedditBaseURL string `envconfig:"REDDIT_BASE_URL" default:"https://www.reddit.com"`
	UserAgent     string `envconfig:"REDDIT_USER_AGENT" default:"daemon:reddit-hawk:v0.1.0"`

	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   int64  `envconfig:"TELEGRAM_CHAT_ID"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID == 0 {
		return nil, fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}
	return &cfg, nil
}
