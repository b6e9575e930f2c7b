package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultGeminiModel     = "gemini-1.5-flash"
	DefaultGeminiBaseURL   = "https://generativelanguage.googleapis.com/v1beta/models"
	DefaultDatabasePath    = "data/savor.db"
	DefaultPostStoragePath = "data/posts"
	DefaultPort            = 8080

	minKeystoreSecretLen = 32
)

// Config holds the configuration for the application.
type Config struct {
	// GeminiAPIKey is the fallback used when the keystore has no key.
	GeminiAPIKey  string `yaml:"gemini_api_key"`
	GeminiModel   string `yaml:"gemini_model"`
	GeminiBaseURL string `yaml:"gemini_base_url"`

	DatabasePath    string `yaml:"database_path"`
	KeystoreSecret  string `yaml:"keystore_secret"`
	PostStoragePath string `yaml:"post_storage_path"`

	LogLevel string `yaml:"log_level"`
	Port     int    `yaml:"port"`

	// Telegram Config
	TelegramBotToken     string  `yaml:"telegram_bot_token"`
	TelegramWebhookURL   string  `yaml:"telegram_webhook_url"`
	TelegramAllowUserIDs []int64 `yaml:"telegram_allow_user_ids"`
}

// NewFromEnv creates a new Config object from environment variables, layered
// over the YAML file named by SAVOR_CONFIG when it is set.
func NewFromEnv() (*Config, error) {
	return Load(os.Getenv("SAVOR_CONFIG"))
}

// Load reads the YAML file at path, when path is not empty, and then applies
// environment overrides and defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	overrides := []struct {
		env    string
		target *string
	}{
		{"GEMINI_API_KEY", &c.GeminiAPIKey},
		{"GEMINI_MODEL", &c.GeminiModel},
		{"GEMINI_BASE_URL", &c.GeminiBaseURL},
		{"DATABASE_PATH", &c.DatabasePath},
		{"KEYSTORE_SECRET", &c.KeystoreSecret},
		{"POST_STORAGE_PATH", &c.PostStoragePath},
		{"LOG_LEVEL", &c.LogLevel},
		{"TELEGRAM_BOT_TOKEN", &c.TelegramBotToken},
		{"TELEGRAM_WEBHOOK_URL", &c.TelegramWebhookURL},
	}
	for _, o := range overrides {
		if v := strings.TrimSpace(os.Getenv(o.env)); v != "" {
			*o.target = v
		}
	}

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT environment variable is not a number: %q", v)
		}
		c.Port = port
	}

	if v := os.Getenv("TELEGRAM_ALLOW_USER_ID"); v != "" {
		ids, err := parseIDs(v)
		if err != nil {
			return fmt.Errorf("TELEGRAM_ALLOW_USER_ID environment variable is invalid: %w", err)
		}
		c.TelegramAllowUserIDs = ids
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.GeminiModel == "" {
		c.GeminiModel = DefaultGeminiModel
	}
	if c.GeminiBaseURL == "" {
		c.GeminiBaseURL = DefaultGeminiBaseURL
	}
	if c.DatabasePath == "" {
		c.DatabasePath = DefaultDatabasePath
	}
	if c.PostStoragePath == "" {
		c.PostStoragePath = DefaultPostStoragePath
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
}

// Validate checks values that have no usable default.
func (c *Config) Validate() error {
	if c.KeystoreSecret != "" && len(c.KeystoreSecret) < minKeystoreSecretLen {
		return fmt.Errorf("KEYSTORE_SECRET must be at least %d characters", minKeystoreSecretLen)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d is out of range", c.Port)
	}
	return nil
}

// RequireTelegram checks the settings only the Telegram bot needs.
func (c *Config) RequireTelegram() error {
	var errs []error
	if c.TelegramBotToken == "" {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN environment variable not set"))
	}
	if len(c.TelegramAllowUserIDs) == 0 {
		errs = append(errs, errors.New("TELEGRAM_ALLOW_USER_ID environment variable not set"))
	}
	return errors.Join(errs...)
}

// AllowsTelegramUser reports whether id may use the bot.
func (c *Config) AllowsTelegramUser(id int64) bool {
	for _, allowed := range c.TelegramAllowUserIDs {
		if allowed == id {
			return true
		}
	}
	return false
}

func parseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
