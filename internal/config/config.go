package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Channel names the messaging network used for both commands and deliveries.
type Channel string

const (
	ChannelTelegram Channel = "telegram"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelNone     Channel = "none"
)

// DefaultMaxOpenConns bounds the database pool shared by the scanner and the command handlers.
const DefaultMaxOpenConns = 10

// Config stores runtime configuration loaded from environment variables.
type Config struct {
	Port                 string
	TelegramToken        string
	TwilioAccountSID     string
	TwilioAuthToken      string
	TwilioWhatsAppNumber string
	TwilioWebhookURL     string
	OpenAIAPIKey         string
	DatabaseURL          string
	MaxOpenConns         int
	LogLevel             string
	LogFormat            string
}

// Load reads configuration values and prepares defaults where applicable.
// Problems with individual values are reported through logger and replaced by defaults.
func Load(logger zerolog.Logger) *Config {
	_ = godotenv.Load()

	return &Config{
		Port:                 getenvDefault("PORT", "8080"),
		TelegramToken:        strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN")),
		TwilioAccountSID:     os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:      os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioWhatsAppNumber: os.Getenv("TWILIO_WHATSAPP_NUMBER"),
		TwilioWebhookURL:     os.Getenv("TWILIO_WEBHOOK_URL"),
		OpenAIAPIKey:         os.Getenv("OPENAI_API_KEY"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		MaxOpenConns:         ParseIntEnv(logger, "DB_MAX_OPEN_CONNS", DefaultMaxOpenConns),
		LogLevel:             getenvDefault("LOG_LEVEL", "info"),
		LogFormat:            getenvDefault("LOG_FORMAT", "console"),
	}
}

// Channel reports which transport the configured credentials enable.
// Telegram wins when both are configured.
func (c *Config) Channel() Channel {
	switch {
	case c.TelegramToken != "":
		return ChannelTelegram
	case c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioWhatsAppNumber != "":
		return ChannelWhatsApp
	default:
		return ChannelNone
	}
}

func getenvDefault(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		return def
	}
	return value
}

// ParseIntEnv returns the positive integer value for an environment variable or the provided default.
func ParseIntEnv(logger zerolog.Logger, key string, def int) int {
	value := os.Getenv(key)
	if value == "" {
		return def
	}

	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		logger.Warn().Err(err).Str("key", key).Str("value", value).Int("default", def).
			Msg("config: unable to parse value as positive int")
		return def
	}
	return parsed
}
