package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the messenger service.
type Config struct {
	AppName        string
	AppEnv         string
	AppPort        string
	DatabaseURL    string
	SQLitePath     string
	RedisURL       string
	NATSURL        string
	EventChannel   string
	JWTSecret      string
	GeneralChannel string
	HistoryLimit   int
	ResponderDelay time.Duration
	AIProvider     string
	OpenAIAPIKey   string
	OpenAIModel    string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("DEEPLINK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Deeplink Messenger")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8000")
	v.SetDefault("sqlite.path", "deeplink.db")
	v.SetDefault("event.channel", "deeplink")
	v.SetDefault("general.channel", "general")
	v.SetDefault("history.limit", 50)
	v.SetDefault("responder.delay", "1s")
	v.SetDefault("ai.provider", "none")
	v.SetDefault("openai.model", "gpt-4o-mini")

	delayString := v.GetString("responder.delay")
	delay, err := time.ParseDuration(delayString)
	if err != nil {
		return Config{}, fmt.Errorf("invalid responder delay: %w", err)
	}

	cfg := Config{
		AppName:        v.GetString("app.name"),
		AppEnv:         v.GetString("app.env"),
		AppPort:        v.GetString("app.port"),
		DatabaseURL:    v.GetString("database.url"),
		SQLitePath:     v.GetString("sqlite.path"),
		RedisURL:       v.GetString("redis.url"),
		NATSURL:        v.GetString("nats.url"),
		EventChannel:   v.GetString("event.channel"),
		JWTSecret:      v.GetString("jwt.secret"),
		GeneralChannel: v.GetString("general.channel"),
		HistoryLimit:   v.GetInt("history.limit"),
		ResponderDelay: delay,
		AIProvider:     strings.ToLower(v.GetString("ai.provider")),
		OpenAIAPIKey:   v.GetString("openai_api_key"),
		OpenAIModel:    v.GetString("openai.model"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}

	return cfg, nil
}
