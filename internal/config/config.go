package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppName string
	Env     string
	Host    string
	Port    int

	// DatabaseURL selects PostgreSQL when set; otherwise SQLitePath is used.
	DatabaseURL string
	SQLitePath  string

	SessionSecret string
	SessionTTL    time.Duration
	CORSOrigins   []string
	Debug         bool

	OnlineWindow    time.Duration
	PingMinInterval time.Duration
	TypingTTL       time.Duration
	MessagePageSize int
}

func Load() (*Config, error) {
	// .env is optional; real env vars win
	_ = godotenv.Load()

	cfg := &Config{
		AppName: getEnv("APP_NAME", "PESS Tracker API"),
		Env:     getEnv("APP_ENV", "development"),
		Host:    getEnv("HTTP_HOST", "0.0.0.0"),
		Port:    getEnvAsInt("HTTP_PORT", 8000),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  getEnv("SQLITE_PATH", "pess.db"),

		SessionSecret: os.Getenv("SESSION_SECRET"),
		SessionTTL:    time.Duration(getEnvAsInt("SESSION_TTL_MINUTES", 60*24)) * time.Minute,
		Debug:         getEnvAsBool("DEBUG", true),

		OnlineWindow:    time.Duration(getEnvAsInt("ONLINE_WINDOW_SECONDS", 90)) * time.Second,
		PingMinInterval: time.Duration(getEnvAsInt("PING_MIN_INTERVAL_SECONDS", 10)) * time.Second,
		TypingTTL:       time.Duration(getEnvAsInt("TYPING_TTL_SECONDS", 3)) * time.Second,
		MessagePageSize: getEnvAsInt("MESSAGE_PAGE_SIZE", 200),
	}

	cors := getEnv("CORS_ORIGINS", "")
	if cors != "" {
		parts := strings.Split(cors, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		cfg.CORSOrigins = parts
	} else {
		cfg.CORSOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}

	if cfg.SessionSecret == "" {
		return nil, fmt.Errorf("SESSION_SECRET is required")
	}

	return cfg, nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvAsBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
