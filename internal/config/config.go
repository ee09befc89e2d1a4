// Package config loads the server configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Archive backends.
const (
	ArchiveNone     = "none"
	ArchiveMemory   = "memory"
	ArchivePostgres = "postgres"
	ArchiveValkey   = "valkey"
)

type Config struct {
	HTTPAddr      string // SCENYX_HTTP_ADDR (default ":8080")
	AllowedOrigin string // SCENYX_ALLOWED_ORIGIN (default "http://127.0.0.1:5173")

	Store       string // SCENYX_STORE: memory | postgres (default "memory")
	DatabaseURL string // SCENYX_DATABASE_URL (required when Store or Archive is postgres)
	Archive     string // SCENYX_ARCHIVE: none | memory | postgres | valkey (default "memory")
	ValkeyAddr  string // SCENYX_VALKEY_ADDR (default "127.0.0.1:6379")
	NATSURL     string // SCENYX_NATS_URL (optional, empty = no events)
	JWTSecret   string // SCENYX_JWT_SECRET (optional, empty = tokens ignored)

	ChatHistoryLimit     int           // SCENYX_CHAT_HISTORY_LIMIT (default 200)
	ChatMaxLength        int           // SCENYX_CHAT_MAX_LENGTH (default 500)
	RoomIdleTTL          time.Duration // SCENYX_ROOM_IDLE_TTL (default 30m)
	MaxMessagesPerSecond float64       // SCENYX_MAX_MESSAGES_PER_SECOND (default 10)

	LogLevel  slog.Level // SCENYX_LOG_LEVEL: debug | info | warn | error (default info)
	LogFormat string     // SCENYX_LOG_FORMAT: text | json (default "text")
}

// Load reads .env from the working directory when present, then the
// environment. Variables already set in the environment win over .env.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c := &Config{
		HTTPAddr:      envOrDefault("SCENYX_HTTP_ADDR", ":8080"),
		AllowedOrigin: envOrDefault("SCENYX_ALLOWED_ORIGIN", "http://127.0.0.1:5173"),
		Store:         strings.ToLower(envOrDefault("SCENYX_STORE", StoreMemory)),
		DatabaseURL:   os.Getenv("SCENYX_DATABASE_URL"),
		Archive:       strings.ToLower(envOrDefault("SCENYX_ARCHIVE", ArchiveMemory)),
		ValkeyAddr:    envOrDefault("SCENYX_VALKEY_ADDR", "127.0.0.1:6379"),
		NATSURL:       os.Getenv("SCENYX_NATS_URL"),
		JWTSecret:     os.Getenv("SCENYX_JWT_SECRET"),
		LogFormat:     strings.ToLower(envOrDefault("SCENYX_LOG_FORMAT", "text")),
	}

	var err error
	if c.ChatHistoryLimit, err = envInt("SCENYX_CHAT_HISTORY_LIMIT", 200); err != nil {
		return nil, err
	}
	if c.ChatMaxLength, err = envInt("SCENYX_CHAT_MAX_LENGTH", 500); err != nil {
		return nil, err
	}
	if c.RoomIdleTTL, err = envDuration("SCENYX_ROOM_IDLE_TTL", 30*time.Minute); err != nil {
		return nil, err
	}
	rate, err := strconv.ParseFloat(envOrDefault("SCENYX_MAX_MESSAGES_PER_SECOND", "10"), 64)
	if err != nil || rate <= 0 {
		return nil, fmt.Errorf("SCENYX_MAX_MESSAGES_PER_SECOND: must be a positive number")
	}
	c.MaxMessagesPerSecond = rate

	if err := c.LogLevel.UnmarshalText([]byte(envOrDefault("SCENYX_LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("SCENYX_LOG_LEVEL: %w", err)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	switch c.Store {
	case StoreMemory, StorePostgres:
	default:
		return fmt.Errorf("SCENYX_STORE: unknown store %q", c.Store)
	}
	switch c.Archive {
	case ArchiveNone, ArchiveMemory, ArchivePostgres, ArchiveValkey:
	default:
		return fmt.Errorf("SCENYX_ARCHIVE: unknown archive %q", c.Archive)
	}
	if (c.Store == StorePostgres || c.Archive == ArchivePostgres) && c.DatabaseURL == "" {
		return fmt.Errorf("SCENYX_DATABASE_URL is required for the postgres backend")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("SCENYX_LOG_FORMAT: unknown format %q", c.LogFormat)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s: must be a positive integer", key)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: must be positive", key)
	}
	return d, nil
}
