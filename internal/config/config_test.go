package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allEnvVars = []string{
	"SCENYX_HTTP_ADDR", "SCENYX_ALLOWED_ORIGIN", "SCENYX_STORE", "SCENYX_DATABASE_URL",
	"SCENYX_ARCHIVE", "SCENYX_VALKEY_ADDR", "SCENYX_NATS_URL", "SCENYX_JWT_SECRET",
	"SCENYX_CHAT_HISTORY_LIMIT", "SCENYX_CHAT_MAX_LENGTH", "SCENYX_ROOM_IDLE_TTL",
	"SCENYX_MAX_MESSAGES_PER_SECOND", "SCENYX_LOG_LEVEL", "SCENYX_LOG_FORMAT",
}

// clearAllEnv empties every variable and runs the test from an empty
// directory so no stray .env is picked up.
func clearAllEnv(t *testing.T) {
	t.Helper()
	for _, key := range allEnvVars {
		t.Setenv(key, "")
	}
	t.Chdir(t.TempDir())
}

func TestLoad_Defaults(t *testing.T) {
	clearAllEnv(t)

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, "http://127.0.0.1:5173", c.AllowedOrigin)
	assert.Equal(t, StoreMemory, c.Store)
	assert.Equal(t, ArchiveMemory, c.Archive)
	assert.Equal(t, 200, c.ChatHistoryLimit)
	assert.Equal(t, 500, c.ChatMaxLength)
	assert.Equal(t, 30*time.Minute, c.RoomIdleTTL)
	assert.Equal(t, 10.0, c.MaxMessagesPerSecond)
	assert.Equal(t, slog.LevelInfo, c.LogLevel)
	assert.Equal(t, "text", c.LogFormat)
	assert.Empty(t, c.NATSURL)
}

func TestLoad(t *testing.T) {
	for _, tc := range []struct {
		name    string
		env     map[string]string
		wantErr bool
		check   func(t *testing.T, c *Config)
	}{
		{
			name: "PostgresWithURL",
			env: map[string]string{
				"SCENYX_STORE":        "postgres",
				"SCENYX_ARCHIVE":      "postgres",
				"SCENYX_DATABASE_URL": "postgres://localhost/scenyx",
			},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, StorePostgres, c.Store)
				assert.Equal(t, "postgres://localhost/scenyx", c.DatabaseURL)
			},
		},
		{
			name:    "PostgresWithoutURL",
			env:     map[string]string{"SCENYX_STORE": "postgres"},
			wantErr: true,
		},
		{
			name:    "PostgresArchiveWithoutURL",
			env:     map[string]string{"SCENYX_ARCHIVE": "postgres"},
			wantErr: true,
		},
		{
			name:    "UnknownStore",
			env:     map[string]string{"SCENYX_STORE": "sqlite"},
			wantErr: true,
		},
		{
			name:    "UnknownArchive",
			env:     map[string]string{"SCENYX_ARCHIVE": "s3"},
			wantErr: true,
		},
		{
			name: "Tuning",
			env: map[string]string{
				"SCENYX_CHAT_HISTORY_LIMIT":      "50",
				"SCENYX_CHAT_MAX_LENGTH":         "280",
				"SCENYX_ROOM_IDLE_TTL":           "5m",
				"SCENYX_MAX_MESSAGES_PER_SECOND": "2.5",
				"SCENYX_LOG_LEVEL":               "debug",
				"SCENYX_LOG_FORMAT":              "JSON",
				"SCENYX_ARCHIVE":                 "valkey",
				"SCENYX_VALKEY_ADDR":             "cache:6379",
			},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, 50, c.ChatHistoryLimit)
				assert.Equal(t, 280, c.ChatMaxLength)
				assert.Equal(t, 5*time.Minute, c.RoomIdleTTL)
				assert.Equal(t, 2.5, c.MaxMessagesPerSecond)
				assert.Equal(t, slog.LevelDebug, c.LogLevel)
				assert.Equal(t, "json", c.LogFormat)
				assert.Equal(t, "cache:6379", c.ValkeyAddr)
			},
		},
		{
			name:    "BadHistoryLimit",
			env:     map[string]string{"SCENYX_CHAT_HISTORY_LIMIT": "-1"},
			wantErr: true,
		},
		{
			name:    "BadIdleTTL",
			env:     map[string]string{"SCENYX_ROOM_IDLE_TTL": "soon"},
			wantErr: true,
		},
		{
			name:    "BadRate",
			env:     map[string]string{"SCENYX_MAX_MESSAGES_PER_SECOND": "0"},
			wantErr: true,
		},
		{
			name:    "BadLogLevel",
			env:     map[string]string{"SCENYX_LOG_LEVEL": "loud"},
			wantErr: true,
		},
		{
			name:    "BadLogFormat",
			env:     map[string]string{"SCENYX_LOG_FORMAT": "xml"},
			wantErr: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clearAllEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			c, err := Load()
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tc.check != nil {
				tc.check(t, c)
			}
		})
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	clearAllEnv(t)
	// godotenv does not override variables that are already set, even to "".
	os.Unsetenv("SCENYX_HTTP_ADDR")
	os.Unsetenv("SCENYX_NATS_URL")

	dir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("SCENYX_HTTP_ADDR=:9999\nSCENYX_NATS_URL=nats://bus:4222\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("SCENYX_HTTP_ADDR")
		os.Unsetenv("SCENYX_NATS_URL")
	})

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9999", c.HTTPAddr)
	assert.Equal(t, "nats://bus:4222", c.NATSURL)
}
