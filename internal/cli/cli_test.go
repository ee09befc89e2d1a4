package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vasu1712/scenyx-live/internal/api/concerts"
	"github.com/Vasu1712/scenyx-live/internal/models"
	"github.com/Vasu1712/scenyx-live/internal/storage"
	"github.com/Vasu1712/scenyx-live/internal/storage/memory"
	"github.com/Vasu1712/scenyx-live/internal/ws"
)

func newServer(t *testing.T) (*httptest.Server, *memory.ConcertStore) {
	t.Helper()
	store := memory.NewConcertStore()
	service := ws.NewService(ws.ServiceConfig{}, ws.ServiceDeps{Concerts: store})
	r := mux.NewRouter()
	concerts.RegisterConcertRoutes(r, concerts.NewConcertHandler(store, service, nil, "*"))
	server := httptest.NewServer(r)
	t.Cleanup(func() {
		service.Shutdown()
		server.Close()
	})
	return server, store
}

// writeConfig writes a config file so tests never read $HOME/.scenyx.yaml.
func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenyx.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand(viper.New())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestInfo(t *testing.T) {
	server, store := newServer(t)
	c, err := store.CreateConcert(context.Background(), storage.NewConcert{
		Title:           "Night Set",
		HostID:          "h1",
		HostDisplayName: "DJ",
		Setlist: []models.SetlistEntry{
			{Title: "Intro"},
			{Title: "Drop", Artist: "Crew"},
		},
	})
	require.NoError(t, err)

	cfg := writeConfig(t, "server: "+server.URL+"\n")
	out, err := execute(t, "--config", cfg, "info", c.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Night Set\nhosted by DJ\n")
	assert.Contains(t, out, "listeners: 0")
	assert.Contains(t, out, "reactions: fire 0, heart 0, clap 0")
	assert.Contains(t, out, "  1. Intro\n  2. Drop - Crew\n")
}

func TestInfo_NotFound(t *testing.T) {
	server, _ := newServer(t)
	cfg := writeConfig(t, "")

	_, err := execute(t, "--config", cfg, "--server", server.URL, "info", "missing")
	require.Error(t, err)
	assert.Equal(t, "concert missing not found", err.Error())
}

func TestList(t *testing.T) {
	server, store := newServer(t)
	cfg := writeConfig(t, "")

	out, err := execute(t, "--config", cfg, "--server", server.URL, "list")
	require.NoError(t, err)
	assert.Equal(t, "no concerts\n", out)

	_, err = store.CreateConcert(context.Background(), storage.NewConcert{Title: "Solo", HostID: "h1"})
	require.NoError(t, err)
	out, err = execute(t, "--config", cfg, "--server", server.URL, "list", "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "Solo  (h1)")
}

func TestListen_RequiresIdentity(t *testing.T) {
	cfg := writeConfig(t, "")
	_, err := execute(t, "--config", cfg, "listen", "c1")
	assert.EqualError(t, err, "--user-id and --name are required without a session token")
}

func TestConfig_EnvOverridesFile(t *testing.T) {
	server, _ := newServer(t)
	cfg := writeConfig(t, "server: http://127.0.0.1:1\n")
	t.Setenv("SCENYX_SERVER", server.URL)

	out, err := execute(t, "--config", cfg, "list")
	require.NoError(t, err)
	assert.Equal(t, "no concerts\n", out)
}
