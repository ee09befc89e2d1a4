package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Vasu1712/scenyx-live/internal/models"
)

func TestParseCommand(t *testing.T) {
	for _, tc := range []struct {
		in      string
		cmd     string
		command bool
	}{
		{"/fire", "fire", true},
		{"  /Reconnect ", "reconnect", true},
		{"hello /fire", "", false},
		{"", "", false},
	} {
		cmd, ok := parseCommand(tc.in)
		assert.Equal(t, tc.command, ok, tc.in)
		assert.Equal(t, tc.cmd, cmd, tc.in)
	}
}

func TestRenderHeader(t *testing.T) {
	s := Snapshot{
		State: StateJoined,
		Concert: &models.Concert{
			Title:           "Night [Set]",
			HostDisplayName: "DJ",
			Setlist:         []models.SetlistEntry{{Position: 1, Title: "Intro"}, {Position: 2, Title: "Drop"}},
		},
		Counters: map[models.ReactionKind]int64{models.ReactionFire: 7},
		Overlay:  map[models.ReactionKind]int{models.ReactionFire: 2},
	}
	out := renderHeader(s)
	assert.Contains(t, out, "Night [Set[]")
	assert.Contains(t, out, "hosted by DJ")
	assert.Contains(t, out, "1. Intro  2. Drop")
	assert.Contains(t, out, "live")
	assert.Contains(t, out, "🔥 7 [yellow]+2")
	assert.Contains(t, out, "👏 0")

	s.State = StateClosed
	assert.Contains(t, renderHeader(s), "disconnected")
	assert.Contains(t, renderHeader(Snapshot{State: StateNotFound}), "concert not found")
}

func TestRenderEntry(t *testing.T) {
	ts := time.Date(2026, 5, 1, 20, 15, 0, 0, time.Local)
	assert.Equal(t, "[white][20:15:00] [blue]Ana[white]: hi",
		renderEntry(Entry{Kind: EntryChat, DisplayName: "Ana", Text: "hi", Timestamp: ts}))
	assert.Equal(t, "[gray][20:15:00] Bo left[white]",
		renderEntry(Entry{Kind: EntrySystem, Text: "Bo left", Timestamp: ts}))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "not_found", StateNotFound.String())
	assert.Equal(t, "State(9)", State(9).String())
}
