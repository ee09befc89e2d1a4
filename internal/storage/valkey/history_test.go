package valkey

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vasu1712/scenyx-live/internal/models"
)

// newTestArchive connects to the server named by SCENYX_TEST_VALKEY_ADDR or
// skips the test.
func newTestArchive(t *testing.T, limit int) *HistoryArchive {
	t.Helper()
	addr := os.Getenv("SCENYX_TEST_VALKEY_ADDR")
	if addr == "" {
		t.Skip("SCENYX_TEST_VALKEY_ADDR not set")
	}
	a, err := NewHistoryArchive(addr, limit)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "scenyx:concert:c1:chats", chatsKey("c1"))
	assert.Equal(t, "scenyx:concert:c1:reactions", reactionsKey("c1"))
}

func TestHistoryArchive_RoundTrip(t *testing.T) {
	a := newTestArchive(t, 3)
	ctx := context.Background()
	concertID := "test-" + uuid.NewString()
	t.Cleanup(func() {
		a.client.Do(ctx, a.client.B().Del().Key(chatsKey(concertID), reactionsKey(concertID)).Build())
	})

	ts := time.Date(2026, 5, 2, 21, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, a.AppendChat(ctx, concertID, models.ChatMessage{
			ID:        fmt.Sprint(i),
			Message:   fmt.Sprintf("m%d", i),
			Timestamp: ts.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, a.AddReaction(ctx, concertID, models.ReactionClap))
	require.NoError(t, a.AddReaction(ctx, concertID, models.ReactionClap))

	h, err := a.LoadHistory(ctx, concertID, 10)
	require.NoError(t, err)
	require.Len(t, h.Chats, 3)
	assert.Equal(t, "m2", h.Chats[0].Message)
	assert.Equal(t, "m4", h.Chats[2].Message)
	assert.Equal(t, int64(2), h.Reactions[models.ReactionClap])
}

func TestHistoryArchive_UnknownConcertIsEmpty(t *testing.T) {
	a := newTestArchive(t, 10)

	h, err := a.LoadHistory(context.Background(), "missing-"+uuid.NewString(), 10)
	require.NoError(t, err)
	assert.Empty(t, h.Chats)
	assert.Empty(t, h.Reactions)
}
