package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vasu1712/scenyx-live/internal/models"
)

// startTestNATS starts an embedded NATS server and returns its client URL.
func startTestNATS(t *testing.T) string {
	t.Helper()
	opts := &natsserver.Options{Host: "127.0.0.1", Port: -1}
	srv, err := natsserver.NewServer(opts)
	require.NoError(t, err, "starting embedded NATS")
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

func TestNATSPublisher_PublishesConcertEvents(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	require.NoError(t, err)
	defer pub.Close()

	nc, err := nats.Connect(url)
	require.NoError(t, err)
	defer nc.Close()

	msgs := make(chan *nats.Msg, 4)
	sub, err := nc.ChanSubscribe(SubjectPrefix+".c1.>", msgs)
	require.NoError(t, err)
	defer sub.Unsubscribe()
	require.NoError(t, nc.Flush())

	ts := time.Date(2026, 5, 2, 21, 0, 0, 0, time.UTC)
	err = pub.Publish(context.Background(), Subject("c1", TypeReaction), ConcertEvent{
		ConcertID:   "c1",
		Type:        TypeReaction,
		DisplayName: "Ana",
		Kind:        models.ReactionFire,
		TotalCount:  2,
		Timestamp:   ts,
	})
	require.NoError(t, err)

	select {
	case msg := <-msgs:
		assert.Equal(t, "concerts.c1.reaction", msg.Subject)
		var got ConcertEvent
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, models.ReactionFire, got.Kind)
		assert.Equal(t, int64(2), got.TotalCount)
		assert.True(t, ts.Equal(got.Timestamp))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestNATSPublisher_CancelledContext(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	require.NoError(t, err)
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, pub.Publish(ctx, Subject("c1", TypeChat), ConcertEvent{}), context.Canceled)
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "concerts.abc.leave", Subject("abc", TypeLeave))
}
