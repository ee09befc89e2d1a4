package ws

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vasu1712/scenyx-live/internal/models"
)

// fakeSink records offered frames. Setting fail makes every offer fail.
type fakeSink struct {
	mu     sync.Mutex
	frames [][]byte
	fail   bool
	closed bool
}

func (f *fakeSink) Offer(frame []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail || f.closed {
		return false
	}
	f.frames = append(f.frames, frame)
	return true
}

func (f *fakeSink) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSink) Frames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.frames))
	copy(out, f.frames)
	return out
}

func (f *fakeSink) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func newTestParticipant(concertID, name string) (*Participant, *fakeSink) {
	sink := &fakeSink{}
	return NewParticipant(concertID, "user-"+name, name, sink), sink
}

func TestRegistry_AdmitReturnsEmptyHistoryForNewConcert(t *testing.T) {
	r := NewRegistry(RegistryConfig{})
	p, _ := newTestParticipant("c1", "Ana")

	h, err := r.Admit("c1", p, nil)
	require.NoError(t, err)
	assert.Empty(t, h.Chats)
	assert.Empty(t, h.Reactions)
	assert.Equal(t, 1, r.ParticipantCount("c1"))
}

func TestRegistry_AdmitRejectsEmptyInput(t *testing.T) {
	r := NewRegistry(RegistryConfig{})
	p, _ := newTestParticipant("", "Ana")

	_, err := r.Admit("", p, nil)
	assert.ErrorIs(t, err, ErrInvalidAdmission)
	_, err = r.Admit("c1", nil, nil)
	assert.ErrorIs(t, err, ErrInvalidAdmission)
}

func TestRegistry_AdmitCallbackSeesOthers(t *testing.T) {
	r := NewRegistry(RegistryConfig{})
	a, _ := newTestParticipant("c1", "Ana")
	b, _ := newTestParticipant("c1", "Bo")

	_, err := r.Admit("c1", a, nil)
	require.NoError(t, err)

	var others []*Participant
	_, err = r.Admit("c1", b, func(_ models.History, o []*Participant) { others = o })
	require.NoError(t, err)
	require.Len(t, others, 1)
	assert.Same(t, a, others[0])
}

func TestRegistry_DismissIsIdempotent(t *testing.T) {
	r := NewRegistry(RegistryConfig{})
	a, _ := newTestParticipant("c1", "Ana")
	b, _ := newTestParticipant("c1", "Bo")
	_, _ = r.Admit("c1", a, nil)
	_, _ = r.Admit("c1", b, nil)

	calls := 0
	onLeave := func([]*Participant) { calls++ }

	assert.True(t, r.Dismiss("c1", b, onLeave))
	assert.False(t, r.Dismiss("c1", b, onLeave))
	assert.False(t, r.Dismiss("unknown", b, onLeave))

	assert.Equal(t, 1, calls)
	members := r.Participants("c1")
	require.Len(t, members, 1)
	assert.Same(t, a, members[0])
}

func TestRegistry_SameUserTwiceIsTwoParticipants(t *testing.T) {
	r := NewRegistry(RegistryConfig{})
	first := NewParticipant("c1", "u1", "Ana", &fakeSink{})
	second := NewParticipant("c1", "u1", "Ana", &fakeSink{})
	_, _ = r.Admit("c1", first, nil)
	_, _ = r.Admit("c1", second, nil)

	assert.Equal(t, 2, r.ParticipantCount("c1"))
	r.Dismiss("c1", first, nil)
	assert.Equal(t, 1, r.ParticipantCount("c1"))
}

func TestRegistry_AdmitStampsJoinedAtFromClock(t *testing.T) {
	now := time.Date(2026, 5, 2, 20, 30, 0, 0, time.UTC)
	r := NewRegistry(RegistryConfig{Clock: func() time.Time { return now }})

	p, _ := newTestParticipant("c1", "Ana")
	assert.True(t, p.JoinedAt.IsZero())

	_, err := r.Admit("c1", p, nil)
	require.NoError(t, err)
	assert.Equal(t, now, p.JoinedAt)

	members := r.Participants("c1")
	require.Len(t, members, 1)
	assert.Equal(t, now, members[0].JoinedAt)
}

func TestRegistry_RecordChatStampsAndBounds(t *testing.T) {
	now := time.Date(2026, 5, 2, 21, 0, 0, 0, time.UTC)
	r := NewRegistry(RegistryConfig{HistoryLimit: 3, Clock: func() time.Time { return now }})
	p, _ := newTestParticipant("c1", "Ana")
	_, _ = r.Admit("c1", p, nil)

	for i := 1; i <= 5; i++ {
		msg, err := r.RecordChat("c1", models.ChatMessage{SenderID: "u1", DisplayName: "Ana", Message: fmt.Sprintf("m%d", i)}, nil)
		require.NoError(t, err)
		assert.Equal(t, now, msg.Timestamp)
		assert.NotEmpty(t, msg.ID)
	}

	h, ok := r.Snapshot("c1")
	require.True(t, ok)
	require.Len(t, h.Chats, 3)
	assert.Equal(t, "m3", h.Chats[0].Message)
	assert.Equal(t, "m5", h.Chats[2].Message)
}

func TestRegistry_RecordOnUnknownConcert(t *testing.T) {
	r := NewRegistry(RegistryConfig{})

	_, err := r.RecordChat("nope", models.ChatMessage{Message: "hi"}, nil)
	assert.ErrorIs(t, err, ErrUnknownConcert)
	_, err = r.RecordReaction("nope", models.ReactionFire, nil)
	assert.ErrorIs(t, err, ErrUnknownConcert)
}

func TestRegistry_HistorySnapshotAfterPriorActivity(t *testing.T) {
	r := NewRegistry(RegistryConfig{})
	host, _ := newTestParticipant("c1", "Host")
	_, _ = r.Admit("c1", host, nil)

	for i := 0; i < 5; i++ {
		_, err := r.RecordChat("c1", models.ChatMessage{Message: fmt.Sprintf("m%d", i)}, nil)
		require.NoError(t, err)
	}
	for i := 0; i < 3; i++ {
		_, err := r.RecordReaction("c1", models.ReactionFire, nil)
		require.NoError(t, err)
	}

	late, _ := newTestParticipant("c1", "Late")
	h, err := r.Admit("c1", late, nil)
	require.NoError(t, err)

	require.Len(t, h.Chats, 5)
	for i, msg := range h.Chats {
		assert.Equal(t, fmt.Sprintf("m%d", i), msg.Message)
	}
	assert.Equal(t, int64(3), h.Reactions[models.ReactionFire])
	_, hasHeart := h.Reactions[models.ReactionHeart]
	assert.False(t, hasHeart)
}

func TestRegistry_ConcertsAreIsolated(t *testing.T) {
	r := NewRegistry(RegistryConfig{})
	x, _ := newTestParticipant("x", "Ana")
	y, _ := newTestParticipant("y", "Bo")
	_, _ = r.Admit("x", x, nil)
	_, _ = r.Admit("y", y, nil)

	_, err := r.RecordChat("x", models.ChatMessage{Message: "only x"}, nil)
	require.NoError(t, err)
	_, err = r.RecordReaction("x", models.ReactionHeart, nil)
	require.NoError(t, err)

	hy, ok := r.Snapshot("y")
	require.True(t, ok)
	assert.Empty(t, hy.Chats)
	assert.Empty(t, hy.Reactions)
	assert.ElementsMatch(t, []string{"x", "y"}, r.Concerts())
}

func TestRegistry_ConcurrentReactionsAggregate(t *testing.T) {
	r := NewRegistry(RegistryConfig{})
	p, _ := newTestParticipant("c1", "Ana")
	_, _ = r.Admit("c1", p, nil)

	const senders = 50
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.RecordReaction("c1", models.ReactionFire, nil)
			_, _ = r.RecordChat("c1", models.ChatMessage{Message: "hi"}, nil)
		}()
	}
	wg.Wait()

	h, _ := r.Snapshot("c1")
	assert.Equal(t, int64(senders), h.Reactions[models.ReactionFire])
	assert.Len(t, h.Chats, senders)
}

func TestRegistry_SeedOnlyWhenAbsent(t *testing.T) {
	r := NewRegistry(RegistryConfig{HistoryLimit: 2})
	archived := models.History{
		Chats: []models.ChatMessage{
			{ID: "1", Message: "one"},
			{ID: "2", Message: "two"},
			{ID: "3", Message: "three"},
		},
		Reactions: map[models.ReactionKind]int64{models.ReactionClap: 4, models.ReactionHeart: 0},
	}

	assert.True(t, r.Seed("c1", archived))
	assert.False(t, r.Seed("c1", models.History{}))

	p, _ := newTestParticipant("c1", "Ana")
	h, err := r.Admit("c1", p, nil)
	require.NoError(t, err)
	require.Len(t, h.Chats, 2)
	assert.Equal(t, "two", h.Chats[0].Message)
	assert.Equal(t, map[models.ReactionKind]int64{models.ReactionClap: 4}, h.Reactions)
}

func TestRegistry_SweepDropsIdleConcerts(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2026, 5, 2, 21, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	r := NewRegistry(RegistryConfig{IdleTTL: time.Minute, Clock: clock})
	idle, _ := newTestParticipant("idle", "Ana")
	busy, _ := newTestParticipant("busy", "Bo")
	_, _ = r.Admit("idle", idle, nil)
	_, _ = r.Admit("busy", busy, nil)
	r.Dismiss("idle", idle, nil)

	advance(30 * time.Second)
	assert.Equal(t, 0, r.Sweep())

	advance(time.Minute)
	assert.Equal(t, 1, r.Sweep())
	assert.False(t, r.Has("idle"))
	assert.True(t, r.Has("busy"))

	// A reaped concert starts fresh on the next admission.
	again, _ := newTestParticipant("idle", "Ana")
	h, err := r.Admit("idle", again, nil)
	require.NoError(t, err)
	assert.Empty(t, h.Chats)
}

func TestRegistry_ReaperStartStop(t *testing.T) {
	r := NewRegistry(RegistryConfig{IdleTTL: time.Millisecond, SweepInterval: 5 * time.Millisecond})
	p, _ := newTestParticipant("c1", "Ana")
	_, _ = r.Admit("c1", p, nil)
	r.Dismiss("c1", p, nil)

	r.StartReaper()
	defer r.Stop()

	require.Eventually(t, func() bool { return !r.Has("c1") }, time.Second, 5*time.Millisecond)
}
