package memory

import (
	"context"
	"sync"

	"github.com/Vasu1712/scenyx-live/internal/models"
)

// HistoryArchive keeps a bounded chat tail and reaction counters per concert
// in memory. It outlives reaped rooms but not the process.
type HistoryArchive struct {
	mu        sync.RWMutex
	limit     int
	chats     map[string][]models.ChatMessage          // concertID -> chat tail
	reactions map[string]map[models.ReactionKind]int64 // concertID -> counters
}

// NewHistoryArchive creates an archive keeping at most limit chats per concert.
func NewHistoryArchive(limit int) *HistoryArchive {
	if limit <= 0 {
		limit = 200
	}
	return &HistoryArchive{
		limit:     limit,
		chats:     make(map[string][]models.ChatMessage),
		reactions: make(map[string]map[models.ReactionKind]int64),
	}
}

func (a *HistoryArchive) AppendChat(_ context.Context, concertID string, msg models.ChatMessage) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	chats := append(a.chats[concertID], msg)
	if over := len(chats) - a.limit; over > 0 {
		chats = append(chats[:0], chats[over:]...)
	}
	a.chats[concertID] = chats
	return nil
}

func (a *HistoryArchive) AddReaction(_ context.Context, concertID string, kind models.ReactionKind) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	counters, ok := a.reactions[concertID]
	if !ok {
		counters = make(map[models.ReactionKind]int64)
		a.reactions[concertID] = counters
	}
	counters[kind]++
	return nil
}

// LoadHistory returns the most recent min(limit, stored) chats and a copy of
// the counters.
func (a *HistoryArchive) LoadHistory(_ context.Context, concertID string, limit int) (models.History, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	chats := a.chats[concertID]
	if limit > 0 && len(chats) > limit {
		chats = chats[len(chats)-limit:]
	}
	h := models.History{
		Chats:     append([]models.ChatMessage(nil), chats...),
		Reactions: make(map[models.ReactionKind]int64, len(a.reactions[concertID])),
	}
	for kind, n := range a.reactions[concertID] {
		h.Reactions[kind] = n
	}
	return h, nil
}

func (a *HistoryArchive) Close() error { return nil }
