// Package valkey implements the history archive on Valkey: the chat tail is a
// capped list and the reaction counters are a hash, both keyed by concert.
package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/valkey-io/valkey-go"

	"github.com/Vasu1712/scenyx-live/internal/models"
	"github.com/Vasu1712/scenyx-live/internal/storage"
)

const keyPrefix = "scenyx:concert:"

func chatsKey(concertID string) string     { return keyPrefix + concertID + ":chats" }
func reactionsKey(concertID string) string { return keyPrefix + concertID + ":reactions" }

// HistoryArchive keeps at most limit chats per concert.
type HistoryArchive struct {
	client valkey.Client
	limit  int64
}

var _ storage.HistoryArchive = (*HistoryArchive)(nil)

// NewHistoryArchive connects to the Valkey server at addr.
func NewHistoryArchive(addr string, limit int) (*HistoryArchive, error) {
	client, err := valkey.NewClient(valkey.ClientOption{InitAddress: []string{addr}})
	if err != nil {
		return nil, fmt.Errorf("connect to valkey at %s: %w", addr, err)
	}
	if limit <= 0 {
		limit = 200
	}
	slog.Info("valkey: connected", "addr", addr)
	return &HistoryArchive{client: client, limit: int64(limit)}, nil
}

// AppendChat pushes msg onto the concert's list and trims it to the limit.
func (a *HistoryArchive) AppendChat(ctx context.Context, concertID string, msg models.ChatMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode chat: %w", err)
	}
	key := chatsKey(concertID)
	for _, resp := range a.client.DoMulti(ctx,
		a.client.B().Rpush().Key(key).Element(string(data)).Build(),
		a.client.B().Ltrim().Key(key).Start(-a.limit).Stop(-1).Build(),
	) {
		if err := resp.Error(); err != nil {
			return fmt.Errorf("archive chat for concert %s: %w", concertID, err)
		}
	}
	return nil
}

// AddReaction increments the counter for kind.
func (a *HistoryArchive) AddReaction(ctx context.Context, concertID string, kind models.ReactionKind) error {
	cmd := a.client.B().Hincrby().Key(reactionsKey(concertID)).Field(string(kind)).Increment(1).Build()
	if err := a.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("archive reaction for concert %s: %w", concertID, err)
	}
	return nil
}

// LoadHistory returns the limit most recent chats, oldest first, and the counters.
func (a *HistoryArchive) LoadHistory(ctx context.Context, concertID string, limit int) (models.History, error) {
	h := models.History{
		Chats:     []models.ChatMessage{},
		Reactions: map[models.ReactionKind]int64{},
	}
	n := int64(limit)
	if n <= 0 || n > a.limit {
		n = a.limit
	}

	raw, err := a.client.Do(ctx, a.client.B().Lrange().Key(chatsKey(concertID)).Start(-n).Stop(-1).Build()).AsStrSlice()
	if err != nil && !valkey.IsValkeyNil(err) {
		return h, fmt.Errorf("load chats for concert %s: %w", concertID, err)
	}
	for _, item := range raw {
		var msg models.ChatMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			slog.Warn("valkey: skipping undecodable chat", "concert_id", concertID, "error", err)
			continue
		}
		h.Chats = append(h.Chats, msg)
	}

	counters, err := a.client.Do(ctx, a.client.B().Hgetall().Key(reactionsKey(concertID)).Build()).AsIntMap()
	if err != nil && !valkey.IsValkeyNil(err) {
		return h, fmt.Errorf("load reactions for concert %s: %w", concertID, err)
	}
	for kind, total := range counters {
		if total > 0 {
			h.Reactions[models.ReactionKind(kind)] = total
		}
	}
	return h, nil
}

// Close closes the client.
func (a *HistoryArchive) Close() error {
	a.client.Close()
	return nil
}
