package postgres

import (
	"context"
	"fmt"

	"github.com/Vasu1712/scenyx-live/internal/models"
)

// AppendChat archives an accepted chat. Re-archiving the same message id is a no-op.
func (s *Store) AppendChat(ctx context.Context, concertID string, msg models.ChatMessage) error {
	query := `INSERT INTO concert_chats (id, concert_id, sender_id, display_name, message, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (id) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, query,
		msg.ID, concertID, msg.SenderID, msg.DisplayName, msg.Message, msg.Timestamp,
	); err != nil {
		return fmt.Errorf("archive chat for concert %s: %w", concertID, err)
	}
	return nil
}

// AddReaction increments the archived counter for kind.
func (s *Store) AddReaction(ctx context.Context, concertID string, kind models.ReactionKind) error {
	query := `INSERT INTO concert_reactions (concert_id, kind, total) VALUES ($1, $2, 1)
		ON CONFLICT (concert_id, kind) DO UPDATE SET total = concert_reactions.total + 1`
	if _, err := s.db.ExecContext(ctx, query, concertID, string(kind)); err != nil {
		return fmt.Errorf("archive reaction for concert %s: %w", concertID, err)
	}
	return nil
}

// LoadHistory returns the limit most recent chats, oldest first, and every
// non-zero counter.
func (s *Store) LoadHistory(ctx context.Context, concertID string, limit int) (models.History, error) {
	h := models.History{
		Chats:     []models.ChatMessage{},
		Reactions: map[models.ReactionKind]int64{},
	}

	query := `SELECT id, sender_id, display_name, message, sent_at FROM (
			SELECT id, sender_id, display_name, message, sent_at FROM concert_chats
			WHERE concert_id = $1 ORDER BY sent_at DESC, id DESC LIMIT $2
		) recent ORDER BY sent_at, id`
	rows, err := s.db.QueryContext(ctx, query, concertID, limit)
	if err != nil {
		return h, fmt.Errorf("load chats for concert %s: %w", concertID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var msg models.ChatMessage
		if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.DisplayName, &msg.Message, &msg.Timestamp); err != nil {
			return h, fmt.Errorf("scan chat: %w", err)
		}
		h.Chats = append(h.Chats, msg)
	}
	if err := rows.Err(); err != nil {
		return h, fmt.Errorf("iterate chats: %w", err)
	}

	counters, err := s.db.QueryContext(ctx, `SELECT kind, total FROM concert_reactions WHERE concert_id = $1 AND total > 0`, concertID)
	if err != nil {
		return h, fmt.Errorf("load reactions for concert %s: %w", concertID, err)
	}
	defer counters.Close()
	for counters.Next() {
		var (
			kind  string
			total int64
		)
		if err := counters.Scan(&kind, &total); err != nil {
			return h, fmt.Errorf("scan reaction: %w", err)
		}
		h.Reactions[models.ReactionKind(kind)] = total
	}
	if err := counters.Err(); err != nil {
		return h, fmt.Errorf("iterate reactions: %w", err)
	}
	return h, nil
}
