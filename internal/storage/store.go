// Package storage declares the persistence boundaries used by the concert
// room: concert metadata and the archived chat/reaction history.
package storage

import (
	"context"
	"errors"

	"github.com/Vasu1712/scenyx-live/internal/models"
)

// ErrNotFound is returned when the requested concert does not exist.
var ErrNotFound = errors.New("storage: not found")

// NewConcert holds the fields a host supplies when creating a concert.
type NewConcert struct {
	Title           string
	Description     string
	HostID          string
	HostDisplayName string
	Setlist         []models.SetlistEntry
}

// ConcertStore reads and creates concert metadata. Concerts are immutable
// once created.
type ConcertStore interface {
	GetConcert(ctx context.Context, id string) (*models.Concert, error)
	ListConcerts(ctx context.Context, limit int) ([]*models.Concert, error)
	CreateConcert(ctx context.Context, in NewConcert) (*models.Concert, error)
	Close() error
}

// HistoryArchive keeps the recent chat tail and reaction counters of each
// concert beyond the lifetime of the in-memory room.
type HistoryArchive interface {
	// LoadHistory returns up to limit most recent chats, oldest first, and
	// the counters. An unknown concert yields an empty history, not an error.
	LoadHistory(ctx context.Context, concertID string, limit int) (models.History, error)
	AppendChat(ctx context.Context, concertID string, msg models.ChatMessage) error
	AddReaction(ctx context.Context, concertID string, kind models.ReactionKind) error
	Close() error
}
