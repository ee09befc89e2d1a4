// Package events publishes accepted concert room events to an external bus so
// services outside the realtime core (feed, analytics) can follow live rooms.
// Publishing is best effort and never affects delivery inside a room.
package events

import (
	"context"
	"time"

	"github.com/Vasu1712/scenyx-live/internal/models"
)

// Event type suffixes, appended to the concert subject.
const (
	TypeJoin     = "join"
	TypeLeave    = "leave"
	TypeChat     = "chat"
	TypeReaction = "reaction"
)

// SubjectPrefix is the root of every subject published by this package.
const SubjectPrefix = "concerts"

// Publisher sends events to a topic.
type Publisher interface {
	Publish(ctx context.Context, subject string, event any) error
	Close() error
}

// ConcertEvent is the payload published for every accepted room event.
type ConcertEvent struct {
	ConcertID   string              `json:"concertId"`
	Type        string              `json:"type"`
	UserID      string              `json:"userId,omitempty"`
	DisplayName string              `json:"displayName,omitempty"`
	MessageID   string              `json:"messageId,omitempty"`
	Message     string              `json:"message,omitempty"`
	Kind        models.ReactionKind `json:"kind,omitempty"`
	TotalCount  int64               `json:"totalCount,omitempty"`
	Timestamp   time.Time           `json:"timestamp"`
}

// Subject returns the subject an event of the given type is published on,
// e.g. "concerts.<id>.chat".
func Subject(concertID, eventType string) string {
	return SubjectPrefix + "." + concertID + "." + eventType
}
