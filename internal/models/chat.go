package models

import (
	"time"
	"unicode/utf8"
)

// ChatMessage is one accepted chat line in a concert room.
type ChatMessage struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"senderId"`
	DisplayName string    `json:"displayName"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
}

// ReactionKind is one of the fixed reaction kinds a participant can send.
type ReactionKind string

const (
	ReactionFire  ReactionKind = "fire"
	ReactionHeart ReactionKind = "heart"
	ReactionClap  ReactionKind = "clap"
)

// ReactionKinds lists every accepted kind in display order.
var ReactionKinds = []ReactionKind{ReactionFire, ReactionHeart, ReactionClap}

// Valid reports whether k is one of ReactionKinds.
func (k ReactionKind) Valid() bool {
	for _, known := range ReactionKinds {
		if k == known {
			return true
		}
	}
	return false
}

// History is the chat tail and the aggregate reaction counters of a concert.
// Counters only carry kinds that were reacted at least once.
type History struct {
	Chats     []ChatMessage          `json:"chats"`
	Reactions map[ReactionKind]int64 `json:"reactions"`
}

// MaxDisplayNameLength bounds display names accepted at join.
const MaxDisplayNameLength = 64

// RuneLen returns the number of characters in s.
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}
