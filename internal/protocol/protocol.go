// Package protocol defines the message envelope exchanged over a concert
// channel. Server and client both encode and decode through these types so
// the two sides cannot drift apart.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Vasu1712/scenyx-live/internal/models"
)

// MessageType names the kind of payload carried by an Envelope.
type MessageType string

// Client -> server, and server -> client where the name is shared.
const (
	TypeJoin     MessageType = "join"
	TypeChat     MessageType = "chat"
	TypeReaction MessageType = "reaction"
	TypeHistory  MessageType = "history"
	TypeLeave    MessageType = "leave"
	TypeError    MessageType = "error"
)

// Error codes carried by ErrorNotice. Errors are only ever sent to the
// participant that caused them.
const (
	CodeMalformed       = "malformed"
	CodeNotJoined       = "not_joined"
	CodeInvalidIdentity = "invalid_identity"
	CodeInvalidMessage  = "invalid_message"
	CodeInvalidReaction = "invalid_reaction"
	CodeRateLimited     = "rate_limited"
	CodeNotFound        = "not_found"
	CodeUnavailable     = "unavailable"
)

// CloseConcertNotFound is the websocket close code sent after a not_found error.
const CloseConcertNotFound = 4404

// Envelope is the frame shape for every message in both directions.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JoinRequest is sent once by the client right after the channel opens.
type JoinRequest struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

// ChatRequest carries a chat line typed by the participant.
type ChatRequest struct {
	Message string `json:"message"`
}

// ReactionRequest carries one reaction.
type ReactionRequest struct {
	Kind models.ReactionKind `json:"kind"`
}

// HistoryPayload is unicast to a participant right after admission.
type HistoryPayload struct {
	ChatLog          []models.ChatMessage          `json:"chatLog"`
	ReactionCounters map[models.ReactionKind]int64 `json:"reactionCounters"`
}

// JoinNotice tells the other participants that someone arrived.
type JoinNotice struct {
	DisplayName string    `json:"displayName"`
	Timestamp   time.Time `json:"timestamp"`
}

// ReactionNotice carries the updated aggregate for one kind.
type ReactionNotice struct {
	Kind        models.ReactionKind `json:"kind"`
	TotalCount  int64               `json:"totalCount"`
	DisplayName string              `json:"displayName"`
	Timestamp   time.Time           `json:"timestamp"`
}

// LeaveNotice tells the remaining participants that someone left.
type LeaveNotice struct {
	DisplayName string    `json:"displayName"`
	Timestamp   time.Time `json:"timestamp"`
}

// ErrorNotice reports a rejected inbound message to its sender.
type ErrorNotice struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrMalformed is returned when a frame or its payload cannot be decoded.
var ErrMalformed = errors.New("protocol: malformed message")

// New builds an envelope around payload.
func New(t MessageType, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("protocol: encode %s payload: %w", t, err)
	}
	return Envelope{Type: t, Payload: raw}, nil
}

// Encode marshals an envelope with the given payload into one frame.
func Encode(t MessageType, payload any) ([]byte, error) {
	env, err := New(t, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// Marshal encodes an already built envelope into one frame.
func Marshal(env Envelope) ([]byte, error) {
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return json.Marshal(env)
}

// Decode parses a frame into an envelope. The payload is left raw.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return env, nil
}

// Unmarshal decodes the envelope payload into v.
func (e Envelope) Unmarshal(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%w: %s without payload", ErrMalformed, e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformed, e.Type, err)
	}
	return nil
}

// NewHistory returns a history payload whose collections encode as [] and {}
// rather than null.
func NewHistory(chats []models.ChatMessage, counters map[models.ReactionKind]int64) HistoryPayload {
	if chats == nil {
		chats = []models.ChatMessage{}
	}
	if counters == nil {
		counters = map[models.ReactionKind]int64{}
	}
	return HistoryPayload{ChatLog: chats, ReactionCounters: counters}
}
