package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Vasu1712/scenyx-live/internal/events"
	"github.com/Vasu1712/scenyx-live/internal/models"
	"github.com/Vasu1712/scenyx-live/internal/protocol"
	"github.com/Vasu1712/scenyx-live/internal/storage"
)

// ConcertLookup resolves concert metadata at join time.
type ConcertLookup interface {
	GetConcert(ctx context.Context, id string) (*models.Concert, error)
}

// ServiceConfig tunes protocol validation. Zero values fall back to defaults.
type ServiceConfig struct {
	MaxChatLength        int
	MaxMessagesPerSecond float64
	MessageBurst         int
	// ArchiveTimeout bounds each call into the history archive.
	ArchiveTimeout time.Duration
}

const (
	DefaultMaxChatLength        = 500
	DefaultMaxMessagesPerSecond = 10
	DefaultMessageBurst         = 20
	DefaultArchiveTimeout       = 2 * time.Second
)

// ServiceDeps are the collaborators of a Service. Archive may be nil.
type ServiceDeps struct {
	Registry    *Registry
	Broadcaster *Broadcaster
	Metrics     *Metrics
	Concerts    ConcertLookup
	Archive     storage.HistoryArchive
	Clock       func() time.Time
}

// Service runs the concert protocol over participant channels.
type Service struct {
	cfg         ServiceConfig
	registry    *Registry
	broadcaster *Broadcaster
	metrics     *Metrics
	concerts    ConcertLookup
	archive     storage.HistoryArchive
	archiver    *archiver
	clock       func() time.Time

	mu       sync.Mutex
	channels map[*Channel]struct{}
	closing  bool
}

func NewService(cfg ServiceConfig, deps ServiceDeps) *Service {
	if cfg.MaxChatLength <= 0 {
		cfg.MaxChatLength = DefaultMaxChatLength
	}
	if cfg.MaxMessagesPerSecond <= 0 {
		cfg.MaxMessagesPerSecond = DefaultMaxMessagesPerSecond
	}
	if cfg.MessageBurst <= 0 {
		cfg.MessageBurst = DefaultMessageBurst
	}
	if cfg.ArchiveTimeout <= 0 {
		cfg.ArchiveTimeout = DefaultArchiveTimeout
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics()
	}
	if deps.Registry == nil {
		deps.Registry = NewRegistry(RegistryConfig{})
	}
	if deps.Broadcaster == nil {
		deps.Broadcaster = NewBroadcaster(deps.Registry, deps.Metrics)
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	s := &Service{
		cfg:         cfg,
		registry:    deps.Registry,
		broadcaster: deps.Broadcaster,
		metrics:     deps.Metrics,
		concerts:    deps.Concerts,
		archive:     deps.Archive,
		clock:       deps.Clock,
		channels:    make(map[*Channel]struct{}),
	}
	if s.archive != nil {
		s.archiver = newArchiver(s.archive, cfg.ArchiveTimeout)
	}
	return s
}

// Registry returns the registry the service admits participants into.
func (s *Service) Registry() *Registry { return s.registry }

// Metrics returns the service counters.
func (s *Service) Metrics() *Metrics { return s.metrics }

// ServeChannel runs the protocol on conn for concertID until the channel
// closes. identity, when non-nil, overrides the identity sent in join.
func (s *Service) ServeChannel(ctx context.Context, conn Conn, concertID string, identity *Identity) {
	c := newChannel(conn, s, concertID, identity)

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		c.CloseWith(websocket.CloseGoingAway, "server shutting down")
		c.writePump()
		return
	}
	s.channels[c] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.channels, c)
		s.mu.Unlock()
	}()

	slog.Debug("channel: opened", "concert_id", concertID)
	c.Serve(ctx)
	slog.Debug("channel: closed", "concert_id", concertID)
}

// Shutdown closes every open channel and flushes pending archive writes.
// Channels opened afterwards are closed straight away.
func (s *Service) Shutdown() {
	s.mu.Lock()
	s.closing = true
	open := make([]*Channel, 0, len(s.channels))
	for c := range s.channels {
		open = append(open, c)
	}
	s.mu.Unlock()

	for _, c := range open {
		c.CloseWith(websocket.CloseGoingAway, "server shutting down")
	}
	slog.Info("service: closed channels", "count", len(open))

	if s.archiver != nil {
		s.archiver.close()
	}
}

func (s *Service) handle(ctx context.Context, c *Channel, frame []byte) {
	env, err := protocol.Decode(frame)
	if err != nil {
		s.reject(c, protocol.CodeMalformed, "message is not a valid envelope")
		return
	}

	if env.Type != protocol.TypeJoin && c.State() != StateJoined {
		s.reject(c, protocol.CodeNotJoined, "join the concert first")
		return
	}

	switch env.Type {
	case protocol.TypeJoin:
		s.join(ctx, c, env)
	case protocol.TypeChat:
		s.chat(c, env)
	case protocol.TypeReaction:
		s.react(c, env)
	default:
		s.reject(c, protocol.CodeMalformed, "unknown message type "+string(env.Type))
	}
}

func (s *Service) join(ctx context.Context, c *Channel, env protocol.Envelope) {
	if c.State() != StateConnecting {
		slog.Debug("service: duplicate join dropped", "concert_id", c.concertID)
		return
	}

	var req protocol.JoinRequest
	if err := env.Unmarshal(&req); err != nil {
		s.reject(c, protocol.CodeMalformed, "join payload is invalid")
		return
	}
	userID := strings.TrimSpace(req.UserID)
	displayName := strings.TrimSpace(req.DisplayName)
	if c.identity != nil {
		userID = c.identity.UserID
		if c.identity.DisplayName != "" {
			displayName = c.identity.DisplayName
		}
	}
	if userID == "" || displayName == "" || models.RuneLen(displayName) > models.MaxDisplayNameLength {
		s.reject(c, protocol.CodeInvalidIdentity, "userId and displayName are required")
		return
	}

	if s.concerts != nil {
		concert, err := s.concerts.GetConcert(ctx, c.concertID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			s.reject(c, protocol.CodeNotFound, "concert not found")
			c.CloseWith(protocol.CloseConcertNotFound, "concert not found")
			return
		case err != nil:
			slog.Error("service: concert lookup", "concert_id", c.concertID, "error", err)
			s.reject(c, protocol.CodeUnavailable, "concert lookup failed, try again")
			return
		}
		slog.Debug("service: concert resolved", "concert_id", concert.ID, "title", concert.Title)
	}

	s.seed(ctx, c.concertID)

	p := NewParticipant(c.concertID, userID, displayName, c)
	now := s.clock()
	var failed []*Participant
	_, err := s.registry.Admit(c.concertID, p, func(snapshot models.History, others []*Participant) {
		history, err := protocol.Encode(protocol.TypeHistory, protocol.NewHistory(snapshot.Chats, snapshot.Reactions))
		if err != nil {
			slog.Error("service: encode history", "error", err)
			return
		}
		failed = append(failed, s.broadcaster.Deliver([]*Participant{p}, history)...)

		notice, err := protocol.Encode(protocol.TypeJoin, protocol.JoinNotice{DisplayName: displayName, Timestamp: now})
		if err != nil {
			slog.Error("service: encode join", "error", err)
			return
		}
		failed = append(failed, s.broadcaster.Deliver(others, notice)...)
	})
	if err != nil {
		s.reject(c, protocol.CodeInvalidIdentity, "admission refused")
		return
	}
	c.participant = p
	c.markJoined()

	slog.Info("service: participant joined",
		"concert_id", c.concertID,
		"participant_id", p.ID,
		"user_id", userID,
		"display_name", displayName)
	s.broadcaster.Evict(c.concertID, failed)
	s.broadcaster.Publish(c.concertID, events.ConcertEvent{
		ConcertID:   c.concertID,
		Type:        events.TypeJoin,
		UserID:      userID,
		DisplayName: displayName,
		Timestamp:   now,
	})
}

// seed loads the archived history for a concert that has no live entry.
func (s *Service) seed(ctx context.Context, concertID string) {
	if s.archive == nil || s.registry.Has(concertID) {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ArchiveTimeout)
	defer cancel()

	history, err := s.archive.LoadHistory(ctx, concertID, s.registry.HistoryLimit())
	if err != nil {
		slog.Warn("service: load archived history", "concert_id", concertID, "error", err)
		return
	}
	if s.registry.Seed(concertID, history) {
		slog.Debug("service: seeded concert from archive",
			"concert_id", concertID,
			"chats", len(history.Chats))
	}
}

func (s *Service) chat(c *Channel, env protocol.Envelope) {
	var req protocol.ChatRequest
	if err := env.Unmarshal(&req); err != nil {
		s.reject(c, protocol.CodeMalformed, "chat payload is invalid")
		return
	}
	text := strings.TrimSpace(req.Message)
	if text == "" || models.RuneLen(text) > s.cfg.MaxChatLength {
		s.reject(c, protocol.CodeInvalidMessage, fmt.Sprintf("message must be 1 to %d characters", s.cfg.MaxChatLength))
		return
	}

	p := c.participant
	var failed []*Participant
	msg, err := s.registry.RecordChat(c.concertID, models.ChatMessage{
		SenderID:    p.UserID,
		DisplayName: p.DisplayName,
		Message:     text,
	}, func(accepted models.ChatMessage, members []*Participant) {
		if s.archiver != nil {
			s.archiver.enqueue(archiveOp{concertID: c.concertID, chat: &accepted})
		}
		frame, err := protocol.Encode(protocol.TypeChat, accepted)
		if err != nil {
			slog.Error("service: encode chat", "error", err)
			return
		}
		failed = s.broadcaster.Deliver(members, frame)
	})
	if err != nil {
		slog.Error("service: record chat", "concert_id", c.concertID, "error", err)
		s.reject(c, protocol.CodeUnavailable, "concert is not live")
		return
	}
	s.broadcaster.Evict(c.concertID, failed)

	s.broadcaster.Publish(c.concertID, events.ConcertEvent{
		ConcertID:   c.concertID,
		Type:        events.TypeChat,
		UserID:      msg.SenderID,
		DisplayName: msg.DisplayName,
		MessageID:   msg.ID,
		Message:     msg.Message,
		Timestamp:   msg.Timestamp,
	})
}

func (s *Service) react(c *Channel, env protocol.Envelope) {
	var req protocol.ReactionRequest
	if err := env.Unmarshal(&req); err != nil {
		s.reject(c, protocol.CodeMalformed, "reaction payload is invalid")
		return
	}
	if !req.Kind.Valid() {
		s.reject(c, protocol.CodeInvalidReaction, "unknown reaction kind "+string(req.Kind))
		return
	}

	p := c.participant
	now := s.clock()
	var failed []*Participant
	total, err := s.registry.RecordReaction(c.concertID, req.Kind, func(total int64, members []*Participant) {
		if s.archiver != nil {
			s.archiver.enqueue(archiveOp{concertID: c.concertID, kind: req.Kind})
		}
		frame, err := protocol.Encode(protocol.TypeReaction, protocol.ReactionNotice{
			Kind:        req.Kind,
			TotalCount:  total,
			DisplayName: p.DisplayName,
			Timestamp:   now,
		})
		if err != nil {
			slog.Error("service: encode reaction", "error", err)
			return
		}
		failed = s.broadcaster.Deliver(members, frame)
	})
	if err != nil {
		slog.Error("service: record reaction", "concert_id", c.concertID, "error", err)
		s.reject(c, protocol.CodeUnavailable, "concert is not live")
		return
	}
	s.broadcaster.Evict(c.concertID, failed)

	s.broadcaster.Publish(c.concertID, events.ConcertEvent{
		ConcertID:   c.concertID,
		Type:        events.TypeReaction,
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		Kind:        req.Kind,
		TotalCount:  total,
		Timestamp:   now,
	})
}

// reject sends an error notice to the channel that caused it. Rejected
// messages never mutate room state and are never broadcast.
func (s *Service) reject(c *Channel, code, message string) {
	s.metrics.ProtocolError()
	slog.Debug("service: rejected message",
		"concert_id", c.concertID,
		"state", c.State().String(),
		"code", code)

	env, err := protocol.New(protocol.TypeError, protocol.ErrorNotice{Code: code, Message: message})
	if err != nil {
		slog.Error("service: encode error notice", "error", err)
		return
	}
	if c.participant != nil {
		// Unreachable participants are evicted with a leave notice.
		s.broadcaster.Unicast(c.participant, env)
		return
	}
	frame, err := protocol.Marshal(env)
	if err != nil {
		slog.Error("service: encode error notice", "error", err)
		return
	}
	if !c.Offer(frame) {
		c.Close()
	}
}
