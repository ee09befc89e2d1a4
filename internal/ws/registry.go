package ws

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/Vasu1712/scenyx-live/internal/models"
)

var (
	// ErrUnknownConcert is returned when an operation targets a concert with no live entry.
	ErrUnknownConcert = errors.New("ws: no live entry for concert")
	// ErrInvalidAdmission is returned by Admit for an empty concert id or a nil participant.
	ErrInvalidAdmission = errors.New("ws: invalid admission")
)

// Sink receives encoded frames for one participant. Offer must never block;
// it reports false when the frame could not be queued.
type Sink interface {
	Offer(frame []byte) bool
	Close()
}

// Participant is one connected viewer of a concert. Each physical connection
// is a distinct participant even when two share a user id.
type Participant struct {
	ID          string
	ConcertID   string
	UserID      string
	DisplayName string
	JoinedAt    time.Time

	sink Sink
}

// NewParticipant returns a participant reachable through sink. JoinedAt is
// stamped by the registry on admission.
func NewParticipant(concertID, userID, displayName string, sink Sink) *Participant {
	return &Participant{
		ID:          uuid.NewString(),
		ConcertID:   concertID,
		UserID:      userID,
		DisplayName: displayName,
		sink:        sink,
	}
}

// RegistryConfig tunes the registry. Zero values fall back to defaults.
type RegistryConfig struct {
	// HistoryLimit bounds the chat log kept per concert. Default 200.
	HistoryLimit int
	// IdleTTL is how long an entry with no participants survives before the
	// reaper drops it. Default 30 minutes.
	IdleTTL time.Duration
	// SweepInterval is how often the reaper runs. Default 1 minute.
	SweepInterval time.Duration
	// Clock stamps admissions, accepted chat messages and idle time.
	// Default time.Now.
	Clock func() time.Time
}

const (
	DefaultHistoryLimit  = 200
	DefaultIdleTTL       = 30 * time.Minute
	DefaultSweepInterval = time.Minute
)

// concertRoom is the live state of one concert. All fields are guarded by mu.
type concertRoom struct {
	mu           sync.Mutex
	id           string
	participants map[*Participant]struct{}
	chats        []models.ChatMessage
	reactions    map[models.ReactionKind]int64
	idleSince    time.Time
	removed      bool
}

// Registry maps concert ids to their live state. Operations on one concert
// are serialized by that concert's lock; different concerts never contend.
type Registry struct {
	cfg RegistryConfig

	mu       sync.Mutex
	concerts map[string]*concertRoom

	reaperStop chan struct{}
	reaperDone chan struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultIdleTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Registry{
		cfg:      cfg,
		concerts: make(map[string]*concertRoom),
	}
}

// HistoryLimit returns the configured chat log bound.
func (r *Registry) HistoryLimit() int {
	return r.cfg.HistoryLimit
}

func (r *Registry) newRoom(concertID string) *concertRoom {
	return &concertRoom{
		id:           concertID,
		participants: make(map[*Participant]struct{}),
		reactions:    make(map[models.ReactionKind]int64),
		idleSince:    r.cfg.Clock(),
	}
}

// lockRoom returns the live entry for concertID with its lock held, creating
// it when create is set. The caller must unlock the returned room.
func (r *Registry) lockRoom(concertID string, create bool) *concertRoom {
	for {
		r.mu.Lock()
		room, ok := r.concerts[concertID]
		if !ok {
			if !create {
				r.mu.Unlock()
				return nil
			}
			room = r.newRoom(concertID)
			r.concerts[concertID] = room
		}
		r.mu.Unlock()

		room.mu.Lock()
		if !room.removed {
			return room
		}
		// Reaped between lookup and lock; retry against the map.
		room.mu.Unlock()
	}
}

// Has reports whether concertID has a live entry.
func (r *Registry) Has(concertID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.concerts[concertID]
	return ok
}

// Seed creates the entry for concertID from archived history. It is a no-op
// returning false when the entry already exists.
func (r *Registry) Seed(concertID string, h models.History) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.concerts[concertID]; ok {
		return false
	}
	room := r.newRoom(concertID)
	chats := h.Chats
	if len(chats) > r.cfg.HistoryLimit {
		chats = chats[len(chats)-r.cfg.HistoryLimit:]
	}
	room.chats = append(room.chats, chats...)
	for kind, n := range h.Reactions {
		if n > 0 {
			room.reactions[kind] = n
		}
	}
	r.concerts[concertID] = room
	return true
}

// Admit registers p under concertID and returns the history snapshot the
// participant should start from. onAdmit, when non-nil, runs under the
// concert lock with the snapshot and the participants that were already
// present, so anything it delivers precedes every later accepted event.
func (r *Registry) Admit(concertID string, p *Participant, onAdmit func(snapshot models.History, others []*Participant)) (models.History, error) {
	if concertID == "" || p == nil {
		return models.History{}, ErrInvalidAdmission
	}

	room := r.lockRoom(concertID, true)
	defer room.mu.Unlock()

	others := room.members()
	room.participants[p] = struct{}{}
	room.idleSince = time.Time{}
	p.ConcertID = concertID
	p.JoinedAt = r.cfg.Clock()

	snapshot := room.snapshot()
	if onAdmit != nil {
		onAdmit(snapshot, others)
	}
	return snapshot, nil
}

// Dismiss removes p from concertID. It is idempotent: only the call that
// actually removes the participant returns true and runs onLeave, under the
// concert lock, with the participants that remain.
func (r *Registry) Dismiss(concertID string, p *Participant, onLeave func(remaining []*Participant)) bool {
	if p == nil {
		return false
	}
	room := r.lockRoom(concertID, false)
	if room == nil {
		return false
	}
	defer room.mu.Unlock()

	if _, ok := room.participants[p]; !ok {
		return false
	}
	delete(room.participants, p)
	if len(room.participants) == 0 {
		room.idleSince = r.cfg.Clock()
	}
	if onLeave != nil {
		onLeave(room.members())
	}
	return true
}

// RecordChat stamps msg with an id and the server time, appends it to the
// concert's bounded log and runs onAccept under the concert lock with the
// accepted message and the current participants.
func (r *Registry) RecordChat(concertID string, msg models.ChatMessage, onAccept func(accepted models.ChatMessage, members []*Participant)) (models.ChatMessage, error) {
	room := r.lockRoom(concertID, false)
	if room == nil {
		return models.ChatMessage{}, ErrUnknownConcert
	}
	defer room.mu.Unlock()

	msg.Timestamp = r.cfg.Clock()
	msg.ID = ulid.Make().String()
	room.chats = append(room.chats, msg)
	if over := len(room.chats) - r.cfg.HistoryLimit; over > 0 {
		// Copy down so the backing array does not keep trimmed messages alive.
		room.chats = append(room.chats[:0], room.chats[over:]...)
	}

	if onAccept != nil {
		onAccept(msg, room.members())
	}
	return msg, nil
}

// RecordReaction increments the counter for kind and runs onAccept under the
// concert lock with the new total and the current participants.
func (r *Registry) RecordReaction(concertID string, kind models.ReactionKind, onAccept func(total int64, members []*Participant)) (int64, error) {
	room := r.lockRoom(concertID, false)
	if room == nil {
		return 0, ErrUnknownConcert
	}
	defer room.mu.Unlock()

	room.reactions[kind]++
	total := room.reactions[kind]
	if onAccept != nil {
		onAccept(total, room.members())
	}
	return total, nil
}

// WithMembers runs fn under the concert lock with the current participants.
// It returns false when concertID has no live entry.
func (r *Registry) WithMembers(concertID string, fn func(members []*Participant)) bool {
	room := r.lockRoom(concertID, false)
	if room == nil {
		return false
	}
	defer room.mu.Unlock()
	fn(room.members())
	return true
}

// Snapshot returns the current chat tail and counters for concertID.
func (r *Registry) Snapshot(concertID string) (models.History, bool) {
	room := r.lockRoom(concertID, false)
	if room == nil {
		return models.History{}, false
	}
	defer room.mu.Unlock()
	return room.snapshot(), true
}

// Participants returns the participants currently admitted to concertID.
// It is an inspection hook; the protocol path reaches members through the
// registry callbacks instead.
func (r *Registry) Participants(concertID string) []*Participant {
	room := r.lockRoom(concertID, false)
	if room == nil {
		return nil
	}
	defer room.mu.Unlock()
	return room.members()
}

// ParticipantCount returns the number of participants admitted to concertID.
func (r *Registry) ParticipantCount(concertID string) int {
	room := r.lockRoom(concertID, false)
	if room == nil {
		return 0
	}
	defer room.mu.Unlock()
	return len(room.participants)
}

// Concerts returns the ids of every live entry.
func (r *Registry) Concerts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.concerts))
	for id := range r.concerts {
		ids = append(ids, id)
	}
	return ids
}

// StartReaper launches the background sweep that drops entries idle for
// longer than IdleTTL. Call Stop to shut it down.
func (r *Registry) StartReaper() {
	r.reaperStop = make(chan struct{})
	r.reaperDone = make(chan struct{})
	go r.reapLoop()
	slog.Info("registry: reaper started",
		"idle_ttl", r.cfg.IdleTTL,
		"sweep_interval", r.cfg.SweepInterval)
}

// Stop shuts down the reaper goroutine.
func (r *Registry) Stop() {
	if r.reaperStop != nil {
		close(r.reaperStop)
		<-r.reaperDone
		r.reaperStop = nil
		r.reaperDone = nil
	}
}

func (r *Registry) reapLoop() {
	defer close(r.reaperDone)

	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.reaperStop:
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Sweep drops every entry that has had no participants for longer than
// IdleTTL and returns how many were dropped.
func (r *Registry) Sweep() int {
	now := r.cfg.Clock()
	var reaped []string

	r.mu.Lock()
	for id, room := range r.concerts {
		room.mu.Lock()
		if len(room.participants) == 0 && !room.idleSince.IsZero() && now.Sub(room.idleSince) > r.cfg.IdleTTL {
			room.removed = true
			delete(r.concerts, id)
			reaped = append(reaped, id)
		}
		room.mu.Unlock()
	}
	r.mu.Unlock()

	for _, id := range reaped {
		slog.Info("registry: reaped idle concert", "concert_id", id, "idle_ttl", r.cfg.IdleTTL)
	}
	return len(reaped)
}

func (room *concertRoom) members() []*Participant {
	out := make([]*Participant, 0, len(room.participants))
	for p := range room.participants {
		out = append(out, p)
	}
	return out
}

func (room *concertRoom) snapshot() models.History {
	chats := make([]models.ChatMessage, len(room.chats))
	copy(chats, room.chats)
	reactions := make(map[models.ReactionKind]int64, len(room.reactions))
	for kind, n := range room.reactions {
		if n > 0 {
			reactions[kind] = n
		}
	}
	return models.History{Chats: chats, Reactions: reactions}
}
