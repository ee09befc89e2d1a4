package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Vasu1712/scenyx-live/internal/models"
	"github.com/Vasu1712/scenyx-live/internal/protocol"
)

// State is the lifecycle of a View's channel.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateJoined
	StateClosed
	StateNotFound
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	case StateNotFound:
		return "not_found"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrAlreadyRunning is returned by Run while a previous Run is still active.
var ErrAlreadyRunning = errors.New("client: view is already running")

const (
	DefaultDecayAfter = 3 * time.Second
	DefaultLogLimit   = 500
)

// EntryKind distinguishes user chat lines from system lines in the log.
type EntryKind int

const (
	EntryChat EntryKind = iota
	EntrySystem
)

// Entry is one rendered line of the local log.
type Entry struct {
	Kind        EntryKind
	SenderID    string
	DisplayName string
	Text        string
	Timestamp   time.Time
}

// ConcertFetcher loads concert metadata before the channel opens.
type ConcertFetcher interface {
	Concert(ctx context.Context, id string) (*models.ConcertDetails, error)
}

type ViewConfig struct {
	ConcertID   string
	UserID      string
	DisplayName string

	Concerts ConcertFetcher
	Dialer   Dialer

	// DecayAfter is how long one reaction stays in the transient overlay.
	DecayAfter time.Duration
	// LogLimit bounds the local log; the oldest entries are dropped.
	LogLimit int
	// OnChange is called after every state change, outside the view lock.
	// Call Snapshot from it to render.
	OnChange func()
}

// Snapshot is a copy of everything a View renders.
type Snapshot struct {
	State    State
	Concert  *models.Concert
	Log      []Entry
	Counters map[models.ReactionKind]int64
	// Overlay counts reactions received in the last DecayAfter, per kind.
	Overlay map[models.ReactionKind]int
	// Err is the reason the last Run ended, if any.
	Err error
}

// View is the Client Concert View: it owns one channel at a time, applies
// the events it receives in arrival order and exposes the chat and reaction
// actions. Closing the channel on every exit path of Run is what makes the
// server dismiss the participant.
type View struct {
	cfg ViewConfig

	mu       sync.Mutex
	state    State
	concert  *models.Concert
	log      []Entry
	counters map[models.ReactionKind]int64
	overlay  map[models.ReactionKind]int
	timers   map[*time.Timer]struct{}
	conn     Conn
	err      error

	writeMu sync.Mutex
}

func NewView(cfg ViewConfig) *View {
	if cfg.DecayAfter <= 0 {
		cfg.DecayAfter = DefaultDecayAfter
	}
	if cfg.LogLimit <= 0 {
		cfg.LogLimit = DefaultLogLimit
	}
	return &View{
		cfg:      cfg,
		counters: make(map[models.ReactionKind]int64),
		overlay:  make(map[models.ReactionKind]int),
		timers:   make(map[*time.Timer]struct{}),
	}
}

// Run fetches the concert, opens its channel, joins and applies incoming
// events until the channel closes or ctx is cancelled. It returns nil when
// ctx ends the session, ErrConcertNotFound for an unknown concert, and the
// transport error otherwise. Run may be called again once it returned; there
// is no automatic reconnect.
func (v *View) Run(ctx context.Context) (err error) {
	v.mu.Lock()
	if v.state == StateConnecting || v.state == StateJoined {
		v.mu.Unlock()
		return ErrAlreadyRunning
	}
	v.state = StateConnecting
	v.err = nil
	v.mu.Unlock()
	v.changed()

	defer func() {
		if ctx.Err() != nil && !errors.Is(err, ErrConcertNotFound) {
			err = nil
		}
		v.teardown(err)
	}()

	details, err := v.cfg.Concerts.Concert(ctx, v.cfg.ConcertID)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.concert = details.Concert
	for kind, n := range details.ReactionCounters {
		v.counters[kind] = n
	}
	v.mu.Unlock()
	v.changed()

	conn, err := v.cfg.Dialer.Dial(ctx, v.cfg.ConcertID)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.conn = conn
	v.mu.Unlock()
	stop := context.AfterFunc(ctx, v.Close)
	defer stop()

	if err := v.write(conn, protocol.TypeJoin, protocol.JoinRequest{
		UserID:      v.cfg.UserID,
		DisplayName: v.cfg.DisplayName,
	}); err != nil {
		return fmt.Errorf("sending join: %w", err)
	}

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, protocol.CloseConcertNotFound) {
				return ErrConcertNotFound
			}
			if v.State() == StateNotFound {
				return ErrConcertNotFound
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		env, err := protocol.Decode(frame)
		if err != nil {
			continue
		}
		v.Apply(env)
	}
}

// Close closes the current channel, if any. Safe to call repeatedly and
// concurrently with Run.
func (v *View) Close() {
	v.mu.Lock()
	conn := v.conn
	v.conn = nil
	v.mu.Unlock()
	if conn == nil {
		return
	}

	v.writeMu.Lock()
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	v.writeMu.Unlock()
	_ = conn.Close()
}

func (v *View) teardown(err error) {
	v.Close()

	v.mu.Lock()
	for t := range v.timers {
		t.Stop()
	}
	clear(v.timers)
	clear(v.overlay)
	if errors.Is(err, ErrConcertNotFound) {
		v.state = StateNotFound
	} else {
		v.state = StateClosed
	}
	v.err = err
	v.mu.Unlock()
	v.changed()
}

// Apply folds one server event into the local state. Unknown types and
// undecodable payloads are ignored.
func (v *View) Apply(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeHistory:
		var h protocol.HistoryPayload
		if env.Unmarshal(&h) != nil {
			return
		}
		v.mu.Lock()
		v.log = v.log[:0]
		for _, msg := range h.ChatLog {
			v.appendLocked(chatEntry(msg))
		}
		clear(v.counters)
		for kind, n := range h.ReactionCounters {
			v.counters[kind] = n
		}
		if v.state == StateConnecting {
			v.state = StateJoined
		}
		v.mu.Unlock()

	case protocol.TypeChat:
		var msg models.ChatMessage
		if env.Unmarshal(&msg) != nil {
			return
		}
		v.mu.Lock()
		v.appendLocked(chatEntry(msg))
		v.mu.Unlock()

	case protocol.TypeJoin:
		var n protocol.JoinNotice
		if env.Unmarshal(&n) != nil {
			return
		}
		v.mu.Lock()
		v.appendLocked(systemEntry(n.DisplayName+" joined", n.Timestamp))
		v.mu.Unlock()

	case protocol.TypeLeave:
		var n protocol.LeaveNotice
		if env.Unmarshal(&n) != nil {
			return
		}
		v.mu.Lock()
		v.appendLocked(systemEntry(n.DisplayName+" left", n.Timestamp))
		v.mu.Unlock()

	case protocol.TypeReaction:
		var n protocol.ReactionNotice
		if env.Unmarshal(&n) != nil {
			return
		}
		v.mu.Lock()
		v.counters[n.Kind] = n.TotalCount
		v.appendLocked(systemEntry(fmt.Sprintf("%s sent %s", n.DisplayName, n.Kind), n.Timestamp))
		v.bumpLocked(n.Kind)
		v.mu.Unlock()

	case protocol.TypeError:
		var n protocol.ErrorNotice
		if env.Unmarshal(&n) != nil {
			return
		}
		v.mu.Lock()
		if n.Code == protocol.CodeNotFound {
			v.state = StateNotFound
		}
		v.appendLocked(systemEntry("error: "+n.Message, time.Now()))
		v.mu.Unlock()

	default:
		return
	}
	v.changed()
}

// bumpLocked raises the overlay for kind and schedules its decay.
func (v *View) bumpLocked(kind models.ReactionKind) {
	v.overlay[kind]++
	var t *time.Timer
	t = time.AfterFunc(v.cfg.DecayAfter, func() {
		v.mu.Lock()
		if _, live := v.timers[t]; !live {
			v.mu.Unlock()
			return
		}
		delete(v.timers, t)
		if v.overlay[kind]--; v.overlay[kind] <= 0 {
			delete(v.overlay, kind)
		}
		v.mu.Unlock()
		v.changed()
	})
	v.timers[t] = struct{}{}
}

func (v *View) appendLocked(e Entry) {
	v.log = append(v.log, e)
	if over := len(v.log) - v.cfg.LogLimit; over > 0 {
		v.log = append(v.log[:0], v.log[over:]...)
	}
}

// SendChat sends text as a chat message. It reports false, sending nothing,
// when the view is not joined or text is blank. There is no local echo: the
// message shows up when the server broadcasts it back.
func (v *View) SendChat(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	conn := v.joinedConn()
	if conn == nil {
		return false
	}
	return v.write(conn, protocol.TypeChat, protocol.ChatRequest{Message: text}) == nil
}

// SendReaction sends one reaction. It reports false when the view is not
// joined or kind is unknown.
func (v *View) SendReaction(kind models.ReactionKind) bool {
	if !kind.Valid() {
		return false
	}
	conn := v.joinedConn()
	if conn == nil {
		return false
	}
	return v.write(conn, protocol.TypeReaction, protocol.ReactionRequest{Kind: kind}) == nil
}

func (v *View) joinedConn() Conn {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state != StateJoined {
		return nil
	}
	return v.conn
}

func (v *View) write(conn Conn, t protocol.MessageType, payload any) error {
	frame, err := protocol.Encode(t, payload)
	if err != nil {
		return err
	}
	v.writeMu.Lock()
	defer v.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, frame)
}

func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()

	s := Snapshot{
		State:    v.state,
		Concert:  v.concert,
		Log:      make([]Entry, len(v.log)),
		Counters: make(map[models.ReactionKind]int64, len(v.counters)),
		Overlay:  make(map[models.ReactionKind]int, len(v.overlay)),
		Err:      v.err,
	}
	copy(s.Log, v.log)
	for k, n := range v.counters {
		s.Counters[k] = n
	}
	for k, n := range v.overlay {
		s.Overlay[k] = n
	}
	return s
}

func (v *View) changed() {
	if v.cfg.OnChange != nil {
		v.cfg.OnChange()
	}
}

func chatEntry(msg models.ChatMessage) Entry {
	return Entry{
		Kind:        EntryChat,
		SenderID:    msg.SenderID,
		DisplayName: msg.DisplayName,
		Text:        msg.Message,
		Timestamp:   msg.Timestamp,
	}
}

func systemEntry(text string, ts time.Time) Entry {
	return Entry{Kind: EntrySystem, Text: text, Timestamp: ts}
}
