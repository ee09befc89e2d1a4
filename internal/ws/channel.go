package ws

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/Vasu1712/scenyx-live/internal/protocol"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second
	// Pings are sent with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Largest inbound frame read at all. Anything bigger closes the channel
	// with 1009.
	maxFrameSize = 1 << 20
	// Floor for the per-channel frame limit.
	minFrameLimit = 8 << 10
	// Outbound frames queued per channel before the participant counts as unreachable.
	sendBufferSize = 256
)

// Conn is the part of *websocket.Conn a Channel uses.
type Conn interface {
	NextReader() (messageType int, r io.Reader, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// ChannelState is the protocol state of one channel.
type ChannelState int32

const (
	StateConnecting ChannelState = iota
	StateJoined
	StateClosed
)

func (s ChannelState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Identity is a user identity resolved by the surrounding session before the
// channel opened.
type Identity struct {
	UserID      string
	DisplayName string
}

// Channel is one participant's connection. Outbound frames go through a
// bounded queue drained by a single writer; inbound frames are handled in
// arrival order by the read loop.
type Channel struct {
	conn      Conn
	service   *Service
	concertID string
	identity  *Identity
	limiter   *rate.Limiter

	// frameLimit is the largest frame handed to the protocol. Bigger frames
	// below maxFrameSize are drained and rejected without closing.
	frameLimit int64

	state atomic.Int32
	// participant is set by the read loop on admission and read by teardown
	// on the same goroutine.
	participant *Participant

	send        chan []byte
	closeMu     sync.Mutex
	closed      bool
	closeCode   int
	closeReason string

	writerDone chan struct{}
}

func newChannel(conn Conn, service *Service, concertID string, identity *Identity) *Channel {
	return &Channel{
		conn:       conn,
		service:    service,
		concertID:  concertID,
		identity:   identity,
		limiter:    rate.NewLimiter(rate.Limit(service.cfg.MaxMessagesPerSecond), service.cfg.MessageBurst),
		frameLimit: frameLimitFor(service.cfg.MaxChatLength),
		send:       make(chan []byte, sendBufferSize),
		closeCode:  websocket.CloseNormalClosure,
		writerDone: make(chan struct{}),
	}
}

// State returns the channel's protocol state.
func (c *Channel) State() ChannelState {
	return ChannelState(c.state.Load())
}

func (c *Channel) markJoined() bool {
	return c.state.CompareAndSwap(int32(StateConnecting), int32(StateJoined))
}

// Offer queues frame for the writer. It never blocks and returns false once
// the channel is closed or its queue is full.
func (c *Channel) Offer(frame []byte) bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close shuts the channel down with a normal closure. Safe to call more than once.
func (c *Channel) Close() {
	c.CloseWith(websocket.CloseNormalClosure, "")
}

// CloseWith shuts the channel down. Frames already queued are still written,
// followed by a close frame carrying code and reason. Only the first call
// has any effect.
func (c *Channel) CloseWith(code int, reason string) {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
	c.state.Store(int32(StateClosed))
	close(c.send)
}

// Serve runs the channel until the peer goes away, the channel is closed or
// ctx is cancelled. On every exit path the participant is dismissed and the
// remaining participants are told.
func (c *Channel) Serve(ctx context.Context) {
	metrics := c.service.metrics
	metrics.ConnectionOpened()
	defer metrics.ConnectionClosed()

	go c.writePump()

	stop := context.AfterFunc(ctx, func() {
		c.CloseWith(websocket.CloseGoingAway, "server shutting down")
	})
	defer stop()

	c.readLoop(ctx)

	if c.participant != nil {
		c.service.broadcaster.Leave(c.concertID, c.participant)
	}
	c.Close()
	<-c.writerDone
}

func (c *Channel) readLoop(ctx context.Context) {
	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		frame, oversized, err := c.readFrame()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				slog.Warn("channel: read error", "concert_id", c.concertID, "error", err)
				c.service.metrics.ConnectionError()
			}
			return
		}
		if c.State() == StateClosed {
			return
		}
		c.service.metrics.MessageReceived()

		if !c.limiter.Allow() {
			c.service.metrics.RateLimitViolation()
			c.service.reject(c, protocol.CodeRateLimited, "too many messages, slow down")
			continue
		}
		if oversized {
			c.service.reject(c, protocol.CodeInvalidMessage, "message is too large")
			continue
		}
		c.service.handle(ctx, c, frame)
	}
}

// readFrame reads the next data frame. A frame over frameLimit is drained
// and reported as oversized so the channel can keep going.
func (c *Channel) readFrame() ([]byte, bool, error) {
	_, r, err := c.conn.NextReader()
	if err != nil {
		return nil, false, err
	}
	frame, err := io.ReadAll(io.LimitReader(r, c.frameLimit+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(frame)) <= c.frameLimit {
		return frame, false, nil
	}
	if _, err := io.Copy(io.Discard, r); err != nil {
		return nil, true, err
	}
	return nil, true, nil
}

// frameLimitFor sizes the frame limit so a chat of maxChat runes fits even
// when every rune arrives as an escaped surrogate pair.
func frameLimitFor(maxChat int) int64 {
	limit := int64(maxChat)*12 + 1024
	if limit < minFrameLimit {
		return minFrameLimit
	}
	if limit > maxFrameSize {
		return maxFrameSize
	}
	return limit
}

// writePump is the only goroutine writing data frames to the connection. It
// exits after the queue is closed and drained, or on the first write error,
// and always closes the underlying connection.
func (c *Channel) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		close(c.writerDone)
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				c.closeMu.Lock()
				code, reason := c.closeCode, c.closeReason
				c.closeMu.Unlock()
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(code, reason),
					time.Now().Add(writeWait))
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				slog.Debug("channel: write error", "concert_id", c.concertID, "error", err)
				c.service.metrics.ConnectionError()
				c.Close()
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				slog.Debug("channel: ping error", "concert_id", c.concertID, "error", err)
				c.Close()
				return
			}
		}
	}
}
