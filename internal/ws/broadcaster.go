package ws

import (
	"context"
	"log/slog"
	"time"

	"github.com/Vasu1712/scenyx-live/internal/events"
	"github.com/Vasu1712/scenyx-live/internal/protocol"
)

// Broadcaster delivers encoded events to the participants of a concert.
// Delivery never blocks: a participant whose queue rejects a frame is
// dismissed and the others still receive it.
type Broadcaster struct {
	registry  *Registry
	metrics   *Metrics
	publisher events.Publisher
	clock     func() time.Time
}

// BroadcasterOption configures a Broadcaster.
type BroadcasterOption func(*Broadcaster)

// WithPublisher mirrors leave events onto an events tap.
func WithPublisher(p events.Publisher) BroadcasterOption {
	return func(b *Broadcaster) { b.publisher = p }
}

// WithClock overrides the clock used to stamp leave notices.
func WithClock(clock func() time.Time) BroadcasterOption {
	return func(b *Broadcaster) { b.clock = clock }
}

func NewBroadcaster(registry *Registry, metrics *Metrics, opts ...BroadcasterOption) *Broadcaster {
	b := &Broadcaster{
		registry:  registry,
		metrics:   metrics,
		publisher: &events.NoopPublisher{},
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.metrics == nil {
		b.metrics = NewMetrics()
	}
	return b
}

// Deliver offers frame to every member and returns the ones that rejected it.
// It is the lock-held step run inside registry callbacks, so it must not call
// back into the registry.
func (b *Broadcaster) Deliver(members []*Participant, frame []byte) []*Participant {
	var failed []*Participant
	sent := 0
	for _, p := range members {
		if p.sink == nil || !p.sink.Offer(frame) {
			failed = append(failed, p)
			b.metrics.DeliveryFailure()
			continue
		}
		sent++
	}
	b.metrics.FramesSent(sent)
	return failed
}

// Broadcast sends env to every participant currently admitted to concertID.
// It is for server-originated notices that do not change concert state.
// Accepted chat, reactions and joins are delivered through the registry
// callbacks instead, which is what keeps them in acceptance order.
func (b *Broadcaster) Broadcast(concertID string, env protocol.Envelope) error {
	frame, err := protocol.Marshal(env)
	if err != nil {
		return err
	}
	var failed []*Participant
	if !b.registry.WithMembers(concertID, func(members []*Participant) {
		failed = b.Deliver(members, frame)
	}) {
		return ErrUnknownConcert
	}
	b.Evict(concertID, failed)
	return nil
}

// Unicast sends env to p alone. A participant that cannot take the frame is
// evicted like any failed broadcast recipient.
func (b *Broadcaster) Unicast(p *Participant, env protocol.Envelope) bool {
	frame, err := protocol.Marshal(env)
	if err != nil {
		slog.Error("broadcaster: encode unicast", "type", env.Type, "error", err)
		return false
	}
	if failed := b.Deliver([]*Participant{p}, frame); len(failed) > 0 {
		b.Evict(p.ConcertID, failed)
		return false
	}
	return true
}

// Evict closes the sink of every failed participant and dismisses it from
// concertID, broadcasting its leave to whoever remains.
func (b *Broadcaster) Evict(concertID string, failed []*Participant) {
	for _, p := range failed {
		slog.Warn("broadcaster: evicting unreachable participant",
			"concert_id", concertID,
			"participant_id", p.ID,
			"user_id", p.UserID)
		if p.sink != nil {
			p.sink.Close()
		}
		b.Leave(concertID, p)
	}
}

// Leave dismisses p and tells the remaining participants. It reports whether
// this call was the one that removed p; repeated calls are no-ops.
func (b *Broadcaster) Leave(concertID string, p *Participant) bool {
	now := b.clock()
	var failed []*Participant
	left := b.registry.Dismiss(concertID, p, func(remaining []*Participant) {
		frame, err := protocol.Encode(protocol.TypeLeave, protocol.LeaveNotice{
			DisplayName: p.DisplayName,
			Timestamp:   now,
		})
		if err != nil {
			slog.Error("broadcaster: encode leave", "error", err)
			return
		}
		failed = b.Deliver(remaining, frame)
	})
	if !left {
		return false
	}

	slog.Debug("broadcaster: participant left",
		"concert_id", concertID,
		"participant_id", p.ID,
		"display_name", p.DisplayName)
	b.Publish(concertID, events.ConcertEvent{
		ConcertID:   concertID,
		Type:        events.TypeLeave,
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		Timestamp:   now,
	})
	b.Evict(concertID, failed)
	return true
}

// Publish mirrors an accepted event onto the events tap. Failures are logged
// and otherwise ignored.
func (b *Broadcaster) Publish(concertID string, ev events.ConcertEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := b.publisher.Publish(ctx, events.Subject(concertID, ev.Type), ev); err != nil {
		slog.Warn("broadcaster: publish event",
			"concert_id", concertID,
			"type", ev.Type,
			"error", err)
	}
}
