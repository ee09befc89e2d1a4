package ws

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Vasu1712/scenyx-live/internal/models"
	"github.com/Vasu1712/scenyx-live/internal/storage"
)

const archiveQueueSize = 1024

// archiveOp is one write-through to the history archive. Exactly one of
// chat or kind is set.
type archiveOp struct {
	concertID string
	chat      *models.ChatMessage
	kind      models.ReactionKind
}

// archiver writes accepted events to the history archive from a single
// goroutine, in the order they were enqueued. Enqueueing from inside the
// registry callbacks makes that order the acceptance order.
type archiver struct {
	archive storage.HistoryArchive
	timeout time.Duration

	mu     sync.Mutex
	queue  chan archiveOp
	closed bool
	done   chan struct{}
}

func newArchiver(archive storage.HistoryArchive, timeout time.Duration) *archiver {
	a := &archiver{
		archive: archive,
		timeout: timeout,
		queue:   make(chan archiveOp, archiveQueueSize),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

// enqueue never blocks. A full queue or a closed archiver drops the write.
func (a *archiver) enqueue(op archiveOp) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- op:
	default:
		slog.Warn("archiver: queue full, dropping write", "concert_id", op.concertID)
	}
}

func (a *archiver) run() {
	defer close(a.done)
	for op := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		var err error
		if op.chat != nil {
			err = a.archive.AppendChat(ctx, op.concertID, *op.chat)
		} else {
			err = a.archive.AddReaction(ctx, op.concertID, op.kind)
		}
		cancel()
		if err != nil {
			slog.Warn("archiver: write failed", "concert_id", op.concertID, "error", err)
		}
	}
}

// close stops accepting writes and waits for the queued ones to finish.
func (a *archiver) close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		<-a.done
		return
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()
	<-a.done
}
