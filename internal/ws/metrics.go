package ws

import (
	"runtime"
	"sync/atomic"
	"time"
)

// Metrics tracks realtime server counters. Safe for concurrent use.
type Metrics struct {
	activeConnections atomic.Int64
	totalConnections  atomic.Int64

	messagesReceived atomic.Int64
	framesSent       atomic.Int64
	lastMessageTime  atomic.Int64 // unix seconds

	connectionErrors    atomic.Int64
	deliveryFailures    atomic.Int64
	protocolErrors      atomic.Int64
	rateLimitViolations atomic.Int64

	startTime time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

func (m *Metrics) ConnectionOpened() {
	m.activeConnections.Add(1)
	m.totalConnections.Add(1)
}

func (m *Metrics) ConnectionClosed() {
	m.activeConnections.Add(-1)
}

func (m *Metrics) MessageReceived() {
	m.messagesReceived.Add(1)
	m.lastMessageTime.Store(time.Now().Unix())
}

func (m *Metrics) FramesSent(n int) {
	m.framesSent.Add(int64(n))
}

func (m *Metrics) ConnectionError()    { m.connectionErrors.Add(1) }
func (m *Metrics) DeliveryFailure()    { m.deliveryFailures.Add(1) }
func (m *Metrics) ProtocolError()      { m.protocolErrors.Add(1) }
func (m *Metrics) RateLimitViolation() { m.rateLimitViolations.Add(1) }

// MetricsSnapshot is a point-in-time view of Metrics.
type MetricsSnapshot struct {
	ActiveConnections int64 `json:"active_connections"`
	TotalConnections  int64 `json:"total_connections"`
	LiveConcerts      int   `json:"live_concerts"`

	MessagesReceived  int64   `json:"messages_received"`
	FramesSent        int64   `json:"frames_sent"`
	MessagesPerSecond float64 `json:"messages_per_second"`
	LastMessageTime   string  `json:"last_message_time"`

	ConnectionErrors    int64 `json:"connection_errors"`
	DeliveryFailures    int64 `json:"delivery_failures"`
	ProtocolErrors      int64 `json:"protocol_errors"`
	RateLimitViolations int64 `json:"rate_limit_violations"`

	UptimeSeconds int64  `json:"uptime_seconds"`
	MemoryUsageMB uint64 `json:"memory_usage_mb"`
	NumGoroutines int    `json:"num_goroutines"`
}

// Snapshot returns the current counters. liveConcerts is supplied by the
// caller since the registry, not Metrics, owns that number.
func (m *Metrics) Snapshot(liveConcerts int) MetricsSnapshot {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	uptime := time.Since(m.startTime)
	received := m.messagesReceived.Load()
	var perSec float64
	if s := uptime.Seconds(); s > 0 {
		perSec = float64(received) / s
	}

	last := "never"
	if ts := m.lastMessageTime.Load(); ts > 0 {
		last = time.Unix(ts, 0).UTC().Format(time.RFC3339)
	}

	return MetricsSnapshot{
		ActiveConnections:   m.activeConnections.Load(),
		TotalConnections:    m.totalConnections.Load(),
		LiveConcerts:        liveConcerts,
		MessagesReceived:    received,
		FramesSent:          m.framesSent.Load(),
		MessagesPerSecond:   perSec,
		LastMessageTime:     last,
		ConnectionErrors:    m.connectionErrors.Load(),
		DeliveryFailures:    m.deliveryFailures.Load(),
		ProtocolErrors:      m.protocolErrors.Load(),
		RateLimitViolations: m.rateLimitViolations.Load(),
		UptimeSeconds:       int64(uptime.Seconds()),
		MemoryUsageMB:       mem.Alloc / 1024 / 1024,
		NumGoroutines:       runtime.NumGoroutine(),
	}
}
