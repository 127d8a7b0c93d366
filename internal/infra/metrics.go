package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	messagesDispatched atomic.Uint64
	protocolErrors     atomic.Uint64
	reconnects         atomic.Uint64
	fallbackFetches    atomic.Uint64
	eventsPublished    atomic.Uint64
	eventsDropped      atomic.Uint64

	// Gauges
	activeConsumers atomic.Int32
	connState       atomic.Int32
}

// RecordDispatch records one stream message routed to a topic cache.
func (m *Metrics) RecordDispatch() {
	m.messagesDispatched.Add(1)
}

// RecordProtocolError records a malformed or unrecognized message that
// was dropped at the connection boundary.
func (m *Metrics) RecordProtocolError() {
	m.protocolErrors.Add(1)
}

// RecordReconnect records one reconnect attempt.
func (m *Metrics) RecordReconnect() {
	m.reconnects.Add(1)
}

// RecordFallbackFetch records one request/response fallback read.
func (m *Metrics) RecordFallbackFetch() {
	m.fallbackFetches.Add(1)
}

// RecordPublish records events fanned out to consumer queues.
func (m *Metrics) RecordPublish(n int) {
	m.eventsPublished.Add(uint64(n))
}

// RecordDrop records queue entries evicted by overflow.
func (m *Metrics) RecordDrop(n int) {
	m.eventsDropped.Add(uint64(n))
}

// IncrementConsumers increments the registered consumer count.
func (m *Metrics) IncrementConsumers() {
	m.activeConsumers.Add(1)
}

// DecrementConsumers decrements the registered consumer count.
func (m *Metrics) DecrementConsumers() {
	m.activeConsumers.Add(-1)
}

// SetConnState publishes the current connection state as a gauge.
func (m *Metrics) SetConnState(state int32) {
	m.connState.Store(state)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	MessagesDispatched uint64
	ProtocolErrors     uint64
	Reconnects         uint64
	FallbackFetches    uint64
	EventsPublished    uint64
	EventsDropped      uint64
	ActiveConsumers    int32
	ConnState          int32
	Timestamp          time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		MessagesDispatched: m.messagesDispatched.Load(),
		ProtocolErrors:     m.protocolErrors.Load(),
		Reconnects:         m.reconnects.Load(),
		FallbackFetches:    m.fallbackFetches.Load(),
		EventsPublished:    m.eventsPublished.Load(),
		EventsDropped:      m.eventsDropped.Load(),
		ActiveConsumers:    m.activeConsumers.Load(),
		ConnState:          m.connState.Load(),
		Timestamp:          time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.messagesDispatched.Store(0)
	m.protocolErrors.Store(0)
	m.reconnects.Store(0)
	m.fallbackFetches.Store(0)
	m.eventsPublished.Store(0)
	m.eventsDropped.Store(0)
	m.activeConsumers.Store(0)
	m.connState.Store(0)
}
