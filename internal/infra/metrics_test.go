package infra

import "testing"

func TestMetrics_Counters(t *testing.T) {
	m := &Metrics{}

	m.RecordDispatch()
	m.RecordDispatch()
	m.RecordProtocolError()
	m.RecordFallbackFetch()
	m.RecordPublish(5)
	m.RecordDrop(2)

	snap := m.Snapshot()

	if snap.MessagesDispatched != 2 {
		t.Errorf("Expected 2 dispatches, got %d", snap.MessagesDispatched)
	}
	if snap.ProtocolErrors != 1 {
		t.Errorf("Expected 1 protocol error, got %d", snap.ProtocolErrors)
	}
	if snap.FallbackFetches != 1 {
		t.Errorf("Expected 1 fallback fetch, got %d", snap.FallbackFetches)
	}
	if snap.EventsPublished != 5 {
		t.Errorf("Expected 5 published, got %d", snap.EventsPublished)
	}
	if snap.EventsDropped != 2 {
		t.Errorf("Expected 2 dropped, got %d", snap.EventsDropped)
	}
}

func TestMetrics_Consumers(t *testing.T) {
	m := &Metrics{}

	m.IncrementConsumers()
	m.IncrementConsumers()
	m.IncrementConsumers()

	snap := m.Snapshot()
	if snap.ActiveConsumers != 3 {
		t.Errorf("Expected 3 consumers, got %d", snap.ActiveConsumers)
	}

	m.DecrementConsumers()
	snap = m.Snapshot()
	if snap.ActiveConsumers != 2 {
		t.Errorf("Expected 2 consumers, got %d", snap.ActiveConsumers)
	}
}

func TestMetrics_Reset(t *testing.T) {
	m := &Metrics{}
	m.RecordReconnect()
	m.Reset()

	if snap := m.Snapshot(); snap.Reconnects != 0 {
		t.Errorf("Expected 0 reconnects after reset, got %d", snap.Reconnects)
	}
}
