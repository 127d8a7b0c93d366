package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"feed_go/internal/domain"
	"feed_go/internal/infra"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dataUpdate(key string, seq uint64) domain.Update {
	return domain.Update{
		Kind:  domain.UpdateData,
		Topic: domain.TopicOrderBook,
		Key:   key,
		Book:  &domain.OrderBook{Symbol: key, Sequence: seq},
		Ts:    time.Now(),
	}
}

func TestBroadcaster_OrderPreserved(t *testing.T) {
	b := NewBroadcaster(64, time.Hour, testLogger(), &infra.Metrics{})
	q := b.Register()
	defer b.Unregister(q)

	for i := uint64(1); i <= 10; i++ {
		b.Publish(dataUpdate("BTC", i))
	}

	for i := uint64(1); i <= 10; i++ {
		ev, ok := q.TryNext()
		if !ok {
			t.Fatalf("Expected update %d, queue empty", i)
		}
		if ev.Book.Sequence != i {
			t.Fatalf("Expected sequence %d, got %d", i, ev.Book.Sequence)
		}
	}
}

func TestBroadcaster_OverflowEmitsGap(t *testing.T) {
	b := NewBroadcaster(2, time.Hour, testLogger(), &infra.Metrics{})
	q := b.Register()
	defer b.Unregister(q)

	// Capacity 2, five publishes: three oldest dropped.
	for i := uint64(1); i <= 5; i++ {
		b.Publish(dataUpdate("BTC", i))
	}

	gap, ok := q.TryNext()
	if !ok || gap.Kind != domain.UpdateGap {
		t.Fatalf("Expected leading gap marker, got %+v", gap)
	}
	if gap.Dropped != 3 {
		t.Errorf("Expected 3 dropped, got %d", gap.Dropped)
	}

	for want := uint64(4); want <= 5; want++ {
		ev, ok := q.TryNext()
		if !ok || ev.Kind != domain.UpdateData {
			t.Fatalf("Expected surviving update %d, got %+v", want, ev)
		}
		if ev.Book.Sequence != want {
			t.Errorf("Expected sequence %d, got %d", want, ev.Book.Sequence)
		}
	}

	if _, ok := q.TryNext(); ok {
		t.Error("Expected empty queue after drain")
	}
}

func TestBroadcaster_SlowConsumerIsolated(t *testing.T) {
	b := NewBroadcaster(2, time.Hour, testLogger(), &infra.Metrics{})
	slow := b.Register()
	fast := b.Register()
	defer b.Unregister(slow)
	defer b.Unregister(fast)

	for i := uint64(1); i <= 5; i++ {
		b.Publish(dataUpdate("ETH", i))
		// Fast consumer keeps up.
		if ev, ok := fast.TryNext(); !ok || ev.Book.Sequence != i {
			t.Fatalf("Fast consumer fell behind at %d: %+v", i, ev)
		}
	}

	// Fast consumer saw everything; slow one sees a gap.
	if ev, ok := slow.TryNext(); !ok || ev.Kind != domain.UpdateGap {
		t.Errorf("Expected gap for slow consumer, got %+v", ev)
	}
}

func TestBroadcaster_HeartbeatNeverEvictsData(t *testing.T) {
	b := NewBroadcaster(2, time.Hour, testLogger(), &infra.Metrics{})
	q := b.Register()
	defer b.Unregister(q)

	b.Publish(dataUpdate("BTC", 1))
	b.Publish(dataUpdate("BTC", 2))

	// Full queue: the heartbeat is skipped, not queued over data.
	q.push(domain.Update{Kind: domain.UpdateHeartbeat, Ts: time.Now()}, false)

	if got := q.Len(); got != 2 {
		t.Fatalf("Expected 2 buffered entries, got %d", got)
	}
	for want := uint64(1); want <= 2; want++ {
		ev, _ := q.TryNext()
		if ev.Kind != domain.UpdateData || ev.Book.Sequence != want {
			t.Errorf("Expected data %d intact, got %+v", want, ev)
		}
	}
}

func TestBroadcaster_KeepAliveInjection(t *testing.T) {
	b := NewBroadcaster(8, 10*time.Millisecond, testLogger(), &infra.Metrics{})
	b.Start(context.Background())
	defer b.Stop()

	q := b.Register()
	defer b.Unregister(q)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ev, err := q.Next(ctx)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if ev.Kind != domain.UpdateHeartbeat {
		t.Errorf("Expected heartbeat, got %v", ev.Kind)
	}
}

func TestBroadcaster_UnregisterIdempotent(t *testing.T) {
	metrics := &infra.Metrics{}
	b := NewBroadcaster(8, time.Hour, testLogger(), metrics)

	q := b.Register()
	if metrics.Snapshot().ActiveConsumers != 1 {
		t.Fatal("Expected 1 active consumer")
	}

	b.Unregister(q)
	b.Unregister(q) // second call ignored
	b.Unregister(nil)

	if got := metrics.Snapshot().ActiveConsumers; got != 0 {
		t.Errorf("Expected 0 active consumers, got %d", got)
	}

	if _, err := q.Next(context.Background()); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Expected ErrQueueClosed, got %v", err)
	}
}

func TestConsumerQueue_NextBlocksUntilPublish(t *testing.T) {
	b := NewBroadcaster(8, time.Hour, testLogger(), &infra.Metrics{})
	q := b.Register()
	defer b.Unregister(q)

	go func() {
		time.Sleep(10 * time.Millisecond)
		b.Publish(dataUpdate("SOL", 7))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ev, err := q.Next(ctx)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if ev.Book.Sequence != 7 {
		t.Errorf("Expected sequence 7, got %d", ev.Book.Sequence)
	}
}

func TestBroadcaster_PriceTicksArriveInOrder(t *testing.T) {
	b := NewBroadcaster(16, time.Hour, testLogger(), &infra.Metrics{})
	q := b.Register()
	defer b.Unregister(q)

	prices := NewPriceCache([]string{"BTC"}, 5*time.Second, b.Publish)
	for _, tick := range []string{"100", "101", "99"} {
		prices.ApplyMid("BTC", dec(tick))
	}

	for _, want := range []string{"100", "101", "99"} {
		ev, ok := q.TryNext()
		if !ok || ev.Topic != domain.TopicPrice {
			t.Fatalf("Expected price tick %s, got %+v", want, ev)
		}
		if !ev.Ticker.Price.Equal(dec(want)) {
			t.Errorf("Expected tick %s, got %s", want, ev.Ticker.Price)
		}
	}
}

func TestBroadcaster_PublishToMany(t *testing.T) {
	b := NewBroadcaster(16, time.Hour, testLogger(), &infra.Metrics{})
	defer b.Stop()

	queues := make([]*ConsumerQueue, 0, 4)
	for i := 0; i < 4; i++ {
		queues = append(queues, b.Register())
	}

	b.Publish(dataUpdate("BTC", 1))

	for i, q := range queues {
		ev, ok := q.TryNext()
		if !ok || ev.Book.Sequence != 1 {
			t.Errorf("Consumer %d missed the update: %+v", i, ev)
		}
	}

	if got := b.ConsumerCount(); got != 4 {
		t.Errorf("Expected 4 consumers, got %d", got)
	}

	// IDs are distinct.
	seen := map[string]bool{}
	for _, q := range queues {
		id := fmt.Sprint(q.ID())
		if seen[id] {
			t.Error("Duplicate consumer queue ID")
		}
		seen[id] = true
	}
}
