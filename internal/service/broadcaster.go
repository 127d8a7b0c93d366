package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"feed_go/internal/domain"
	"feed_go/internal/infra"
)

// ErrQueueClosed is returned by ConsumerQueue.Next after the queue has
// been unregistered.
var ErrQueueClosed = errors.New("consumer queue closed")

// Broadcaster fans updates out to registered consumer queues. Publishing
// never blocks: a full queue evicts its oldest entry and records the
// loss as a gap the consumer will see before newer data.
type Broadcaster struct {
	mu     sync.RWMutex
	queues map[uuid.UUID]*ConsumerQueue

	capacity  int
	keepAlive time.Duration
	logger    *slog.Logger
	metrics   *infra.Metrics

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewBroadcaster(capacity int, keepAlive time.Duration, logger *slog.Logger, metrics *infra.Metrics) *Broadcaster {
	return &Broadcaster{
		queues:    make(map[uuid.UUID]*ConsumerQueue),
		capacity:  capacity,
		keepAlive: keepAlive,
		logger:    logger,
		metrics:   metrics,
	}
}

// Start launches the keep-alive injector.
func (b *Broadcaster) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	b.wg.Add(1)
	go b.keepAliveLoop(runCtx)
}

// Stop halts the keep-alive injector and closes all queues.
func (b *Broadcaster) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()

	b.mu.Lock()
	for id, q := range b.queues {
		q.close()
		delete(b.queues, id)
		b.metrics.DecrementConsumers()
	}
	b.mu.Unlock()
}

// Register creates a new consumer queue and adds it to the fan-out set.
func (b *Broadcaster) Register() *ConsumerQueue {
	q := newConsumerQueue(b.capacity)

	b.mu.Lock()
	b.queues[q.id] = q
	b.mu.Unlock()

	b.metrics.IncrementConsumers()
	b.logger.Debug("Consumer registered", "consumer_id", q.id.String())
	return q
}

// Unregister removes a queue from the fan-out set and closes it.
// Unknown or already-removed queues are ignored.
func (b *Broadcaster) Unregister(q *ConsumerQueue) {
	if q == nil {
		return
	}

	b.mu.Lock()
	_, exists := b.queues[q.id]
	if exists {
		delete(b.queues, q.id)
	}
	b.mu.Unlock()

	if !exists {
		return
	}
	q.close()
	b.metrics.DecrementConsumers()
	b.logger.Debug("Consumer unregistered", "consumer_id", q.id.String())
}

// Publish delivers one update to every registered queue. One slow
// consumer never delays the others.
func (b *Broadcaster) Publish(ev domain.Update) {
	b.mu.RLock()
	queues := make([]*ConsumerQueue, 0, len(b.queues))
	for _, q := range b.queues {
		queues = append(queues, q)
	}
	b.mu.RUnlock()

	published := 0
	dropped := 0
	for _, q := range queues {
		d := q.push(ev, true)
		dropped += d
		published++
	}

	if published > 0 {
		b.metrics.RecordPublish(published)
	}
	if dropped > 0 {
		b.metrics.RecordDrop(dropped)
	}
}

// ConsumerCount returns the number of registered queues.
func (b *Broadcaster) ConsumerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.queues)
}

// keepAliveLoop injects heartbeat entries so an idle consumer can tell a
// quiet market from a dead feed. Heartbeats never evict data entries.
func (b *Broadcaster) keepAliveLoop(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			hb := domain.Update{Kind: domain.UpdateHeartbeat, Ts: now}

			b.mu.RLock()
			for _, q := range b.queues {
				q.push(hb, false)
			}
			b.mu.RUnlock()
		}
	}
}

// ConsumerQueue is one consumer's bounded FIFO view of the update
// stream. Overflow drops the oldest entries and surfaces the loss as a
// single gap marker carrying the dropped count.
type ConsumerQueue struct {
	id uuid.UUID

	mu      sync.Mutex
	buf     []domain.Update
	cap     int
	dropped int
	closed  bool

	ready chan struct{}
	done  chan struct{}
}

func newConsumerQueue(capacity int) *ConsumerQueue {
	return &ConsumerQueue{
		id:    uuid.New(),
		buf:   make([]domain.Update, 0, capacity),
		cap:   capacity,
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// ID identifies the queue for diagnostics.
func (q *ConsumerQueue) ID() uuid.UUID {
	return q.id
}

// push appends one entry. When the queue is full, evictable entries push
// out the oldest data; non-evictable entries (heartbeats) are skipped
// instead. Returns how many data entries were dropped.
func (q *ConsumerQueue) push(ev domain.Update, evict bool) int {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return 0
	}

	droppedNow := 0
	if len(q.buf) >= q.cap {
		if !evict {
			q.mu.Unlock()
			return 0
		}
		// Drop the oldest entry; skip counting evicted heartbeats and
		// fold evicted gap markers into the running count.
		head := q.buf[0]
		q.buf = q.buf[1:]
		switch head.Kind {
		case domain.UpdateData:
			q.dropped++
			droppedNow = 1
		case domain.UpdateGap:
			q.dropped += head.Dropped
		}
	}
	q.buf = append(q.buf, ev)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return droppedNow
}

// TryNext pops the next entry without blocking. A pending gap is always
// delivered before any entry that survived the overflow.
func (q *ConsumerQueue) TryNext() (domain.Update, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

func (q *ConsumerQueue) popLocked() (domain.Update, bool) {
	if q.dropped > 0 {
		gap := domain.Update{
			Kind:    domain.UpdateGap,
			Dropped: q.dropped,
			Ts:      time.Now(),
		}
		q.dropped = 0
		return gap, true
	}
	if len(q.buf) == 0 {
		return domain.Update{}, false
	}
	ev := q.buf[0]
	q.buf = q.buf[1:]
	return ev, true
}

// Next blocks until an entry is available, the context ends, or the
// queue is closed.
func (q *ConsumerQueue) Next(ctx context.Context) (domain.Update, error) {
	for {
		if ev, ok := q.TryNext(); ok {
			return ev, nil
		}

		select {
		case <-ctx.Done():
			return domain.Update{}, ctx.Err()
		case <-q.done:
			// Drain what was queued before the close.
			if ev, ok := q.TryNext(); ok {
				return ev, nil
			}
			return domain.Update{}, ErrQueueClosed
		case <-q.ready:
		}
	}
}

// Len returns the number of buffered entries.
func (q *ConsumerQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

func (q *ConsumerQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	close(q.done)
}
