package service

import (
	"sync"
	"time"

	"feed_go/internal/domain"
)

// UserStateCache holds the compound account view per account address:
// balance, open positions, and a bounded list of recent fills. The
// stream dispatch goroutine is the only live writer; a snapshot seed is
// accepted only before the first write.
type UserStateCache struct {
	mu      sync.RWMutex
	entries map[string]*userEntry
	stale   time.Duration
	publish func(domain.Update)
	now     func() time.Time
}

type userEntry struct {
	state     *domain.UserState
	updatedAt time.Time
	source    domain.ValueSource
}

func NewUserStateCache(staleAfter time.Duration, publish func(domain.Update)) *UserStateCache {
	return &UserStateCache{
		entries: make(map[string]*userEntry),
		stale:   staleAfter,
		publish: publish,
		now:     time.Now,
	}
}

func (c *UserStateCache) entryLocked(account string) *userEntry {
	entry, ok := c.entries[account]
	if !ok {
		entry = &userEntry{
			state: &domain.UserState{
				Account:   account,
				Positions: make(map[string]domain.Position),
			},
		}
		c.entries[account] = entry
	}
	return entry
}

// ApplyPositions merges a streamed position set. A zero-size entry
// closes the position and removes it from the view.
func (c *UserStateCache) ApplyPositions(account string, positions []domain.Position) {
	c.mu.Lock()
	entry := c.entryLocked(account)
	for _, pos := range positions {
		if pos.Size.IsZero() {
			delete(entry.state.Positions, pos.Symbol)
			continue
		}
		entry.state.Positions[pos.Symbol] = pos
	}
	entry.updatedAt = c.now()
	entry.source = domain.SourceStream
	snapshot := entry.state.Clone()
	ts := entry.updatedAt
	c.mu.Unlock()

	c.notify(account, snapshot, ts)
}

// ApplyBalance replaces the streamed account summary.
func (c *UserStateCache) ApplyBalance(account string, balance domain.AccountState) {
	c.mu.Lock()
	entry := c.entryLocked(account)
	entry.state.Balance = balance
	entry.updatedAt = c.now()
	entry.source = domain.SourceStream
	snapshot := entry.state.Clone()
	ts := entry.updatedAt
	c.mu.Unlock()

	c.notify(account, snapshot, ts)
}

// ApplyFills prepends streamed fills, newest first, bounded at
// domain.MaxRecentFills. A snapshot batch replaces the list outright.
func (c *UserStateCache) ApplyFills(account string, fills []domain.Fill, snapshot bool) {
	c.mu.Lock()
	entry := c.entryLocked(account)
	if snapshot {
		entry.state.RecentFills = append([]domain.Fill(nil), fills...)
	} else {
		entry.state.RecentFills = append(append([]domain.Fill(nil), fills...), entry.state.RecentFills...)
	}
	if len(entry.state.RecentFills) > domain.MaxRecentFills {
		entry.state.RecentFills = entry.state.RecentFills[:domain.MaxRecentFills]
	}
	entry.updatedAt = c.now()
	entry.source = domain.SourceStream
	view := entry.state.Clone()
	ts := entry.updatedAt
	c.mu.Unlock()

	c.notify(account, view, ts)
}

// SeedSnapshot primes the cache from a fallback snapshot. Accepted only
// when the account has never been written; live stream data is never
// overwritten by a fallback result.
func (c *UserStateCache) SeedSnapshot(account string, state *domain.UserState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[account]; ok {
		return
	}
	clone := state.Clone()
	clone.Account = account
	c.entries[account] = &userEntry{
		state:     clone,
		updatedAt: c.now(),
		source:    domain.SourceFallback,
	}
}

// Read returns a deep copy of the account view, its source, and
// staleness. ok is false when the account has never been written.
func (c *UserStateCache) Read(account string) (state *domain.UserState, source domain.ValueSource, stale, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[account]
	if !ok {
		return nil, domain.SourceStream, false, false
	}
	return entry.state.Clone(), entry.source, c.now().Sub(entry.updatedAt) >= c.stale, true
}

// Age returns how long ago the account was last written.
func (c *UserStateCache) Age(account string) (time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[account]
	if !ok {
		return 0, false
	}
	return c.now().Sub(entry.updatedAt), true
}

func (c *UserStateCache) notify(account string, state *domain.UserState, ts time.Time) {
	if c.publish == nil {
		return
	}
	c.publish(domain.Update{
		Kind:  domain.UpdateData,
		Topic: domain.TopicUserState,
		Key:   account,
		User:  state,
		Ts:    ts,
	})
}
