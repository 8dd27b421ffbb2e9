package recent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coldsnap-io/coldsnap/internal/rules"
)

// Buffer is a thread-safe ring of recent history entries. Entries older than
// the TTL are dropped by a background eviction loop (Run); the capacity bound
// keeps a noisy rule from crowding out everything else between evictions.
type Buffer struct {
	mu      sync.RWMutex
	entries []rules.HistoryEntry
	ttl     time.Duration
	cap     int
	now     func() time.Time // injectable for deterministic tests
}

// New creates a Buffer holding at most capacity entries for at most ttl.
func New(ttl time.Duration, capacity int) *Buffer {
	return &Buffer{
		ttl: ttl,
		cap: capacity,
		now: time.Now,
	}
}

// Add appends an entry, dropping the oldest when over capacity.
func (b *Buffer) Add(e rules.HistoryEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, e)
	if len(b.entries) > b.cap {
		b.entries = b.entries[len(b.entries)-b.cap:]
	}
}

// List returns the fresh entries, newest first. Stale entries not yet
// evicted are excluded.
func (b *Buffer) List() []rules.HistoryEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	cutoff := b.now().Add(-b.ttl)
	out := make([]rules.HistoryEntry, 0, len(b.entries))
	for i := len(b.entries) - 1; i >= 0; i-- {
		if b.entries[i].CreatedAt.After(cutoff) {
			out = append(out, b.entries[i])
		}
	}
	return out
}

// Count returns the total number of held entries, including stale ones.
func (b *Buffer) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Evict drops entries older than now minus TTL and returns how many were
// removed.
func (b *Buffer) Evict(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	cutoff := now.Add(-b.ttl)
	kept := b.entries[:0]
	for _, e := range b.entries {
		if e.CreatedAt.After(cutoff) {
			kept = append(kept, e)
		}
	}
	removed := len(b.entries) - len(kept)
	b.entries = kept
	return removed
}

// Run starts the background eviction loop, ticking at half the TTL (minimum
// 1 second). Blocks until ctx is cancelled.
func (b *Buffer) Run(ctx context.Context) {
	interval := b.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := b.Evict(now); n > 0 {
				slog.Debug("recent: evicted stale entries", "count", n)
			}
		}
	}
}
