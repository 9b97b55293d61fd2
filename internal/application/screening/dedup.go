package screening

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultMaxDuplicateEntries bounds the in-memory seen-set.
const DefaultMaxDuplicateEntries = 1_000_000

// DuplicateFilter records assembled structure codes.  MarkIfDuplicate must
// never report a code that was not seen before; forgetting a seen code is
// acceptable.
type DuplicateFilter interface {
	MarkIfDuplicate(ctx context.Context, code string) bool
}

// MemoryDuplicateFilter is a mutex-guarded set with coarse eviction: once it
// grows past its bound, about half of the entries are dropped in map order.
type MemoryDuplicateFilter struct {
	mu         sync.Mutex
	seen       map[string]struct{}
	maxEntries int
	evictions  atomic.Int64
}

// NewMemoryDuplicateFilter creates a filter holding at most maxEntries codes.
// A non-positive bound uses DefaultMaxDuplicateEntries.
func NewMemoryDuplicateFilter(maxEntries int) *MemoryDuplicateFilter {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxDuplicateEntries
	}
	return &MemoryDuplicateFilter{
		seen:       make(map[string]struct{}, 256),
		maxEntries: maxEntries,
	}
}

// MarkIfDuplicate implements DuplicateFilter.
func (f *MemoryDuplicateFilter) MarkIfDuplicate(_ context.Context, code string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.seen[code]; ok {
		return true
	}
	f.seen[code] = struct{}{}
	if len(f.seen) > f.maxEntries {
		f.evictHalf()
	}
	return false
}

// evictHalf must be called with f.mu held.
func (f *MemoryDuplicateFilter) evictHalf() {
	target := len(f.seen) / 2
	for k := range f.seen {
		if len(f.seen) <= target {
			break
		}
		delete(f.seen, k)
	}
	f.evictions.Add(1)
}

// Len returns the number of remembered codes.
func (f *MemoryDuplicateFilter) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

// Evictions returns how many eviction passes have run.
func (f *MemoryDuplicateFilter) Evictions() int64 { return f.evictions.Load() }
