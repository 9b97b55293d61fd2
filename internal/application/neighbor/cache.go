// Package neighbor provides the shared read-through cache of synthon
// descriptors and ranked neighbor lists used by downsampling and by the beam
// optimizer's neighbor sampling.
package neighbor

import (
	"container/heap"
	"context"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/turtacn/SynthonScout/internal/domain/molecule"
	"github.com/turtacn/SynthonScout/internal/domain/synthon"
	"github.com/turtacn/SynthonScout/internal/infrastructure/monitoring/logging"
)

// rankKey identifies one ranked list.  PoolSize distinguishes the
// downsampled and full pools of a position; TopL distinguishes callers that
// ask for lists of different lengths.
type rankKey struct {
	ReactionID string
	Position   int
	FragmentID string
	PoolSize   int
	TopL       int
}

// cell holds one lazily computed value.  Failures caused by context
// cancellation are not stored so a later caller can retry.
type cell[V any] struct {
	mu    sync.Mutex
	done  bool
	value V
}

// Stats reports cache effectiveness.
type Stats struct {
	DescriptorHits   int64 `json:"descriptor_hits"`
	DescriptorMisses int64 `json:"descriptor_misses"`
	RankHits         int64 `json:"rank_hits"`
	RankMisses       int64 `json:"rank_misses"`
}

type descriptorValue struct {
	desc molecule.Descriptor
	ok   bool
}

// Cache memoizes descriptors per synthon and ranked neighbor lists per
// (reaction, position, center, pool size, top-L).  It is safe for concurrent
// use; each key is computed at most once.
type Cache struct {
	toolkit molecule.Toolkit
	logger  logging.Logger

	mu          sync.Mutex
	descriptors map[synthon.FragmentKey]*cell[descriptorValue]
	ranked      map[rankKey]*cell[[]*synthon.Synthon]

	descHits, descMisses atomic.Int64
	rankHits, rankMisses atomic.Int64
}

// NewCache creates a Cache backed by toolkit.
func NewCache(toolkit molecule.Toolkit, logger logging.Logger) *Cache {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Cache{
		toolkit:     toolkit,
		logger:      logger,
		descriptors: make(map[synthon.FragmentKey]*cell[descriptorValue]),
		ranked:      make(map[rankKey]*cell[[]*synthon.Synthon]),
	}
}

// Toolkit returns the toolkit the cache computes descriptors with.
func (c *Cache) Toolkit() molecule.Toolkit { return c.toolkit }

func descriptorCell(c *Cache, key synthon.FragmentKey) *cell[descriptorValue] {
	c.mu.Lock()
	defer c.mu.Unlock()
	ce, ok := c.descriptors[key]
	if !ok {
		ce = &cell[descriptorValue]{}
		c.descriptors[key] = ce
	}
	return ce
}

func rankCell(c *Cache, key rankKey) *cell[[]*synthon.Synthon] {
	c.mu.Lock()
	defer c.mu.Unlock()
	ce, ok := c.ranked[key]
	if !ok {
		ce = &cell[[]*synthon.Synthon]{}
		c.ranked[key] = ce
	}
	return ce
}

// Descriptor returns the descriptor of s.  The second result is false when
// the toolkit could not describe s; that outcome is cached as well.
func (c *Cache) Descriptor(ctx context.Context, s *synthon.Synthon) (molecule.Descriptor, bool) {
	ce := descriptorCell(c, s.Key())
	ce.mu.Lock()
	defer ce.mu.Unlock()
	if ce.done {
		c.descHits.Add(1)
		return ce.value.desc, ce.value.ok
	}
	c.descMisses.Add(1)

	desc, err := molecule.Describe(ctx, c.toolkit, s)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false
		}
		c.logger.Debug("descriptor unavailable",
			logging.ReactionID(s.ReactionID), logging.Position(s.Position),
			logging.String("frag_id", s.FragmentID), logging.Err(err))
		ce.value = descriptorValue{}
		ce.done = true
		return nil, false
	}
	ce.value = descriptorValue{desc: desc, ok: true}
	ce.done = true
	return desc, true
}

// Similarity compares two cached descriptors.  A missing descriptor on
// either side yields 0.
func (c *Cache) Similarity(ctx context.Context, a, b *synthon.Synthon) float64 {
	da, ok := c.Descriptor(ctx, a)
	if !ok {
		return 0
	}
	db, ok := c.Descriptor(ctx, b)
	if !ok {
		return 0
	}
	return c.toolkit.Similarity(da, db)
}

// Neighbors returns up to topL members of pool ranked by similarity to
// center, most similar first.  The center itself is excluded.  The result is
// shared and must not be modified.
func (c *Cache) Neighbors(ctx context.Context, reactionID string, position int, center *synthon.Synthon, pool []*synthon.Synthon, topL int) []*synthon.Synthon {
	if topL <= 0 || len(pool) == 0 {
		return nil
	}
	key := rankKey{
		ReactionID: reactionID,
		Position:   position,
		FragmentID: center.FragmentID,
		PoolSize:   len(pool),
		TopL:       topL,
	}
	ce := rankCell(c, key)
	ce.mu.Lock()
	defer ce.mu.Unlock()
	if ce.done {
		c.rankHits.Add(1)
		return ce.value
	}
	c.rankMisses.Add(1)

	ranked := c.rank(ctx, center, pool, topL)
	if ctx.Err() != nil {
		return ranked
	}
	ce.value = ranked
	ce.done = true
	return ranked
}

func (c *Cache) rank(ctx context.Context, center *synthon.Synthon, pool []*synthon.Synthon, topL int) []*synthon.Synthon {
	centerDesc, ok := c.Descriptor(ctx, center)
	if !ok {
		return nil
	}
	h := &scoredHeap{}
	heap.Init(h)
	for _, cand := range pool {
		if cand.FragmentID == center.FragmentID {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		d, ok := c.Descriptor(ctx, cand)
		if !ok {
			continue
		}
		item := scored{synthon: cand, score: c.toolkit.Similarity(centerDesc, d)}
		if h.Len() < topL {
			heap.Push(h, item)
		} else if (*h)[0].less(item) {
			heap.Pop(h)
			heap.Push(h, item)
		}
	}
	out := make([]*synthon.Synthon, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(scored).synthon
	}
	return out
}

// SampleNeighbors draws min(n, len(ranked)) distinct members of ranked
// uniformly at random.  ranked is not modified.
func (c *Cache) SampleNeighbors(ranked []*synthon.Synthon, n int, rng *rand.Rand) []*synthon.Synthon {
	return SampleNeighbors(ranked, n, rng)
}

// SampleNeighbors is the package-level form of Cache.SampleNeighbors.
func SampleNeighbors(ranked []*synthon.Synthon, n int, rng *rand.Rand) []*synthon.Synthon {
	if n <= 0 || len(ranked) == 0 {
		return nil
	}
	if n >= len(ranked) {
		out := make([]*synthon.Synthon, len(ranked))
		copy(out, ranked)
		return out
	}
	pool := make([]*synthon.Synthon, len(ranked))
	copy(pool, ranked)
	for i := 0; i < n; i++ {
		j := i + rng.Intn(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:n]
}

// Stats returns a snapshot of the hit counters.
func (c *Cache) Stats() Stats {
	return Stats{
		DescriptorHits:   c.descHits.Load(),
		DescriptorMisses: c.descMisses.Load(),
		RankHits:         c.rankHits.Load(),
		RankMisses:       c.rankMisses.Load(),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// top-L heap
// ─────────────────────────────────────────────────────────────────────────────

type scored struct {
	synthon *synthon.Synthon
	score   float64
}

// less orders by score, then by fragment id descending so that among equal
// scores the lexicographically smaller id ranks higher.
func (s scored) less(o scored) bool {
	if s.score != o.score {
		return s.score < o.score
	}
	return s.synthon.FragmentID > o.synthon.FragmentID
}

// scoredHeap is a min-heap: the root is the weakest kept neighbor.
type scoredHeap []scored

func (h scoredHeap) Len() int            { return len(h) }
func (h scoredHeap) Less(i, j int) bool  { return h[i].less(h[j]) }
func (h scoredHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *scoredHeap) Push(x interface{}) { *h = append(*h, x.(scored)) }
func (h *scoredHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
