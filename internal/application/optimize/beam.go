package optimize

import (
	"context"
	"hash/fnv"
	"math/rand"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/turtacn/SynthonScout/internal/domain/synthon"
	"github.com/turtacn/SynthonScout/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SynthonScout/pkg/errors"
)

// NeighborSource ranks and samples substitution candidates.
// *neighbor.Cache satisfies it.
type NeighborSource interface {
	Neighbors(ctx context.Context, reactionID string, position int, center *synthon.Synthon, pool []*synthon.Synthon, topL int) []*synthon.Synthon
	SampleNeighbors(ranked []*synthon.Synthon, n int, rng *rand.Rand) []*synthon.Synthon
}

// BeamOptimizer runs round-based beam search over one reaction at a time.
// It holds no per-run state and is safe for concurrent use.
type BeamOptimizer struct {
	accessor  synthon.Accessor
	neighbors NeighborSource
	scorer    AssemblyScorer
	req       Request
	logger    logging.Logger
}

// NewBeamOptimizer validates req and creates a BeamOptimizer.
func NewBeamOptimizer(accessor synthon.Accessor, neighbors NeighborSource, scorer AssemblyScorer, req Request, logger logging.Logger) (*BeamOptimizer, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.MemoCapacity == 0 {
		req.MemoCapacity = DefaultMemoCapacity
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &BeamOptimizer{
		accessor:  accessor,
		neighbors: neighbors,
		scorer:    scorer,
		req:       req,
		logger:    logger,
	}, nil
}

// Request returns the parameters the optimizer was built with.
func (o *BeamOptimizer) Request() Request { return o.req }

// Optimize improves seed and returns the final beam sorted by score.  A seed
// that cannot be resolved or scored is an error; everything after that only
// narrows or keeps the beam.
func (o *BeamOptimizer) Optimize(ctx context.Context, seed synthon.SeedAssembly) (*synthon.OptimizationResult, error) {
	frags, err := synthon.ResolveSeed(o.accessor, seed)
	if err != nil {
		return nil, err
	}
	positions, err := o.accessor.Positions(seed.ReactionID)
	if err != nil {
		return nil, err
	}

	run := &optimizationRun{
		optimizer: o,
		ctx:       ctx,
		rxn:       seed.ReactionID,
		positions: positions,
		rng:       rand.New(rand.NewSource(o.req.RandomSeed ^ seedHash(seed.ReactionID, seed.FragmentIDs))),
		memo:      newScoreMemo(o.req.MemoCapacity),
	}

	seedEntry, ok := run.score(frags, 0)
	if !ok {
		return nil, errors.New(errors.ErrCodeSeedScoringFailed, "seed assembly could not be scored").
			WithDetail(seed.ReactionID + ":" + strings.Join(seed.FragmentIDs, ";"))
	}

	beam, rounds, err := run.search([]*synthon.BeamEntry{seedEntry})
	if err != nil {
		return nil, err
	}

	o.logger.Debug("local optimization finished",
		logging.ReactionID(seed.ReactionID),
		logging.FragmentIDs(seed.FragmentIDs),
		logging.Int("rounds", rounds),
		logging.Float64("seed_score", seedEntry.Score),
		logging.Float64("best_score", beam[0].Score))

	return &synthon.OptimizationResult{
		ReactionID:      seed.ReactionID,
		SeedFragmentIDs: append([]string(nil), seed.FragmentIDs...),
		Beam:            beam,
	}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// One optimization run
// ─────────────────────────────────────────────────────────────────────────────

type optimizationRun struct {
	optimizer *BeamOptimizer
	ctx       context.Context
	rxn       string
	positions []int
	rng       *rand.Rand
	memo      *scoreMemo
}

// score returns the memoized entry for frags or scores a private copy of it,
// so callers may reuse frags afterwards.
func (r *optimizationRun) score(frags []*synthon.Synthon, round int) (*synthon.BeamEntry, bool) {
	key, keyed := synthon.NewAssemblyKey(r.rxn, frags)
	if keyed {
		if v, ok := r.memo.get(key); ok {
			return v.entry, v.ok
		}
	}
	owned := make([]*synthon.Synthon, len(frags))
	copy(owned, frags)
	entry, ok := r.optimizer.scorer.Score(r.ctx, r.rxn, owned, round)
	if keyed && r.ctx.Err() == nil {
		r.memo.add(key, memoValue{entry: entry, ok: ok})
	}
	return entry, ok
}

// search runs rounds until patience or max_rounds is exhausted and returns
// the final beam and the number of completed rounds.
func (r *optimizationRun) search(beam []*synthon.BeamEntry) ([]*synthon.BeamEntry, int, error) {
	req := r.optimizer.req
	best := beam[0].Score
	stall := 0
	rounds := 0

	for round := 1; round <= req.MaxRounds; round++ {
		for pi, pos := range r.positions {
			if err := r.ctx.Err(); err != nil {
				return nil, rounds, errors.Wrap(err, errors.ErrCodeCancelled, "local optimization interrupted")
			}
			pool, err := r.optimizer.accessor.Candidates(r.rxn, pos)
			if err != nil {
				return nil, rounds, err
			}
			beam = selectBeam(r.expand(beam, pi, pos, pool, round), req.BeamSize, req.PerPositionCap, len(r.positions))
			if len(beam) == 0 {
				return beam, rounds, nil
			}
		}
		rounds = round

		roundBest := beam[0].Score
		if roundBest-best > req.ImprovementTolerance {
			best = roundBest
			stall = 0
			continue
		}
		if roundBest > best {
			best = roundBest
		}
		stall++
		if stall >= req.Patience {
			break
		}
	}
	return beam, rounds, nil
}

// expand substitutes the fragment at position index pi of every beam entry
// with sampled neighbors of that entry's current fragment.  The returned
// pool contains the unmodified beam followed by every new viable entry.
func (r *optimizationRun) expand(beam []*synthon.BeamEntry, pi, pos int, pool []*synthon.Synthon, round int) []*synthon.BeamEntry {
	req := r.optimizer.req
	seen := newEntrySet()
	candidates := make([]*synthon.BeamEntry, 0, len(beam)*(req.SampledNeighbors+1))
	for _, e := range beam {
		if seen.add(r.rxn, e.Fragments) {
			candidates = append(candidates, e)
		}
	}
	// Substitutions are staged in one scratch slice.  Only assemblies that
	// are scored for the first time get their own copy.
	scratch := make([]*synthon.Synthon, len(r.positions))
	for _, e := range beam {
		ranked := r.optimizer.neighbors.Neighbors(r.ctx, r.rxn, pos, e.Fragments[pi], pool, req.NeighborTopL)
		for _, sub := range r.optimizer.neighbors.SampleNeighbors(ranked, req.SampledNeighbors, r.rng) {
			copy(scratch, e.Fragments)
			scratch[pi] = sub
			if !seen.add(r.rxn, scratch) {
				continue
			}
			if entry, ok := r.score(scratch, round); ok {
				candidates = append(candidates, entry)
			}
		}
	}
	return candidates
}

// selectBeam keeps up to size entries by score, allowing each fragment at a
// position at most perPositionCap times.  Slots the cap leaves empty are
// filled from the remaining entries in score order.
func selectBeam(pool []*synthon.BeamEntry, size, perPositionCap, nPositions int) []*synthon.BeamEntry {
	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].Score != pool[j].Score {
			return pool[i].Score > pool[j].Score
		}
		return lessIDs(pool[i].Fragments, pool[j].Fragments)
	})

	usage := make([]map[string]int, nPositions)
	for i := range usage {
		usage[i] = make(map[string]int)
	}
	selected := make([]*synthon.BeamEntry, 0, size)
	taken := make([]bool, len(pool))
	for i, e := range pool {
		if len(selected) == size {
			break
		}
		allowed := true
		for p, f := range e.Fragments {
			if usage[p][f.FragmentID] >= perPositionCap {
				allowed = false
				break
			}
		}
		if !allowed {
			continue
		}
		for p, f := range e.Fragments {
			usage[p][f.FragmentID]++
		}
		selected = append(selected, e)
		taken[i] = true
	}
	if len(selected) < size {
		for i, e := range pool {
			if len(selected) == size {
				break
			}
			if !taken[i] {
				selected = append(selected, e)
			}
		}
		sort.SliceStable(selected, func(i, j int) bool {
			if selected[i].Score != selected[j].Score {
				return selected[i].Score > selected[j].Score
			}
			return lessIDs(selected[i].Fragments, selected[j].Fragments)
		})
	}
	return selected
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

type memoValue struct {
	entry *synthon.BeamEntry
	ok    bool
}

// scoreMemo caches scorer outcomes, including rejections, for one run.
type scoreMemo struct {
	cache *lru.Cache[synthon.AssemblyKey, memoValue]
}

func newScoreMemo(capacity int) *scoreMemo {
	c, err := lru.New[synthon.AssemblyKey, memoValue](capacity)
	if err != nil {
		// Only reachable with a non-positive size, which Validate rules out.
		return &scoreMemo{}
	}
	return &scoreMemo{cache: c}
}

func (m *scoreMemo) get(k synthon.AssemblyKey) (memoValue, bool) {
	if m.cache == nil {
		return memoValue{}, false
	}
	return m.cache.Get(k)
}

func (m *scoreMemo) add(k synthon.AssemblyKey, v memoValue) {
	if m.cache != nil {
		m.cache.Add(k, v)
	}
}

// entrySet deduplicates assemblies within one expansion step.  Assemblies
// wider than an AssemblyKey fall back to a joined-id key.
type entrySet struct {
	keyed map[synthon.AssemblyKey]struct{}
	wide  map[string]struct{}
}

func newEntrySet() *entrySet {
	return &entrySet{keyed: make(map[synthon.AssemblyKey]struct{}), wide: make(map[string]struct{})}
}

// add inserts the assembly and reports whether it was new.
func (s *entrySet) add(rxn string, frags []*synthon.Synthon) bool {
	if k, ok := synthon.NewAssemblyKey(rxn, frags); ok {
		if _, dup := s.keyed[k]; dup {
			return false
		}
		s.keyed[k] = struct{}{}
		return true
	}
	k := joinIDs(synthon.FragmentIDs(frags))
	if _, dup := s.wide[k]; dup {
		return false
	}
	s.wide[k] = struct{}{}
	return true
}

func lessIDs(a, b []*synthon.Synthon) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i].FragmentID != b[i].FragmentID {
			return a[i].FragmentID < b[i].FragmentID
		}
	}
	return len(a) < len(b)
}

func joinIDs(ids []string) string {
	n := 0
	for _, id := range ids {
		n += len(id) + 1
	}
	b := make([]byte, 0, n)
	for i, id := range ids {
		if i > 0 {
			b = append(b, 0)
		}
		b = append(b, id...)
	}
	return string(b)
}

// seedHash mixes the reaction id and seed fragment ids into the run's
// random seed.
func seedHash(reactionID string, fragmentIDs []string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(reactionID))
	for _, id := range fragmentIDs {
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(id))
	}
	return int64(h.Sum64())
}
