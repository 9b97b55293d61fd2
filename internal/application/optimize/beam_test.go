package optimize

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/SynthonScout/internal/application/neighbor"
	"github.com/turtacn/SynthonScout/internal/domain/synthon"
	"github.com/turtacn/SynthonScout/internal/testutil"
	"github.com/turtacn/SynthonScout/pkg/errors"
)

// recordingScorer wraps a scorer and remembers the highest round it saw.
type recordingScorer struct {
	inner AssemblyScorer

	mu       sync.Mutex
	maxRound int
	calls    int
}

func (r *recordingScorer) Score(ctx context.Context, rxn string, frags []*synthon.Synthon, round int) (*synthon.BeamEntry, bool) {
	r.mu.Lock()
	r.calls++
	if round > r.maxRound {
		r.maxRound = round
	}
	r.mu.Unlock()
	return r.inner.Score(ctx, rxn, frags, round)
}

type fixture struct {
	space     *synthon.Space
	toolkit   *testutil.StubToolkit
	neighbors *neighbor.Cache
	scorer    *recordingScorer
}

func newFixture(t *testing.T, query string, sizes ...int) *fixture {
	t.Helper()
	tk := testutil.NewStubToolkit()
	return &fixture{
		space:     testutil.NumericSpace("r1", sizes...),
		toolkit:   tk,
		neighbors: neighbor.NewCache(tk, nil),
		scorer:    &recordingScorer{inner: NewShapeScorer(tk, queryFor(t, tk, query), 0, PropertyFilter{}, nil, nil)},
	}
}

func (f *fixture) optimizer(t *testing.T, req Request) *BeamOptimizer {
	t.Helper()
	o, err := NewBeamOptimizer(synthon.NewAccessor(f.space), f.neighbors, f.scorer, req, nil)
	require.NoError(t, err)
	return o
}

func seedOf(idx ...int) synthon.SeedAssembly {
	ids := make([]string, len(idx))
	for pos, i := range idx {
		ids[pos] = testutil.FragmentID(pos, i)
	}
	return synthon.SeedAssembly{ReactionID: "r1", FragmentIDs: ids}
}

func testRequest() Request {
	return Request{
		BeamSize:             4,
		MaxRounds:            8,
		NeighborTopL:         6,
		SampledNeighbors:     4,
		PerPositionCap:       2,
		Patience:             3,
		ImprovementTolerance: 1e-9,
		RandomSeed:           11,
	}
}

func TestRequest_Validate(t *testing.T) {
	require.NoError(t, DefaultRequest().Validate())
	require.NoError(t, testRequest().Validate())

	mutations := []func(*Request){
		func(r *Request) { r.BeamSize = 0 },
		func(r *Request) { r.MaxRounds = 0 },
		func(r *Request) { r.NeighborTopL = 0 },
		func(r *Request) { r.SampledNeighbors = 0 },
		func(r *Request) { r.PerPositionCap = 0 },
		func(r *Request) { r.Patience = 0 },
		func(r *Request) { r.ImprovementTolerance = -1 },
		func(r *Request) { r.MemoCapacity = -1 },
	}
	for i, m := range mutations {
		r := testRequest()
		m(&r)
		assert.True(t, errors.IsCode(r.Validate(), errors.ErrCodeOptimizeRequestInvalid), "mutation %d", i)
	}

	_, err := NewBeamOptimizer(nil, nil, nil, Request{}, nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeOptimizeRequestInvalid))
}

func TestOptimize_ImprovesTowardQuery(t *testing.T) {
	f := newFixture(t, "30", 20, 20)
	o := f.optimizer(t, testRequest())

	res, err := o.Optimize(context.Background(), seedOf(0, 0))
	require.NoError(t, err)

	assert.Equal(t, "r1", res.ReactionID)
	assert.Equal(t, []string{"p0-0", "p1-0"}, res.SeedFragmentIDs)
	require.NotEmpty(t, res.Beam)
	assert.LessOrEqual(t, len(res.Beam), 4)

	seedScore := 1.0 / 31.0
	assert.Greater(t, res.Beam[0].Score, seedScore)
	for i := 1; i < len(res.Beam); i++ {
		assert.GreaterOrEqual(t, res.Beam[i-1].Score, res.Beam[i].Score)
	}
	assert.LessOrEqual(t, f.scorer.maxRound, 8)
}

func TestOptimize_Deterministic(t *testing.T) {
	run := func() []string {
		f := newFixture(t, "25", 30, 30)
		res, err := f.optimizer(t, testRequest()).Optimize(context.Background(), seedOf(3, 4))
		require.NoError(t, err)
		var out []string
		for _, e := range res.Beam {
			out = append(out, e.AssembledCode)
		}
		return out
	}
	assert.Equal(t, run(), run())
}

func TestOptimize_BeamEntriesOwnFragments(t *testing.T) {
	f := newFixture(t, "25", 30, 30, 30)
	res, err := f.optimizer(t, testRequest()).Optimize(context.Background(), seedOf(3, 4, 5))
	require.NoError(t, err)
	require.Greater(t, len(res.Beam), 1)

	// Each entry still describes the assembly it was scored for.
	for _, e := range res.Beam {
		require.Len(t, e.Fragments, 3)
		codes := make([]string, len(e.Fragments))
		for i, s := range e.Fragments {
			codes[i] = s.Code
		}
		assert.Equal(t, strings.Join(codes, "."), e.AssembledCode)
	}
	for i := range res.Beam {
		for j := i + 1; j < len(res.Beam); j++ {
			assert.NotSame(t, &res.Beam[i].Fragments[0], &res.Beam[j].Fragments[0],
				"entries %d and %d share a fragment slice", i, j)
			assert.NotEqual(t, res.Beam[i].FragmentIDs(), res.Beam[j].FragmentIDs())
		}
	}
}

func TestOptimize_PatienceStopsStalledSearch(t *testing.T) {
	tk := testutil.NewConstantToolkit(0.5)
	sp := testutil.NumericSpace("r1", 10, 10)
	scorer := &recordingScorer{inner: NewShapeScorer(tk, queryFor(t, tk, "1"), 0, PropertyFilter{}, nil, nil)}
	req := testRequest()
	req.Patience = 2
	req.MaxRounds = 50
	logger := testutil.NewMockLogger()
	o, err := NewBeamOptimizer(synthon.NewAccessor(sp), neighbor.NewCache(tk, nil), scorer, req, logger)
	require.NoError(t, err)

	res, err := o.Optimize(context.Background(), seedOf(0, 0))
	require.NoError(t, err)
	rounds, ok := logger.Field("local optimization finished", "rounds")
	require.True(t, ok)
	assert.Equal(t, 2, rounds)
	assert.LessOrEqual(t, scorer.maxRound, 2)
	assert.Equal(t, 0.5, res.Beam[0].Score)
	assert.LessOrEqual(t, len(res.Beam), req.BeamSize)
}

func TestOptimize_MaxRoundsBound(t *testing.T) {
	f := newFixture(t, "1000", 40, 40)
	req := testRequest()
	req.MaxRounds = 3
	req.Patience = 100

	res, err := f.optimizer(t, req).Optimize(context.Background(), seedOf(0, 0))
	require.NoError(t, err)
	assert.Equal(t, 3, f.scorer.maxRound)
	for _, e := range res.Beam {
		assert.LessOrEqual(t, e.Round, 3)
	}
}

func TestOptimize_SeedErrors(t *testing.T) {
	f := newFixture(t, "5", 5, 5)
	o := f.optimizer(t, testRequest())

	_, err := o.Optimize(context.Background(), synthon.SeedAssembly{ReactionID: "r1", FragmentIDs: []string{"p0-0", "nope"}})
	assert.True(t, errors.IsCode(err, errors.ErrCodeFragmentNotFound))

	_, err = o.Optimize(context.Background(), synthon.SeedAssembly{ReactionID: "zz", FragmentIDs: []string{"a"}})
	assert.True(t, errors.IsCode(err, errors.ErrCodeReactionNotFound))

	f.toolkit.FailCodes = map[string]bool{"4": true}
	_, err = o.Optimize(context.Background(), seedOf(4, 0))
	assert.True(t, errors.IsCode(err, errors.ErrCodeSeedScoringFailed))
}

func TestOptimize_SkipsFailingSubstitutions(t *testing.T) {
	f := newFixture(t, "10", 12, 12)
	f.toolkit.FailCodes = map[string]bool{"6": true, "7": true}
	res, err := f.optimizer(t, testRequest()).Optimize(context.Background(), seedOf(5, 5))
	require.NoError(t, err)
	for _, e := range res.Beam {
		for _, frag := range e.Fragments {
			assert.NotContains(t, []string{"6", "7"}, frag.Code)
		}
	}
}

func TestOptimize_Cancelled(t *testing.T) {
	f := newFixture(t, "5", 5, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.optimizer(t, testRequest()).Optimize(ctx, seedOf(0, 0))
	require.Error(t, err)
}

func TestOptimize_MemoAvoidsRescoring(t *testing.T) {
	f := newFixture(t, "4", 3, 3)
	req := testRequest()
	req.MaxRounds = 5
	req.Patience = 5
	_, err := f.optimizer(t, req).Optimize(context.Background(), seedOf(0, 0))
	require.NoError(t, err)
	// Only 9 distinct assemblies exist.
	assert.LessOrEqual(t, f.scorer.calls, 9)
}

func entry(score float64, ids ...string) *synthon.BeamEntry {
	frags := make([]*synthon.Synthon, len(ids))
	for i, id := range ids {
		frags[i] = &synthon.Synthon{ReactionID: "r", Position: i, FragmentID: id, Code: id}
	}
	return &synthon.BeamEntry{ReactionID: "r", Fragments: frags, Score: score}
}

func TestSelectBeam_PerPositionCap(t *testing.T) {
	pool := []*synthon.BeamEntry{
		entry(0.9, "a", "x"),
		entry(0.8, "a", "y"),
		entry(0.7, "a", "z"),
		entry(0.6, "b", "x"),
		entry(0.5, "c", "w"),
	}
	got := selectBeam(pool, 3, 1, 2)
	require.Len(t, got, 3)
	// The cap admits only (a,x) and (c,w); the best remaining entry fills
	// the last slot and the beam is re-sorted by score.
	assert.Equal(t, []string{"a", "x"}, got[0].FragmentIDs())
	assert.Equal(t, []string{"a", "y"}, got[1].FragmentIDs())
	assert.Equal(t, []string{"c", "w"}, got[2].FragmentIDs())
}

func TestSelectBeam_OrderAfterFill(t *testing.T) {
	pool := []*synthon.BeamEntry{
		entry(0.5, "a", "x"),
		entry(0.9, "a", "y"),
		entry(0.9, "a", "w"),
	}
	got := selectBeam(pool, 3, 1, 2)
	require.Len(t, got, 3)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
	}
	// Equal scores order by fragment ids.
	assert.Equal(t, []string{"a", "w"}, got[0].FragmentIDs())
	assert.Equal(t, []string{"a", "y"}, got[1].FragmentIDs())
}

func TestSelectBeam_SmallerPool(t *testing.T) {
	got := selectBeam([]*synthon.BeamEntry{entry(0.3, "a")}, 5, 1, 1)
	assert.Len(t, got, 1)
	assert.Empty(t, selectBeam(nil, 5, 1, 1))
}

func TestSeedHash(t *testing.T) {
	assert.Equal(t, seedHash("r1", []string{"a", "b"}), seedHash("r1", []string{"a", "b"}))
	assert.NotEqual(t, seedHash("r1", []string{"a", "b"}), seedHash("r1", []string{"ab"}))
	assert.NotEqual(t, seedHash("r1", []string{"a"}), seedHash("r2", []string{"a"}))
}
