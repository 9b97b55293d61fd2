package synthon

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/SynthonScout/pkg/errors"
)

func mustSynthon(t *testing.T, rxn string, pos int, id, code string, conn ...int) *Synthon {
	t.Helper()
	s, err := NewSynthon(rxn, pos, id, code, NewConnectorSet(conn...))
	require.NoError(t, err)
	return s
}

func buildSpace(t *testing.T) *Space {
	t.Helper()
	sp := NewSpace("test")
	require.NoError(t, sp.Add(mustSynthon(t, "r2", 1, "b1", "CCN", 1)))
	require.NoError(t, sp.Add(mustSynthon(t, "r2", 0, "a1", "CCO", 1)))
	require.NoError(t, sp.Add(mustSynthon(t, "r2", 0, "a2", "CCC", 1)))
	require.NoError(t, sp.Add(mustSynthon(t, "r1", 0, "x1", "c1ccccc1", 2)))
	return sp
}

func TestNewConnectorSet_SortsAndDedups(t *testing.T) {
	c := NewConnectorSet(3, 1, 3, 2)
	assert.Equal(t, ConnectorSet{1, 2, 3}, c)
	assert.Equal(t, "1,2,3", c.String())
	assert.True(t, c.Equal(NewConnectorSet(2, 3, 1)))
	assert.False(t, c.Equal(NewConnectorSet(1, 2)))
	assert.Empty(t, NewConnectorSet())
}

func TestParseConnectorSet(t *testing.T) {
	c, err := ParseConnectorSet(" 2, 1 ")
	require.NoError(t, err)
	assert.Equal(t, ConnectorSet{1, 2}, c)

	c, err = ParseConnectorSet("")
	require.NoError(t, err)
	assert.Empty(t, c)

	_, err = ParseConnectorSet("1,x")
	assert.True(t, errors.IsCode(err, errors.ErrCodeSynthonInvalid))
}

func TestNewSynthon_Validation(t *testing.T) {
	cases := []struct {
		name string
		rxn  string
		pos  int
		id   string
		code string
	}{
		{"empty reaction", "", 0, "f", "C"},
		{"negative position", "r", -1, "f", "C"},
		{"empty fragment", "r", 0, " ", "C"},
		{"empty code", "r", 0, "f", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewSynthon(tc.rxn, tc.pos, tc.id, tc.code, nil)
			assert.True(t, errors.IsCode(err, errors.ErrCodeSynthonInvalid))
		})
	}

	s, err := NewSynthon(" r ", 2, "f", "C", nil)
	require.NoError(t, err)
	assert.Equal(t, "r", s.ReactionID)
	assert.NotNil(t, s.Connectors)
	assert.Equal(t, SetKey{ReactionID: "r", Position: 2}, s.SetKey())
	assert.Equal(t, "r/2/f", s.String())
}

func TestSpace_AddAndQuery(t *testing.T) {
	sp := buildSpace(t)

	assert.Equal(t, []string{"r1", "r2"}, sp.ReactionIDs())
	assert.Equal(t, 4, sp.NumSynthons())
	assert.Equal(t, []SetKey{{"r1", 0}, {"r2", 0}, {"r2", 1}}, sp.SetKeys())
	assert.Len(t, sp.Set("r2", 0), 2)
	assert.Nil(t, sp.Set("nope", 0))

	err := sp.Add(mustSynthon(t, "r2", 0, "a1", "CCCC", 1))
	assert.True(t, errors.IsCode(err, errors.ErrCodeSynthonInvalid))
	assert.Error(t, sp.Add(nil))

	require.NoError(t, sp.Validate())
}

func TestSpace_ValidateMixedConnectors(t *testing.T) {
	sp := NewSpace("bad")
	require.NoError(t, sp.Add(mustSynthon(t, "r", 0, "a", "C", 1)))
	require.NoError(t, sp.Add(mustSynthon(t, "r", 0, "b", "N", 2)))
	assert.True(t, errors.IsCode(sp.Validate(), errors.ErrCodeSynthonInvalid))
}

func TestSpace_Metadata(t *testing.T) {
	sp := NewSpace("md")
	_, ok := sp.Metadata("r")
	assert.False(t, ok)
	sp.SetMetadata("r", ReactionMetadata{ExampleScaffolds: []string{"C1CC1"}})
	md, ok := sp.Metadata("r")
	assert.True(t, ok)
	assert.Equal(t, []string{"C1CC1"}, md.ExampleScaffolds)
}

func TestLogCombinatorialSize(t *testing.T) {
	sp := buildSpace(t)
	sets, _ := sp.PositionSets("r2")
	assert.InDelta(t, math.Log(2)+math.Log(1), LogCombinatorialSize(sets), 1e-12)
	assert.Equal(t, 0.0, LogCombinatorialSize(map[int][]*Synthon{0: nil}))
}

func TestSetAccessor(t *testing.T) {
	acc := NewAccessor(buildSpace(t))

	positions, err := acc.Positions("r2")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, positions)

	cands, err := acc.Candidates("r2", 0)
	require.NoError(t, err)
	assert.Len(t, cands, 2)

	f, err := acc.Fragment("r2", 0, "a2")
	require.NoError(t, err)
	assert.Equal(t, "CCC", f.Code)

	_, err = acc.Positions("missing")
	assert.True(t, errors.IsCode(err, errors.ErrCodeReactionNotFound))
	_, err = acc.Candidates("r2", 7)
	assert.True(t, errors.IsCode(err, errors.ErrCodePositionNotFound))
	_, err = acc.Fragment("r2", 0, "zz")
	assert.True(t, errors.IsCode(err, errors.ErrCodeFragmentNotFound))
	_, err = acc.Fragment("r2", 9, "a1")
	assert.True(t, errors.IsCode(err, errors.ErrCodePositionNotFound))
}

func TestSetAccessor_ConcurrentResolution(t *testing.T) {
	acc := NewAccessor(buildSpace(t))
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := acc.Positions("r2")
			assert.NoError(t, err)
			assert.Len(t, p, 2)
		}()
	}
	wg.Wait()
}

func TestResolveSeed(t *testing.T) {
	acc := NewAccessor(buildSpace(t))

	frags, err := ResolveSeed(acc, SeedAssembly{ReactionID: "r2", FragmentIDs: []string{"a2", "b1"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a2", "b1"}, FragmentIDs(frags))

	_, err = ResolveSeed(acc, SeedAssembly{ReactionID: "r2", FragmentIDs: []string{"a2"}})
	assert.True(t, errors.IsCode(err, errors.ErrCodeFragmentNotFound))

	_, err = ResolveSeed(acc, SeedAssembly{ReactionID: "r2", FragmentIDs: []string{"a2", "nope"}})
	assert.True(t, errors.IsNotFound(err))
}

func TestAssemblyKey(t *testing.T) {
	a := mustSynthon(t, "r", 0, "a", "C")
	b := mustSynthon(t, "r", 1, "b", "N")

	k1, ok := NewAssemblyKey("r", []*Synthon{a, b})
	require.True(t, ok)
	k2, _ := NewAssemblyKey("r", []*Synthon{a, b})
	assert.Equal(t, k1, k2)

	k3, _ := NewAssemblyKey("r", []*Synthon{b, a})
	assert.NotEqual(t, k1, k3)
	assert.True(t, k1.Less(k3))
	assert.False(t, k3.Less(k1))

	big := make([]*Synthon, MaxKeyPositions+1)
	for i := range big {
		big[i] = a
	}
	_, ok = NewAssemblyKey("r", big)
	assert.False(t, ok)
}

func TestBeamEntryAndCandidateSeeds(t *testing.T) {
	a := mustSynthon(t, "r", 0, "a", "C")
	b := mustSynthon(t, "r", 1, "b", "N")

	e := &BeamEntry{ReactionID: "r", Fragments: []*Synthon{a, b}, Score: 0.7}
	seed := e.Seed()
	assert.Equal(t, []string{"a", "b"}, seed.FragmentIDs)
	require.NotNil(t, seed.InitialScore)
	assert.Equal(t, 0.7, *seed.InitialScore)

	c := &ScreeningCandidate{ReactionID: "r", Fragments: []*Synthon{a, b}, Similarity: 0.5}
	assert.Equal(t, []string{"a", "b"}, c.Seed().FragmentIDs)

	res := &OptimizationResult{ReactionID: "r", Beam: []*BeamEntry{e}}
	best, ok := res.Best()
	assert.True(t, ok)
	assert.Same(t, e, best)

	_, ok = (&OptimizationResult{}).Best()
	assert.False(t, ok)
	assert.Equal(t, "connectors:", ConnectorSignature([]*Synthon{a}))
	assert.Equal(t, "", ConnectorSignature(nil))
}

func TestOptimizationResult_Rows(t *testing.T) {
	a := mustSynthon(t, "r", 0, "a", "C")
	b := mustSynthon(t, "r", 1, "b", "N")
	res := &OptimizationResult{
		ReactionID:      "r",
		SeedFragmentIDs: []string{"a0", "b0"},
		Beam: []*BeamEntry{
			{ReactionID: "r", Fragments: []*Synthon{a, b}, Score: 0.9, AtomCount: 12, RotatableBonds: 2, AssembledCode: "C.N", Round: 3},
			{ReactionID: "r", Fragments: []*Synthon{a, b}, Score: 0.4},
		},
	}
	rows := res.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, ResultRow{
		ReactionID:      "r",
		FragmentIDs:     []string{"a", "b"},
		AssembledCode:   "C.N",
		Atoms:           12,
		RotatableBonds:  2,
		Similarity:      0.9,
		Round:           3,
		SeedFragmentIDs: []string{"a0", "b0"},
	}, rows[0])
	assert.Nil(t, (*OptimizationResult)(nil).Rows())
}
