package molecule

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/SynthonScout/internal/domain/synthon"
	"github.com/turtacn/SynthonScout/pkg/errors"
)

func frag(t *testing.T, pos int, id, code string) *synthon.Synthon {
	t.Helper()
	s, err := synthon.NewSynthon("r1", pos, id, code, synthon.NewConnectorSet(1))
	require.NoError(t, err)
	return s
}

func TestParseAtoms(t *testing.T) {
	assert.Equal(t, []string{"C", "C", "O"}, parseAtoms("CCO"))
	assert.Equal(t, []string{"c", "c", "c", "c", "c", "c", "Cl"}, parseAtoms("c1ccccc1Cl"))
	assert.Equal(t, []string{"Br", "C", "N"}, parseAtoms("[Br]C-N"))
	assert.Empty(t, parseAtoms("()=#1"))
}

func TestFingerprint_GetBitAndTanimoto(t *testing.T) {
	a := NewFingerprint([]byte{0b0000_0011}, 8)
	b := NewFingerprint([]byte{0b0000_0110}, 8)

	assert.Equal(t, 2, a.NumOnBits)
	assert.True(t, a.GetBit(0))
	assert.False(t, a.GetBit(2))
	assert.False(t, a.GetBit(99))
	assert.InDelta(t, 1.0/3.0, Tanimoto(a, b), 1e-12)
	assert.Equal(t, 1.0, Tanimoto(a, a))
	assert.Equal(t, 0.0, Tanimoto(a, NewFingerprint([]byte{0, 0}, 16)))
	assert.Equal(t, 0.0, Tanimoto(NewFingerprint([]byte{0}, 8), NewFingerprint([]byte{0}, 8)))
	assert.Equal(t, KindNGramFingerprint, a.Kind())
}

func TestFingerprintToolkit_AssembleOrdersByPosition(t *testing.T) {
	tk := NewFingerprintToolkit()
	ctx := context.Background()

	st, err := tk.Assemble(ctx, []*synthon.Synthon{frag(t, 1, "b", "N-C"), frag(t, 0, "a", "CCO")})
	require.NoError(t, err)
	assert.Equal(t, "CCO.N-C", st.Code)
	assert.Equal(t, 5, st.AtomCount)
	assert.Equal(t, 1, tk.CountRotatableBonds(st))
	assert.Equal(t, "CCO.N-C", tk.CanonicalCode(st))

	_, err = tk.Assemble(ctx, nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeAssemblyFailed))
}

func TestFingerprintToolkit_DescriptorAndSimilarity(t *testing.T) {
	tk := NewFingerprintToolkit(WithFingerprintBits(512), WithNGramRange(1, 2))
	ctx := context.Background()

	d1, err := Describe(ctx, tk, frag(t, 0, "a", "CCCCO"))
	require.NoError(t, err)
	d2, err := Describe(ctx, tk, frag(t, 0, "b", "CCCCO"))
	require.NoError(t, err)
	d3, err := Describe(ctx, tk, frag(t, 0, "c", "c1ccncc1"))
	require.NoError(t, err)

	assert.Equal(t, 1.0, tk.Similarity(d1, d2))
	s13 := tk.Similarity(d1, d3)
	assert.GreaterOrEqual(t, s13, 0.0)
	assert.Less(t, s13, 1.0)
	assert.Equal(t, 512, d1.(*Fingerprint).Length)
}

func TestFingerprintToolkit_Failures(t *testing.T) {
	tk := NewFingerprintToolkit()
	ctx := context.Background()

	_, err := tk.ParseStructure(ctx, "  ")
	assert.True(t, errors.IsCode(err, errors.ErrCodeAssemblyFailed))

	st, err := tk.ParseStructure(ctx, "1234")
	require.NoError(t, err)
	confs, err := tk.GenerateConformers(ctx, st)
	require.NoError(t, err)
	assert.Empty(t, confs)

	_, err = tk.CreateShapeDescriptor(ctx, confs)
	assert.True(t, errors.IsCode(err, errors.ErrCodeDescriptorFailed))

	_, err = tk.CreateShapeDescriptor(ctx, ConformerSet{{ID: 0, Handle: 42}})
	assert.True(t, errors.IsCode(err, errors.ErrCodeDescriptorFailed))

	_, err = tk.GenerateConformers(ctx, nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConformerFailed))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = tk.Assemble(cancelled, []*synthon.Synthon{frag(t, 0, "a", "C")})
	assert.ErrorIs(t, err, context.Canceled)
}

type otherDescriptor struct{}

func (otherDescriptor) Kind() string { return "other" }

func TestFingerprintToolkit_ForeignDescriptor(t *testing.T) {
	tk := NewFingerprintToolkit()
	d, err := QueryDescriptor(context.Background(), tk, "CCO")
	require.NoError(t, err)
	assert.Equal(t, 0.0, tk.Similarity(d, otherDescriptor{}))
}
