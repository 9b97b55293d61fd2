package molecule

import (
	"context"
	"sort"
	"strings"

	"github.com/turtacn/SynthonScout/internal/domain/synthon"
	"github.com/turtacn/SynthonScout/pkg/errors"
)

// Default fingerprint parameters.
const (
	DefaultFingerprintBits = 1024
	DefaultMinNGram        = 1
	DefaultMaxNGram        = 3
)

// FingerprintOption configures a FingerprintToolkit.
type FingerprintOption func(*FingerprintToolkit)

// WithFingerprintBits sets the fingerprint length in bits.
func WithFingerprintBits(n int) FingerprintOption {
	return func(t *FingerprintToolkit) {
		if n > 0 {
			t.nBits = n
		}
	}
}

// WithNGramRange sets the atom path lengths hashed into the fingerprint.
func WithNGramRange(minN, maxN int) FingerprintOption {
	return func(t *FingerprintToolkit) {
		if minN >= 1 && maxN >= minN {
			t.minN, t.maxN = minN, maxN
		}
	}
}

// FingerprintToolkit is a deterministic 2-D surrogate for a 3-D shape
// toolkit.  Structure codes are SMILES-like strings; assemblies join
// fragment codes with '.', the single pseudo-conformer is the structure
// itself, and descriptors are hashed atom-path fingerprints compared with
// Tanimoto.
type FingerprintToolkit struct {
	nBits int
	minN  int
	maxN  int
}

// NewFingerprintToolkit creates a FingerprintToolkit.
func NewFingerprintToolkit(opts ...FingerprintOption) *FingerprintToolkit {
	t := &FingerprintToolkit{
		nBits: DefaultFingerprintBits,
		minN:  DefaultMinNGram,
		maxN:  DefaultMaxNGram,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

var _ Toolkit = (*FingerprintToolkit)(nil)

// ParseStructure implements Toolkit.
func (t *FingerprintToolkit) ParseStructure(ctx context.Context, code string) (*Structure, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, errors.New(errors.ErrCodeAssemblyFailed, "structure code is empty")
	}
	return &Structure{Code: code, AtomCount: len(parseAtoms(code))}, nil
}

// Assemble implements Toolkit.
func (t *FingerprintToolkit) Assemble(ctx context.Context, fragments []*synthon.Synthon) (*Structure, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(fragments) == 0 {
		return nil, errors.New(errors.ErrCodeAssemblyFailed, "no fragments to assemble")
	}
	ordered := make([]*synthon.Synthon, len(fragments))
	copy(ordered, fragments)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Position < ordered[j].Position })

	codes := make([]string, len(ordered))
	for i, f := range ordered {
		if f == nil || f.Code == "" {
			return nil, errors.New(errors.ErrCodeAssemblyFailed, "fragment has no structure code")
		}
		codes[i] = f.Code
	}
	code := strings.Join(codes, ".")
	return &Structure{Code: code, AtomCount: len(parseAtoms(code))}, nil
}

// GenerateConformers implements Toolkit.  Structures without atoms yield an
// empty set.
func (t *FingerprintToolkit) GenerateConformers(ctx context.Context, st *Structure) (ConformerSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if st == nil {
		return nil, errors.New(errors.ErrCodeConformerFailed, "nil structure")
	}
	if st.AtomCount == 0 {
		return ConformerSet{}, nil
	}
	return ConformerSet{{ID: 0, Handle: st.Code}}, nil
}

// CreateShapeDescriptor implements Toolkit.
func (t *FingerprintToolkit) CreateShapeDescriptor(ctx context.Context, conformers ConformerSet) (Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(conformers) == 0 {
		return nil, errors.New(errors.ErrCodeDescriptorFailed, "no conformers")
	}
	code, ok := conformers[0].Handle.(string)
	if !ok {
		return nil, errors.New(errors.ErrCodeDescriptorFailed, "conformer was not produced by this toolkit")
	}

	data := make([]byte, (t.nBits+7)/8)
	for _, part := range strings.Split(code, ".") {
		atoms := parseAtoms(part)
		for n := t.minN; n <= t.maxN && n <= len(atoms); n++ {
			for i := 0; i+n <= len(atoms); i++ {
				setBit(data, int(hashPath(strings.Join(atoms[i:i+n], "-"))%uint64(t.nBits)))
			}
		}
	}
	fp := NewFingerprint(data, t.nBits)
	if fp.NumOnBits == 0 {
		return nil, errors.New(errors.ErrCodeDescriptorFailed, "empty fingerprint")
	}
	return fp, nil
}

// Similarity implements Toolkit.  Descriptors from another toolkit compare
// as 0.
func (t *FingerprintToolkit) Similarity(a, b Descriptor) float64 {
	fa, okA := a.(*Fingerprint)
	fb, okB := b.(*Fingerprint)
	if !okA || !okB {
		return 0
	}
	return Tanimoto(fa, fb)
}

// CountRotatableBonds implements Toolkit by counting explicit single bonds.
func (t *FingerprintToolkit) CountRotatableBonds(st *Structure) int {
	if st == nil {
		return 0
	}
	return strings.Count(st.Code, "-")
}

// CanonicalCode implements Toolkit.
func (t *FingerprintToolkit) CanonicalCode(st *Structure) string {
	if st == nil {
		return ""
	}
	return st.Code
}

// ─────────────────────────────────────────────────────────────────────────────
// Atom tokenisation
// ─────────────────────────────────────────────────────────────────────────────

// parseAtoms extracts element symbols from a SMILES-like code.  Uppercase
// letters start an atom, Cl and Br are read as one symbol, and the aromatic
// lowercase atoms b, c, n, o, p, s count on their own.
func parseAtoms(code string) []string {
	atoms := make([]string, 0, len(code))
	for i := 0; i < len(code); i++ {
		ch := code[i]
		switch {
		case ch >= 'A' && ch <= 'Z':
			if i+1 < len(code) && ((ch == 'C' && code[i+1] == 'l') || (ch == 'B' && code[i+1] == 'r')) {
				atoms = append(atoms, code[i:i+2])
				i++
				continue
			}
			atoms = append(atoms, string(ch))
		case strings.IndexByte("bcnops", ch) >= 0:
			atoms = append(atoms, string(ch))
		}
	}
	return atoms
}
