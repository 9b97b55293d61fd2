package testutil

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/turtacn/SynthonScout/internal/domain/molecule"
	"github.com/turtacn/SynthonScout/internal/domain/synthon"
	"github.com/turtacn/SynthonScout/pkg/errors"
)

// NumericDescriptor is the descriptor produced by StubToolkit.
type NumericDescriptor struct {
	Value float64
	Code  string
}

func (NumericDescriptor) Kind() string { return "stub:numeric" }

// StubToolkit is a molecule.Toolkit over integer structure codes.  A
// fragment code is an integer; an assembly's value is the sum of its
// fragment values and its code joins them with '.'.  By default similarity
// is 1/(1+|a-b|) so an optimizer converges on assemblies whose sum matches
// the query value.
type StubToolkit struct {
	// SimilarityFunc overrides the default similarity.
	SimilarityFunc func(a, b NumericDescriptor) float64
	// FailCodes lists fragment codes whose assembly fails.
	FailCodes map[string]bool
	// AtomsPerFragment sets the atom count contributed by each fragment.
	AtomsPerFragment int
	// RotatableBonds is returned by CountRotatableBonds.
	RotatableBonds int

	Assembled   atomic.Int64
	Descriptors atomic.Int64

	mu      sync.Mutex
	history []string
}

var _ molecule.Toolkit = (*StubToolkit)(nil)

// NewStubToolkit returns a StubToolkit with ten atoms per fragment.
func NewStubToolkit() *StubToolkit {
	return &StubToolkit{AtomsPerFragment: 10}
}

// NewConstantToolkit returns a StubToolkit whose similarity is always v.
func NewConstantToolkit(v float64) *StubToolkit {
	tk := NewStubToolkit()
	tk.SimilarityFunc = func(_, _ NumericDescriptor) float64 { return v }
	return tk
}

// NewIdentityToolkit returns a StubToolkit whose similarity is 1 for equal
// codes and 0 otherwise.
func NewIdentityToolkit() *StubToolkit {
	tk := NewStubToolkit()
	tk.SimilarityFunc = func(a, b NumericDescriptor) float64 {
		if a.Code == b.Code {
			return 1
		}
		return 0
	}
	return tk
}

func parseValue(code string) (float64, error) {
	total := 0.0
	for _, part := range strings.Split(code, ".") {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return 0, err
		}
		total += v
	}
	return total, nil
}

// ParseStructure implements molecule.Toolkit.
func (s *StubToolkit) ParseStructure(ctx context.Context, code string) (*molecule.Structure, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := parseValue(code); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeAssemblyFailed, "not a numeric code")
	}
	return &molecule.Structure{Code: code, AtomCount: s.AtomsPerFragment}, nil
}

// Assemble implements molecule.Toolkit.
func (s *StubToolkit) Assemble(ctx context.Context, fragments []*synthon.Synthon) (*molecule.Structure, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.Assembled.Add(1)
	if len(fragments) == 0 {
		return nil, errors.New(errors.ErrCodeAssemblyFailed, "no fragments")
	}
	codes := make([]string, len(fragments))
	for i, f := range fragments {
		if s.FailCodes[f.Code] {
			return nil, errors.New(errors.ErrCodeAssemblyFailed, "stub failure").WithDetail(f.Code)
		}
		codes[i] = f.Code
	}
	code := strings.Join(codes, ".")
	s.mu.Lock()
	s.history = append(s.history, code)
	s.mu.Unlock()
	return &molecule.Structure{Code: code, AtomCount: s.AtomsPerFragment * len(fragments)}, nil
}

// GenerateConformers implements molecule.Toolkit.
func (s *StubToolkit) GenerateConformers(ctx context.Context, st *molecule.Structure) (molecule.ConformerSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return molecule.ConformerSet{{ID: 0, Handle: st.Code}}, nil
}

// CreateShapeDescriptor implements molecule.Toolkit.
func (s *StubToolkit) CreateShapeDescriptor(ctx context.Context, confs molecule.ConformerSet) (molecule.Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(confs) == 0 {
		return nil, errors.New(errors.ErrCodeDescriptorFailed, "no conformers")
	}
	s.Descriptors.Add(1)
	code, _ := confs[0].Handle.(string)
	v, err := parseValue(code)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDescriptorFailed, "not a numeric code")
	}
	return NumericDescriptor{Value: v, Code: code}, nil
}

// Similarity implements molecule.Toolkit.
func (s *StubToolkit) Similarity(a, b molecule.Descriptor) float64 {
	na, okA := a.(NumericDescriptor)
	nb, okB := b.(NumericDescriptor)
	if !okA || !okB {
		return 0
	}
	if s.SimilarityFunc != nil {
		return s.SimilarityFunc(na, nb)
	}
	return 1 / (1 + math.Abs(na.Value-nb.Value))
}

// CountRotatableBonds implements molecule.Toolkit.
func (s *StubToolkit) CountRotatableBonds(_ *molecule.Structure) int { return s.RotatableBonds }

// CanonicalCode implements molecule.Toolkit.
func (s *StubToolkit) CanonicalCode(st *molecule.Structure) string { return st.Code }

// History returns the codes of every successful assembly.
func (s *StubToolkit) History() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.history))
	copy(out, s.history)
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Fixture spaces
// ─────────────────────────────────────────────────────────────────────────────

// NumericSpace builds a space with one reaction whose position p holds
// sizes[p] synthons with fragment ids "p<p>-<i>" and codes equal to i.
func NumericSpace(reactionID string, sizes ...int) *synthon.Space {
	sp := synthon.NewSpace("fixture")
	AddNumericReaction(sp, reactionID, sizes...)
	return sp
}

// AddNumericReaction adds a reaction laid out like NumericSpace to sp.
func AddNumericReaction(sp *synthon.Space, reactionID string, sizes ...int) {
	for pos, n := range sizes {
		for i := 0; i < n; i++ {
			s, err := synthon.NewSynthon(reactionID, pos, FragmentID(pos, i), strconv.Itoa(i), synthon.NewConnectorSet(pos+1))
			if err != nil {
				panic(err)
			}
			if err := sp.Add(s); err != nil {
				panic(err)
			}
		}
	}
}

// FragmentID returns the id NumericSpace assigns to member i of position pos.
func FragmentID(pos, i int) string {
	return fmt.Sprintf("p%d-%d", pos, i)
}
