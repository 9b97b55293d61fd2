// Package molecule defines the contract SynthonScout consumes from a
// chemistry toolkit: assembling synthons into a molecule, generating
// conformers, building shape descriptors, and comparing them.  The screening
// core only depends on the Toolkit interface; FingerprintToolkit is a
// deterministic stand-in used by the binary and the tests.
package molecule

import (
	"context"

	"github.com/turtacn/SynthonScout/internal/domain/synthon"
)

// Structure is an assembled or parsed molecule.  Handle carries
// toolkit-specific state and is opaque to callers.
type Structure struct {
	Code      string
	AtomCount int
	Handle    interface{}
}

// Conformer is one 3-D embedding of a Structure.
type Conformer struct {
	ID     int
	Handle interface{}
}

// ConformerSet is the output of conformer generation.  It may be empty.
type ConformerSet []Conformer

// Descriptor is a comparable shape or pharmacophore representation.
type Descriptor interface {
	Kind() string
}

// Toolkit is the chemistry collaborator.  Implementations must be safe for
// concurrent use; per-call state lives in the returned values.
type Toolkit interface {
	// ParseStructure decodes a structure code, typically the query.
	ParseStructure(ctx context.Context, code string) (*Structure, error)

	// Assemble joins fragments (one per position, in position order).
	Assemble(ctx context.Context, fragments []*synthon.Synthon) (*Structure, error)

	// GenerateConformers embeds st.  An empty set is not an error.
	GenerateConformers(ctx context.Context, st *Structure) (ConformerSet, error)

	// CreateShapeDescriptor builds a descriptor from conformers.
	CreateShapeDescriptor(ctx context.Context, conformers ConformerSet) (Descriptor, error)

	// Similarity compares two descriptors, returning a value in [0,1].
	Similarity(a, b Descriptor) float64

	// CountRotatableBonds counts rotatable bonds of st.
	CountRotatableBonds(st *Structure) int

	// CanonicalCode returns the canonical identifier of st.
	CanonicalCode(st *Structure) string
}

// DescribeStructure runs conformer generation and descriptor creation for st.
func DescribeStructure(ctx context.Context, tk Toolkit, st *Structure) (Descriptor, error) {
	confs, err := tk.GenerateConformers(ctx, st)
	if err != nil {
		return nil, err
	}
	return tk.CreateShapeDescriptor(ctx, confs)
}

// Describe assembles fragments and returns their descriptor.  With a single
// fragment this yields the descriptor of one synthon, which is how the
// neighbor cache and the downsampler compare set members.
func Describe(ctx context.Context, tk Toolkit, fragments ...*synthon.Synthon) (Descriptor, error) {
	st, err := tk.Assemble(ctx, fragments)
	if err != nil {
		return nil, err
	}
	return DescribeStructure(ctx, tk, st)
}

// QueryDescriptor parses a query code and describes it.
func QueryDescriptor(ctx context.Context, tk Toolkit, code string) (Descriptor, error) {
	st, err := tk.ParseStructure(ctx, code)
	if err != nil {
		return nil, err
	}
	return DescribeStructure(ctx, tk, st)
}
