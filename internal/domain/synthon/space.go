package synthon

import (
	"fmt"
	"math"
	"sort"

	"github.com/turtacn/SynthonScout/pkg/errors"
)

// Source is a read-only view of reaction → position → synthon list.  Both the
// full Space and a downsampled space implement it.
type Source interface {
	// ReactionIDs returns every reaction id in ascending order.
	ReactionIDs() []string
	// PositionSets returns the position map of one reaction.  Callers must
	// not mutate the returned map or slices.
	PositionSets(reactionID string) (map[int][]*Synthon, bool)
}

// ReactionMetadata carries optional descriptive data not used by screening.
type ReactionMetadata struct {
	Descriptors      map[string]string
	ExampleScaffolds []string
}

// Space is a complete synthon space.  It is filled with Add while loading and
// treated as read-only afterwards.
type Space struct {
	Name      string
	reactions map[string]map[int][]*Synthon
	seen      map[FragmentKey]struct{}
	metadata  map[string]ReactionMetadata
}

// NewSpace returns an empty Space.
func NewSpace(name string) *Space {
	return &Space{
		Name:      name,
		reactions: make(map[string]map[int][]*Synthon),
		seen:      make(map[FragmentKey]struct{}),
		metadata:  make(map[string]ReactionMetadata),
	}
}

// Add appends s to its set.  A fragment id may appear only once per set.
func (sp *Space) Add(s *Synthon) error {
	if s == nil {
		return errors.New(errors.ErrCodeSynthonInvalid, "nil synthon")
	}
	if _, dup := sp.seen[s.Key()]; dup {
		return errors.New(errors.ErrCodeSynthonInvalid, "duplicate fragment id in synthon set").
			WithDetail(s.String())
	}
	positions, ok := sp.reactions[s.ReactionID]
	if !ok {
		positions = make(map[int][]*Synthon)
		sp.reactions[s.ReactionID] = positions
	}
	positions[s.Position] = append(positions[s.Position], s)
	sp.seen[s.Key()] = struct{}{}
	return nil
}

// SetMetadata attaches metadata to a reaction.
func (sp *Space) SetMetadata(reactionID string, md ReactionMetadata) {
	sp.metadata[reactionID] = md
}

// Metadata returns the metadata of a reaction, if any.
func (sp *Space) Metadata(reactionID string) (ReactionMetadata, bool) {
	md, ok := sp.metadata[reactionID]
	return md, ok
}

// ReactionIDs implements Source.
func (sp *Space) ReactionIDs() []string {
	return sortedKeys(sp.reactions)
}

// PositionSets implements Source.
func (sp *Space) PositionSets(reactionID string) (map[int][]*Synthon, bool) {
	p, ok := sp.reactions[reactionID]
	return p, ok
}

// Set returns one synthon set, or nil.
func (sp *Space) Set(reactionID string, position int) []*Synthon {
	return sp.reactions[reactionID][position]
}

// SetKeys lists every (reaction, position) pair in deterministic order.
func (sp *Space) SetKeys() []SetKey {
	return SetKeysOf(sp)
}

// NumSynthons counts every synthon in the space.
func (sp *Space) NumSynthons() int {
	n := 0
	for _, positions := range sp.reactions {
		for _, set := range positions {
			n += len(set)
		}
	}
	return n
}

// Validate checks that each set is non-empty and that its members share one
// connector signature.
func (sp *Space) Validate() error {
	for _, key := range sp.SetKeys() {
		set := sp.Set(key.ReactionID, key.Position)
		if len(set) == 0 {
			return errors.New(errors.ErrCodeSynthonSetEmpty, "synthon set is empty").WithDetail(key.String())
		}
		for _, s := range set[1:] {
			if !s.Connectors.Equal(set[0].Connectors) {
				return errors.New(errors.ErrCodeSynthonInvalid, "synthon set mixes connector labels").
					WithDetail(fmt.Sprintf("%s: %s vs %s", s, s.Connectors, set[0].Connectors))
			}
		}
	}
	return nil
}

// SetKeysOf lists every (reaction, position) pair of src, sorted by reaction
// id then position.
func SetKeysOf(src Source) []SetKey {
	var keys []SetKey
	for _, rxn := range src.ReactionIDs() {
		positions, _ := src.PositionSets(rxn)
		for _, pos := range SortedPositions(positions) {
			keys = append(keys, SetKey{ReactionID: rxn, Position: pos})
		}
	}
	return keys
}

// LogCombinatorialSize returns Σ log(max(size,1)) over the positions of a
// reaction, the log of its full Cartesian product size.
func LogCombinatorialSize(positions map[int][]*Synthon) float64 {
	total := 0.0
	for _, set := range positions {
		total += math.Log(math.Max(float64(len(set)), 1))
	}
	return total
}

// SortedPositions returns the position indices of a position map in order.
func SortedPositions(positions map[int][]*Synthon) []int {
	out := make([]int, 0, len(positions))
	for p := range positions {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
