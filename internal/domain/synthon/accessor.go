package synthon

import (
	"fmt"
	"sync"

	"github.com/turtacn/SynthonScout/pkg/errors"
)

// Accessor is the read-only lookup surface the optimizer and sampler use.
// The same interface fronts a full space and a downsampled one.
type Accessor interface {
	// ReactionIDs returns every reaction id in ascending order.
	ReactionIDs() []string

	// Positions returns the ordered fragment positions of a reaction.
	// Returns ErrCodeReactionNotFound for unknown reactions.
	Positions(reactionID string) ([]int, error)

	// Candidates returns the synthon list at one position.
	// Returns ErrCodePositionNotFound when the position does not exist.
	Candidates(reactionID string, position int) ([]*Synthon, error)

	// Fragment resolves one synthon by id.
	// Returns ErrCodeFragmentNotFound when the id is not in the set.
	Fragment(reactionID string, position int, fragmentID string) (*Synthon, error)
}

// reactionView is the resolved, indexed form of one reaction.
type reactionView struct {
	positions []int
	sets      map[int][]*Synthon
	index     map[int]map[string]*Synthon
}

type viewCell struct {
	once sync.Once
	view *reactionView
}

// SetAccessor resolves reactions from a Source on first use and caches the
// indexed view.  It is safe for concurrent use.
type SetAccessor struct {
	src Source

	mu    sync.Mutex
	cells map[string]*viewCell
}

// NewAccessor wraps src in a caching Accessor.
func NewAccessor(src Source) *SetAccessor {
	return &SetAccessor{src: src, cells: make(map[string]*viewCell)}
}

// ReactionIDs implements Accessor.
func (a *SetAccessor) ReactionIDs() []string {
	return a.src.ReactionIDs()
}

func (a *SetAccessor) view(reactionID string) (*reactionView, error) {
	a.mu.Lock()
	cell, ok := a.cells[reactionID]
	if !ok {
		cell = &viewCell{}
		a.cells[reactionID] = cell
	}
	a.mu.Unlock()

	cell.once.Do(func() {
		sets, found := a.src.PositionSets(reactionID)
		if !found {
			return
		}
		v := &reactionView{
			positions: SortedPositions(sets),
			sets:      sets,
			index:     make(map[int]map[string]*Synthon, len(sets)),
		}
		for pos, set := range sets {
			idx := make(map[string]*Synthon, len(set))
			for _, s := range set {
				idx[s.FragmentID] = s
			}
			v.index[pos] = idx
		}
		cell.view = v
	})
	if cell.view == nil {
		return nil, errors.New(errors.ErrCodeReactionNotFound, "reaction not found").
			WithDetail("rxn=" + reactionID)
	}
	return cell.view, nil
}

// Positions implements Accessor.
func (a *SetAccessor) Positions(reactionID string) ([]int, error) {
	v, err := a.view(reactionID)
	if err != nil {
		return nil, err
	}
	return v.positions, nil
}

// Candidates implements Accessor.
func (a *SetAccessor) Candidates(reactionID string, position int) ([]*Synthon, error) {
	v, err := a.view(reactionID)
	if err != nil {
		return nil, err
	}
	set, ok := v.sets[position]
	if !ok {
		return nil, errors.New(errors.ErrCodePositionNotFound, "position not found").
			WithDetail(fmt.Sprintf("rxn=%s position=%d", reactionID, position))
	}
	return set, nil
}

// Fragment implements Accessor.
func (a *SetAccessor) Fragment(reactionID string, position int, fragmentID string) (*Synthon, error) {
	v, err := a.view(reactionID)
	if err != nil {
		return nil, err
	}
	idx, ok := v.index[position]
	if !ok {
		return nil, errors.New(errors.ErrCodePositionNotFound, "position not found").
			WithDetail(fmt.Sprintf("rxn=%s position=%d", reactionID, position))
	}
	s, ok := idx[fragmentID]
	if !ok {
		return nil, errors.New(errors.ErrCodeFragmentNotFound, "fragment not found").
			WithDetail(fmt.Sprintf("rxn=%s position=%d frag=%s", reactionID, position, fragmentID))
	}
	return s, nil
}

// ResolveSeed looks up the synthons of a seed in position order.  The seed
// must name exactly one fragment per position.
func ResolveSeed(a Accessor, seed SeedAssembly) ([]*Synthon, error) {
	positions, err := a.Positions(seed.ReactionID)
	if err != nil {
		return nil, err
	}
	if len(positions) != len(seed.FragmentIDs) {
		return nil, errors.New(errors.ErrCodeFragmentNotFound, "seed fragment count does not match reaction positions").
			WithDetail(fmt.Sprintf("rxn=%s positions=%d fragments=%d", seed.ReactionID, len(positions), len(seed.FragmentIDs)))
	}
	frags := make([]*Synthon, len(positions))
	for i, pos := range positions {
		f, err := a.Fragment(seed.ReactionID, pos, seed.FragmentIDs[i])
		if err != nil {
			return nil, err
		}
		frags[i] = f
	}
	return frags, nil
}
