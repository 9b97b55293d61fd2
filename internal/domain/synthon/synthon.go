// Package synthon holds the data model of a combinatorial synthon space:
// reactions, fragment positions, the synthons that fill them, and the value
// objects (seeds, beam entries, optimization results) that flow through
// screening.  Every type here is immutable once constructed and is shared by
// pointer across goroutines.
package synthon

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/turtacn/SynthonScout/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// ConnectorSet
// ─────────────────────────────────────────────────────────────────────────────

// ConnectorSet is the sorted, duplicate-free set of attachment labels a
// synthon exposes.
type ConnectorSet []int

// NewConnectorSet normalises labels into a ConnectorSet.
func NewConnectorSet(labels ...int) ConnectorSet {
	if len(labels) == 0 {
		return ConnectorSet{}
	}
	out := make([]int, len(labels))
	copy(out, labels)
	sort.Ints(out)
	n := 1
	for i := 1; i < len(out); i++ {
		if out[i] != out[n-1] {
			out[n] = out[i]
			n++
		}
	}
	return ConnectorSet(out[:n])
}

// ParseConnectorSet parses a comma-separated label list such as "1,3".  An
// empty string yields an empty set.
func ParseConnectorSet(s string) (ConnectorSet, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ConnectorSet{}, nil
	}
	parts := strings.Split(s, ",")
	labels := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSynthonInvalid, "invalid connector label").
				WithDetail(fmt.Sprintf("connectors=%q", s))
		}
		labels = append(labels, v)
	}
	return NewConnectorSet(labels...), nil
}

// Equal reports whether both sets hold the same labels.
func (c ConnectorSet) Equal(other ConnectorSet) bool {
	if len(c) != len(other) {
		return false
	}
	for i := range c {
		if c[i] != other[i] {
			return false
		}
	}
	return true
}

// String renders the set in the form accepted by ParseConnectorSet.
func (c ConnectorSet) String() string {
	parts := make([]string, len(c))
	for i, v := range c {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

// ─────────────────────────────────────────────────────────────────────────────
// Composite keys
// ─────────────────────────────────────────────────────────────────────────────

// SetKey identifies one synthon set.
type SetKey struct {
	ReactionID string
	Position   int
}

func (k SetKey) String() string {
	return fmt.Sprintf("%s/%d", k.ReactionID, k.Position)
}

// FragmentKey identifies one synthon within a space.
type FragmentKey struct {
	ReactionID string
	Position   int
	FragmentID string
}

// ─────────────────────────────────────────────────────────────────────────────
// Synthon
// ─────────────────────────────────────────────────────────────────────────────

// Synthon is one interchangeable fragment at a reaction position.  Code is an
// opaque canonical structure identifier owned by the chemistry toolkit.
type Synthon struct {
	ReactionID string
	Position   int
	FragmentID string
	Code       string
	Connectors ConnectorSet
}

// NewSynthon validates and constructs a Synthon.
func NewSynthon(reactionID string, position int, fragmentID, code string, connectors ConnectorSet) (*Synthon, error) {
	reactionID = strings.TrimSpace(reactionID)
	fragmentID = strings.TrimSpace(fragmentID)
	code = strings.TrimSpace(code)
	switch {
	case reactionID == "":
		return nil, errors.New(errors.ErrCodeSynthonInvalid, "reaction id must not be empty")
	case position < 0:
		return nil, errors.New(errors.ErrCodeSynthonInvalid, "position must not be negative").
			WithDetail(fmt.Sprintf("rxn=%s position=%d", reactionID, position))
	case fragmentID == "":
		return nil, errors.New(errors.ErrCodeSynthonInvalid, "fragment id must not be empty").
			WithDetail(fmt.Sprintf("rxn=%s position=%d", reactionID, position))
	case code == "":
		return nil, errors.New(errors.ErrCodeSynthonInvalid, "structure code must not be empty").
			WithDetail(fmt.Sprintf("rxn=%s position=%d frag=%s", reactionID, position, fragmentID))
	}
	if connectors == nil {
		connectors = ConnectorSet{}
	}
	return &Synthon{
		ReactionID: reactionID,
		Position:   position,
		FragmentID: fragmentID,
		Code:       code,
		Connectors: connectors,
	}, nil
}

// SetKey returns the key of the set this synthon belongs to.
func (s *Synthon) SetKey() SetKey {
	return SetKey{ReactionID: s.ReactionID, Position: s.Position}
}

// Key returns the fragment key of this synthon.
func (s *Synthon) Key() FragmentKey {
	return FragmentKey{ReactionID: s.ReactionID, Position: s.Position, FragmentID: s.FragmentID}
}

func (s *Synthon) String() string {
	return fmt.Sprintf("%s/%d/%s", s.ReactionID, s.Position, s.FragmentID)
}

// FragmentIDs lists the ids of frags in order.
func FragmentIDs(frags []*Synthon) []string {
	ids := make([]string, len(frags))
	for i, f := range frags {
		ids[i] = f.FragmentID
	}
	return ids
}

// ConnectorSignature renders the connector sets of a set's members, which
// share one signature when the set is well formed.
func ConnectorSignature(set []*Synthon) string {
	if len(set) == 0 {
		return ""
	}
	return "connectors:" + set[0].Connectors.String()
}
