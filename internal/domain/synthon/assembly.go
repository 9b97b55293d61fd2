package synthon

// MaxKeyPositions is the largest reaction arity that fits an AssemblyKey.
const MaxKeyPositions = 8

// AssemblyKey identifies one assembly by reaction and ordered fragment ids.
// It is a comparable value so it can key maps and caches directly.
type AssemblyKey struct {
	ReactionID string
	N          int
	IDs        [MaxKeyPositions]string
}

// NewAssemblyKey builds the key of frags.  It returns false when the
// assembly has more than MaxKeyPositions positions.
func NewAssemblyKey(reactionID string, frags []*Synthon) (AssemblyKey, bool) {
	if len(frags) > MaxKeyPositions {
		return AssemblyKey{}, false
	}
	k := AssemblyKey{ReactionID: reactionID, N: len(frags)}
	for i, f := range frags {
		k.IDs[i] = f.FragmentID
	}
	return k, true
}

// Less orders keys lexicographically by reaction then fragment ids.
func (k AssemblyKey) Less(o AssemblyKey) bool {
	if k.ReactionID != o.ReactionID {
		return k.ReactionID < o.ReactionID
	}
	n := min(k.N, o.N)
	for i := 0; i < n; i++ {
		if k.IDs[i] != o.IDs[i] {
			return k.IDs[i] < o.IDs[i]
		}
	}
	return k.N < o.N
}

// SeedAssembly is a fully specified starting point for local optimization.
// InitialScore is nil when the score is unknown.
type SeedAssembly struct {
	ReactionID   string
	FragmentIDs  []string
	InitialScore *float64
}

// BeamEntry is one scored assembly.  Fragments is shared between entries
// that derive from each other and must not be mutated.
type BeamEntry struct {
	ReactionID     string
	Fragments      []*Synthon
	Score          float64
	AtomCount      int
	RotatableBonds int
	AssembledCode  string
	Round          int
}

// FragmentIDs returns the fragment ids in position order.
func (e *BeamEntry) FragmentIDs() []string {
	return FragmentIDs(e.Fragments)
}

// Seed converts the entry into a seed for a further optimization.
func (e *BeamEntry) Seed() SeedAssembly {
	score := e.Score
	return SeedAssembly{ReactionID: e.ReactionID, FragmentIDs: e.FragmentIDs(), InitialScore: &score}
}

// OptimizationResult is the outcome of one local optimization.  Beam is sorted
// by score descending.
type OptimizationResult struct {
	ReactionID      string
	SeedFragmentIDs []string
	Beam            []*BeamEntry
}

// Best returns the top entry of the beam.
func (r *OptimizationResult) Best() (*BeamEntry, bool) {
	if r == nil || len(r.Beam) == 0 {
		return nil, false
	}
	return r.Beam[0], true
}

// ScreeningCandidate is a sampled assembly that passed the cheap filters and
// the similarity threshold.
type ScreeningCandidate struct {
	ReactionID     string
	Fragments      []*Synthon
	AssembledCode  string
	Similarity     float64
	AtomCount      int
	RotatableBonds int
}

// FragmentIDs returns the fragment ids in position order.
func (c *ScreeningCandidate) FragmentIDs() []string {
	return FragmentIDs(c.Fragments)
}

// Seed converts the candidate into a seed assembly.
func (c *ScreeningCandidate) Seed() SeedAssembly {
	score := c.Similarity
	return SeedAssembly{ReactionID: c.ReactionID, FragmentIDs: c.FragmentIDs(), InitialScore: &score}
}

// ResultRow is one persisted beam entry.  Field names follow the column
// headers of the result stream.
type ResultRow struct {
	ReactionID      string   `json:"rxnId"`
	FragmentIDs     []string `json:"fragIds"`
	AssembledCode   string   `json:"assembledIdcode"`
	Atoms           int      `json:"atoms"`
	RotatableBonds  int      `json:"rotatableBonds"`
	Similarity      float64  `json:"phesaSimilarity"`
	Round           int      `json:"attemptIndex"`
	SeedFragmentIDs []string `json:"seedFragIds"`
}

// Rows flattens the result into one row per beam entry, best first.
func (r *OptimizationResult) Rows() []ResultRow {
	if r == nil {
		return nil
	}
	rows := make([]ResultRow, 0, len(r.Beam))
	for _, e := range r.Beam {
		rows = append(rows, ResultRow{
			ReactionID:      r.ReactionID,
			FragmentIDs:     e.FragmentIDs(),
			AssembledCode:   e.AssembledCode,
			Atoms:           e.AtomCount,
			RotatableBonds:  e.RotatableBonds,
			Similarity:      e.Score,
			Round:           e.Round,
			SeedFragmentIDs: r.SeedFragmentIDs,
		})
	}
	return rows
}
