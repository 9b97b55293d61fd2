package downsample

import (
	"context"
	"math/rand"

	"github.com/turtacn/SynthonScout/internal/application/neighbor"
	"github.com/turtacn/SynthonScout/internal/domain/molecule"
	"github.com/turtacn/SynthonScout/internal/domain/synthon"
	"github.com/turtacn/SynthonScout/pkg/errors"
)

// AlgorithmKCenters is the name recorded on spaces produced by KCenters.
const AlgorithmKCenters = "k-centers"

// Cluster is one center and the statistics of the synthons assigned to it.
type Cluster struct {
	Representative *synthon.Synthon `json:"-"`
	MemberCount    int              `json:"member_count"`
	MinSimilarity  float64          `json:"min_similarity"`
}

// SetResult is the downsampling outcome of one synthon set.
// len(Representatives) == len(Clusters) and the member counts sum to
// OriginalSize.
type SetResult struct {
	Key             synthon.SetKey
	FragmentType    string
	Representatives []*synthon.Synthon
	Clusters        []Cluster
	OriginalSize    int
	// ConnectorFallbacks counts candidates assigned to a center with a
	// different connector set because every compatible slot was taken.
	ConnectorFallbacks int
}

// MemberTotal sums the member counts of all clusters.
func (r *SetResult) MemberTotal() int {
	total := 0
	for _, c := range r.Clusters {
		total += c.MemberCount
	}
	return total
}

// Algorithm downsamples one synthon set.
type Algorithm interface {
	Name() string
	Downsample(ctx context.Context, key synthon.SetKey, set []*synthon.Synthon, req Request) (*SetResult, error)
}

// KCenters is sequential online k-centers clustering over cached
// descriptors.
type KCenters struct {
	cache *neighbor.Cache
}

// NewKCenters creates the algorithm over a shared descriptor cache.
func NewKCenters(cache *neighbor.Cache) *KCenters {
	return &KCenters{cache: cache}
}

// Name implements Algorithm.
func (k *KCenters) Name() string { return AlgorithmKCenters }

type center struct {
	synthon *synthon.Synthon
	desc    molecule.Descriptor
	members int
	minSim  float64
}

// Downsample implements Algorithm.  The input order only matters through the
// seeded shuffle, so a fixed seed reproduces the same representatives.
func (k *KCenters) Downsample(ctx context.Context, key synthon.SetKey, set []*synthon.Synthon, req Request) (*SetResult, error) {
	result := &SetResult{Key: key, FragmentType: synthon.ConnectorSignature(set), OriginalSize: len(set)}
	if len(set) == 0 {
		return result, nil
	}

	shuffled := make([]*synthon.Synthon, len(set))
	copy(shuffled, set)
	rng := rand.New(rand.NewSource(req.RandomSeed))
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	capacity := req.EffectiveMaxCenters(len(set))
	toolkit := k.cache.Toolkit()
	centers := make([]*center, 0, capacity)

	for _, cand := range shuffled {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeCancelled, "downsampling interrupted").WithDetail(key.String())
		}
		desc, ok := k.cache.Descriptor(ctx, cand)

		bestCompat, bestAny := -1, -1
		bestCompatSim, bestAnySim := -1.0, -1.0
		for i, c := range centers {
			sim := 0.0
			if ok && c.desc != nil {
				sim = toolkit.Similarity(c.desc, desc)
			}
			if sim > bestAnySim {
				bestAny, bestAnySim = i, sim
			}
			if req.EnforceConnectorEquivalence && !c.synthon.Connectors.Equal(cand.Connectors) {
				continue
			}
			if sim > bestCompatSim {
				bestCompat, bestCompatSim = i, sim
			}
		}

		if (bestCompat < 0 || bestCompatSim < req.MinSimilarity) && len(centers) < capacity {
			c := &center{synthon: cand, members: 1, minSim: 1.0}
			if ok {
				c.desc = desc
			}
			centers = append(centers, c)
			continue
		}

		// At capacity with no compatible center the candidate joins the
		// closest incompatible one instead of being dropped.
		target, sim := bestCompat, bestCompatSim
		if target < 0 {
			target, sim = bestAny, bestAnySim
			if req.EnforceConnectorEquivalence {
				result.ConnectorFallbacks++
			}
		}
		c := centers[target]
		c.members++
		if sim < c.minSim {
			c.minSim = sim
		}
	}

	result.Representatives = make([]*synthon.Synthon, len(centers))
	result.Clusters = make([]Cluster, len(centers))
	for i, c := range centers {
		result.Representatives[i] = c.synthon
		result.Clusters[i] = Cluster{Representative: c.synthon, MemberCount: c.members, MinSimilarity: c.minSim}
	}
	return result, nil
}
