// Package downsample reduces every synthon set of a space to a small set of
// representatives with online k-centers clustering, and materialises the
// result as a DownsampledSpace that screening samples from.
package downsample

import (
	"fmt"
	"math"

	"github.com/turtacn/SynthonScout/pkg/errors"
)

// Request parameterises one downsampling run.  It is a value type and is
// never modified after Validate.
type Request struct {
	// MaxCenters bounds the representatives per set.  0 means unbounded.
	MaxCenters int `mapstructure:"max_centers" json:"max_centers"`
	// SizeCapScale and SizeCapOffset add a cap of ceil(scale·√n + offset).
	// Both zero disables the cap.
	SizeCapScale  float64 `mapstructure:"size_cap_scale" json:"size_cap_scale"`
	SizeCapOffset float64 `mapstructure:"size_cap_offset" json:"size_cap_offset"`
	// MinSimilarity is the similarity below which a candidate opens a new
	// center while capacity remains.
	MinSimilarity float64 `mapstructure:"min_similarity" json:"min_similarity"`
	// RandomSeed drives the deterministic shuffle.
	RandomSeed int64 `mapstructure:"random_seed" json:"random_seed"`
	// EnforceConnectorEquivalence restricts assignment to centers with the
	// same connector labels.
	EnforceConnectorEquivalence bool `mapstructure:"enforce_connector_equivalence" json:"enforce_connector_equivalence"`
	// Attributes carries free-form annotations that travel with the result.
	Attributes map[string]string `mapstructure:"attributes" json:"attributes,omitempty"`
}

// Validate checks the request parameters.
func (r Request) Validate() error {
	switch {
	case r.MaxCenters < 0:
		return errors.New(errors.ErrCodeDownsampleRequestInvalid, "max_centers must not be negative").
			WithDetail(fmt.Sprintf("max_centers=%d", r.MaxCenters))
	case r.MinSimilarity < 0 || r.MinSimilarity > 1 || math.IsNaN(r.MinSimilarity):
		return errors.New(errors.ErrCodeDownsampleRequestInvalid, "min_similarity must be within [0,1]").
			WithDetail(fmt.Sprintf("min_similarity=%g", r.MinSimilarity))
	case r.SizeCapScale < 0:
		return errors.New(errors.ErrCodeDownsampleRequestInvalid, "size_cap_scale must not be negative").
			WithDetail(fmt.Sprintf("size_cap_scale=%g", r.SizeCapScale))
	}
	return nil
}

// EffectiveMaxCenters returns the number of centers allowed for a set of n
// synthons: min(max_centers, ceil(scale·√n + offset)), at least 1 when n > 0.
func (r Request) EffectiveMaxCenters(n int) int {
	if n <= 0 {
		return 0
	}
	limit := n
	if r.MaxCenters > 0 {
		limit = min(limit, r.MaxCenters)
	}
	if r.SizeCapScale != 0 || r.SizeCapOffset != 0 {
		limit = min(limit, int(math.Ceil(r.SizeCapScale*math.Sqrt(float64(n))+r.SizeCapOffset)))
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}
