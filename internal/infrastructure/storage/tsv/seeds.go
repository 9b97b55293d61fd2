package tsv

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/turtacn/SynthonScout/internal/domain/synthon"
	"github.com/turtacn/SynthonScout/pkg/errors"
)

// ReadSeedFile parses the seed file at path.
func ReadSeedFile(path string) ([]synthon.SeedAssembly, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSeedParseFailed, "failed to open seed file").WithDetail(path)
	}
	defer f.Close()
	return ReadSeeds(f)
}

// ReadSeeds parses seed assemblies.  The header must name the rxnId and
// fragIds columns; phesaSimilarity is optional.  Blank lines are skipped and
// an unparsable score leaves InitialScore nil.  Result files are valid seed
// files.
func ReadSeeds(in io.Reader) ([]synthon.SeedAssembly, error) {
	r := newReader(in)
	header, err := r.Read()
	if err == io.EOF {
		return nil, errors.New(errors.ErrCodeSeedParseFailed, "seed file has no header")
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSeedParseFailed, "failed to read seed header")
	}
	idx := headerIndex(header)
	rxnCol, ok := idx[ColReactionID]
	if !ok {
		return nil, errors.New(errors.ErrCodeSeedParseFailed, "missing column").WithDetail(ColReactionID)
	}
	fragCol, ok := idx[ColFragmentIDs]
	if !ok {
		return nil, errors.New(errors.ErrCodeSeedParseFailed, "missing column").WithDetail(ColFragmentIDs)
	}
	scoreCol, hasScore := idx[ColSimilarity]
	if !hasScore {
		scoreCol = -1
	}

	var seeds []synthon.SeedAssembly
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSeedParseFailed, "failed to read seed row")
		}
		if blank(rec) {
			continue
		}
		line, _ := r.FieldPos(0)
		rxn := cell(rec, rxnCol)
		ids := splitIDs(cell(rec, fragCol))
		if rxn == "" || len(ids) == 0 {
			return nil, errors.New(errors.ErrCodeSeedParseFailed, "seed row needs a reaction and fragment ids").
				WithDetail(fmt.Sprintf("line=%d", line))
		}
		seed := synthon.SeedAssembly{ReactionID: rxn, FragmentIDs: ids}
		if s := cell(rec, scoreCol); s != "" {
			if v, err := strconv.ParseFloat(s, 64); err == nil {
				seed.InitialScore = &v
			}
		}
		seeds = append(seeds, seed)
	}
	return seeds, nil
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
