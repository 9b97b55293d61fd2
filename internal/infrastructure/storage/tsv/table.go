package tsv

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/turtacn/SynthonScout/internal/application/downsample"
	"github.com/turtacn/SynthonScout/internal/domain/synthon"
	"github.com/turtacn/SynthonScout/pkg/errors"
)

// Synthon table columns.
const (
	ColPosition      = "position"
	ColFragmentID    = "fragId"
	ColCode          = "idcode"
	ColConnectors    = "connectors"
	ColClusterSize   = "clusterSize"
	ColMinSimilarity = "minSimilarity"
)

// TableHeader is the header of a synthon table.
var TableHeader = []string{ColReactionID, ColPosition, ColFragmentID, ColCode, ColConnectors}

// ReadSynthonTableFile loads a synthon table into a Space named after the
// file.
func ReadSynthonTableFile(path string) (*synthon.Space, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTableParseFailed, "failed to open synthon table").WithDetail(path)
	}
	defer f.Close()
	return ReadSynthonTable(f, filepath.Base(path))
}

// ReadSynthonTable parses a synthon table.  The connectors column is
// optional; every other TableHeader column is required.  Extra columns such
// as clusterSize are ignored, so downsampled tables load as spaces too.
func ReadSynthonTable(in io.Reader, name string) (*synthon.Space, error) {
	r := newReader(in)
	header, err := r.Read()
	if err == io.EOF {
		return nil, errors.New(errors.ErrCodeTableParseFailed, "synthon table has no header")
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTableParseFailed, "failed to read synthon table header")
	}
	idx := headerIndex(header)
	cols := make(map[string]int, len(TableHeader))
	for _, c := range TableHeader {
		i, ok := idx[c]
		switch {
		case ok:
			cols[c] = i
		case c == ColConnectors:
			cols[c] = -1
		default:
			return nil, errors.New(errors.ErrCodeTableParseFailed, "missing column").WithDetail(c)
		}
	}

	space := synthon.NewSpace(name)
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeTableParseFailed, "failed to read synthon row")
		}
		if blank(rec) {
			continue
		}
		line, _ := r.FieldPos(0)
		at := fmt.Sprintf("line=%d", line)

		pos, err := strconv.Atoi(cell(rec, cols[ColPosition]))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeTableParseFailed, "invalid position").WithDetail(at)
		}
		connectors, err := synthon.ParseConnectorSet(cell(rec, cols[ColConnectors]))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeTableParseFailed, "invalid connectors").WithDetail(at)
		}
		s, err := synthon.NewSynthon(cell(rec, cols[ColReactionID]), pos,
			cell(rec, cols[ColFragmentID]), cell(rec, cols[ColCode]), connectors)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeTableParseFailed, "invalid synthon").WithDetail(at)
		}
		if err := space.Add(s); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeTableParseFailed, "invalid synthon").WithDetail(at)
		}
	}
	if err := space.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTableParseFailed, "invalid synthon space").WithDetail(name)
	}
	return space, nil
}

// WriteDownsampledTableFile writes ds to path, creating parent directories.
func WriteDownsampledTableFile(path string, ds *downsample.DownsampledSpace) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, errors.ErrCodeResultWriteFailed, "failed to create output directory").WithDetail(path)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeResultWriteFailed, "failed to create synthon table").WithDetail(path)
	}
	if err := WriteDownsampledTable(f, ds); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeResultWriteFailed, "failed to close synthon table").WithDetail(path)
	}
	return nil
}

// WriteDownsampledTable writes one row per representative, ordered by
// reaction and position, with the cluster size and minimum member
// similarity of each center.
func WriteDownsampledTable(out io.Writer, ds *downsample.DownsampledSpace) error {
	w := newTableWriter(out)
	header := append(append([]string{}, TableHeader...), ColClusterSize, ColMinSimilarity)
	if err := w.Write(header); err != nil {
		return errors.Wrap(err, errors.ErrCodeResultWriteFailed, "failed to write synthon table header")
	}
	for _, res := range ds.Results() {
		for _, c := range res.Clusters {
			s := c.Representative
			rec := []string{
				s.ReactionID,
				strconv.Itoa(s.Position),
				s.FragmentID,
				s.Code,
				s.Connectors.String(),
				strconv.Itoa(c.MemberCount),
				strconv.FormatFloat(c.MinSimilarity, 'f', 4, 64),
			}
			if err := w.Write(rec); err != nil {
				return errors.Wrap(err, errors.ErrCodeResultWriteFailed, "failed to write synthon row").
					WithDetail(s.String())
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrap(err, errors.ErrCodeResultWriteFailed, "failed to flush synthon table")
	}
	return nil
}
