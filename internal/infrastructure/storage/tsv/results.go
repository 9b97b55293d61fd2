// Package tsv reads and writes the tab-separated files exchanged with the
// screening pipeline: result streams, seed files and synthon tables.
package tsv

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/turtacn/SynthonScout/internal/domain/synthon"
	"github.com/turtacn/SynthonScout/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SynthonScout/pkg/errors"
)

// Column names shared by result and seed files.
const (
	ColReactionID     = "rxnId"
	ColFragmentIDs    = "fragIds"
	ColAssembledCode  = "assembledIdcode"
	ColAtoms          = "atoms"
	ColRotatableBonds = "rotatableBonds"
	ColSimilarity     = "phesaSimilarity"
	ColAttemptIndex   = "attemptIndex"
	ColSeedFragIDs    = "seedFragIds"
)

// ResultHeader is the header line of a result file.
var ResultHeader = []string{
	ColReactionID, ColFragmentIDs, ColAssembledCode, ColAtoms,
	ColRotatableBonds, ColSimilarity, ColAttemptIndex, ColSeedFragIDs,
}

// IDSeparator joins fragment ids inside a single cell.
const IDSeparator = ";"

// ResultWriter appends optimization results to a TSV file.  It is safe for
// concurrent use; every Write is flushed before it returns.
type ResultWriter struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	w      *csv.Writer
	rows   int64
	closed bool
	logger logging.Logger
}

// NewResultWriter opens path for appending, creating parent directories as
// needed.  The header is written when the file is empty.
func NewResultWriter(path string, logger logging.Logger) (*ResultWriter, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeResultWriteFailed, "failed to create result directory").WithDetail(dir)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeResultWriteFailed, "failed to open result file").WithDetail(path)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, errors.ErrCodeResultWriteFailed, "failed to stat result file").WithDetail(path)
	}

	rw := &ResultWriter{path: path, file: f, w: newTableWriter(f), logger: logger.Named("tsv")}
	if info.Size() == 0 {
		if err := rw.writeAndFlush([][]string{ResultHeader}); err != nil {
			f.Close()
			return nil, err
		}
	}
	return rw, nil
}

// Path returns the file being written.
func (rw *ResultWriter) Path() string { return rw.path }

// Rows returns the number of data rows written so far.
func (rw *ResultWriter) Rows() int64 {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.rows
}

// Write appends one row per beam entry.
func (rw *ResultWriter) Write(_ context.Context, result *synthon.OptimizationResult) error {
	rows := result.Rows()
	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		records = append(records, FormatResultRow(r))
	}

	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.closed {
		return errors.New(errors.ErrCodeResultWriteFailed, "result writer closed").WithDetail(rw.path)
	}
	if len(records) == 0 {
		return nil
	}
	if err := rw.writeAndFlush(records); err != nil {
		return err
	}
	rw.rows += int64(len(records))
	return nil
}

// Close flushes and closes the file.  Subsequent calls are no-ops.
func (rw *ResultWriter) Close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.closed {
		return nil
	}
	rw.closed = true
	rw.w.Flush()
	flushErr := rw.w.Error()
	if err := rw.file.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeResultWriteFailed, "failed to close result file").WithDetail(rw.path)
	}
	if flushErr != nil {
		return errors.Wrap(flushErr, errors.ErrCodeResultWriteFailed, "failed to flush result file").WithDetail(rw.path)
	}
	rw.logger.Info("Result file closed", logging.String("path", rw.path), logging.Int64("rows", rw.rows))
	return nil
}

// writeAndFlush must be called with mu held.
func (rw *ResultWriter) writeAndFlush(records [][]string) error {
	for _, rec := range records {
		if err := rw.w.Write(rec); err != nil {
			return errors.Wrap(err, errors.ErrCodeResultWriteFailed, "failed to write result row").WithDetail(rw.path)
		}
	}
	rw.w.Flush()
	if err := rw.w.Error(); err != nil {
		return errors.Wrap(err, errors.ErrCodeResultWriteFailed, "failed to flush result file").WithDetail(rw.path)
	}
	return nil
}

// FormatResultRow renders a row in ResultHeader column order.
func FormatResultRow(r synthon.ResultRow) []string {
	return []string{
		r.ReactionID,
		strings.Join(r.FragmentIDs, IDSeparator),
		r.AssembledCode,
		strconv.Itoa(r.Atoms),
		strconv.Itoa(r.RotatableBonds),
		strconv.FormatFloat(r.Similarity, 'f', -1, 64),
		strconv.Itoa(r.Round),
		strings.Join(r.SeedFragmentIDs, IDSeparator),
	}
}

func newTableWriter(out io.Writer) *csv.Writer {
	w := csv.NewWriter(out)
	w.Comma = '\t'
	return w
}

func newReader(in io.Reader) *csv.Reader {
	r := csv.NewReader(in)
	r.Comma = '\t'
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r
}

// splitIDs splits a joined id cell, trimming whitespace and dropping blanks.
func splitIDs(cell string) []string {
	parts := strings.Split(cell, IDSeparator)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// headerIndex maps trimmed column names to their index.
func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := idx[h]; !dup {
			idx[h] = i
		}
	}
	return idx
}

func cell(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}
