package cli

import (
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/SynthonScout/internal/application/downsample"
	"github.com/turtacn/SynthonScout/internal/infrastructure/storage/tsv"
	"github.com/turtacn/SynthonScout/pkg/errors"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

// ─────────────────────────────────────────────────────────────────────────────
// downsample
// ─────────────────────────────────────────────────────────────────────────────

func TestDownsampleCmd_WritesRepresentatives(t *testing.T) {
	f := newFixture(t, "downsample:\n  max_centers: 1\n  workers: 2\n")
	out, err := execute(t, "--config", f.config, "-o", "json",
		"downsample", "--input", f.space, "--out", f.path("reduced.tsv"))
	require.NoError(t, err)

	var summary DownsampleSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, downsample.AlgorithmKCenters, summary.Algorithm)
	assert.Equal(t, 8, summary.Original)
	assert.Equal(t, 3, summary.Representatives)
	require.Len(t, summary.Sets, 3)
	assert.Equal(t, SetSummaryLine{ReactionID: "r1", Position: 0, Original: 3, Representatives: 1}, summary.Sets[0])

	reduced, err := tsv.ReadSynthonTableFile(f.path("reduced.tsv"))
	require.NoError(t, err)
	assert.Equal(t, 3, reduced.NumSynthons())
	assert.ElementsMatch(t, []string{"r1", "r2"}, reduced.ReactionIDs())
}

func TestDownsampleCmd_TextSummary(t *testing.T) {
	f := newFixture(t, "downsample:\n  max_centers: 2\n")
	out, err := execute(t, "--config", f.config,
		"downsample", "-i", f.space, "--out", f.path("reduced.tsv"))
	require.NoError(t, err)
	assert.Contains(t, out, "REPRESENTATIVES")
	assert.Contains(t, out, "total")
}

func TestDownsampleCmd_MissingPaths(t *testing.T) {
	f := newFixture(t, "")
	_, err := execute(t, "--config", f.config, "downsample")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestDownsampleCmd_BadTable(t *testing.T) {
	f := newFixture(t, "")
	bad := writeFile(t, f.path("bad.tsv"), "rxnId\tposition\n")
	_, err := execute(t, "--config", f.config, "downsample", "-i", bad, "--out", f.path("reduced.tsv"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeTableParseFailed))
}

// ─────────────────────────────────────────────────────────────────────────────
// screen
// ─────────────────────────────────────────────────────────────────────────────

const screenConfig = "screening:\n" +
	"  iterations: 20\n" +
	"  workers: 2\n" +
	"  queue_size: 4\n" +
	"  random_seed: 7\n" +
	"  report_interval: 1h\n" +
	"optimize:\n" +
	"  micro:\n" +
	"    enabled: true\n" +
	"  full:\n" +
	"    max_rounds: 2\n"

func TestScreenCmd_EndToEnd(t *testing.T) {
	f := newFixture(t, screenConfig)
	out, err := execute(t, "--config", f.config, "-o", "json",
		"screen", "--space", f.space, "--out", f.path("hits.tsv"))
	require.NoError(t, err)

	var summary ScreenSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.NotEmpty(t, summary.RunID)
	assert.False(t, summary.Interrupted)
	assert.Equal(t, int64(20), summary.Progress.Sampled)
	assert.GreaterOrEqual(t, summary.Progress.Hits, int64(1))
	assert.Equal(t, summary.Progress.Sampled,
		summary.Progress.Hits+summary.Progress.Duplicates+summary.Progress.NoCandidate+
			summary.Progress.MicroEmpty+summary.Progress.Failures)
	assert.Positive(t, summary.Progress.SampleComparisons)
	assert.Positive(t, summary.Progress.MicroComparisons)
	assert.Positive(t, summary.Progress.FullComparisons)

	lines := readLines(t, f.path("hits.tsv"))
	assert.Equal(t, strings.Join(tsv.ResultHeader, "\t"), lines[0])
	assert.Greater(t, len(lines), 1)

	// Every hit file is a valid seed file.
	seeds, err := tsv.ReadSeedFile(f.path("hits.tsv"))
	require.NoError(t, err)
	assert.Len(t, seeds, len(lines)-1)
}

func TestScreenCmd_WithDownsampledSpace(t *testing.T) {
	f := newFixture(t, screenConfig+"downsample:\n  max_centers: 2\n")
	_, err := execute(t, "--config", f.config,
		"downsample", "-i", f.space, "--out", f.path("reduced.tsv"))
	require.NoError(t, err)

	out, err := execute(t, "--config", f.config, "-o", "json", "screen",
		"--space", f.space, "--downsampled", f.path("reduced.tsv"), "--out", f.path("hits.tsv"), "-n", "10")
	require.NoError(t, err)

	var summary ScreenSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, int64(10), summary.Progress.Sampled)

	reduced, err := tsv.ReadSynthonTableFile(f.path("reduced.tsv"))
	require.NoError(t, err)
	seeds, err := tsv.ReadSeedFile(f.path("hits.tsv"))
	require.NoError(t, err)
	for _, s := range seeds {
		assert.Contains(t, reduced.ReactionIDs(), s.ReactionID)
	}
}

func TestScreenCmd_RequiresQuery(t *testing.T) {
	f := newFixture(t, "")
	writeFile(t, f.config, "log:\n  output_paths: [\""+f.path("log.json")+"\"]\n")
	_, err := execute(t, "--config", f.config, "screen", "--space", f.space, "-n", "1")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestScreenCmd_RequiresSpace(t *testing.T) {
	f := newFixture(t, "")
	_, err := execute(t, "--config", f.config, "screen", "-n", "1")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestScreenCmd_NegativeIterations(t *testing.T) {
	f := newFixture(t, "")
	_, err := execute(t, "--config", f.config, "screen", "--space", f.space, "-n", "-1")
	require.Error(t, err)
}

// ─────────────────────────────────────────────────────────────────────────────
// optimize
// ─────────────────────────────────────────────────────────────────────────────

func TestOptimizeCmd_SeedsFromTable(t *testing.T) {
	f := newFixture(t, "optimize:\n  workers: 2\n  full:\n    max_rounds: 3\n")
	seeds := writeFile(t, f.path("seeds.tsv"), "rxnId\tfragIds\tphesaSimilarity\n"+
		"r1\ta1;b1\t0.2\n"+
		"r1\ta2;zz\t\n"+
		"r2\tc1\t\n")

	out, err := execute(t, "--config", f.config, "-o", "json", "optimize",
		"--seeds", seeds, "--space", f.space, "--out", f.path("optimized.tsv"))
	require.NoError(t, err)

	var summary OptimizeSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 3, summary.Seeds)
	assert.Equal(t, int64(2), summary.Written)
	assert.Equal(t, int64(1), summary.Failed)
	assert.Positive(t, summary.Comparisons)

	lines := readLines(t, f.path("optimized.tsv"))
	assert.Equal(t, int(summary.Rows)+1, len(lines))
	assert.Contains(t, strings.Join(lines, "\n"), "a0;b0")
}

func TestOptimizeCmd_MissingSeeds(t *testing.T) {
	f := newFixture(t, "")
	_, err := execute(t, "--config", f.config, "optimize", "--space", f.space, "--out", f.path("o.tsv"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestOptimizeCmd_UnreadableSeeds(t *testing.T) {
	f := newFixture(t, "")
	_, err := execute(t, "--config", f.config, "optimize",
		"--seeds", f.path("missing.tsv"), "--space", f.space, "--out", f.path("o.tsv"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSeedParseFailed))
}
