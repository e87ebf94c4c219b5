package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milden6/gaddag"
	"github.com/milden6/gaddag/internal/metrics"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// logRecords decodes the JSON log lines in buf, keeping those with message msg.
func logRecords(t *testing.T, buf *bytes.Buffer, msg string) []map[string]any {
	t.Helper()
	var records []map[string]any
	scanner := bufio.NewScanner(buf)
	for scanner.Scan() {
		var record map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &record))
		if record[slog.MessageKey] == msg {
			records = append(records, record)
		}
	}
	require.NoError(t, scanner.Err())
	return records
}

func TestClassify(t *testing.T) {
	tests := []struct {
		line    string
		word    string
		outcome Outcome
	}{
		{"dog", "DOG", Accepted},
		{"  Cat \r", "CAT", Accepted},
		{"A", "A", SkippedTooShort},
		{"", "", SkippedTooShort},
		{"   ", "", SkippedTooShort},
		{"cat!", "CAT!", SkippedInvalid},
		{"o'clock", "O'CLOCK", SkippedInvalid},
		{"two words", "TWO WORDS", SkippedInvalid},
		{"café", "CAFÉ", SkippedInvalid},
		{"é", "É", SkippedTooShort},
		{"straße", "STRASSE", Accepted},
		{"ß", "SS", Accepted},
	}

	for _, tt := range tests {
		word, outcome, reason := Classify(tt.line, 2)
		assert.Equal(t, tt.word, word, "line %q", tt.line)
		assert.Equal(t, tt.outcome, outcome, "line %q", tt.line)
		if tt.outcome == Accepted {
			assert.NoError(t, reason, "line %q", tt.line)
		} else {
			assert.ErrorIs(t, reason, ErrMalformedEntry, "line %q", tt.line)
		}
	}
}

func TestClassifyMinLength(t *testing.T) {
	_, outcome, _ := Classify("ox", 3)
	assert.Equal(t, SkippedTooShort, outcome)

	_, outcome, _ = Classify("a", 1)
	assert.Equal(t, Accepted, outcome)
}

const wordList = `dog
A
cat!
Cat
DOG

zebra
`

func TestBuild(t *testing.T) {
	m := metrics.NewBuild()
	g, summary, err := Build(context.Background(), strings.NewReader(wordList), Options{
		MinWordLength: 2,
		Logger:        quietLogger,
		Metrics:       m,
	})
	require.NoError(t, err)

	assert.Equal(t, 7, summary.Lines)
	assert.Equal(t, 4, summary.Accepted)
	assert.Equal(t, 1, summary.Duplicates)
	assert.Equal(t, 2, summary.TooShort)
	assert.Equal(t, 1, summary.Invalid)
	assert.Equal(t, 3, summary.Skipped())

	assert.True(t, g.Finished())
	assert.Equal(t, 3, g.NumAdded())
	assert.True(t, g.Contains("DOG"))
	assert.True(t, g.Contains("CAT"))
	assert.True(t, g.Contains("ZEBRA"))
	assert.False(t, g.Contains("A"))
	assert.False(t, g.IsTerminal("CAT!"))

	assert.Equal(t, 7.0, testutil.ToFloat64(m.LinesTotal))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.WordsAccepted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DuplicateWords))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LinesSkipped.WithLabelValues("too_short")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LinesSkipped.WithLabelValues("invalid")))
	assert.Equal(t, float64(g.NumNodes()), testutil.ToFloat64(m.Nodes))
}

func TestBuildParallelMatchesSequential(t *testing.T) {
	words := []string{
		"cat", "act", "tack", "attack", "zebra", "quiz", "aa", "ab", "ba",
		"level", "noon", "racecar", "xylophone", "jazz", "fizz", "buzz",
	}
	input := strings.Join(words, "\n")

	seq, seqSummary, err := Build(context.Background(), strings.NewReader(input), Options{
		MinWordLength: 2, Logger: quietLogger,
	})
	require.NoError(t, err)

	par, parSummary, err := Build(context.Background(), strings.NewReader(input), Options{
		MinWordLength: 2, Workers: 4, Logger: quietLogger,
	})
	require.NoError(t, err)

	assert.Equal(t, seqSummary.Accepted, parSummary.Accepted)
	assert.Equal(t, seq.NumAdded(), par.NumAdded())
	assert.Equal(t, seq.NumNodes(), par.NumNodes())
	assert.Equal(t, seq.NumEdges(), par.NumEdges())
	assert.Equal(t, gaddag.TerminalPaths(seq), gaddag.TerminalPaths(par))
}

func TestBuildCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, workers := range []int{1, 3} {
		g, _, err := Build(ctx, strings.NewReader(wordList), Options{
			MinWordLength: 2, Workers: workers, Logger: quietLogger,
		})
		assert.ErrorIs(t, err, context.Canceled, "workers=%d", workers)
		assert.Nil(t, g)
	}
}

func TestBuildLineTooLong(t *testing.T) {
	input := strings.Repeat("A", maxLineBytes+10)
	_, _, err := Build(context.Background(), strings.NewReader(input), Options{Logger: quietLogger})
	assert.Error(t, err)
}

func TestBuildFileMissing(t *testing.T) {
	_, _, err := BuildFile(context.Background(), filepath.Join(t.TempDir(), "missing.txt"), Options{Logger: quietLogger})
	assert.ErrorIs(t, err, ErrMissingInput)
}

func TestBuildLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	_, _, err := Build(context.Background(), strings.NewReader(wordList), Options{
		MinWordLength: 2,
		ProgressEvery: 2,
		Logger:        logger,
	})
	require.NoError(t, err)
	logs := bytes.Clone(buf.Bytes())

	skipped := logRecords(t, bytes.NewBuffer(logs), "skipping line")
	require.Len(t, skipped, 3)
	for i, want := range []struct {
		line    float64
		outcome string
	}{
		{2, "too_short"},
		{3, "invalid"},
		{6, "too_short"},
	} {
		assert.Equal(t, "WARN", skipped[i][slog.LevelKey])
		assert.Equal(t, want.line, skipped[i]["line"])
		assert.Equal(t, want.outcome, skipped[i]["outcome"])
		assert.NotEmpty(t, skipped[i]["reason"])
	}

	progress := logRecords(t, bytes.NewBuffer(logs), "inserted words")
	require.Len(t, progress, 2)
	assert.Equal(t, 2.0, progress[0]["words"])
	assert.Equal(t, 4.0, progress[1]["words"])

	done := logRecords(t, bytes.NewBuffer(logs), "finished inserting words")
	require.Len(t, done, 1)
	assert.Equal(t, 3.0, done[0]["distinct"])
	assert.Equal(t, 3.0, done[0]["skipped"])
}

func TestBuildNoProgress(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	_, _, err := Build(context.Background(), strings.NewReader(wordList), Options{
		MinWordLength: 2,
		Logger:        logger,
	})
	require.NoError(t, err)
	assert.Empty(t, logRecords(t, &buf, "inserted words"))
}
