// Package ingest drives a GADDAG build from a word list: it reads one
// candidate word per line, filters out entries that are not words, and
// inserts the rest.
package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/milden6/gaddag"
	"github.com/milden6/gaddag/internal/metrics"
)

var (
	// ErrMissingInput is returned when the word list does not exist.
	ErrMissingInput = errors.New("word list not found")

	// ErrMalformedEntry is the reason given for every skipped line.
	ErrMalformedEntry = errors.New("malformed entry")
)

const maxLineBytes = 1 << 20

// Outcome is what happened to one line of the word list.
type Outcome int

const (
	// Accepted lines are words and go to the builder.
	Accepted Outcome = iota

	// SkippedTooShort lines have fewer characters than the minimum word
	// length. Blank lines end up here.
	SkippedTooShort

	// SkippedInvalid lines contain something other than the letters A-Z.
	SkippedInvalid
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case SkippedTooShort:
		return "too_short"
	case SkippedInvalid:
		return "invalid"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Classify normalizes a line and decides whether it is a word. Uppercasing
// uses the full Unicode mapping, so "straße" becomes "STRASSE". A line is
// accepted when, after trimming and uppercasing, it has at least minLen
// characters and every one of them is a letter A-Z. The normalized word is
// returned along with the outcome; skipped lines also get a reason wrapping
// ErrMalformedEntry.
func Classify(line string, minLen int) (string, Outcome, error) {
	word := cases.Upper(language.Und).String(strings.TrimSpace(line))

	if n := utf8.RuneCountInString(word); n < minLen {
		return word, SkippedTooShort, fmt.Errorf("%w: %d characters, need at least %d", ErrMalformedEntry, n, minLen)
	}
	for i, r := range word {
		if r < 'A' || r > 'Z' {
			return word, SkippedInvalid, fmt.Errorf("%w: %q at offset %d is not a letter A-Z", ErrMalformedEntry, r, i)
		}
	}
	return word, Accepted, nil
}

// Options controls a build.
type Options struct {
	// MinWordLength is the shortest word accepted. Values below 1 are
	// treated as 1.
	MinWordLength int

	// Workers above 1 insert in parallel; see gaddag.NewParallel.
	Workers int

	// ProgressEvery logs a progress line every so many accepted words.
	// Zero disables progress lines.
	ProgressEvery int

	Logger  *slog.Logger
	Metrics *metrics.Build
}

// Summary counts what happened to the lines of the word list.
type Summary struct {
	Lines      int
	Accepted   int
	Duplicates int
	TooShort   int
	Invalid    int
	Duration   time.Duration
}

// Skipped returns the number of lines that were not words.
func (s Summary) Skipped() int {
	return s.TooShort + s.Invalid
}

type inserter interface {
	Add(word string) error
}

// Build reads the word list from r and returns the finished GADDAG. Lines
// that are not words are logged and skipped. The build stops with the
// context's error if ctx is cancelled.
func Build(ctx context.Context, r io.Reader, opts Options) (*gaddag.Gaddag, Summary, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	minLen := max(opts.MinWordLength, 1)

	start := time.Now()
	var summary Summary

	var (
		sequential *gaddag.Gaddag
		parallel   *gaddag.ParallelBuilder
		builder    inserter
	)
	if opts.Workers > 1 {
		parallel = gaddag.NewParallel(ctx, opts.Workers)
		builder = parallel
	} else {
		sequential = gaddag.New()
		builder = sequential
	}

	abort := func(err error) (*gaddag.Gaddag, Summary, error) {
		if parallel != nil {
			parallel.Finish()
		}
		summary.Duration = time.Since(start)
		return nil, summary, err
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		summary.Lines++
		if summary.Lines%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return abort(err)
			}
		}
		if opts.Metrics != nil {
			opts.Metrics.LinesTotal.Inc()
		}

		word, outcome, reason := Classify(scanner.Text(), minLen)
		switch outcome {
		case SkippedTooShort:
			summary.TooShort++
		case SkippedInvalid:
			summary.Invalid++
		}
		if reason != nil {
			logger.Warn("skipping line",
				slog.Int("line", summary.Lines),
				slog.String("entry", word),
				slog.String("outcome", outcome.String()),
				slog.String("reason", reason.Error()))
			if opts.Metrics != nil {
				opts.Metrics.LinesSkipped.WithLabelValues(outcome.String()).Inc()
			}
			continue
		}

		if err := builder.Add(word); err != nil {
			return abort(fmt.Errorf("line %d: %w", summary.Lines, err))
		}
		summary.Accepted++
		if opts.Metrics != nil {
			opts.Metrics.WordsAccepted.Inc()
		}

		if opts.ProgressEvery > 0 && summary.Accepted%opts.ProgressEvery == 0 {
			logger.Info("inserted words", slog.Int("words", summary.Accepted))
		}
	}
	if err := scanner.Err(); err != nil {
		return abort(fmt.Errorf("read word list after line %d: %w", summary.Lines, err))
	}
	if err := ctx.Err(); err != nil {
		return abort(err)
	}

	g := sequential
	if parallel != nil {
		var err error
		if g, err = parallel.Finish(); err != nil {
			summary.Duration = time.Since(start)
			return nil, summary, err
		}
	} else {
		g.Finish()
	}

	summary.Duplicates = summary.Accepted - g.NumAdded()
	summary.Duration = time.Since(start)

	if opts.Metrics != nil {
		opts.Metrics.DuplicateWords.Add(float64(summary.Duplicates))
		opts.Metrics.Nodes.Set(float64(g.NumNodes()))
		opts.Metrics.Edges.Set(float64(g.NumEdges()))
		opts.Metrics.PhaseDuration.WithLabelValues("ingest").Observe(summary.Duration.Seconds())
	}

	logger.Info("finished inserting words",
		slog.Int("words", summary.Accepted),
		slog.Int("distinct", g.NumAdded()),
		slog.Int("skipped", summary.Skipped()),
		slog.Int("nodes", g.NumNodes()),
		slog.Duration("elapsed", summary.Duration))

	return g, summary, nil
}

// BuildFile builds from the word list at path.
func BuildFile(ctx context.Context, path string, opts Options) (*gaddag.Gaddag, Summary, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, Summary{}, fmt.Errorf("%w: %s", ErrMissingInput, path)
	} else if err != nil {
		return nil, Summary{}, fmt.Errorf("open word list: %w", err)
	}
	defer f.Close()

	return Build(ctx, f, opts)
}
