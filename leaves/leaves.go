// Package leaves builds and reads the rack leave table used alongside the
// GADDAG by move evaluation. Each entry maps a canonical key, the letters of
// a rack leave uppercased and sorted, to a numeric value.
package leaves

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	// ErrMissingInput is returned when the source CSV file does not exist.
	ErrMissingInput = errors.New("leave table source not found")

	// ErrMalformedRow describes a CSV row that was skipped.
	ErrMalformedRow = errors.New("malformed row")
)

// CanonicalKey uppercases s and sorts its characters by code point, so that
// every ordering of the same letters maps to the same key. Uppercasing uses
// the full Unicode mapping, which may change the length: "ß" becomes "SS".
func CanonicalKey(s string) string {
	runes := []rune(cases.Upper(language.Und).String(s))
	sort.Slice(runes, func(i, j int) bool { return runes[i] < runes[j] })
	return string(runes)
}

// Table maps canonical keys to values.
type Table map[string]float64

// Get looks up the value for letters in any order and case.
func (t Table) Get(letters string) (float64, bool) {
	v, ok := t[CanonicalKey(letters)]
	return v, ok
}

// Len returns the number of entries.
func (t Table) Len() int {
	return len(t)
}

// Summary describes the outcome of parsing a CSV file.
type Summary struct {
	Rows     int
	Loaded   int
	Skipped  int
	Duration time.Duration
}

// ParseOptions controls Parse.
type ParseOptions struct {
	Logger *slog.Logger

	// ProgressEvery logs a progress line every so many rows. Zero disables it.
	ProgressEvery int
}

// Parse reads rows of "letters,value" from r. Rows with the wrong number of
// columns, a value that is not a number, or a key too long to store are
// skipped with a warning giving the row number and the line it starts on.
// Blank lines are not rows and are ignored. A later row for the same
// canonical key replaces an earlier one.
func Parse(r io.Reader, opts ParseOptions) (Table, Summary, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	start := time.Now()
	table := make(Table)
	var summary Summary

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		summary.Rows++

		var line int
		if err == nil {
			line, _ = reader.FieldPos(0)
			err = addRow(table, row)
		} else {
			var parseErr *csv.ParseError
			if !errors.As(err, &parseErr) {
				return nil, summary, fmt.Errorf("read row %d: %w", summary.Rows, err)
			}
			line = parseErr.StartLine
			err = fmt.Errorf("%w: %w", ErrMalformedRow, err)
		}

		if err != nil {
			summary.Skipped++
			logger.Warn("skipping row",
				slog.Int("row", summary.Rows),
				slog.Int("line", line),
				slog.String("reason", err.Error()))
		}

		if opts.ProgressEvery > 0 && summary.Rows%opts.ProgressEvery == 0 {
			logger.Info("processed rows", slog.Int("rows", summary.Rows))
		}
	}

	summary.Loaded = len(table)
	summary.Duration = time.Since(start)
	return table, summary, nil
}

func addRow(table Table, row []string) error {
	if len(row) != 2 {
		return fmt.Errorf("%w: expected 2 columns, got %d", ErrMalformedRow, len(row))
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
	if err != nil {
		return fmt.Errorf("%w: invalid number %q", ErrMalformedRow, row[1])
	}

	key := CanonicalKey(row[0])
	if len(key) > maxKeyBytes {
		return fmt.Errorf("%w: key of %d bytes is longer than %d", ErrMalformedRow, len(key), maxKeyBytes)
	}

	table[key] = value
	return nil
}

// ParseFile parses the CSV file at path.
func ParseFile(path string, opts ParseOptions) (Table, Summary, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, Summary{}, fmt.Errorf("%w: %s", ErrMissingInput, path)
	} else if err != nil {
		return nil, Summary{}, err
	}
	defer f.Close()

	return Parse(f, opts)
}
