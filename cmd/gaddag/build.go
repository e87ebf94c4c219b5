package main

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/milden6/gaddag/internal/ingest"
	"github.com/milden6/gaddag/internal/metrics"
)

var (
	buildInput         string
	buildOutput        string
	buildMinWordLength int
	buildWorkers       int
	buildProgressEvery int
	buildMetricsFile   string
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build a GADDAG file from a word list",
	Long: `Reads a word list with one word per line, inserts every word and its
rotations into a GADDAG, and saves it.

Lines are trimmed and uppercased. Lines shorter than the minimum word length
or containing anything other than the letters A-Z are skipped with a warning.
The output file is replaced only once the whole GADDAG has been written.

Examples:
  gaddag build --input words.txt --output gaddag.bin
  gaddag build --input words.txt --workers 8 --metrics-file gaddag.prom`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	flags := buildCmd.Flags()
	flags.StringVarP(&buildInput, "input", "i", "", "word list to read")
	flags.StringVarP(&buildOutput, "output", "o", "", "GADDAG file to write")
	flags.IntVar(&buildMinWordLength, "min-word-length", 0, "shortest word to accept")
	flags.IntVar(&buildWorkers, "workers", 0, "number of goroutines inserting words")
	flags.IntVar(&buildProgressEvery, "progress-every", 0, "log progress every N words, 0 to disable")
	flags.StringVar(&buildMetricsFile, "metrics-file", "", "write Prometheus metrics to this textfile")
}

func runBuild(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	bc := &cfg.Build
	if flags.Changed("input") {
		bc.Input = buildInput
	}
	if flags.Changed("output") {
		bc.Output = buildOutput
	}
	if flags.Changed("min-word-length") {
		bc.MinWordLength = buildMinWordLength
	}
	if flags.Changed("workers") {
		bc.Workers = buildWorkers
	}
	if flags.Changed("progress-every") {
		bc.ProgressEvery = buildProgressEvery
	}
	if flags.Changed("metrics-file") {
		bc.MetricsFile = buildMetricsFile
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	m := metrics.NewBuild()
	logger.Info("starting GADDAG build",
		slog.String("input", bc.Input),
		slog.String("output", bc.Output),
		slog.Int("min_word_length", bc.MinWordLength),
		slog.Int("workers", bc.Workers))

	g, summary, err := ingest.BuildFile(cmd.Context(), bc.Input, ingest.Options{
		MinWordLength: bc.MinWordLength,
		Workers:       bc.Workers,
		ProgressEvery: bc.ProgressEvery,
		Logger:        logger,
		Metrics:       m,
	})
	if err != nil {
		return err
	}

	logger.Info("saving GADDAG", slog.String("output", bc.Output))
	start := time.Now()
	size, err := g.Save(bc.Output)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)
	m.ArtifactBytes.Set(float64(size))
	m.PhaseDuration.WithLabelValues("save").Observe(elapsed.Seconds())

	logger.Info("build complete",
		slog.String("output", bc.Output),
		slog.Int64("bytes", size),
		slog.Int("words", g.NumAdded()),
		slog.Int("duplicates", summary.Duplicates),
		slog.Int("skipped", summary.Skipped()),
		slog.Int("nodes", g.NumNodes()),
		slog.Int("edges", g.NumEdges()),
		slog.Duration("save_elapsed", elapsed))

	if bc.MetricsFile != "" {
		if err := m.WriteFile(bc.MetricsFile); err != nil {
			return err
		}
	}
	return nil
}
