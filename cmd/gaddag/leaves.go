package main

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/milden6/gaddag/leaves"
)

var (
	leavesInput         string
	leavesOutput        string
	leavesProgressEvery int
	leavesTable         string
)

var leavesCmd = &cobra.Command{
	Use:   "leaves",
	Short: "Build and query rack leave tables",
	Long: `Rack leave tables map a set of letters to a value. Keys are uppercased
and their letters sorted, so lookups do not depend on letter order.

Subcommands:
  build  - Convert a CSV file of letters,value rows into a table file
  get    - Look up letters in a table file`,
}

var leavesBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Convert a CSV leave export into a table file",
	Long: `Reads rows of letters,value from a CSV file and writes a table file.
Rows without exactly two columns or with a value that is not a number are
skipped with a warning.

Examples:
  gaddag leaves build --input NWL23-leaves.csv --output NWL23-leaves.bin`,
	Args: cobra.NoArgs,
	RunE: runLeavesBuild,
}

var leavesGetCmd = &cobra.Command{
	Use:   "get LETTERS...",
	Short: "Look up leaves in a table file",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runLeavesGet,
}

func init() {
	flags := leavesBuildCmd.Flags()
	flags.StringVarP(&leavesInput, "input", "i", "", "CSV file to read")
	flags.StringVarP(&leavesOutput, "output", "o", "", "table file to write")
	flags.IntVar(&leavesProgressEvery, "progress-every", 0, "log progress every N rows, 0 to disable")

	leavesGetCmd.Flags().StringVarP(&leavesTable, "table", "t", "", "table file (default: leaves output from config)")
}

func runLeavesBuild(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	lc := &cfg.Leaves
	if flags.Changed("input") {
		lc.Input = leavesInput
	}
	if flags.Changed("output") {
		lc.Output = leavesOutput
	}
	if flags.Changed("progress-every") {
		lc.ProgressEvery = leavesProgressEvery
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.Info("loading leave table", slog.String("input", lc.Input))
	table, summary, err := leaves.ParseFile(lc.Input, leaves.ParseOptions{
		Logger:        logger,
		ProgressEvery: lc.ProgressEvery,
	})
	if err != nil {
		return err
	}
	logger.Info("loaded leave table",
		slog.Int("rows", summary.Rows),
		slog.Int("entries", summary.Loaded),
		slog.Int("skipped", summary.Skipped),
		slog.Duration("elapsed", summary.Duration))

	size, err := table.Save(lc.Output)
	if err != nil {
		return err
	}
	logger.Info("saved leave table", slog.String("output", lc.Output), slog.Int64("bytes", size))
	return nil
}

func runLeavesGet(cmd *cobra.Command, args []string) error {
	path := leavesTable
	if path == "" {
		path = cfg.Leaves.Output
	}

	table, err := leaves.Load(path)
	if err != nil {
		return err
	}
	defer table.Close()

	out := cmd.OutOrStdout()
	for _, letters := range args {
		value, ok := table.Get(letters)
		if !ok {
			fmt.Fprintf(out, "%s\t-\n", leaves.CanonicalKey(letters))
			continue
		}
		fmt.Fprintf(out, "%s\t%s\n", leaves.CanonicalKey(letters), strconv.FormatFloat(value, 'g', -1, 64))
	}
	return nil
}
