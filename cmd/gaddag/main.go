// Command gaddag builds GADDAG files from word lists and leave tables from
// CSV exports, and answers queries against them.
//
// Usage:
//
//	gaddag build --input "All Words 2023.txt" --output gaddag.bin
//	gaddag query --gaddag gaddag.bin CAT C>AT
//	gaddag dump --gaddag gaddag.bin
//	gaddag leaves build --input NWL23-leaves.csv --output NWL23-leaves.bin
//	gaddag leaves get --table NWL23-leaves.bin ERS
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/milden6/gaddag/internal/config"
	"github.com/milden6/gaddag/internal/logging"
)

var (
	configPath string
	logLevel   string
	logFormat  string

	// set by the persistent pre-run
	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "gaddag",
	Short: "Build and query GADDAG word graphs",
	Long: `Builds a GADDAG from a word list for move generation in placement
word games, converts rack leave tables, and queries the resulting files.

Settings are read from the file given with --config, if any; command line
flags override it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}

		flags := cmd.Flags()
		if flags.Changed("log-level") {
			cfg.Logging.Level = logLevel
		}
		if flags.Changed("log-format") {
			cfg.Logging.Format = logFormat
		}

		logger, err = logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "auto", "log format: auto, text or json")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(leavesCmd)
	leavesCmd.AddCommand(leavesBuildCmd)
	leavesCmd.AddCommand(leavesGetCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if logger != nil {
			logger.Error("command failed", slog.String("error", err.Error()))
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		stop()
		os.Exit(1)
	}
}
