package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/milden6/gaddag"
)

var (
	queryFile  string
	queryPaths bool
	dumpFile   string
)

var queryCmd = &cobra.Command{
	Use:   "query PATH...",
	Short: "Check paths against a GADDAG file",
	Long: `Looks up each argument in a GADDAG file and prints whether it ends at a
terminal node. Arguments may contain '>' for the separator; quote them in the
shell. With --paths, each argument must be a word, and every stored rotation
of it is checked.

Examples:
  gaddag query --gaddag gaddag.bin CAT 'C>AT'
  gaddag query --gaddag gaddag.bin --paths cat`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the node records of a GADDAG file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		finder, err := gaddag.Load(gaddagPath(dumpFile))
		if err != nil {
			return err
		}
		defer finder.Close()
		return finder.Print(cmd.OutOrStdout())
	},
}

func init() {
	queryCmd.Flags().StringVarP(&queryFile, "gaddag", "g", "", "GADDAG file (default: build output from config)")
	queryCmd.Flags().BoolVar(&queryPaths, "paths", false, "check every rotation path of each word")
	dumpCmd.Flags().StringVarP(&dumpFile, "gaddag", "g", "", "GADDAG file (default: build output from config)")
}

func gaddagPath(flag string) string {
	if flag != "" {
		return flag
	}
	return cfg.Build.Output
}

func runQuery(cmd *cobra.Command, args []string) error {
	finder, err := gaddag.Load(gaddagPath(queryFile))
	if err != nil {
		return err
	}
	defer finder.Close()

	out := cmd.OutOrStdout()
	missing, total := 0, 0
	for _, arg := range args {
		arg = strings.ToUpper(arg)

		paths := []string{arg}
		if queryPaths {
			if paths = gaddag.RotationPaths(arg); paths == nil {
				return fmt.Errorf("%w: %q", gaddag.ErrInvalidWord, arg)
			}
		}

		for _, path := range paths {
			total++
			found := finder.IsTerminal(path)
			if !found {
				missing++
			}
			fmt.Fprintf(out, "%s\t%v\n", path, found)
		}
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "%d words in %s, %d of %d paths not found\n",
		finder.NumAdded(), gaddagPath(queryFile), missing, total)
	return nil
}
