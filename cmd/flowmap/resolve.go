package main

import (
	"strings"

	"github.com/rickchristie/flowmap"
	"github.com/spf13/cobra"
)

var resolveCompact bool

var resolveCmd = &cobra.Command{
	Use:   "resolve <text...>",
	Short: "Resolve one substance description to elementary flows",
	Example: `  flowmap resolve "carbon dioxide emitted to air from coal combustion"
  flowmap resolve --compact -o json methane to air`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().BoolVar(&resolveCompact, "compact", false, "return the compact top 3 instead of the top 5")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	trace, closeTrace, err := openTrace(traceFile)
	if err != nil {
		return err
	}
	defer closeTrace()

	topN := a.cfg.Pipeline.TopN
	if resolveCompact {
		topN = a.cfg.Pipeline.CompactTopN
	}

	execCtx := flowmap.NewExecutionContext("resolve")
	result, runErr := a.pipeline.Execute(ctx, execCtx, strings.Join(args, " "), topN)
	trace.Write(execCtx)

	if result != nil {
		if err := printValue(cmd.OutOrStdout(), outputFmt, result); err != nil {
			return err
		}
	}
	return runErr
}
