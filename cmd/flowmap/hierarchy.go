package main

import (
	"fmt"

	"github.com/rickchristie/flowmap/category"
	"github.com/spf13/cobra"
)

var hierarchyCmd = &cobra.Command{
	Use:   "hierarchy [label]",
	Short: "Print the elementary-flow category chains",
	Long: `Without arguments, print every category chain. With a label, print the
chain it resolves to and the filter value sent to the database.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHierarchy,
}

func init() {
	rootCmd.AddCommand(hierarchyCmd)
}

type chainOutput struct {
	Key    string   `json:"key" yaml:"key"`
	Labels []string `json:"labels" yaml:"labels"`
	Filter string   `json:"filter" yaml:"filter"`
}

func newChainOutput(c category.Chain) chainOutput {
	return chainOutput{Key: c.Key(), Labels: c.Labels(), Filter: c.FilterValue()}
}

func runHierarchy(cmd *cobra.Command, args []string) error {
	h := category.Default()

	if len(args) == 1 {
		chain, ok := h.Resolve(args[0])
		if !ok {
			return fmt.Errorf("no category chain for %q", args[0])
		}
		return printValue(cmd.OutOrStdout(), outputFmt, newChainOutput(chain))
	}

	chains := h.Chains()
	out := make([]chainOutput, len(chains))
	for i, c := range chains {
		out[i] = newChainOutput(c)
	}
	return printValue(cmd.OutOrStdout(), outputFmt, out)
}
