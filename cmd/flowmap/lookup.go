package main

import (
	"github.com/rickchristie/flowmap"
	"github.com/rickchristie/flowmap/logging"
	"github.com/spf13/cobra"
)

var casCmd = &cobra.Command{
	Use:   "cas <name...>",
	Short: "Look up the CAS registry number of each name",
	Long: `Search the CAS registry for each name and report the most common number
among its hits. Registry errors are reported per name.`,
	Example: `  flowmap cas water "carbon dioxide" ethanol`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runCAS,
}

func init() {
	rootCmd.AddCommand(casCmd)
}

type casOutput struct {
	Name            string `json:"name" yaml:"name"`
	CAS             string `json:"cas,omitempty" yaml:"cas,omitempty"`
	Formatted       string `json:"formatted,omitempty" yaml:"formatted,omitempty"`
	ValidCheckDigit bool   `json:"valid_check_digit" yaml:"valid_check_digit"`
	Error           string `json:"error,omitempty" yaml:"error,omitempty"`
}

func runCAS(cmd *cobra.Command, args []string) error {
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

	execCtx := flowmap.NewExecutionContext("cas")
	execCtx.EnterStage(flowmap.StageCAS)
	out := make([]casOutput, 0, len(args))
	for _, name := range args {
		item := casOutput{Name: name}
		number, err := a.cas.Lookup(ctx, execCtx, name)
		switch {
		case err != nil:
			item.Error = err.Error()
		case number.Found():
			item.CAS = number.Digits()
			item.Formatted = number.Formatted()
			item.ValidCheckDigit = number.ValidCheckDigit()
			if !item.ValidCheckDigit {
				a.log.Warn("registry number fails its check digit",
					logging.String("name", name), logging.String("cas", item.Formatted))
			}
		}
		out = append(out, item)
	}
	execCtx.End(nil)
	trace.Write(execCtx)

	return printValue(cmd.OutOrStdout(), outputFmt, out)
}
