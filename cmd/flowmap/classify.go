package main

import (
	"fmt"
	"strings"

	"github.com/rickchristie/flowmap"
	"github.com/rickchristie/flowmap/lcadb"
	"github.com/spf13/cobra"
)

var (
	classifyLimit int
	askLimit      int
)

var classifyCmd = &cobra.Command{
	Use:     "classify <cas> <category...>",
	Short:   "Search the categories of the flows carrying a CAS number",
	Example: `  flowmap classify 124-38-9 emissions to air, unspecified`,
	Args:    cobra.MinimumNArgs(2),
	RunE:    runClassify,
}

var askCmd = &cobra.Command{
	Use:     "ask <question...>",
	Short:   "Ask the flow database a free-form question",
	Example: `  flowmap ask which flows describe carbon monoxide emitted to urban air`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runAsk,
}

func init() {
	classifyCmd.Flags().IntVarP(&classifyLimit, "limit", "n", flowmap.DefaultTopN, "number of flows to return")
	askCmd.Flags().IntVarP(&askLimit, "limit", "n", flowmap.DefaultTopN, "number of records to return")
	rootCmd.AddCommand(classifyCmd, askCmd)
}

func runClassify(cmd *cobra.Command, args []string) error {
	number := flowmap.NormalizeCAS(args[0])
	if !number.Found() {
		return fmt.Errorf("%q is not a CAS registry number", args[0])
	}

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

	execCtx := flowmap.NewExecutionContext("classify")
	execCtx.EnterStage(flowmap.StageFlows)
	records, err := a.flows.Classify(ctx, execCtx, number, strings.Join(args[1:], " "), classifyLimit)
	execCtx.End(err)
	trace.Write(execCtx)
	if err != nil {
		return err
	}
	return printValue(cmd.OutOrStdout(), outputFmt, lcadb.Projection(records))
}

type askOutput struct {
	Answer  string   `json:"answer" yaml:"answer"`
	Records []string `json:"records" yaml:"records"`
}

func runAsk(cmd *cobra.Command, args []string) error {
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

	execCtx := flowmap.NewExecutionContext("ask")
	execCtx.EnterStage(flowmap.StageFlows)
	answer, err := a.flows.Ask(ctx, execCtx, strings.Join(args, " "), askLimit)
	execCtx.End(err)
	trace.Write(execCtx)
	if err != nil {
		return err
	}

	out := askOutput{Answer: answer.Text, Records: make([]string, len(answer.Records))}
	for i, r := range answer.Records {
		out.Records[i] = r.ID
	}
	return printValue(cmd.OutOrStdout(), outputFmt, out)
}
