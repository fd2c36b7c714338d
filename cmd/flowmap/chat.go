package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/rickchristie/flowmap"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Resolve descriptions interactively",
	Long: `Read descriptions from an interactive prompt and resolve each one.
Type :compact to toggle the compact top 3, and exit or quit to leave.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
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

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          colorCyan + colorBold + "substance> " + colorReset,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s%sFLOWMAP%s\n", colorBold, colorYellow, colorReset)
	fmt.Fprintf(out, "%sDescribe a substance and press Enter. Type 'exit' to quit.%s\n\n", colorDim, colorReset)

	compact := false
	for {
		input, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				fmt.Fprintf(out, "\n%sGoodbye!%s\n", colorGreen, colorReset)
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}

		input = strings.TrimSpace(input)
		switch input {
		case "":
			continue
		case "exit", "quit":
			fmt.Fprintf(out, "%sGoodbye!%s\n", colorGreen, colorReset)
			return nil
		case ":compact":
			compact = !compact
			fmt.Fprintf(out, "%scompact: %v%s\n", colorDim, compact, colorReset)
			continue
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		topN := a.cfg.Pipeline.TopN
		if compact {
			topN = a.cfg.Pipeline.CompactTopN
		}
		execCtx := flowmap.NewExecutionContext("chat")
		result, err := a.pipeline.Execute(ctx, execCtx, input, topN)
		trace.Write(execCtx)

		writeSummary(out, result, execCtx)
		if err != nil {
			fmt.Fprintf(out, "%sError: %v%s\n\n", colorRed, err, colorReset)
			continue
		}
		if err := printValue(out, outputFmt, result.Flows); err != nil {
			return err
		}
		fmt.Fprintln(out)
	}
}

// writeSummary prints the intermediate values of a run on one colored block.
func writeSummary(w io.Writer, result *flowmap.ResolutionResult, execCtx *flowmap.ExecutionContext) {
	if result == nil {
		return
	}
	name := result.Query.Name
	if name == "" {
		name = flowmap.NoneLiteral
	}
	fmt.Fprintf(w, "%ssubstance:%s %s", colorYellow, colorReset, name)
	if result.Query.Category != "" {
		fmt.Fprintf(w, " %s(%s)%s", colorDim, result.Query.Category, colorReset)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%ssynonyms:%s  %s\n", colorYellow, colorReset, result.Synonyms)
	fmt.Fprintf(w, "%scas:%s       %s", colorYellow, colorReset, result.CAS)
	if result.CAS.Found() {
		fmt.Fprintf(w, " %s(%s)%s", colorDim, result.CAS.Formatted(), colorReset)
	}
	fmt.Fprintln(w)

	stats := execCtx.Stats()
	fmt.Fprintf(w, "%spath: %s, %d flows, %d model calls, %s%s\n",
		colorDim, result.Path, len(result.Flows), stats.ModelCalls,
		execCtx.Duration().Round(time.Millisecond), colorReset)
}
