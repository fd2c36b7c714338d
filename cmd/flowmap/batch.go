package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rickchristie/flowmap"
	"github.com/spf13/cobra"
)

var batchCmd = &cobra.Command{
	Use:   "batch [file]",
	Short: "Resolve one description per line",
	Long: `Resolve every non-empty line of the input independently. Lines starting
with # are skipped. A failing line is reported in its item and does not stop
the others.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)
}

// batchOutput is one line of batch output.
type batchOutput struct {
	Text   string                    `json:"text" yaml:"text"`
	Result *flowmap.ResolutionResult `json:"result,omitempty" yaml:"result,omitempty"`
	Error  string                    `json:"error,omitempty" yaml:"error,omitempty"`
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	in := cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	texts, err := readLines(in)
	if err != nil {
		return err
	}
	if len(texts) == 0 {
		return fmt.Errorf("%w: no input lines", flowmap.ErrEmptyQuery)
	}

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

	items, err := a.pipeline.RunBatch(ctx, texts)
	failed := 0
	out := make([]batchOutput, len(items))
	for i, item := range items {
		if item.Trace != nil {
			trace.Write(item.Trace)
		}
		out[i] = batchOutput{Text: item.Text, Result: item.Result}
		if item.Err != nil {
			out[i].Error = item.Err.Error()
			failed++
		}
	}
	if perr := printValue(cmd.OutOrStdout(), outputFmt, out); perr != nil {
		return perr
	}
	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d queries failed", failed, len(items))
	}
	return nil
}

// readLines returns the trimmed non-empty, non-comment lines of r.
func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return lines, nil
}
