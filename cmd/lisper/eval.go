package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/svoctor/lisper-go/internal/presentation/tui"
	"github.com/svoctor/lisper-go/pkg/domain"
	"github.com/svoctor/lisper-go/pkg/sanitize"
)

var evalCmd = &cobra.Command{
	Use:   "eval [file]",
	Short: "Evaluate Lisp source once and print the output",
	Long: `Evaluates a file, an -e expression or standard input with the configured evaluator.
Lisp errors are printed like any other output; the exit status is non-zero only when
the evaluator is unavailable.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		expr, _ := cmd.Flags().GetString("expr")
		source, err := readSource(cmd, args, expr)
		if err != nil {
			return err
		}

		pg, err := newPlayground(cmd)
		if err != nil {
			return err
		}
		defer pg.Close(cmd.Context())

		source, err = sanitize.Source(source, pg.Config.Evaluation.MaxSourceBytes)
		if err != nil {
			return err
		}
		call, err := pg.Eval(cmd.Context(), source)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), call.Output())
		if call.Status() == domain.StatusUnavailable {
			return errors.New("evaluator unavailable")
		}
		return nil
	},
}

// readSource picks the source from -e, a file argument or piped stdin, in that order.
func readSource(cmd *cobra.Command, args []string, expr string) (string, error) {
	switch {
	case expr != "":
		return expr, nil
	case len(args) == 1 && args[0] != "-":
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("read source: %w", err)
		}
		return string(data), nil
	}

	if f, ok := cmd.InOrStdin().(*os.File); ok && tui.IsTerminal(f) && len(args) == 0 {
		return "", errors.New("no source: pass a file, -e EXPR or pipe source on stdin")
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

func init() {
	rootCmd.AddCommand(evalCmd)
	evalCmd.Flags().StringP("expr", "e", "", "Evaluate this expression instead of a file")
}
