package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/svoctor/lisper-go/internal/presentation/tui"
	"github.com/svoctor/lisper-go/pkg/highlight"
	"github.com/svoctor/lisper-go/pkg/sanitize"
)

var highlightCmd = &cobra.Command{
	Use:   "highlight [file]",
	Short: "Highlight Lisp source",
	Long: `Prints highlighted Lisp source as terminal colors (ansi), HTML spans (html)
or the token tree (json). Reads standard input when no file is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		source, err := readSource(cmd, args, "")
		if err != nil {
			return err
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		theme, err := cfg.ParsedTheme()
		if err != nil {
			return err
		}
		if source, err = sanitize.Source(source, cfg.Evaluation.MaxSourceBytes); err != nil {
			return err
		}

		m := highlight.New(highlight.WithLexer(cfg.Highlight.Lexer)).Highlight(source)
		out := cmd.OutOrStdout()
		switch format {
		case "ansi":
			profile := termenv.Ascii
			if f, ok := out.(*os.File); ok {
				profile = tui.Profile(f)
			}
			fmt.Fprintln(out, tui.ANSI(m, theme, profile))
		case "html":
			r := highlight.NewRenderer(cfg.Highlight.LightStyle, cfg.Highlight.DarkStyle)
			fmt.Fprintln(out, r.HTML(m))
		case "json":
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(m)
		default:
			return fmt.Errorf("unknown format %q (valid: ansi, html, json)", format)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(highlightCmd)
	highlightCmd.Flags().StringP("format", "f", "ansi", "Output format (ansi, html, json)")
}
