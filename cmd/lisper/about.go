package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/svoctor/lisper-go"
	"github.com/svoctor/lisper-go/internal/presentation/tui"
)

const aboutMarkdown = `# Lisper %s

A live Lisp playground. Source is highlighted as you type and evaluated by a
pluggable evaluator.

## Commands

| Command | |
| --- | --- |
| ` + "`lisper tui`" + ` | terminal editor with live evaluation |
| ` + "`lisper serve`" + ` | browser editor, JSON API and metrics on %s |
| ` + "`lisper eval`" + ` | evaluate a file, an expression or stdin |
| ` + "`lisper highlight`" + ` | print highlighted source |
| ` + "`lisper mcp`" + ` | MCP server on stdio |

## Configuration

- evaluator: **%s**
- ordering: **%s**
- store: **%s**

Settings come from ` + "`lisper.yaml`" + `, ` + "`LISPER_*`" + ` variables and flags.
Run ` + "`lisper config`" + ` to see the result.
`

var aboutCmd = &cobra.Command{
	Use:   "about",
	Short: "Describe lisper and the current setup",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		theme, err := cfg.ParsedTheme()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		tty := out == os.Stdout && tui.IsTerminal(os.Stdout)
		if tty {
			tui.PrintBanner(out, tui.Profile(os.Stdout))
		}

		render, err := tui.NewRenderer(theme, tui.Width(os.Stdout), tty)
		if err != nil {
			return err
		}
		md := fmt.Sprintf(aboutMarkdown, lisper.Version, cfg.Server.Addr,
			cfg.Evaluator.Provider, cfg.Evaluation.Ordering, cfg.Store.Backend)
		text, err := render(md)
		if err != nil {
			return err
		}
		fmt.Fprint(out, text)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(aboutCmd)
}
