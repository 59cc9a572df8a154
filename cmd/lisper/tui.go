package main

import (
	"errors"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/svoctor/lisper-go/internal/presentation/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui [session]",
	Short: "Edit Lisp in the terminal with live evaluation",
	Long: `Opens a terminal editor bound to a session (default "tui"). Every keystroke re-highlights
the source and evaluates it; ctrl+t toggles the theme. With a persistent store the
session survives restarts.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !tui.IsTerminal(os.Stdin) || !tui.IsTerminal(os.Stdout) {
			return errors.New("tui needs an interactive terminal; use eval or highlight instead")
		}
		sessionID := "tui"
		if len(args) == 1 {
			sessionID = args[0]
		}

		pg, err := newPlayground(cmd)
		if err != nil {
			return err
		}
		defer pg.Close(cmd.Context())

		sess, err := pg.Sessions.Open(cmd.Context(), sessionID)
		if err != nil {
			return err
		}

		editor := tui.NewEditor(sess, pg.Highlighter, tui.Profile(os.Stdout))
		defer editor.Close()

		_, err = tea.NewProgram(editor, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}
