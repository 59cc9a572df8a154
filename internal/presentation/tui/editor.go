package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/svoctor/lisper-go/pkg/domain"
	"github.com/svoctor/lisper-go/pkg/highlight"
	"github.com/svoctor/lisper-go/pkg/orchestrator"
)

// Session is the part of session.Session the editor drives.
type Session interface {
	Evaluate(source string) *orchestrator.Call
	ToggleTheme() domain.Theme
	Snapshot() domain.Snapshot
	Subscribe() (<-chan domain.Snapshot, func())
}

// snapshotMsg carries a session state change into the update loop.
type snapshotMsg domain.Snapshot

// Editor is a terminal Lisp editor. Every edit replaces the session source and evaluates it;
// the output pane follows the session state.
type Editor struct {
	sess        Session
	highlighter *highlight.Highlighter
	profile     termenv.Profile

	source  []rune
	snap    domain.Snapshot
	updates <-chan domain.Snapshot
	cancel  func()
	width   int
}

// NewEditor creates an editor for sess. Call Close when the program ends.
func NewEditor(sess Session, h *highlight.Highlighter, p termenv.Profile) *Editor {
	snap := sess.Snapshot()
	updates, cancel := sess.Subscribe()
	return &Editor{
		sess:        sess,
		highlighter: h,
		profile:     p,
		source:      []rune(snap.Source),
		snap:        snap,
		updates:     updates,
		cancel:      cancel,
		width:       defaultWidth,
	}
}

// Close ends the subscription to the session.
func (e *Editor) Close() {
	e.cancel()
}

// Source returns the text in the editor.
func (e *Editor) Source() string {
	return string(e.source)
}

// State returns the last session state the editor has seen.
func (e *Editor) State() domain.Snapshot {
	return e.snap
}

func (e *Editor) waitForSnapshot() tea.Msg {
	snap, ok := <-e.updates
	if !ok {
		return nil
	}
	return snapshotMsg(snap)
}

// Init implements tea.Model.
func (e *Editor) Init() tea.Cmd {
	return e.waitForSnapshot
}

// Update implements tea.Model.
func (e *Editor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case snapshotMsg:
		e.snap = domain.Snapshot(msg)
		return e, e.waitForSnapshot

	case tea.WindowSizeMsg:
		e.width = msg.Width
		return e, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return e, tea.Quit
		case tea.KeyCtrlT:
			e.snap.Theme = e.sess.ToggleTheme()
			return e, nil
		case tea.KeyBackspace:
			if len(e.source) == 0 {
				return e, nil
			}
			e.source = e.source[:len(e.source)-1]
		case tea.KeyEnter:
			e.source = append(e.source, '\n')
		case tea.KeyTab:
			e.source = append(e.source, ' ', ' ')
		case tea.KeySpace:
			e.source = append(e.source, ' ')
		case tea.KeyRunes:
			e.source = append(e.source, msg.Runes...)
		default:
			return e, nil
		}
		e.sess.Evaluate(string(e.source))
		e.snap.Source = string(e.source)
		return e, nil
	}
	return e, nil
}

// View implements tea.Model.
func (e *Editor) View() string {
	st := stylesFor(e.snap.Theme)
	width := max(e.width-2, 20)

	var b strings.Builder
	b.WriteString(st.title.Render("lisper"))
	b.WriteString("\n\n")

	m := e.highlighter.Highlight(string(e.source))
	code := ANSI(m, e.snap.Theme, e.profile) + st.cursor.Render(" ")
	b.WriteString(st.pane.Width(width).Render(code))
	b.WriteString("\n")

	output := e.snap.Output
	if e.snap.Status == domain.StatusPending {
		output += st.muted.Render("  (evaluating…)")
	}
	b.WriteString(st.output.Width(width).Render(output))
	b.WriteString("\n")

	balance := ""
	if !m.Balanced {
		balance = " · unbalanced"
	}
	b.WriteString(st.muted.Render(fmt.Sprintf("theme: %s · status: %s%s · ctrl+t theme · ctrl+c quit",
		e.snap.Theme, e.snap.Status, balance)))
	return b.String()
}

type styles struct {
	title  lipgloss.Style
	pane   lipgloss.Style
	output lipgloss.Style
	cursor lipgloss.Style
	muted  lipgloss.Style
}

func stylesFor(theme domain.Theme) styles {
	accent, border, muted := lipgloss.Color("#6f42c1"), lipgloss.Color("#d1d5da"), lipgloss.Color("#6a737d")
	if theme.IsDark() {
		accent, border, muted = lipgloss.Color("#a78bfa"), lipgloss.Color("#49483e"), lipgloss.Color("#75715e")
	}
	return styles{
		title:  lipgloss.NewStyle().Bold(true).Foreground(accent),
		pane:   lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(border).Padding(0, 1),
		output: lipgloss.NewStyle().Border(lipgloss.NormalBorder(), true, false, false, false).BorderForeground(border).Padding(0, 1),
		cursor: lipgloss.NewStyle().Reverse(true),
		muted:  lipgloss.NewStyle().Foreground(muted),
	}
}
