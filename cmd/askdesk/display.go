package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/askdesk/askdesk/pkg/assistant"
	"github.com/askdesk/askdesk/pkg/models"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("63")).
			Bold(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("35")).
			Bold(true)

	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	connectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	disconnectedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("196")).
				Bold(true)
)

var (
	rendererOnce sync.Once
	renderer     *glamour.TermRenderer
)

func stdoutIsTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// renderMarkdown renders answer text for the terminal. The plain text is
// returned when stdout is not a terminal or rendering fails.
func renderMarkdown(text string) string {
	if !stdoutIsTTY() {
		return text + "\n"
	}
	rendererOnce.Do(func() {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(80),
		)
		if err == nil {
			renderer = r
		}
	})
	if renderer == nil {
		return text + "\n"
	}
	out, err := renderer.Render(text)
	if err != nil {
		return text + "\n"
	}
	return out
}

func connectionLabel(connected bool) string {
	if connected {
		return connectedStyle.Render("● Connected")
	}
	return disconnectedStyle.Render("● Not Connected")
}

// printReply writes a session reply styled by its kind.
func printReply(w io.Writer, r assistant.Reply) {
	switch r.Kind {
	case assistant.KindAnswer:
		label := "Assistant"
		if r.Source == models.SourceFallback {
			label = "Assistant (fallback)"
		}
		fmt.Fprintln(w, assistantStyle.Render(label+":"))
		fmt.Fprint(w, renderMarkdown(r.Text))
	case assistant.KindError:
		fmt.Fprintln(w, errorStyle.Render(r.Text))
	case assistant.KindSystem:
		fmt.Fprintln(w, systemStyle.Render("System: "+r.Text))
	default:
		fmt.Fprintln(w, noticeStyle.Render(r.Text))
	}
}

func printWelcome(w io.Writer, apiURL string) {
	fmt.Fprintln(w, titleStyle.Render("Welcome to the AI Student Query Assistant!"))
	fmt.Fprintln(w, systemStyle.Render("Type your question and press Enter. /help lists commands."))
	fmt.Fprintln(w, systemStyle.Render("Backend: "+apiURL))
	fmt.Fprintln(w, strings.Repeat("─", 48))
}
