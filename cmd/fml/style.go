package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var styles = struct {
	name    lipgloss.Style
	dim     lipgloss.Style
	ok      lipgloss.Style
	warn    lipgloss.Style
	err     lipgloss.Style
	heading lipgloss.Style
}{
	name:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")),
	dim:     lipgloss.NewStyle().Faint(true),
	ok:      lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
	warn:    lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
	err:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1")),
	heading: lipgloss.NewStyle().Bold(true).Underline(true),
}

// row prints a name padded to width followed by the rest of the line.
func row(w io.Writer, width int, name, rest string) {
	fmt.Fprintf(w, "%s %s\n", styles.name.Width(width).Render(name), rest)
}

func enabledMark(enabled bool) string {
	if enabled {
		return styles.ok.Render("enabled")
	}
	return styles.warn.Render("disabled")
}
