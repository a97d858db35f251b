package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	keyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(8)
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("51"))
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 2)
)

func Success(format string, args ...any) {
	fmt.Println(successStyle.Render("+") + " " + fmt.Sprintf(format, args...))
}

func Info(format string, args ...any) {
	fmt.Println(infoStyle.Render("*") + " " + fmt.Sprintf(format, args...))
}

func Warn(format string, args ...any) {
	fmt.Fprintln(os.Stderr, warnStyle.Render("!")+" "+fmt.Sprintf(format, args...))
}

// KV renders an aligned "key: value" row for use inside Box.
func KV(key, value string) string {
	return keyStyle.Render(key) + " " + value
}

// Box prints a bordered card with a bold title line on top.
func Box(title string, lines ...string) {
	body := titleStyle.Render(title)
	if len(lines) > 0 {
		body += "\n" + strings.Join(lines, "\n")
	}
	fmt.Println(boxStyle.Render(body))
}
