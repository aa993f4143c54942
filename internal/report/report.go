// Package report renders command output for humans: section headers,
// tables, status lines and a closing summary.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Level is the outcome of a single line of output.
type Level int

const (
	LevelOK Level = iota
	LevelInfo
	LevelWarn
	LevelFail
)

func (l Level) Icon() string {
	switch l {
	case LevelOK:
		return "✅"
	case LevelWarn:
		return "⚠️ "
	case LevelFail:
		return "❌"
	default:
		return "ℹ️ "
	}
}

func (l Level) String() string {
	switch l {
	case LevelOK:
		return "ok"
	case LevelWarn:
		return "warn"
	case LevelFail:
		return "fail"
	default:
		return "info"
	}
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Faint(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// Printer writes report output. The zero value is not usable; use New.
type Printer struct {
	w      io.Writer
	counts map[Level]int
}

func New(w io.Writer) *Printer {
	return &Printer{w: w, counts: make(map[Level]int)}
}

// Section prints a titled divider.
func (p *Printer) Section(title string) {
	fmt.Fprintf(p.w, "\n%s\n%s\n", titleStyle.Render(title), mutedStyle.Render(strings.Repeat("─", 50)))
}

// Line prints a status line and counts it for the summary.
func (p *Printer) Line(level Level, format string, args ...any) {
	p.counts[level]++
	fmt.Fprintf(p.w, "  %s %s\n", level.Icon(), fmt.Sprintf(format, args...))
}

// Info prints an uncounted informational line.
func (p *Printer) Info(format string, args ...any) {
	fmt.Fprintf(p.w, "  %s\n", fmt.Sprintf(format, args...))
}

// Table renders rows under headers. Nothing is printed for an empty table.
func (p *Printer) Table(headers []string, rows [][]string) {
	if len(rows) == 0 {
		p.Info("%s", mutedStyle.Render("(no rows)"))
		return
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	fmt.Fprintln(p.w, t.Render())
}

// Count returns how many lines of the level were printed.
func (p *Printer) Count(level Level) int {
	return p.counts[level]
}

// Failed reports whether any fail line was printed.
func (p *Printer) Failed() bool {
	return p.counts[LevelFail] > 0
}

// Summary prints the totals line.
func (p *Printer) Summary() {
	fmt.Fprintf(p.w, "\n%s\n", mutedStyle.Render(strings.Repeat("─", 50)))
	fmt.Fprintf(p.w, "Summary: %d ok, %d warnings, %d failures\n",
		p.counts[LevelOK], p.counts[LevelWarn], p.counts[LevelFail])
}

// Mask hides all but the first and last four characters of a secret.
func Mask(secret string) string {
	if len(secret) <= 12 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:4] + strings.Repeat("*", len(secret)-8) + secret[len(secret)-4:]
}
