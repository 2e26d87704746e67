package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"
)

var (
	colorBorder = lipgloss.Color("#3F4451")
	colorHeader = lipgloss.Color("#C678DD")
	colorGood   = lipgloss.Color("#98C379")
	colorBad    = lipgloss.Color("#E06C75")

	headerStyle = lipgloss.NewStyle().Foreground(colorHeader).Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	titleStyle  = lipgloss.NewStyle().Bold(true)
)

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// renderTable writes a bordered table on terminals and tab-aligned columns elsewhere.
// status, when >= 0, is the column whose "ok"/"fail" style values are coloured.
func renderTable(w io.Writer, title string, headers []string, rows [][]string, status int) {
	if !isTerminal(w) {
		if title != "" {
			fmt.Fprintln(w, title)
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, strings.Join(headers, "\t"))
		for _, row := range rows {
			fmt.Fprintln(tw, strings.Join(row, "\t"))
		}
		_ = tw.Flush()
		return
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorBorder)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == status && row >= 0 && row < len(rows) {
				switch rows[row][col] {
				case "ok", "passed", "succeeded":
					return cellStyle.Foreground(colorGood)
				case "fail", "failed", "missing":
					return cellStyle.Foreground(colorBad)
				}
			}
			return cellStyle
		})
	if title != "" {
		fmt.Fprintln(w, titleStyle.Render(title))
	}
	fmt.Fprintln(w, t.Render())
}

func formatPercent(p float64) string {
	return fmt.Sprintf("%.1f%%", p)
}
