package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Column defines a table column. A zero Width sizes the column to fit.
type Column struct {
	Title string
	Width int
	Right bool // right-align, for amounts
}

// Row is one line of cells.
type Row []string

// Table renders rows under a header and a divider.
type Table struct {
	Columns []Column
	Rows    []Row
}

// NewTable creates an empty table.
func NewTable(cols ...Column) *Table {
	return &Table{Columns: cols}
}

// AddRow appends a row. Missing cells render empty.
func (t *Table) AddRow(cells ...string) {
	t.Rows = append(t.Rows, Row(cells))
}

func (t *Table) widths() []int {
	w := make([]int, len(t.Columns))
	for i, c := range t.Columns {
		if c.Width > 0 {
			w[i] = c.Width
			continue
		}
		w[i] = lipgloss.Width(c.Title)
		for _, r := range t.Rows {
			if i < len(r) && lipgloss.Width(r[i]) > w[i] {
				w[i] = lipgloss.Width(r[i])
			}
		}
	}
	return w
}

// Render returns the table as a string.
func (t *Table) Render() string {
	widths := t.widths()
	cell := func(s string, i int) string {
		if t.Columns[i].Right {
			if n := widths[i] - lipgloss.Width(s); n > 0 {
				return strings.Repeat(" ", n) + s
			}
			return s
		}
		return padR(s, widths[i])
	}

	var sb strings.Builder
	parts := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		parts[i] = StyleHeader.Render(cell(c.Title, i))
	}
	sb.WriteString(strings.Join(parts, "  ") + "\n")
	for i := range t.Columns {
		parts[i] = StyleMeta.Render(strings.Repeat("─", widths[i]))
	}
	sb.WriteString(strings.Join(parts, "  ") + "\n")

	for _, r := range t.Rows {
		for i := range t.Columns {
			v := ""
			if i < len(r) {
				v = r[i]
			}
			parts[i] = cell(v, i)
		}
		sb.WriteString(strings.Join(parts, "  ") + "\n")
	}
	return sb.String()
}

// KeyValueBlock renders key/value pairs in a rounded box.
func KeyValueBlock(title string, pairs [][2]string) string {
	var sb strings.Builder
	if title != "" {
		sb.WriteString(StyleTitle.Render(title) + "\n")
	}
	for _, p := range pairs {
		sb.WriteString(fmt.Sprintf("  %s %s\n", StyleMeta.Render(padR(p[0]+":", 16)), StyleValue.Render(p[1])))
	}
	return StyleBorder.Render(strings.TrimRight(sb.String(), "\n"))
}
