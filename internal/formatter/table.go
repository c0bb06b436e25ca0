package formatter

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// Table formats columnar output using tabwriter. Rows are buffered so that
// right-aligned columns (counts, durations) can be padded to their final
// column width before anything is written out.
type Table struct {
	w            io.Writer
	headers      []string
	rows         [][]string
	maxWidth     map[int]int // column index -> max width (0 = unlimited)
	rightAlign   map[int]bool
	emptyMessage string
}

// NewTable creates a table that writes to w with the given column headers.
func NewTable(w io.Writer, headers ...string) *Table {
	return &Table{
		w:          w,
		headers:    headers,
		maxWidth:   make(map[int]int),
		rightAlign: make(map[int]bool),
	}
}

// SetMaxWidth sets the maximum display width for a column (0-indexed).
// Values exceeding the limit are truncated with "...".
func (t *Table) SetMaxWidth(col, width int) *Table {
	t.maxWidth[col] = width
	return t
}

// RightAlign marks columns (0-indexed) to be right-aligned, left-padded to
// the widest value in that column, e.g. for count/duration fields.
func (t *Table) RightAlign(cols ...int) *Table {
	for _, c := range cols {
		t.rightAlign[c] = true
	}
	return t
}

// SetEmptyMessage sets the single line printed beneath the header when no
// rows were ever added, instead of an otherwise-bare header.
func (t *Table) SetEmptyMessage(msg string) *Table {
	t.emptyMessage = msg
	return t
}

// AddRow buffers a data row. Extra values beyond the header count are
// ignored; missing values are filled with empty strings.
func (t *Table) AddRow(values ...string) {
	cells := make([]string, len(t.headers))
	for i := range cells {
		if i < len(values) {
			cells[i] = t.truncate(i, values[i])
		}
	}
	t.rows = append(t.rows, cells)
}

// Render writes the buffered header, separator, and rows through a
// tabwriter, then flushes it.
func (t *Table) Render() error {
	if len(t.rows) == 0 && t.emptyMessage == "" {
		return nil
	}

	tw := tabwriter.NewWriter(t.w, 0, 0, 2, ' ', 0)
	writeCells(tw, t.headers)
	writeCells(tw, separatorCells(t.headers))

	if len(t.rows) == 0 {
		//nolint:errcheck // tabwriter output to stdout
		fmt.Fprintln(tw, t.emptyMessage)
		return tw.Flush()
	}

	colWidth := t.rightAlignWidths()
	for _, row := range t.rows {
		writeCells(tw, t.pad(row, colWidth))
	}
	return tw.Flush()
}

// rightAlignWidths computes, per right-aligned column, the widest buffered
// value so AddRow's streaming order doesn't matter for padding.
func (t *Table) rightAlignWidths() map[int]int {
	widths := make(map[int]int)
	for col := range t.rightAlign {
		max := 0
		for _, row := range t.rows {
			if col < len(row) && len(row[col]) > max {
				max = len(row[col])
			}
		}
		widths[col] = max
	}
	return widths
}

func (t *Table) pad(row []string, colWidth map[int]int) []string {
	out := make([]string, len(row))
	for i, cell := range row {
		if t.rightAlign[i] {
			out[i] = fmt.Sprintf("%*s", colWidth[i], cell)
			continue
		}
		out[i] = cell
	}
	return out
}

func (t *Table) truncate(col int, s string) string {
	max, ok := t.maxWidth[col]
	if !ok || max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func writeCells(w io.Writer, cells []string) {
	for i, c := range cells {
		if i > 0 {
			//nolint:errcheck // tabwriter output to stdout
			fmt.Fprint(w, "\t")
		}
		//nolint:errcheck // tabwriter output to stdout
		fmt.Fprint(w, c)
	}
	//nolint:errcheck // tabwriter output to stdout
	fmt.Fprintln(w)
}

func separatorCells(headers []string) []string {
	out := make([]string, len(headers))
	for i, h := range headers {
		out[i] = dashes(len(h))
	}
	return out
}

// dashes returns a string of n dashes.
func dashes(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = '-'
	}
	return string(b)
}
