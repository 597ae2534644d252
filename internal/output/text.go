package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

// Textln writes a formatted line to the formatter's writer.
func (f *Formatter) Textln(format string, args ...any) {
	fmt.Fprintf(f.writer, format+"\n", args...)
}

// Printf writes formatted text to the formatter's writer.
func (f *Formatter) Printf(format string, args ...any) {
	fmt.Fprintf(f.writer, format, args...)
}

// Line writes a blank line.
func (f *Formatter) Line() {
	fmt.Fprintln(f.writer)
}

// Output writes either jsonData or the text produced by textFn, depending
// on the formatter's mode.
func (f *Formatter) Output(jsonData any, textFn func(w io.Writer) error) error {
	if f.IsJSON() {
		return f.JSON(jsonData)
	}
	return textFn(f.writer)
}

// Table renders aligned columnar text. Widths account for wide runes so
// state icons do not skew alignment.
type Table struct {
	writer  io.Writer
	headers []string
	rows    [][]string
	widths  []int
}

// NewTable creates a table with the given headers.
func NewTable(w io.Writer, headers ...string) *Table {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	return &Table{writer: w, headers: headers, widths: widths}
}

// AddRow appends a row, widening columns as needed.
func (t *Table) AddRow(cols ...string) {
	for i, c := range cols {
		if i < len(t.widths) {
			if w := runewidth.StringWidth(c); w > t.widths[i] {
				t.widths[i] = w
			}
		}
	}
	t.rows = append(t.rows, cols)
}

// Render writes the table.
func (t *Table) Render() {
	writeRow := func(cols []string) {
		parts := make([]string, len(t.widths))
		for i := range t.widths {
			cell := ""
			if i < len(cols) {
				cell = cols[i]
			}
			parts[i] = runewidth.FillRight(cell, t.widths[i])
		}
		fmt.Fprintln(t.writer, "  "+strings.TrimRight(strings.Join(parts, "  "), " "))
	}

	writeRow(t.headers)
	sep := make([]string, len(t.widths))
	for i, w := range t.widths {
		sep[i] = strings.Repeat("-", w)
	}
	writeRow(sep)
	for _, row := range t.rows {
		writeRow(row)
	}
}
