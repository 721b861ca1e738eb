package report

import (
	"bytes"
	"fmt"
	"text/tabwriter"
)

// Table is a minimal tab-aligned table builder, the idiomatic-Go analogue
// of output.py's Table/ColumnGroup classes: rather than hand-drawing box
// characters, it leans on text/tabwriter the way Go CLIs conventionally do
// (e.g. `go list`, `kubectl get`), while keeping the same head/row/section
// shape the original report used.
type Table struct {
	title string
	buf   bytes.Buffer
	w     *tabwriter.Writer
}

// NewTable starts a table with the given section title.
func NewTable(title string) *Table {
	t := &Table{title: title}
	t.w = tabwriter.NewWriter(&t.buf, 0, 2, 2, ' ', 0)
	return t
}

// Head writes the column header row followed by a divider line.
func (t *Table) Head(cols ...string) *Table {
	for i, c := range cols {
		if i > 0 {
			fmt.Fprint(t.w, "\t")
		}
		fmt.Fprint(t.w, c)
	}
	fmt.Fprint(t.w, "\n")
	for i, c := range cols {
		if i > 0 {
			fmt.Fprint(t.w, "\t")
		}
		fmt.Fprint(t.w, dashes(len(c)))
	}
	fmt.Fprint(t.w, "\n")
	return t
}

// Row writes one data row.
func (t *Table) Row(cells ...string) *Table {
	for i, c := range cells {
		if i > 0 {
			fmt.Fprint(t.w, "\t")
		}
		fmt.Fprint(t.w, c)
	}
	fmt.Fprint(t.w, "\n")
	return t
}

// String flushes the tabwriter and returns the rendered section, with its
// title as a leading line.
func (t *Table) String() string {
	t.w.Flush()
	return t.title + "\n" + t.buf.String()
}

func dashes(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = '-'
	}
	return string(b)
}
