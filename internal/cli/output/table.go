package output

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
)

// TableRenderer is implemented by results that have a table form.
type TableRenderer interface {
	Headers() []string
	Rows() [][]string
}

// Emptier is implemented by table results that print a note instead of
// an empty table.
type Emptier interface {
	EmptyMessage() string
}

// PrintTable renders data as a borderless, left-aligned table.
func PrintTable(w io.Writer, data TableRenderer) error {
	rows := data.Rows()
	if e, ok := data.(Emptier); ok && len(rows) == 0 {
		_, err := fmt.Fprintln(w, e.EmptyMessage())
		return err
	}

	t := plainTable(w, "")
	t.SetHeader(data.Headers())
	t.SetAutoFormatHeaders(true)
	t.AppendBulk(rows)
	t.Render()
	return nil
}

// SimpleTable prints label/value pairs separated by a colon column.
func SimpleTable(w io.Writer, pairs [][2]string) error {
	t := plainTable(w, ":")
	t.SetAutoFormatHeaders(false)
	for _, p := range pairs {
		t.Append(p[:])
	}
	t.Render()
	return nil
}

func plainTable(w io.Writer, colSep string) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.SetAutoWrapText(false)
	t.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	t.SetCenterSeparator("")
	t.SetColumnSeparator(colSep)
	t.SetRowSeparator("")
	t.SetHeaderLine(false)
	t.SetBorder(false)
	t.SetTablePadding("  ")
	t.SetNoWhiteSpace(true)
	return t
}
