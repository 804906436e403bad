package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// column describes one table column. Wrap > 0 soft-wraps long cells such as
// flashcard text or upload errors at that width.
type column struct {
	Title string
	Right bool
	Wrap  int
}

// renderTable draws rows under cols. A non-empty footer adds a caption with
// the row count. Short rows are padded.
func renderTable(cols []column, rows [][]string, footer string) string {
	if len(cols) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)

	header := make(table.Row, len(cols))
	configs := make([]table.ColumnConfig, len(cols))
	for i, c := range cols {
		header[i] = c.Title
		cfg := table.ColumnConfig{Number: i + 1, AlignHeader: text.AlignLeft, Align: text.AlignLeft}
		if c.Right {
			cfg.Align = text.AlignRight
		}
		if c.Wrap > 0 {
			cfg.WidthMax = c.Wrap
			cfg.WidthMaxEnforcer = text.WrapSoft
		}
		configs[i] = cfg
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range rows {
		r := make(table.Row, len(cols))
		for i := range cols {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}
	if footer != "" {
		tw.SetCaption(fmt.Sprintf("%s: %d", footer, len(rows)))
	}
	return tw.Render()
}
