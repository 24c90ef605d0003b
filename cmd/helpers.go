package cmd

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
)

// printSimpleTable renders a simple table with headers using tablewriter.
// The add callback is called with row values as variadic strings.
func printSimpleTable(w io.Writer, headers []string, fill func(add func(...string))) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(headers)
	tw.SetBorder(true)
	tw.SetRowLine(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAutoWrapText(false)

	fill(func(cols ...string) {
		tw.Append(cols)
	})
	tw.Render()
}

// printKVTable renders a two-column key/value table to w using aligned
// columns — used by `config get` for a human-readable summary that doesn't
// warrant a full tablewriter grid.
func printKVTable(w io.Writer, rows [][]string) {
	maxKey := 0
	for _, r := range rows {
		if len(r[0]) > maxKey {
			maxKey = len(r[0])
		}
	}
	for _, r := range rows {
		padding := ""
		for i := len(r[0]); i < maxKey; i++ {
			padding += " "
		}
		fmt.Fprintf(w, "  %s%s  %s\n", r[0], padding, r[1])
	}
}
