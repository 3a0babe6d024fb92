package main

import (
	"fmt"
	"io"

	"github.com/arloliu/op2/archive"
	"github.com/arloliu/op2/store"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	prettytable "github.com/jedib0t/go-pretty/v6/table"
)

func newTable(w io.Writer) prettytable.Writer {
	tw := prettytable.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(prettytable.StyleLight)

	return tw
}

func size(n int64) string {
	if n < 0 {
		n = 0
	}

	return humanize.IBytes(uint64(n)) //nolint:gosec // clamped above
}

func renderSummary(w io.Writer, path string, sum archive.Summary, stats store.Stats) {
	tw := newTable(w)
	tw.SetTitle(path)
	tw.AppendRows([]prettytable.Row{
		{"Byte order", sum.ByteOrder},
		{"Precision", sum.Precision.String()},
		{"Version", sum.Version},
		{"Label", sum.Label},
		{"Terminated", sum.Terminated},
		{"Size", size(sum.Bytes)},
		{"Result tables", stats.Tables},
		{"Geometry tables", stats.GeometryTables},
		{"Decoded tables", len(sum.Tables)},
		{"Skipped tables", sum.Skipped()},
	})
	if stats.Spilled > 0 {
		tw.AppendRows([]prettytable.Row{
			{"Spilled tables", stats.Spilled},
			{"Spilled size", fmt.Sprintf("%s (%s on disk)", size(stats.SpilledBytes), size(stats.SideFileBytes))},
		})
	}
	tw.Render()
}

func renderTables(w io.Writer, tables []archive.TableInfo) {
	tw := newTable(w)
	tw.AppendHeader(prettytable.Row{"#", "Name", "Label", "Key", "Entities", "Steps", "Offset", "Size"})

	var total int64
	for i, t := range tables {
		label := t.Label
		if label == "" {
			label = "-"
		}
		tw.AppendRow(prettytable.Row{i + 1, t.Name, label, t.Key.String(), t.Entities, t.Steps, t.Offset, size(t.Bytes)})
		total += t.Bytes
	}
	tw.AppendFooter(prettytable.Row{"", fmt.Sprintf("Total: %d tables", len(tables)), "", "", "", "", "", size(total)})
	tw.Render()
}

func renderDiagnostics(w io.Writer, diags []archive.Diagnostic) {
	if len(diags) == 0 {
		return
	}

	warn := color.New(color.FgYellow)
	warn.Fprintf(w, "%d skipped tables:\n", len(diags))
	for _, d := range diags {
		c := warn
		if d.Reason == archive.ReasonMalformed || d.Reason == archive.ReasonHeader {
			c = color.New(color.FgRed)
		}
		c.Fprintf(w, "  %-8s offset %-10d %-12s %v\n", d.Name, d.Offset, d.Reason, d.Err)
	}
}

func renderGeometry(w io.Writer, nodes, elements, coords int) {
	tw := newTable(w)
	tw.AppendHeader(prettytable.Row{"Nodes", "Elements", "Coordinate systems"})
	tw.AppendRow(prettytable.Row{nodes, elements, coords})
	tw.Render()
}
