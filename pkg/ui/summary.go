package ui

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"igparser/pkg/models"
)

// NewTable returns a rounded table writer mirrored to stdout
func NewTable() table.Writer {
	return NewTableTo(os.Stdout)
}

// NewTableTo returns a rounded table writer mirrored to w
func NewTableTo(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

// RenderSummary prints the counters of a finished run as a table
func RenderSummary(w io.Writer, s models.RunSummary) {
	network := s.NetworkID
	if network == "" {
		network = "all"
	}

	t := NewTableTo(w)
	t.SetTitle("Parse run " + s.RunID)
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Network", network},
		{"Status", status(s)},
		{"Accounts", s.Total},
		{"Processed", s.Processed},
		{"Failed", s.Failed},
		{"Posts submitted", s.TotalPosts},
		{"Duration", s.Duration().Round(time.Second).String()},
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
	})
	t.Render()
}

// PrintSummary prints the run table to stdout unless quiet
func PrintSummary(s models.RunSummary) {
	if IsQuietMode() {
		return
	}
	fmt.Println()
	RenderSummary(os.Stdout, s)
}

func status(s models.RunSummary) string {
	switch {
	case s.Aborted:
		return "aborted"
	case s.Cancelled:
		return "cancelled"
	default:
		return "finished"
	}
}
