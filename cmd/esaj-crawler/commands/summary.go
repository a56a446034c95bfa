package commands

import (
	"os"
	"strings"
	"time"

	"esaj-crawler/internal/crawl"

	"github.com/jedib0t/go-pretty/v6/table"
)

func printSummary(s crawl.RunSummary, documents bool) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"", "Count"})

	t.AppendRow(table.Row{"Batches", s.Batches})
	t.AppendRow(table.Row{"Identifiers", s.Identifiers})
	t.AppendRow(table.Row{"Cases", s.Cases})
	t.AppendRow(table.Row{"Rejected cases", s.RejectedCases})
	t.AppendRow(table.Row{"Navigation failures", s.NavigationFailures})
	t.AppendRow(table.Row{"Fatal workers", s.FatalWorkers})
	t.AppendRow(table.Row{"Inserted rows", s.Inserted})
	if documents {
		t.AppendSeparator()
		t.AppendRow(table.Row{"Documents stored", s.Documents})
		t.AppendRow(table.Row{"Already stored", s.AlreadyStored})
		t.AppendRow(table.Row{"Rejected payloads", s.RejectedPayloads})
		t.AppendRow(table.Row{"Download failures", s.DocumentFailures})
		t.AppendRow(table.Row{"Unresolved links", s.Unresolved})
		t.AppendRow(table.Row{"Cases without documents", s.WithoutDocuments})
	}

	t.AppendFooter(table.Row{"Elapsed", s.Elapsed.Round(time.Millisecond).String()})
	t.SetCaption(caption(s))
	t.SetStyle(table.StyleRounded)
	t.Render()
}

func caption(s crawl.RunSummary) string {
	var lines []string
	if len(s.BatchFiles) > 0 {
		lines = append(lines, "batch files: "+strings.Join(s.BatchFiles, ", "))
	}
	if s.DocumentsOutput != "" {
		lines = append(lines, "documents: "+s.DocumentsOutput)
	}
	return strings.Join(lines, "\n")
}
