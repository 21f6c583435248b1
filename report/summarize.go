package report

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/verdictlab/verdict/pipeline"
	"github.com/verdictlab/verdict/runlog"
)

var (
	completeText = color.New(color.FgGreen).SprintFunc()
	errorText    = color.New(color.FgRed).SprintFunc()
	failText     = color.New(color.FgYellow).SprintFunc()
)

func statusText(r runlog.Result) string {
	if r.Succeeded {
		return completeText("COMPLETE")
	}
	return errorText("ERROR")
}

// Summarize renders one run as a table: short id, completion status, and
// the pipeline's own summary columns, followed by totals.
func Summarize(log *runlog.RunLog, spec pipeline.Spec, p Printer) {
	ids := make([]string, len(log.Results))
	for i, r := range log.Results {
		ids[i] = r.CaseUUID()
	}
	short := ShortIDs(ids)

	t := table.NewWriter()
	header := table.Row{"id", "status"}
	for _, col := range spec.Summarizer.Columns {
		header = append(header, col.Header)
	}
	t.AppendHeader(header)

	complete, passed := 0, 0
	for _, r := range log.Results {
		row := table.Row{short[r.CaseUUID()], statusText(r)}
		for _, col := range spec.Summarizer.Columns {
			row = append(row, col.Cell(r))
		}
		t.AppendRow(row)

		if r.Succeeded {
			complete++
		}
		if spec.PassedBy(r) {
			passed++
		}
	}

	for _, line := range strings.Split(t.Render(), "\n") {
		p.Print(line)
	}

	total := len(log.Results)
	p.Print("")
	p.Print(fmt.Sprintf("Total:    %d", total))
	p.Print(fmt.Sprintf("Complete: %d (%s)", complete, percent(complete, total)))
	p.Print(fmt.Sprintf("Error:    %d (%s)", total-complete, percent(total-complete, total)))
	p.Print(fmt.Sprintf("Passed:   %d (%s)", passed, percent(passed, total)))
	p.Print(fmt.Sprintf("Failed:   %d (%s)", total-passed, percent(total-passed, total)))
}

func percent(n, total int) string {
	if total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", 100*float64(n)/float64(total))
}
