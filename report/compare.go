package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"

	"github.com/verdictlab/verdict/pipeline"
	"github.com/verdictlab/verdict/runlog"
)

// Case status ranks used for comparison ordering.
const (
	statusPass = 0
	statusFail = 1
	statusErr  = 2
)

func resultStatus(r runlog.Result, spec pipeline.Spec) int {
	if !r.Succeeded {
		return statusErr
	}
	if spec.PassedBy(r) {
		return statusPass
	}
	return statusFail
}

func statusLabel(status int) string {
	switch status {
	case statusPass:
		return completeText("pass")
	case statusFail:
		return failText("fail")
	default:
		return errorText("error")
	}
}

// Compare reports how run B moved relative to run A. Identical runs
// degenerate to a summary; runs of different pipelines are refused.
// Shared cases are tabulated sorted by the composite key 4*statusB +
// statusA, so the largest regressions sink to the bottom.
func Compare(a, b *runlog.RunLog, spec pipeline.Spec, p Printer) error {
	if a.UUID == b.UUID {
		Summarize(a, spec, p)
		return nil
	}
	if a.Metadata.Pipeline.Name != b.Metadata.Pipeline.Name {
		return fmt.Errorf("cannot compare runs of different pipelines: %q vs %q",
			a.Metadata.Pipeline.Name, b.Metadata.Pipeline.Name)
	}

	byUUIDA := resultsByUUID(a)
	byUUIDB := resultsByUUID(b)
	idsA := caseIDs(a)
	idsB := caseIDs(b)

	justA, justB := lo.Difference(idsA, idsB)
	both := lo.Intersect(idsA, idsB)

	short := ShortIDs(lo.Union(idsA, idsB))

	if len(justA) > 0 {
		p.Print(fmt.Sprintf("Only in %s: %s", truncate(a.UUID, 8), joinShort(justA, short)))
	}
	if len(justB) > 0 {
		p.Print(fmt.Sprintf("Only in %s: %s", truncate(b.UUID, 8), joinShort(justB, short)))
	}

	type row struct {
		id      string
		statusA int
		statusB int
	}
	rows := make([]row, 0, len(both))
	for _, id := range both {
		rows = append(rows, row{
			id:      id,
			statusA: resultStatus(byUUIDA[id], spec),
			statusB: resultStatus(byUUIDB[id], spec),
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return 4*rows[i].statusB+rows[i].statusA < 4*rows[j].statusB+rows[j].statusA
	})

	t := table.NewWriter()
	t.AppendHeader(table.Row{"id", "A", "B"})
	improved, regressed := 0, 0
	for _, r := range rows {
		t.AppendRow(table.Row{short[r.id], statusLabel(r.statusA), statusLabel(r.statusB)})
		switch {
		case r.statusB < r.statusA:
			improved++
		case r.statusB > r.statusA:
			regressed++
		}
	}
	for _, line := range strings.Split(t.Render(), "\n") {
		p.Print(line)
	}

	p.Print("")
	p.Print(fmt.Sprintf("Shared:    %d", len(rows)))
	p.Print(fmt.Sprintf("Improved:  %d", improved))
	p.Print(fmt.Sprintf("Regressed: %d", regressed))
	p.Print(fmt.Sprintf("Unchanged: %d", len(rows)-improved-regressed))
	p.Print(fmt.Sprintf("Only in A: %d", len(justA)))
	p.Print(fmt.Sprintf("Only in B: %d", len(justB)))
	return nil
}

func resultsByUUID(log *runlog.RunLog) map[string]runlog.Result {
	out := make(map[string]runlog.Result, len(log.Results))
	for _, r := range log.Results {
		out[r.CaseUUID()] = r
	}
	return out
}

func caseIDs(log *runlog.RunLog) []string {
	ids := make([]string, len(log.Results))
	for i, r := range log.Results {
		ids[i] = r.CaseUUID()
	}
	return ids
}

func joinShort(ids []string, short map[string]string) string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = short[id]
	}
	return strings.Join(out, ", ")
}
