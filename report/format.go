package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmespath/go-jmespath"

	"github.com/verdictlab/verdict/pipeline"
	"github.com/verdictlab/verdict/runlog"
)

// Format prints a per-case transcript: the prepare-stage messages, the
// raw model output, the extracted and expected values, and approximate
// token counts. A non-empty casePrefix restricts output to matching case
// ids. Pipeline before/after hooks wrap each section when present.
func Format(log *runlog.RunLog, spec pipeline.Spec, casePrefix string, p Printer) {
	ids := make([]string, len(log.Results))
	for i, r := range log.Results {
		ids[i] = r.CaseUUID()
	}
	short := ShortIDs(ids)

	for _, r := range log.Results {
		if casePrefix != "" && !strings.HasPrefix(r.CaseUUID(), casePrefix) {
			continue
		}
		formatCase(r, spec, short[r.CaseUUID()], p)
	}
}

func formatCase(r runlog.Result, spec pipeline.Spec, shortID string, p Printer) {
	p.Print(fmt.Sprintf("=== Case %s (%s)", shortID, statusText(r)))

	if spec.Formatter.Before != nil {
		for _, line := range spec.Formatter.Before(r) {
			p.Print(line)
		}
	}

	messages := prepareMessages(r)
	inputTokens := 0
	for _, m := range messages {
		p.Print(fmt.Sprintf("%s: %s", m.role, m.content))
		inputTokens += approxTokens(m.content)
	}

	output, _ := r.Stages["infer"].(string)
	outputTokens := approxTokens(output)
	if output != "" {
		p.Print("output: " + output)
	}

	if extracted := extract(spec.Mappings.Observed, r.Stages); extracted != nil {
		p.Print("extracted: " + render(extracted))
	}
	if !spec.PassedBy(r) {
		if expected := extract(spec.Mappings.Expected, r.Case); expected != nil {
			p.Print("expected: " + render(expected))
		}
	}
	if r.Exception != nil {
		p.Print("error: " + r.Exception.Message)
	}

	p.Print(fmt.Sprintf("tokens: in=%d out=%d", inputTokens, outputTokens))

	if spec.Formatter.After != nil {
		for _, line := range spec.Formatter.After(r) {
			p.Print(line)
		}
	}
	p.Print("")
}

type message struct {
	role    string
	content string
}

// prepareMessages reads the prepare stage's chat messages. Both live
// structs and JSON round-tripped maps are accepted.
func prepareMessages(r runlog.Result) []message {
	raw, ok := r.Stages["prepare"]
	if !ok {
		return nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	var out []message
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		role, _ := m["role"].(string)
		content, _ := m["content"].(string)
		out = append(out, message{role: role, content: content})
	}
	return out
}

// extract evaluates a mapping expression against a document. Expressions
// follow JMESPath, so dotted paths reach into nested stage output.
func extract(expression string, doc any) any {
	if expression == "" {
		return nil
	}
	value, err := jmespath.Search(expression, doc)
	if err != nil {
		return nil
	}
	return value
}

func render(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// approxTokens estimates token counts by whitespace splitting. Real
// tokenizers are model-specific; the report only needs magnitudes.
func approxTokens(s string) int {
	return len(strings.Fields(s))
}
