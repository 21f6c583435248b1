package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/verdictlab/verdict/filter"
)

// loadCases reads a case suite: a YAML or JSON array of case mappings.
func loadCases(path string) ([]map[string]any, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("read cases %s: %w", filepath.Base(path), err)
	}
	var cases []map[string]any
	if err := yaml.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("parse cases %s: %w", filepath.Base(path), err)
	}
	return cases, nil
}

// selectCases keeps the cases whose keywords satisfy the filter.
func selectCases(cases []map[string]any, expr *filter.Expr) []map[string]any {
	if expr == nil {
		return cases
	}
	var out []map[string]any
	for _, c := range cases {
		if expr.Matches(caseKeywords(c)) {
			out = append(out, c)
		}
	}
	return out
}

func caseKeywords(c map[string]any) []string {
	raw, ok := c["keywords"]
	if !ok {
		return nil
	}
	switch t := raw.(type) {
	case []string:
		return t
	case []any:
		var out []string
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// parseOverrides turns trailing k=v arguments into a dotted-path patch.
func parseOverrides(args []string) (map[string]string, error) {
	if len(args) == 0 {
		return nil, nil
	}
	overrides := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("override %q is not of the form key=value", arg)
		}
		overrides[key] = value
	}
	return overrides, nil
}

func newAddIDsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add-ids <cases>",
		Short: "Assign a uuid to every case that lacks one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cases, err := loadCases(args[0])
			if err != nil {
				return fmt.Errorf("Adding ids: %w", err)
			}
			added := 0
			for _, c := range cases {
				if id, _ := c["uuid"].(string); id == "" {
					c["uuid"] = uuid.NewString()
					added++
				}
			}
			data, err := json.MarshalIndent(cases, "", "  ")
			if err != nil {
				return fmt.Errorf("Adding ids: %w", err)
			}
			if err := os.WriteFile(args[0], append(data, '\n'), 0o600); err != nil {
				return fmt.Errorf("Adding ids: %w", err)
			}
			cmd.Printf("added %d ids to %s\n", added, args[0])
			return nil
		},
	}
	return cmd
}
