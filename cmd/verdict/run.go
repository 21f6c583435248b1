package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/verdictlab/verdict/config"
	"github.com/verdictlab/verdict/director"
	"github.com/verdictlab/verdict/filter"
	"github.com/verdictlab/verdict/pipeline"
	"github.com/verdictlab/verdict/report"
	"github.com/verdictlab/verdict/runlog"
)

func newRunCommand(opts *options) *cobra.Command {
	var concurrency int
	var filterExpr string
	var replacementPath string

	cmd := &cobra.Command{
		Use:   "run <pipeline> <cases> [key=value ...]",
		Short: "Run a case suite through a pipeline",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := pipeline.Get(args[0])
			if err != nil {
				return fmt.Errorf("Run '%s': %w", args[0], err)
			}

			cases, err := loadCases(args[1])
			if err != nil {
				return fmt.Errorf("Run '%s': %w", args[0], err)
			}
			if filterExpr != "" {
				expr, err := filter.Parse(filterExpr)
				if err != nil {
					return fmt.Errorf("Run '%s': %w", args[0], err)
				}
				cases = selectCases(cases, expr)
			}

			overrides, err := parseOverrides(args[2:])
			if err != nil {
				return fmt.Errorf("Run '%s': %w", args[0], err)
			}

			var replacement config.Config
			if replacementPath != "" {
				replacement, err = config.LoadReplacement(replacementPath)
				if err != nil {
					return fmt.Errorf("Run '%s': %w", args[0], err)
				}
			}

			return executeRun(cmd, opts, spec, replacement, overrides, cases, concurrency)
		},
	}
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 4, "max concurrent cases")
	cmd.Flags().StringVarP(&filterExpr, "filter", "k", "", "keyword filter expression")
	cmd.Flags().StringVar(&replacementPath, "config", "", "replacement config file")
	return cmd
}

func newRerunCommand(opts *options) *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "rerun <prefix> [key=value ...]",
		Short: "Run a previous run's cases and config again",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			old, err := readRunLog(opts, args[0])
			if err != nil {
				return fmt.Errorf("Rerun '%s': %w", args[0], err)
			}

			name := old.Metadata.Pipeline.Name
			spec, err := pipeline.Get(name)
			if err != nil {
				return fmt.Errorf("Rerun '%s': %w", args[0], err)
			}

			overrides, err := parseOverrides(args[1:])
			if err != nil {
				return fmt.Errorf("Rerun '%s': %w", args[0], err)
			}

			cases := make([]map[string]any, len(old.Results))
			for i, r := range old.Results {
				cases[i] = r.Case
			}
			replacement := config.Config(old.Metadata.Pipeline.Config)

			return executeRun(cmd, opts, spec, replacement, overrides, cases, concurrency)
		},
	}
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 4, "max concurrent cases")
	return cmd
}

// executeRun drives one run end to end: director assembly, case
// processing with progress, run-log persistence, and a summary table.
func executeRun(cmd *cobra.Command, opts *options, spec pipeline.Spec, replacement config.Config, overrides map[string]string, cases []map[string]any, concurrency int) error {
	registry, err := opts.registry()
	if err != nil {
		return fmt.Errorf("Run '%s': %w", spec.Name, err)
	}

	progress := director.WithProgress(func(done, total int, r runlog.Result) {
		status := "ok"
		if !r.Succeeded {
			status = "error"
		}
		cmd.Printf("[%d/%d] %s %s\n", done, total, r.CaseUUID(), status)
	})
	d, err := director.New(spec, replacement, overrides, registry, concurrency, progress)
	if err != nil {
		return fmt.Errorf("Run '%s': %w", spec.Name, err)
	}

	log, err := d.ProcessAllCases(cmd.Context(), cases)
	if err != nil {
		return fmt.Errorf("Run '%s': %w", spec.Name, err)
	}

	path, err := runlog.Write(opts.logDir, log)
	if err != nil {
		return fmt.Errorf("Run '%s': %w", spec.Name, err)
	}
	cmd.Println("run log: " + path)
	cmd.Println("")
	report.Summarize(log, spec, cmdPrinter{cmd: cmd})
	return nil
}

// readRunLog resolves a run-log prefix ("latest" included) and reads it.
func readRunLog(opts *options, prefix string) (*runlog.RunLog, error) {
	path, err := runlog.Resolve(opts.logDir, prefix)
	if err != nil {
		return nil, err
	}
	return runlog.Read(path)
}
