package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/verdictlab/verdict/pipeline"
	"github.com/verdictlab/verdict/report"
	"github.com/verdictlab/verdict/runlog"
)

// specFor finds the registered pipeline spec for a run log. Generic
// reporting still works when the pipeline is no longer registered.
func specFor(name string) pipeline.Spec {
	spec, err := pipeline.Get(name)
	if err != nil {
		return pipeline.Spec{Name: name}
	}
	return spec
}

func newSummarizeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "summarize <prefix>",
		Short: "Tabulate one run's outcomes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := readRunLog(opts, args[0])
			if err != nil {
				return fmt.Errorf("Summarize '%s': %w", args[0], err)
			}
			report.Summarize(log, specFor(log.Metadata.Pipeline.Name), cmdPrinter{cmd: cmd})
			return nil
		},
	}
}

func newFormatCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "format <prefix> [case_prefix]",
		Short: "Print per-case transcripts of one run",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := readRunLog(opts, args[0])
			if err != nil {
				return fmt.Errorf("Format '%s': %w", args[0], err)
			}
			casePrefix := ""
			if len(args) == 2 {
				casePrefix = args[1]
			}
			report.Format(log, specFor(log.Metadata.Pipeline.Name), casePrefix, cmdPrinter{cmd: cmd})
			return nil
		},
	}
}

func newCompareCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "compare <prefixA> <prefixB>",
		Short: "Compare two runs case by case",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := readRunLog(opts, args[0])
			if err != nil {
				return fmt.Errorf("Compare '%s': %w", args[0], err)
			}
			b, err := readRunLog(opts, args[1])
			if err != nil {
				return fmt.Errorf("Compare '%s': %w", args[1], err)
			}
			if err := report.Compare(a, b, specFor(a.Metadata.Pipeline.Name), cmdPrinter{cmd: cmd}); err != nil {
				return fmt.Errorf("Compare '%s' '%s': %w", args[0], args[1], err)
			}
			return nil
		},
	}
}

func newHistoryCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List run logs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := runlog.List(opts.logDir)
			if err != nil {
				return fmt.Errorf("History: %w", err)
			}
			for _, path := range paths {
				log, err := runlog.Read(path)
				if err != nil {
					cmd.Printf("%s (unreadable: %v)\n", filepath.Base(path), err)
					continue
				}
				cmd.Printf("%s  %s  %s  %d cases\n",
					strings.TrimSuffix(filepath.Base(path), ".json"),
					log.Metadata.Start, log.Metadata.Pipeline.Name, len(log.Results))
			}
			return nil
		},
	}
}

func newModelsCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List configured models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := opts.registry()
			if err != nil {
				return fmt.Errorf("Models: %w", err)
			}
			for _, name := range registry.List() {
				cmd.Println(name)
			}
			return nil
		},
	}
}

func newPipelinesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pipelines",
		Short: "List registered pipelines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range pipeline.Names() {
				cmd.Println(name)
			}
			return nil
		},
	}
}
