package main

import (
	"github.com/spf13/cobra"

	"github.com/verdictlab/verdict/logger"
	"github.com/verdictlab/verdict/models"
	_ "github.com/verdictlab/verdict/realtime" // registers the realtime adapter factory
	"github.com/verdictlab/verdict/version"
)

// options are the persistent flags shared by every subcommand.
type options struct {
	logDir     string
	modelsFile string
	credsFile  string
	verbose    bool
}

// registry loads the process-wide model registry. Without a descriptor
// file the registry starts empty; pipelines still add their doubles.
func (o *options) registry() (*models.Registry, error) {
	if o.modelsFile == "" {
		return models.NewRegistry(), nil
	}
	return models.LoadRegistry(o.modelsFile, o.credsFile)
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "verdict",
		Short:         "Evaluation harness for language-model pipelines",
		Version:       version.Info(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			logger.SetVerbose(opts.verbose)
			logger.Debug("starting", version.BuildAttrs()...)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.logDir, "logs", "logs", "run-log directory")
	cmd.PersistentFlags().StringVar(&opts.modelsFile, "models-file", "", "model descriptor JSON file")
	cmd.PersistentFlags().StringVar(&opts.credsFile, "credentials-file", "", "credentials JSON file")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(
		newRunCommand(opts),
		newRerunCommand(opts),
		newSummarizeCommand(opts),
		newFormatCommand(opts),
		newCompareCommand(opts),
		newHistoryCommand(opts),
		newModelsCommand(opts),
		newPipelinesCommand(),
		newAddIDsCommand(),
	)
	return cmd
}

// cmdPrinter adapts a cobra command into a report sink.
type cmdPrinter struct {
	cmd *cobra.Command
}

func (p cmdPrinter) Print(line string) {
	p.cmd.Println(line)
}
