package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "flowprep",
		Short:         "Prepare network flow records for model training",
		Long:          `flowprep cleans CICIDS style flow tables: it removes stray header rows, one-hot encodes the protocol, drops identifier columns, repairs missing and infinite values, deduplicates, encodes labels and standardizes features.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.finish()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "Configuration file (env FLOWPREP_CONFIG)")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&a.logFormat, "log-format", "", "Log format: console or json")
	flags.StringVar(&a.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")
	flags.StringVar(&a.storePath, "store", "", "Model store database (env FLOWPREP_STORE)")

	root.AddCommand(
		newProcessCmd(a),
		newFitCmd(a),
		newTransformCmd(a),
		newCompileCmd(a),
		newCaptureCmd(a),
		newModelsCmd(a),
	)
	return root
}

func addInputFlags(cmd *cobra.Command, a *app) {
	cmd.Flags().StringVar(&a.query, "query", "", "Read the input from a database; IN is then the DSN")
	cmd.Flags().StringVar(&a.driver, "driver", "postgres", "Database driver used with --query")
	cmd.Flags().StringArrayVar(&a.queryArgs, "arg", nil, "Positional argument for --query placeholders, repeatable")
}
