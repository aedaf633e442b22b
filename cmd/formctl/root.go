package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/dynforms/internal/logging"
	"github.com/JonMunkholm/dynforms/internal/metadata"
)

type rootOptions struct {
	metadataPath string
	logLevel     string
	logFormat    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "formctl",
		Short:         "Plan and run form saves from YAML form metadata",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(logging.New(cmd.ErrOrStderr(), opts.logLevel, opts.logFormat))
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.metadataPath, "metadata", "m", "forms", "Form metadata file or directory")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "Log format (text, json)")

	cmd.AddCommand(newFormsCmd(opts), newPlanCmd(opts), newSaveCmd(opts))
	return cmd
}

func (o *rootOptions) loader() (*metadata.FileLoader, error) {
	l, err := metadata.NewFileLoader(o.metadataPath)
	if err != nil {
		return nil, fmt.Errorf("load metadata: %w", err)
	}
	return l, nil
}

func newFormsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "forms",
		Short: "List the forms defined in the metadata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := opts.loader()
			if err != nil {
				return err
			}
			for _, id := range l.FormIDs() {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}
