package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/dynforms/internal/core"
	"github.com/JonMunkholm/dynforms/internal/executor"
	"github.com/JonMunkholm/dynforms/internal/form"
	"github.com/JonMunkholm/dynforms/internal/metadata"
)

func newSaveCmd(opts *rootOptions) *cobra.Command {
	var (
		inputPath  string
		dbPath     string
		initScript string
	)
	cmd := &cobra.Command{
		Use:   "save [form-id]",
		Short: "Save the input record into a SQLite database",
		Long: `Opens the record (or a new one), applies the input values and child rows,
and saves it through the same orchestrator the server uses. Every domain
the metadata references is attached as a SQLite database next to --db.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := opts.loader()
			if err != nil {
				return err
			}
			in, err := readInput(inputPath)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			db, err := executor.OpenSQLite(ctx, dbPath, l.Domains())
			if err != nil {
				return err
			}
			defer db.Close()

			if initScript != "" {
				script, err := os.ReadFile(initScript)
				if err != nil {
					return fmt.Errorf("read init script: %w", err)
				}
				if err := db.ExecScript(ctx, string(script)); err != nil {
					return fmt.Errorf("run init script: %w", err)
				}
			}

			res, err := saveRecord(ctx, db, l, args[0], in)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "YAML file with the record values")
	cmd.Flags().StringVar(&dbPath, "db", executor.MemoryPath, "SQLite database file")
	cmd.Flags().StringVar(&initScript, "init", "", "SQL script to run before saving")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

// saveRecord drives one save through a service session.
func saveRecord(ctx context.Context, exec core.Executor, meta *metadata.FileLoader, formID string, in *recordInput) (*core.SaveResult, error) {
	svc := core.NewService(exec, meta, core.Options{})
	defer svc.Shutdown(ctx)

	sess, err := svc.OpenSession(ctx, formID, in.RowID)
	if err != nil {
		return nil, err
	}

	type position struct{ section, field int }
	positions := make(map[string]position)
	_ = sess.With(func(f *form.Form) error {
		for si, s := range f.Sections {
			for fi, fld := range s.Fields {
				if fld.ChildForm == nil {
					positions[fld.Column.Name] = position{si, fi}
				}
			}
		}
		return nil
	})

	for _, col := range sortedKeys(in.Values) {
		p, ok := positions[col]
		if !ok {
			return nil, fmt.Errorf("form %q has no column %q", formID, col)
		}
		if err := svc.UpdateField(ctx, sess.ID, p.section, p.field, in.Values[col]); err != nil {
			return nil, err
		}
	}

	for _, childID := range sortedKeys(in.Children) {
		for i, row := range in.Children[childID] {
			if _, err := svc.CommitChildRow(ctx, sess.ID, childID, row.RowID, row.Values); err != nil {
				return nil, fmt.Errorf("%s row %d: %w", childID, i, err)
			}
		}
	}
	return svc.Save(ctx, sess.ID)
}
