package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/dynforms/internal/form"
)

type plannedStatement struct {
	Target string         `json:"target"`
	RowID  form.ID        `json:"rowId"`
	Insert bool           `json:"insert"`
	Text   string         `json:"text"`
	Params map[string]any `json:"params,omitempty"`
}

func newPlanCmd(opts *rootOptions) *cobra.Command {
	var (
		inputPath     string
		schemaVersion int
		asJSON        bool
	)
	cmd := &cobra.Command{
		Use:   "plan [form-id]",
		Short: "Print the statements a save of the input record would run",
		Long: `Builds the form, applies the input values and child rows, and prints the
parent statement followed by the queued child statements in the order a
save runs them. Nothing is executed; child rows of a new record reference
the parent id placeholder.`,
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
			def, err := l.LoadForm(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			stmts, err := planSave(cmd.Context(), def, in, schemaVersion)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(stmts)
			}
			printPlan(cmd.OutOrStdout(), stmts)
			return nil
		},
	}
	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "YAML file with the record values")
	cmd.Flags().IntVar(&schemaVersion, "schema-version", form.ReturningSchemaVersion, "Host schema version; older versions use the legacy insert form")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the plan as JSON")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

// planSave applies in to a fresh form built from def and collects the
// statements in save order.
func planSave(_ context.Context, def *form.Definition, in *recordInput, schemaVersion int) ([]plannedStatement, error) {
	f, err := def.Build()
	if err != nil {
		return nil, err
	}
	f.RowID = in.RowID
	if err := applyValues(f, in.Values); err != nil {
		return nil, err
	}
	if res := f.CheckFormValidation(); !res.Status {
		return nil, res.Errors
	}

	for _, childID := range sortedKeys(in.Children) {
		child, ok := f.FindChildForm(childID)
		if !ok {
			return nil, fmt.Errorf("form %q has no child form %q", f.ID, childID)
		}
		for i, row := range in.Children[childID] {
			child.ClearValues()
			if err := applyValues(child, row.Values); err != nil {
				return nil, fmt.Errorf("%s row %d: %w", childID, i, err)
			}
			if _, err := child.Parent().CommitChildRow(child, row.RowID, false); err != nil {
				return nil, fmt.Errorf("%s row %d: %w", childID, i, err)
			}
		}
	}

	var out []plannedStatement
	if q := f.GenerateSaveQuery(f.RowID, schemaVersion, false); q.HasStatement() {
		out = append(out, plannedStatement{Target: f.ID, RowID: f.RowID, Insert: q.Insert, Text: q.Text, Params: q.Params})
	}
	for _, e := range f.Queue().Entries() {
		if !e.Query.HasStatement() {
			continue
		}
		out = append(out, plannedStatement{
			Target: e.ChildFormID,
			RowID:  e.RowID,
			Insert: e.Query.Insert,
			Text:   e.Query.Text,
			Params: e.Query.Params,
		})
	}
	return out, nil
}

func printPlan(w io.Writer, stmts []plannedStatement) {
	if len(stmts) == 0 {
		fmt.Fprintln(w, "-- nothing to save")
		return
	}
	for _, s := range stmts {
		kind := "update"
		if s.Insert {
			kind = "insert"
		}
		fmt.Fprintf(w, "-- %s %s %s\n%s\n", s.Target, kind, s.RowID, s.Text)
		for _, k := range sortedKeys(s.Params) {
			fmt.Fprintf(w, "--   @%s = %#v\n", k, s.Params[k])
		}
	}
}
