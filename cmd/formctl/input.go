package main

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/dynforms/internal/form"
)

// recordInput is the YAML input of plan and save:
//
//	rowId: "12"          # omit for a new record
//	values:
//	  Name: Order A
//	children:
//	  lines:
//	    - values: {Qty: "3"}
type recordInput struct {
	RowID    form.ID               `yaml:"rowId"`
	Values   map[string]string     `yaml:"values"`
	Children map[string][]rowInput `yaml:"children"`
}

type rowInput struct {
	RowID  form.ID           `yaml:"rowId"`
	Values map[string]string `yaml:"values"`
}

func readInput(path string) (*recordInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var in recordInput
	if err := dec.Decode(&in); err != nil {
		return nil, fmt.Errorf("parse input %s: %w", path, err)
	}
	return &in, nil
}

// sortedKeys returns the keys of m in order so that statements come out
// the same on every run.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// applyValues parses raw input into the fields of f by column name.
func applyValues(f *form.Form, values map[string]string) error {
	for _, col := range sortedKeys(values) {
		fld, ok := f.Field(col)
		if !ok || fld.ChildForm != nil {
			return fmt.Errorf("form %q has no column %q", f.ID, col)
		}
		v, err := fld.ParseInput(values[col])
		if err != nil {
			return err
		}
		if err := f.SetValue(col, v); err != nil {
			return err
		}
	}
	return nil
}
