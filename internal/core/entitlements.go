package core

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/dynforms/internal/form"
)

// ResolveEntitlements fetches the per-column editable flags of one row and
// writes them onto the form's fields. Unsaved rows, and rows the host
// returns no flags for, leave every field editable.
func ResolveEntitlements(ctx context.Context, exec Executor, sess *Session, f *form.Form, rowID form.ID) error {
	fields := f.Fields()
	for _, fld := range fields {
		fld.Column.CanEdit = true
	}
	if !rowID.IsPersisted() {
		return nil
	}

	q, err := f.GenerateEntitlementQuery(rowID)
	if err != nil {
		return fmt.Errorf("resolve entitlements: %w", err)
	}
	res, err := runStatement(ctx, exec, sess, q.Text, q.Params)
	if err != nil {
		return fmt.Errorf("resolve entitlements for row %s: %w", rowID, err)
	}
	if len(res.Rows) == 0 {
		return nil
	}

	bitmap := res.Rows[0]
	for _, fld := range fields {
		if fld.ChildForm != nil {
			continue
		}
		v, ok := bitmap[form.EntitlementPrefix+fld.Column.Name]
		if !ok {
			continue
		}
		fld.Column.CanEdit = form.ValueFromAny(form.TypeYesNo, false, v).BoolValue()
	}
	return nil
}

// Entitlements returns the current editable flag of every value column.
func Entitlements(f *form.Form) map[string]bool {
	out := make(map[string]bool)
	for _, fld := range f.Fields() {
		if fld.ChildForm == nil {
			out[fld.Column.Name] = fld.Column.CanEdit
		}
	}
	return out
}
