package form

import "fmt"

// CloneResult is an unsaved duplicate of a form.
type CloneResult struct {
	Form *Form
	// Queued are the child inserts recreating the original's child rows.
	Queued []*ChildSave
	// Warnings are user-facing notices about what could not be copied.
	Warnings []string
}

// Clone produces an unsaved duplicate of a loaded form. The duplicate has no
// row id and every editable field is marked changed so that saving inserts
// it. Child rows are recreated under fresh pending ids and queued as
// inserts; child forms without a relation to their parent lose their rows.
// The original form is not modified.
func (f *Form) Clone() *CloneResult {
	cp := f.Copy()
	cp.RowID = ID{}
	cp.errorFields = nil
	cp.queue.Clear()

	res := &CloneResult{Form: cp}
	markCloneChanged(cp, false)

	warned := false
	for _, cf := range cp.ChildFields() {
		child := cf.ChildForm
		if !child.HasParentRelation() {
			child.clearRows()
			continue
		}
		rows := child.DisplayRows()
		if child.Flatten && len(rows) > 1 {
			rows = rows[len(rows)-1:]
		}
		if !child.Flatten && len(rows) > 0 && !warned {
			res.Warnings = append(res.Warnings, fmt.Sprintf(
				"Child records of %q were copied, but links between them were not. Review the cloned records before saving.",
				child.Name))
			warned = true
		}

		originals := make([]Row, len(rows))
		for i, r := range rows {
			originals[i] = r.Clone()
		}
		raws := make(map[ID]Row, len(child.rawRows))
		for _, r := range child.rawRows {
			raws[r.ID()] = r.Clone()
		}

		var fresh []ID
		for _, display := range originals {
			child.loadCloneRow(display, raws[display.ID()])
			markCloneChanged(child, true)
			child.RowID = ID{}
			if e := cp.queueChildRow(child, ID{}, true); e != nil {
				res.Queued = append(res.Queued, e)
				fresh = append(fresh, e.RowID)
			} else {
				fresh = append(fresh, child.RowID)
			}
		}
		child.keepRows(fresh)
		for _, nested := range child.ChildFields() {
			nested.ChildForm.clearRows()
		}
	}
	return res
}

// HasParentRelation reports whether child rows can be related to the
// parent row, directly or through a parent-match subquery.
func (f *Form) HasParentRelation() bool {
	return f.LinkColumn != "" || (f.ChildFormParentID != "" && f.ChildFormLinkID != "")
}

func markCloneChanged(f *Form, includeChildOnly bool) {
	for _, s := range f.Sections {
		if s.ChildOnly && !includeChildOnly {
			continue
		}
		for _, fld := range s.Fields {
			c := fld.Column
			if fld.ChildForm != nil || c.ViewOnly {
				continue
			}
			if c.DataType == TypeBinary && fld.Value.IsEmpty() {
				continue
			}
			c.MarkChanged()
		}
	}
}

// loadCloneRow copies one existing child row into the form's fields.
// Link/Choice ids are derived from the display labels.
func (f *Form) loadCloneRow(display, raw Row) {
	for _, fld := range f.Fields() {
		if fld.ChildForm != nil {
			continue
		}
		c := fld.Column
		if c.DataType.HasOptions() && fld.Dropdown != nil {
			if label := display.String(c.Name); label != "" {
				fld.SetFromLabels(label)
				continue
			}
		}
		src := raw
		if src == nil {
			src = display
		}
		v, ok := src[c.Name]
		if !ok {
			fld.Value = Null()
			continue
		}
		fld.Value = ValueFromAny(c.DataType, c.Multiple, v)
		if c.Binary != nil {
			c.Binary.FileName = src.String(c.FileNameKey())
		}
	}
}

func (f *Form) clearRows() {
	f.rawRows = nil
	f.rowSection().MultiFields = nil
}

// keepRows drops every row whose id is not in ids.
func (f *Form) keepRows(ids []ID) {
	keep := make(map[ID]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}
	filter := func(rows []Row) []Row {
		out := rows[:0]
		for _, r := range rows {
			if keep[r.ID()] {
				out = append(out, r)
			}
		}
		return out
	}
	f.rawRows = filter(f.rawRows)
	s := f.rowSection()
	s.MultiFields = filter(s.MultiFields)
}
