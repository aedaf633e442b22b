package web

import (
	"github.com/JonMunkholm/dynforms/internal/core"
	"github.com/JonMunkholm/dynforms/internal/form"
)

// SessionView is the JSON shape of an editing session.
type SessionView struct {
	ID       string             `json:"id"`
	FormID   string             `json:"formId"`
	Saving   bool               `json:"saving"`
	Selected *core.LookupRecord `json:"selected,omitempty"`
	Warnings []string           `json:"warnings,omitempty"`
	Form     FormView           `json:"form"`
}

// FormView is the JSON shape of a form.
type FormView struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	RowID       form.ID       `json:"rowId"`
	Flatten     bool          `json:"flatten,omitempty"`
	Sections    []SectionView `json:"sections"`
	Rows        []form.Row    `json:"rows,omitempty"`
	Queued      int           `json:"queued,omitempty"`
	ErrorFields []string      `json:"errorFields,omitempty"`
}

// SectionView is the JSON shape of a form section.
type SectionView struct {
	Name      string      `json:"name"`
	ChildOnly bool        `json:"childOnly,omitempty"`
	Fields    []FieldView `json:"fields"`
}

// FieldView is the JSON shape of one field.
type FieldView struct {
	Label     string                `json:"label"`
	Column    string                `json:"column"`
	DataType  string                `json:"dataType"`
	Value     any                   `json:"value"`
	Display   string                `json:"display,omitempty"`
	FileName  string                `json:"fileName,omitempty"`
	Multiple  bool                  `json:"multiple,omitempty"`
	Mandatory bool                  `json:"mandatory,omitempty"`
	ViewOnly  bool                  `json:"viewOnly,omitempty"`
	CanEdit   bool                  `json:"canEdit"`
	Options   []form.DropdownOption `json:"options,omitempty"`
	Child     *FormView             `json:"child,omitempty"`
}

// newSessionView snapshots a session. The caller must hold the session
// lock while the form is read.
func newSessionView(sess *core.Session, f *form.Form, selected *core.LookupRecord, warnings []string) SessionView {
	return SessionView{
		ID:       sess.ID,
		FormID:   sess.FormID,
		Saving:   sess.Saving(),
		Selected: selected,
		Warnings: warnings,
		Form:     newFormView(f),
	}
}

func newFormView(f *form.Form) FormView {
	v := FormView{
		ID:          f.ID,
		Name:        f.Name,
		RowID:       f.RowID,
		Flatten:     f.Flatten,
		ErrorFields: f.ErrorFields(),
	}
	if f.IsChild {
		v.Rows = f.DisplayRows()
	} else {
		v.Queued = f.Queue().Len()
	}
	for _, s := range f.Sections {
		sv := SectionView{Name: s.Name, ChildOnly: s.ChildOnly}
		for _, fld := range s.Fields {
			sv.Fields = append(sv.Fields, newFieldView(fld))
		}
		v.Sections = append(v.Sections, sv)
	}
	return v
}

func newFieldView(fld *form.Field) FieldView {
	c := fld.Column
	fv := FieldView{
		Label:     fld.Label,
		Column:    c.Name,
		DataType:  c.DataType.String(),
		Value:     fld.Value.Any(),
		Multiple:  c.Multiple,
		Mandatory: c.Mandatory,
		ViewOnly:  c.ViewOnly,
		CanEdit:   c.CanEdit,
	}
	if label, ok := fld.ResolvedLabel(); ok {
		fv.Display = label
	}
	if c.Binary != nil {
		fv.FileName = c.Binary.FileName
	}
	if fld.Dropdown != nil {
		fv.Options = fld.Dropdown.Options
	}
	if fld.ChildForm != nil {
		child := newFormView(fld.ChildForm)
		fv.Child = &child
	}
	return fv
}
