// Package form is the in-memory model of a metadata-described record.
//
// A Form is built once per load from column metadata supplied by the host
// platform. Users edit Field values in place; the form can validate
// itself, reconcile Link/Choice ids with their labels, generate the
// parameterized statements that persist its changes, and produce an
// unsaved duplicate of itself. The package performs no I/O: statements are
// executed by the caller (see package core).
//
// # Child forms
//
// A field may own a child Form describing a one-to-many related table.
// Child rows are edited one at a time through the child form's fields and
// committed into the parent's SaveQueue with CommitChildRow. Rows that have
// not been saved carry a Pending ID until the orchestrator reloads them.
package form

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// FormMetadata describes the table a form edits.
type FormMetadata struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Domain string `json:"domain" yaml:"domain"`
	Table  string `json:"table" yaml:"table"`
}

// SectionMetadata describes one section of a form.
type SectionMetadata struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	Position  int    `json:"position" yaml:"position"`
	ChildOnly bool   `json:"childOnly" yaml:"childOnly"`
}

// FieldMetadata describes one field and the column behind it.
type FieldMetadata struct {
	SectionID string `json:"sectionId" yaml:"section"`
	Position  int    `json:"position" yaml:"position"`
	Label     string `json:"label" yaml:"label"`
	Column    string `json:"column" yaml:"column"`
	DataType  string `json:"dataType" yaml:"type"`
	Multiple  bool   `json:"multiple" yaml:"multiple"`
	Mandatory bool   `json:"mandatory" yaml:"mandatory"`
	ViewOnly  bool   `json:"viewOnly" yaml:"viewOnly"`
	Display   bool   `json:"display" yaml:"display"`
	Pattern   string `json:"pattern" yaml:"pattern"`
	LinkedTo  string `json:"linkedTo" yaml:"linkedTo"`

	LinkDomain      string           `json:"linkDomain" yaml:"linkDomain"`
	LinkTable       string           `json:"linkTable" yaml:"linkTable"`
	LinkLabelColumn string           `json:"linkLabelColumn" yaml:"linkLabelColumn"`
	LinkFilter      string           `json:"linkFilter" yaml:"linkFilter"`
	Choices         []string         `json:"choices" yaml:"choices"`
	Options         []DropdownOption `json:"options" yaml:"options"`
	FileNameColumn  string           `json:"fileNameColumn" yaml:"fileNameColumn"`
	DisplayFormat   string           `json:"displayFormat" yaml:"displayFormat"`

	Child *ChildMetadata `json:"child,omitempty" yaml:"child"`
}

// ChildMetadata describes a child form owned by a field.
type ChildMetadata struct {
	Form       FormMetadata      `json:"form" yaml:"form"`
	Sections   []SectionMetadata `json:"sections" yaml:"sections"`
	Fields     []FieldMetadata   `json:"fields" yaml:"fields"`
	Flatten    bool              `json:"flatten" yaml:"flatten"`
	LinkColumn string            `json:"linkColumn" yaml:"linkColumn"`
	ParentID   string            `json:"parentId" yaml:"parentId"`
	LinkID     string            `json:"linkId" yaml:"linkId"`
}

// Definition is the complete metadata of one form as supplied by a
// metadata source.
type Definition struct {
	Form     FormMetadata      `json:"form" yaml:"form"`
	Sections []SectionMetadata `json:"sections" yaml:"sections"`
	Fields   []FieldMetadata   `json:"fields" yaml:"fields"`
}

// Build constructs a fresh form from the definition.
func (d *Definition) Build() (*Form, error) {
	return Build(d.Form, d.Sections, d.Fields)
}

// Field is one editable value on a form.
type Field struct {
	Label     string
	Column    *Column
	Value     Value
	Dropdown  *DropdownDataset
	ChildForm *Form
	// LinkedTo names a root column whose edits propagate into this field.
	LinkedTo string
}

// Section is an ordered group of fields. For non-flattened child forms the
// first section also holds the display rows of already-entered records.
type Section struct {
	Name        string
	ChildOnly   bool
	Fields      []*Field
	MultiFields []Row
}

// Form is a record-editing unit.
type Form struct {
	ID     string
	Name   string
	Domain string
	Table  string
	RowID  ID

	IsChild bool
	Flatten bool
	// LinkColumn is the child-table column holding the parent's row id.
	LinkColumn string
	// ChildFormParentID and ChildFormLinkID relate child rows to the parent
	// through a value other than the parent's row id: child rows whose
	// ChildFormLinkID column equals the parent's ChildFormParentID column.
	ChildFormParentID string
	ChildFormLinkID   string

	Sections []*Section

	parent      *Form
	rawRows     []Row
	errorFields []string
	queue       SaveQueue
}

// Build constructs a form from metadata. Sections and fields are ordered by
// position; fields declaring a child form get a nested Form.
func Build(meta FormMetadata, sections []SectionMetadata, fields []FieldMetadata) (*Form, error) {
	f := &Form{
		ID:     meta.ID,
		Name:   meta.Name,
		Domain: meta.Domain,
		Table:  meta.Table,
	}

	secs := append([]SectionMetadata(nil), sections...)
	sort.SliceStable(secs, func(i, j int) bool { return secs[i].Position < secs[j].Position })

	byID := make(map[string]*Section, len(secs))
	for _, sm := range secs {
		s := &Section{Name: sm.Name, ChildOnly: sm.ChildOnly}
		f.Sections = append(f.Sections, s)
		byID[sm.ID] = s
	}
	if len(f.Sections) == 0 {
		s := &Section{Name: meta.Name}
		f.Sections = append(f.Sections, s)
		byID[""] = s
	}

	flds := append([]FieldMetadata(nil), fields...)
	sort.SliceStable(flds, func(i, j int) bool { return flds[i].Position < flds[j].Position })

	for _, fm := range flds {
		s, ok := byID[fm.SectionID]
		if !ok {
			if len(byID) == 1 && fm.SectionID == "" {
				s = f.Sections[0]
			} else {
				return nil, fmt.Errorf("form %q: field %q references unknown section %q", meta.ID, fm.Column, fm.SectionID)
			}
		}
		fld, err := buildField(fm)
		if err != nil {
			return nil, fmt.Errorf("form %q: %w", meta.ID, err)
		}
		if fld.ChildForm != nil {
			fld.ChildForm.parent = f
		}
		s.Fields = append(s.Fields, fld)
	}
	return f, nil
}

func buildField(fm FieldMetadata) (*Field, error) {
	name := fm.Column
	if name == "" && fm.Child != nil {
		name = fm.Child.Form.Name
	}
	if name == "" {
		return nil, fmt.Errorf("field %q has no column", fm.Label)
	}
	col, err := NewColumn(name, ParseDataType(fm.DataType), fm.Pattern)
	if err != nil {
		return nil, err
	}
	col.Label = fm.Label
	if col.Label == "" {
		col.Label = name
	}
	col.Multiple = fm.Multiple
	col.Mandatory = fm.Mandatory
	col.ViewOnly = fm.ViewOnly
	col.Display = fm.Display

	switch col.DataType {
	case TypeLink:
		col.Link.TargetDomain = fm.LinkDomain
		col.Link.TargetTable = fm.LinkTable
		col.Link.LabelColumn = fm.LinkLabelColumn
		col.Link.TargetColumn = name
		col.Link.Filter = fm.LinkFilter
	case TypeChoice:
		col.Choice.Values = append([]string(nil), fm.Choices...)
	case TypeBinary:
		col.Binary.FileNameColumn = fm.FileNameColumn
	case TypeDateTime:
		col.DateTime.DisplayFormat = fm.DisplayFormat
	}

	fld := &Field{Label: col.Label, Column: col, LinkedTo: fm.LinkedTo}

	switch {
	case len(fm.Options) > 0:
		fld.Dropdown = NewDropdownDataset(fm.Options)
	case col.DataType == TypeChoice && len(fm.Choices) > 0:
		opts := make([]DropdownOption, len(fm.Choices))
		for i, c := range fm.Choices {
			opts[i] = DropdownOption{ID: c, Label: c}
		}
		fld.Dropdown = NewDropdownDataset(opts)
	}

	if fm.Child != nil {
		child, err := Build(fm.Child.Form, fm.Child.Sections, fm.Child.Fields)
		if err != nil {
			return nil, fmt.Errorf("child form of %q: %w", name, err)
		}
		child.IsChild = true
		child.Flatten = fm.Child.Flatten
		child.LinkColumn = fm.Child.LinkColumn
		child.ChildFormParentID = fm.Child.ParentID
		child.ChildFormLinkID = fm.Child.LinkID
		fld.ChildForm = child
	}
	return fld, nil
}

// Parent returns the form owning a child form, or nil for a root form.
func (f *Form) Parent() *Form {
	return f.parent
}

// Fields returns every field of the form in section order.
func (f *Form) Fields() []*Field {
	var out []*Field
	for _, s := range f.Sections {
		out = append(out, s.Fields...)
	}
	return out
}

// HasFields reports whether the form has at least one value field.
func (f *Form) HasFields() bool {
	for _, fld := range f.Fields() {
		if fld.ChildForm == nil {
			return true
		}
	}
	return false
}

// Field returns the field editing the named column.
func (f *Form) Field(column string) (*Field, bool) {
	for _, fld := range f.Fields() {
		if fld.Column.Name == column {
			return fld, true
		}
	}
	return nil, false
}

// UpdateFieldValue sets the value of the field at the given position and
// marks it changed.
func (f *Form) UpdateFieldValue(sectionIdx, fieldIdx int, v Value) error {
	if sectionIdx < 0 || sectionIdx >= len(f.Sections) {
		return fmt.Errorf("section index %d out of range", sectionIdx)
	}
	s := f.Sections[sectionIdx]
	if fieldIdx < 0 || fieldIdx >= len(s.Fields) {
		return fmt.Errorf("field index %d out of range in section %q", fieldIdx, s.Name)
	}
	return f.setField(s.Fields[fieldIdx], v)
}

// SetValue sets the value of the field editing the named column and marks
// it changed.
func (f *Form) SetValue(column string, v Value) error {
	fld, ok := f.Field(column)
	if !ok {
		return fmt.Errorf("form %q has no column %q", f.ID, column)
	}
	return f.setField(fld, v)
}

func (f *Form) setField(fld *Field, v Value) error {
	if fld.ChildForm != nil {
		return fmt.Errorf("field %q holds a child form", fld.Label)
	}
	if fld.Column.ViewOnly {
		return fmt.Errorf("field %q is view-only", fld.Label)
	}
	fld.Value = v
	fld.Column.MarkChanged()
	return nil
}

// ParseInput converts text entered by a user into a value for the field.
// Link and Choice input is read as ids; multi-valued input is comma-joined.
func (fld *Field) ParseInput(raw string) (Value, error) {
	c := fld.Column
	trimmed := strings.TrimSpace(raw)
	switch c.DataType {
	case TypeYesNo:
		if trimmed == "" {
			return Null(), nil
		}
		b, ok := ParseYesNo(trimmed)
		if !ok {
			return Null(), fmt.Errorf("%s: invalid yes/no value %q", fld.Label, raw)
		}
		return Bool(b), nil
	case TypeLink, TypeChoice:
		if c.Multiple {
			return IDList(SplitIDs(raw)...), nil
		}
		return IDValue(raw), nil
	case TypeNumber:
		if trimmed == "" {
			return Null(), nil
		}
		if _, err := strconv.ParseFloat(trimmed, 64); err != nil {
			return Null(), fmt.Errorf("%s: invalid number %q", fld.Label, raw)
		}
		return Text(trimmed), nil
	case TypeDateTime:
		if trimmed == "" {
			return Null(), nil
		}
		if _, ok := ParseDateTime(trimmed); !ok {
			return Null(), fmt.Errorf("%s: invalid date %q", fld.Label, raw)
		}
		return Text(trimmed), nil
	default:
		if raw == "" {
			return Null(), nil
		}
		return Text(raw), nil
	}
}

// ClearValues empties every value field, ready for a new child row.
func (f *Form) ClearValues() {
	f.RowID = ID{}
	for _, fld := range f.Fields() {
		if fld.ChildForm != nil {
			continue
		}
		fld.Value = Null()
		if fld.Column.Binary != nil {
			fld.Column.Binary.FileName = ""
		}
	}
}

// SetFileName records the name of an uploaded file on a Binary field.
func (f *Form) SetFileName(column, name string) error {
	fld, ok := f.Field(column)
	if !ok || fld.Column.Binary == nil {
		return fmt.Errorf("form %q has no binary column %q", f.ID, column)
	}
	fld.Column.Binary.FileName = name
	fld.Column.MarkChanged()
	return nil
}

// ChildFields returns the fields owning child forms.
func (f *Form) ChildFields() []*Field {
	var out []*Field
	for _, fld := range f.Fields() {
		if fld.ChildForm != nil {
			out = append(out, fld)
		}
	}
	return out
}

// FindChildForm returns the child form with the given id, searching
// nested child forms as well.
func (f *Form) FindChildForm(id string) (*Form, bool) {
	for _, fld := range f.ChildFields() {
		if fld.ChildForm.ID == id {
			return fld.ChildForm, true
		}
		if nested, ok := fld.ChildForm.FindChildForm(id); ok {
			return nested, true
		}
	}
	return nil, false
}

// rowSection holds the display rows of a child form.
func (f *Form) rowSection() *Section {
	if len(f.Sections) == 0 {
		f.Sections = append(f.Sections, &Section{Name: f.Name})
	}
	return f.Sections[0]
}

// DisplayRows returns the display view of the child rows.
func (f *Form) DisplayRows() []Row {
	return f.rowSection().MultiFields
}

// RawRows returns the storage view of the child rows.
func (f *Form) RawRows() []Row {
	return f.rawRows
}

// LastRowID returns the id of the last display row, or the zero ID.
// Flattened child forms edit this row.
func (f *Form) LastRowID() ID {
	rows := f.DisplayRows()
	if len(rows) == 0 {
		return ID{}
	}
	return rows[len(rows)-1].ID()
}

// LoadRecord fills field values from a stored row without marking changes.
func (f *Form) LoadRecord(row Row) {
	if id := row.ID(); !id.IsZero() {
		f.RowID = id
	}
	for _, fld := range f.Fields() {
		if fld.ChildForm != nil {
			continue
		}
		raw, ok := row[fld.Column.Name]
		if !ok {
			continue
		}
		fld.Value = ValueFromAny(fld.Column.DataType, fld.Column.Multiple, raw)
		if fld.Column.Binary != nil {
			if name, ok := row[fld.Column.FileNameKey()]; ok {
				fld.Column.Binary.FileName = stringify(name)
			}
		}
	}
}

// LoadChildRows replaces both row views wholesale with stored rows.
// Display rows show labels where the row carries a "<column> label"
// companion. A flattened form also loads its last row into its fields.
func (f *Form) LoadChildRows(rows []Row) {
	raw := make([]Row, 0, len(rows))
	display := make([]Row, 0, len(rows))
	for _, r := range rows {
		rr := r.Clone()
		rr.SetID(r.ID())
		dr := Row{}
		dr.SetID(r.ID())
		for _, fld := range f.Fields() {
			if fld.ChildForm != nil {
				continue
			}
			name := fld.Column.Name
			v, ok := r[name]
			if !ok {
				continue
			}
			if label, ok := r[fld.Column.LabelKey()]; ok && fld.Column.DataType.HasOptions() {
				dr[name] = stringify(label)
				continue
			}
			if fld.Column.DataType.HasOptions() && fld.Dropdown != nil {
				fld := *fld
				fld.Value = ValueFromAny(fld.Column.DataType, fld.Column.Multiple, v)
				label, _ := fld.ResolvedLabel()
				dr[name] = label
				rr[fld.Column.LabelKey()] = label
				continue
			}
			dr[name] = v
			if fn, ok := r[fld.Column.FileNameKey()]; ok {
				dr[fld.Column.FileNameKey()] = fn
			}
		}
		raw = append(raw, rr)
		display = append(display, dr)
	}
	f.rawRows = raw
	f.rowSection().MultiFields = display

	if f.Flatten && len(raw) > 0 {
		last := raw[len(raw)-1]
		f.LoadRecord(last)
	}
}

// ErrorFields returns the labels of fields that failed the last validation.
func (f *Form) ErrorFields() []string {
	return append([]string(nil), f.errorFields...)
}

// Copy returns a deep copy of the form, including nested child forms and
// both row views. Change flags are copied as they are.
func (f *Form) Copy() *Form {
	return f.copyWithParent(nil)
}

func (f *Form) copyWithParent(parent *Form) *Form {
	cp := *f
	cp.parent = parent
	cp.rawRows = cloneRows(f.rawRows)
	cp.errorFields = append([]string(nil), f.errorFields...)
	cp.queue = f.queue.clone()
	cp.Sections = make([]*Section, len(f.Sections))
	for i, s := range f.Sections {
		ns := &Section{Name: s.Name, ChildOnly: s.ChildOnly, MultiFields: cloneRows(s.MultiFields)}
		ns.Fields = make([]*Field, len(s.Fields))
		for j, fld := range s.Fields {
			nf := &Field{
				Label:    fld.Label,
				Column:   fld.Column.clone(),
				Value:    fld.Value.clone(),
				Dropdown: fld.Dropdown.clone(),
				LinkedTo: fld.LinkedTo,
			}
			if fld.ChildForm != nil {
				nf.ChildForm = fld.ChildForm.copyWithParent(&cp)
			}
			ns.Fields[j] = nf
		}
		cp.Sections[i] = ns
	}
	return &cp
}
