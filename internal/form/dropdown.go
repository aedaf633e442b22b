package form

// dropdown.go reconciles the storage value of Link/Choice fields with the
// labels shown to users.
//
// A child record exists twice while it is being edited: as a raw row
// (storage ids plus "<column> label" companions) and as a display row
// (labels only). Both views are written together by syncRow so that they
// never drift apart; rows are matched across the two by identifier.

import (
	"sort"
	"strings"
)

// LabelSeparator joins the labels of a multi-valued field.
const LabelSeparator = ", "

// DropdownOption pairs a storable id with its human-readable label.
type DropdownOption struct {
	ID    string `json:"id" yaml:"id"`
	Label string `json:"label" yaml:"label"`
}

// DropdownDataset is the resolved set of selectable options for a field.
type DropdownDataset struct {
	Options []DropdownOption `json:"options"`
}

// NewDropdownDataset drops options without a label and sorts the rest
// case-insensitively by label.
func NewDropdownDataset(options []DropdownOption) *DropdownDataset {
	out := make([]DropdownOption, 0, len(options))
	for _, o := range options {
		if strings.TrimSpace(o.Label) == "" {
			continue
		}
		out = append(out, DropdownOption{ID: strings.TrimSpace(o.ID), Label: o.Label})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Label) < strings.ToLower(out[j].Label)
	})
	return &DropdownDataset{Options: out}
}

// Find returns the option with the given id.
func (d *DropdownDataset) Find(id string) (DropdownOption, bool) {
	if d == nil {
		return DropdownOption{}, false
	}
	id = strings.TrimSpace(id)
	for _, o := range d.Options {
		if o.ID == id {
			return o, true
		}
	}
	return DropdownOption{}, false
}

// FindByLabel returns the first option with the given label.
func (d *DropdownDataset) FindByLabel(label string) (DropdownOption, bool) {
	if d == nil {
		return DropdownOption{}, false
	}
	label = strings.TrimSpace(label)
	for _, o := range d.Options {
		if o.Label == label {
			return o, true
		}
	}
	return DropdownOption{}, false
}

// Resolve returns the options for ids in selection order. Unknown ids are skipped.
func (d *DropdownDataset) Resolve(ids []string) []DropdownOption {
	var out []DropdownOption
	for _, id := range ids {
		if o, ok := d.Find(id); ok {
			out = append(out, o)
		}
	}
	return out
}

// Labels maps ids to labels in selection order.
func (d *DropdownDataset) Labels(ids []string) []string {
	opts := d.Resolve(ids)
	out := make([]string, len(opts))
	for i, o := range opts {
		out[i] = o.Label
	}
	return out
}

// IDsForLabels maps labels back to ids in the order given. Unknown labels are skipped.
func (d *DropdownDataset) IDsForLabels(labels []string) []string {
	var out []string
	for _, l := range labels {
		if o, ok := d.FindByLabel(l); ok {
			out = append(out, o.ID)
		}
	}
	return out
}

// IDsForJoinedLabels maps a joined label list back to ids. Whole option
// labels are matched before the text is split, so a label containing a
// comma still resolves. Segments matching no option are skipped.
func (d *DropdownDataset) IDsForJoinedLabels(text string) []string {
	if d == nil {
		return nil
	}
	opts := append([]DropdownOption(nil), d.Options...)
	sort.SliceStable(opts, func(i, j int) bool { return len(opts[i].Label) > len(opts[j].Label) })

	var out []string
	rest := strings.TrimSpace(text)
	for rest != "" {
		matched := false
		for _, o := range opts {
			if !strings.HasPrefix(rest, o.Label) {
				continue
			}
			tail := strings.TrimLeft(rest[len(o.Label):], " ")
			if tail != "" && tail[0] != ',' {
				continue
			}
			out = append(out, o.ID)
			rest = strings.TrimSpace(strings.TrimPrefix(tail, ","))
			matched = true
			break
		}
		if matched {
			continue
		}
		i := strings.Index(rest, ",")
		if i < 0 {
			break
		}
		rest = strings.TrimSpace(rest[i+1:])
	}
	return out
}

// SplitLabels parses a joined label list.
func SplitLabels(s string) []string {
	return SplitIDs(s)
}

func (d *DropdownDataset) clone() *DropdownDataset {
	if d == nil {
		return nil
	}
	return &DropdownDataset{Options: append([]DropdownOption(nil), d.Options...)}
}

// ResolvedLabel returns the label text for the field's current value and
// whether the field's value could be resolved against its dataset.
func (f *Field) ResolvedLabel() (string, bool) {
	if !f.Column.DataType.HasOptions() || f.Dropdown == nil {
		return "", false
	}
	labels := f.Dropdown.Labels(f.Value.IDs())
	if len(labels) == 0 {
		return "", false
	}
	if !f.Column.Multiple {
		return labels[0], true
	}
	return strings.Join(labels, LabelSeparator), true
}

// SetFromLabels sets the field value from label text, the only form of a
// Link/Choice value that survives on a display row. Labels that match no
// option are kept as-is so the value is not silently lost.
func (f *Field) SetFromLabels(text string) {
	labels := SplitLabels(text)
	if !f.Column.Multiple {
		labels = []string{strings.TrimSpace(text)}
	}
	switch {
	case f.Column.DataType == TypeChoice && f.Dropdown == nil:
		if f.Column.Multiple {
			f.Value = IDList(labels...)
		} else {
			f.Value = IDValue(text)
		}
	case f.Dropdown != nil:
		var ids []string
		if f.Column.Multiple {
			ids = f.Dropdown.IDsForJoinedLabels(text)
		} else {
			ids = f.Dropdown.IDsForLabels(labels)
		}
		if len(ids) == 0 {
			if f.Column.Multiple {
				f.Value = IDList(labels...)
			} else {
				f.Value = IDValue(text)
			}
			return
		}
		if f.Column.Multiple {
			f.Value = IDList(ids...)
		} else {
			f.Value = IDValue(ids[0])
		}
	default:
		f.Value = IDValue(text)
	}
}

// writeRow stores the field's value into the raw and display views of a row.
func (f *Field) writeRow(raw, display Row) {
	c := f.Column
	switch {
	case c.DataType.HasOptions() && f.Dropdown != nil:
		label, ok := f.ResolvedLabel()
		raw[c.Name] = f.Value.Any()
		if ok {
			raw[c.LabelKey()] = label
			display[c.Name] = label
		} else {
			raw[c.LabelKey()] = ""
			display[c.Name] = ""
		}
	case c.DataType == TypeBinary:
		raw[c.Name] = f.Value.Any()
		display[c.Name] = f.Value.Any()
		name := ""
		if c.Binary != nil {
			name = c.Binary.FileName
		}
		raw[c.FileNameKey()] = name
		display[c.FileNameKey()] = name
	case c.DataType == TypeYesNo:
		if f.Value.IsEmpty() {
			f.Value = Bool(false)
		}
		raw[c.Name] = f.Value.BoolValue()
		display[c.Name] = f.Value.BoolValue()
	default:
		raw[c.Name] = f.Value.Any()
		display[c.Name] = f.Value.Any()
	}
}

// syncRow writes the form's current field values into the raw and display
// rows identified by id. When no row matches, a fresh pending id is minted
// and the row is appended to both views. Returns the row's id.
func (f *Form) syncRow(id ID) ID {
	section := f.rowSection()
	displayIdx := indexOfRow(section.MultiFields, id)
	rawIdx := indexOfRow(f.rawRows, id)

	if displayIdx < 0 && rawIdx < 0 {
		id = NewPending()
	}

	var raw, display Row
	if rawIdx >= 0 {
		raw = f.rawRows[rawIdx]
	} else {
		raw = Row{}
		raw.SetID(id)
		f.rawRows = append(f.rawRows, raw)
	}
	if displayIdx >= 0 {
		display = section.MultiFields[displayIdx]
	} else {
		display = Row{}
		display.SetID(id)
		section.MultiFields = append(section.MultiFields, display)
	}

	for _, s := range f.Sections {
		for _, fld := range s.Fields {
			if fld.ChildForm != nil {
				continue
			}
			fld.writeRow(raw, display)
		}
	}
	return id
}

// replaceRowID renames a row in both views.
func (f *Form) replaceRowID(from, to ID) {
	section := f.rowSection()
	if i := indexOfRow(section.MultiFields, from); i >= 0 {
		section.MultiFields[i].SetID(to)
	}
	if i := indexOfRow(f.rawRows, from); i >= 0 {
		f.rawRows[i].SetID(to)
	}
}

// RemoveRow drops the row with the given id from both views.
// It reports whether a row was removed.
func (f *Form) RemoveRow(id ID) bool {
	section := f.rowSection()
	var removedDisplay, removedRaw bool
	section.MultiFields, removedDisplay = removeRow(section.MultiFields, id)
	f.rawRows, removedRaw = removeRow(f.rawRows, id)
	return removedDisplay || removedRaw
}
