package form

const (
	// LabelSuffix names the companion key holding a Link/Choice label.
	LabelSuffix = " label"
	// FileNameSuffix names the companion key holding a Binary file name.
	FileNameSuffix = "_Name"
)

// Row maps column names to values for one child record. Display rows hold
// labels; raw rows hold storage values plus "<column> label" companions.
// The row identifier is kept under RowIDColumn as an ID.
type Row map[string]any

// ID returns the row's identifier.
func (r Row) ID() ID {
	if r == nil {
		return ID{}
	}
	return IDFromAny(r[RowIDColumn])
}

// SetID stores the row's identifier.
func (r Row) SetID(id ID) {
	r[RowIDColumn] = id
}

// String returns the value under key as text.
func (r Row) String(key string) string {
	return stringify(r[key])
}

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		if list, ok := v.([]string); ok {
			v = append([]string(nil), list...)
		}
		out[k] = v
	}
	return out
}

func cloneRows(rows []Row) []Row {
	if rows == nil {
		return nil
	}
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}

func indexOfRow(rows []Row, id ID) int {
	if id.IsZero() {
		return -1
	}
	for i, r := range rows {
		if r.ID() == id {
			return i
		}
	}
	return -1
}

func removeRow(rows []Row, id ID) ([]Row, bool) {
	idx := indexOfRow(rows, id)
	if idx < 0 {
		return rows, false
	}
	return append(rows[:idx], rows[idx+1:]...), true
}
