package form

// value.go holds the storage-typed field value and the conversions applied
// when values cross into statement parameters.
//
// Field values are always stored in their storage form (ids, id lists,
// booleans, strings). Labels are derived from dropdown datasets and only
// ever written into row mappings for display.

import (
	"strconv"
	"strings"
	"time"
)

// ValueKind discriminates Value.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindText
	KindID
	KindIDList
	KindBool
)

// Value is a field's current storage value.
type Value struct {
	kind ValueKind
	text string
	ids  []string
	b    bool
}

// Null returns the empty value.
func Null() Value { return Value{} }

// Text returns a text value.
func Text(s string) Value { return Value{kind: KindText, text: s} }

// IDValue returns a single-id value for a single-valued Link or Choice.
func IDValue(id string) Value {
	id = strings.TrimSpace(id)
	if id == "" {
		return Null()
	}
	return Value{kind: KindID, text: id}
}

// IDList returns a multi-id value. Ids are trimmed and empties dropped;
// selection order is preserved.
func IDList(ids ...string) Value {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" {
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return Null()
	}
	return Value{kind: KindIDList, ids: out}
}

// SplitIDs parses a comma-joined id list.
func SplitIDs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Kind reports the value's kind.
func (v Value) Kind() ValueKind { return v.kind }

// IsEmpty reports whether the value counts as missing for validation.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case KindNull:
		return true
	case KindText, KindID:
		return strings.TrimSpace(v.text) == ""
	case KindIDList:
		return len(v.ids) == 0
	default:
		return false
	}
}

// IDs returns the ids held by an id or id-list value.
func (v Value) IDs() []string {
	switch v.kind {
	case KindID:
		return []string{v.text}
	case KindIDList:
		return append([]string(nil), v.ids...)
	case KindText:
		return SplitIDs(v.text)
	default:
		return nil
	}
}

// BoolValue returns the boolean held by v. Text values are parsed leniently.
func (v Value) BoolValue() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindText:
		b, ok := ParseYesNo(v.text)
		return ok && b
	default:
		return false
	}
}

// Storage renders the value as stored by the host: ids comma-joined,
// booleans as "true"/"false", null as "".
func (v Value) Storage() string {
	switch v.kind {
	case KindText, KindID:
		return v.text
	case KindIDList:
		return strings.Join(v.ids, ",")
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// Any returns the value in the shape stored inside row mappings.
func (v Value) Any() any {
	switch v.kind {
	case KindText, KindID:
		return v.text
	case KindIDList:
		return strings.Join(v.ids, ",")
	case KindBool:
		return v.b
	default:
		return nil
	}
}

func (v Value) String() string { return v.Storage() }

func (v Value) clone() Value {
	if v.ids != nil {
		v.ids = append([]string(nil), v.ids...)
	}
	return v
}

// ValueFromAny converts a value read from a result row into a storage value
// for a column of type dt.
func ValueFromAny(dt DataType, multiple bool, raw any) Value {
	if raw == nil {
		return Null()
	}
	switch dt {
	case TypeYesNo:
		switch t := raw.(type) {
		case bool:
			return Bool(t)
		case int64:
			return Bool(t != 0)
		default:
			b, ok := ParseYesNo(stringify(raw))
			if !ok {
				return Null()
			}
			return Bool(b)
		}
	case TypeLink, TypeChoice:
		if list, ok := raw.([]string); ok {
			if multiple {
				return IDList(list...)
			}
			if len(list) > 0 {
				return IDValue(list[0])
			}
			return Null()
		}
		s := stringify(raw)
		if multiple {
			return IDList(SplitIDs(s)...)
		}
		return IDValue(s)
	default:
		s := stringify(raw)
		if s == "" {
			return Null()
		}
		return Text(s)
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.Format(time.RFC3339)
	case ID:
		return t.String()
	default:
		return ""
	}
}

// ParseYesNo accepts true/false, yes/no, t/f, y/n and 1/0.
func ParseYesNo(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "yes", "y", "1":
		return true, true
	case "false", "f", "no", "n", "0":
		return false, true
	default:
		return false, false
	}
}

var dateTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"1/2/2006 15:04",
	"1/2/2006",
	"01/02/2006",
	"Jan 2, 2006",
	"2 Jan 2006",
}

// ParseDateTime parses the date formats editors commonly produce.
func ParseDateTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// paramValue converts a field value into a statement parameter for dt.
func paramValue(dt DataType, v Value) any {
	switch dt {
	case TypeYesNo:
		return v.BoolValue()
	case TypeLink:
		if v.kind == KindID {
			if n, err := strconv.ParseInt(v.text, 10, 64); err == nil {
				return n
			}
		}
		if v.IsEmpty() {
			return nil
		}
		return v.Storage()
	case TypeNumber:
		if v.IsEmpty() {
			return nil
		}
		if n, err := strconv.ParseInt(v.Storage(), 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(v.Storage(), 64); err == nil {
			return f
		}
		return v.Storage()
	case TypeDateTime:
		if v.IsEmpty() {
			return nil
		}
		if t, ok := ParseDateTime(v.Storage()); ok {
			return t
		}
		return v.Storage()
	default:
		if v.IsEmpty() {
			return nil
		}
		return v.Storage()
	}
}
