package form

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// RowIDColumn is the host platform's row identifier column.
const RowIDColumn = "Cinchy ID"

// pendingPrefix marks the string form of a Pending identifier.
const pendingPrefix = "pending-"

// ID identifies a row. It is exactly one of: zero (no identifier),
// Persisted (a positive integer assigned by the host), or Pending (a
// locally minted UUID standing in for a row that has not been saved yet).
//
// Pending and Persisted identifiers never compare equal, so an unsaved row
// can not be mistaken for a stored one.
type ID struct {
	persisted int64
	pending   uuid.UUID
}

// Persisted returns the identifier of a stored row.
// Non-positive values yield the zero ID.
func Persisted(n int64) ID {
	if n <= 0 {
		return ID{}
	}
	return ID{persisted: n}
}

// NewPending mints a fresh local identifier for an unsaved row.
func NewPending() ID {
	return ID{pending: uuid.New()}
}

// IsZero reports whether no identifier is set.
func (id ID) IsZero() bool {
	return id.persisted == 0 && id.pending == uuid.Nil
}

// IsPersisted reports whether id refers to a stored row.
func (id ID) IsPersisted() bool {
	return id.persisted > 0
}

// IsPending reports whether id is a local identifier for an unsaved row.
func (id ID) IsPending() bool {
	return id.pending != uuid.Nil
}

// Int64 returns the stored row number, or 0 for zero and pending ids.
func (id ID) Int64() int64 {
	return id.persisted
}

func (id ID) String() string {
	switch {
	case id.IsPersisted():
		return strconv.FormatInt(id.persisted, 10)
	case id.IsPending():
		return pendingPrefix + id.pending.String()
	default:
		return ""
	}
}

// ParseID is the inverse of ID.String. The empty string parses to the zero ID.
func ParseID(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ID{}, nil
	}
	if rest, ok := strings.CutPrefix(s, pendingPrefix); ok {
		u, err := uuid.Parse(rest)
		if err != nil {
			return ID{}, fmt.Errorf("parse pending id %q: %w", s, err)
		}
		return ID{pending: u}, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return ID{}, fmt.Errorf("parse row id %q: %w", s, err)
	}
	if n <= 0 {
		return ID{}, fmt.Errorf("parse row id %q: must be positive", s)
	}
	return Persisted(n), nil
}

// IDFromAny converts a value read from a result row into an ID.
// Integers, numeric strings, and ID values are accepted.
func IDFromAny(v any) ID {
	switch t := v.(type) {
	case ID:
		return t
	case int64:
		return Persisted(t)
	case int:
		return Persisted(int64(t))
	case int32:
		return Persisted(int64(t))
	case float64:
		if t == float64(int64(t)) {
			return Persisted(int64(t))
		}
	case string:
		id, err := ParseID(t)
		if err == nil {
			return id
		}
	case []byte:
		id, err := ParseID(string(t))
		if err == nil {
			return id
		}
	}
	return ID{}
}

// MarshalText renders the identifier with String.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText parses the identifier with ParseID.
func (id *ID) UnmarshalText(b []byte) error {
	parsed, err := ParseID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
