package executor

// pgconvert.go converts values decoded by pgx into the plain types form
// rows carry, and form parameters into values pgx encodes.
//
// Rows hold strings, int64, float64, bool, time.Time or nil. pgx decodes
// numeric columns as pgtype.Numeric, uuid columns as [16]byte and small
// integers as int16/int32; those are narrowed here.

import (
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// fromPgValue narrows one decoded column value.
func fromPgValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case float32:
		return float64(t)
	case []byte:
		return string(t)
	case [16]byte:
		return uuid.UUID(t).String()
	case pgtype.UUID:
		return pgUUIDToString(t)
	case pgtype.Numeric:
		return numericValue(t)
	case pgtype.Text:
		if !t.Valid {
			return nil
		}
		return t.String
	case pgtype.Date:
		if !t.Valid {
			return nil
		}
		return t.Time.Format(time.DateOnly)
	case time.Time:
		return t
	default:
		return v
	}
}

// numericValue returns an integral numeric as int64 and any other as
// float64. NaN and infinities are returned as their text form.
func numericValue(n pgtype.Numeric) any {
	if !n.Valid {
		return nil
	}
	if n.NaN || n.InfinityModifier != pgtype.Finite {
		v, err := n.Value()
		if err != nil {
			return nil
		}
		return v
	}
	if n.Exp >= 0 {
		i, err := n.Int64Value()
		if err == nil && i.Valid {
			return i.Int64
		}
	}
	f, err := n.Float64Value()
	if err != nil || !f.Valid {
		return numericString(n)
	}
	return f.Float64
}

func numericString(n pgtype.Numeric) string {
	if n.Int == nil {
		return "0"
	}
	r := new(big.Rat).SetInt(n.Int)
	if n.Exp > 0 {
		r.Mul(r, new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n.Exp)), nil)))
	} else if n.Exp < 0 {
		r.Quo(r, new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(-n.Exp)), nil)))
	}
	return r.FloatString(int(max(-n.Exp, 0)))
}

// pgUUIDToString converts a pgtype.UUID to its string representation.
// Returns empty string if the UUID is invalid.
func pgUUIDToString(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	return uuid.UUID(u.Bytes).String()
}

// toPgArg converts one statement parameter for pgx. Form parameters are
// already plain Go values; only non-int64 integers are widened.
func toPgArg(v any) any {
	switch t := v.(type) {
	case int:
		return int64(t)
	case int32:
		return int64(t)
	default:
		return v
	}
}
