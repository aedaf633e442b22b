// Package executor runs form statements against concrete databases.
//
// Statements arrive in the host convention: bracket-quoted identifiers,
// @name parameters, and [Domain].[Table] references. Each executor
// rewrites them into its own dialect, runs them one at a time, and returns
// rows as core.Result values.
package executor

import (
	"strings"

	"github.com/JonMunkholm/dynforms/internal/form"
)

// rewriteLegacyInsert replaces the legacy id trailer of older schema
// versions with a RETURNING clause.
func rewriteLegacyInsert(query string) string {
	if !strings.HasSuffix(query, form.LegacyInsertTrailer) {
		return query
	}
	return strings.TrimSuffix(query, form.LegacyInsertTrailer) + " RETURNING [" + form.RowIDColumn + "]"
}

// returnsRows reports whether a statement produces a result set.
func returnsRows(query string) bool {
	head := strings.ToUpper(strings.TrimSpace(query))
	if strings.HasPrefix(head, "SELECT") || strings.HasPrefix(head, "WITH") {
		return true
	}
	return strings.Contains(head, " RETURNING ")
}

// scanState tracks whether a statement scanner is inside a quoted span.
type scanState int

const (
	scanCode scanState = iota
	scanString
	scanBracket
)

// translateBrackets rewrites [identifier] quoting with quote, leaving
// string literals untouched. A "]]" inside brackets is an escaped "]".
func translateBrackets(query string, quote func(name string) string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)

	state := scanCode
	var ident strings.Builder
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch state {
		case scanString:
			b.WriteByte(c)
			if c == '\'' {
				if i+1 < len(query) && query[i+1] == '\'' {
					b.WriteByte('\'')
					i++
					continue
				}
				state = scanCode
			}
		case scanBracket:
			if c == ']' {
				if i+1 < len(query) && query[i+1] == ']' {
					ident.WriteByte(']')
					i++
					continue
				}
				b.WriteString(quote(ident.String()))
				ident.Reset()
				state = scanCode
				continue
			}
			ident.WriteByte(c)
		default:
			switch c {
			case '\'':
				state = scanString
				b.WriteByte(c)
			case '[':
				state = scanBracket
			default:
				b.WriteByte(c)
			}
		}
	}
	if state == scanBracket {
		b.WriteByte('[')
		b.WriteString(ident.String())
	}
	return b.String()
}

// normalizeValue converts driver values into the plain types rows carry:
// byte slices become strings.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	default:
		return v
	}
}
