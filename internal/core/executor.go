package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/dynforms/internal/form"
)

// Executor runs one statement against the host platform.
//
// Statements use bracket-quoted identifiers and @name parameters. Reads
// return their rows; inserts return the new row id as the single column of
// a single row. Executors give no multi-statement transaction guarantee.
type Executor interface {
	Execute(ctx context.Context, query string, params map[string]any) (*Result, error)
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(ctx context.Context, query string, params map[string]any) (*Result, error)

func (f ExecutorFunc) Execute(ctx context.Context, query string, params map[string]any) (*Result, error) {
	return f(ctx, query, params)
}

// Result is what an executor returns for one statement.
type Result struct {
	Columns      []string
	Rows         []form.Row
	RowsAffected int64
}

// InsertedID returns the id produced by an insert: the "Cinchy ID" or "id"
// column of the first row, or its only column.
func (r *Result) InsertedID() (form.ID, bool) {
	if r == nil || len(r.Rows) == 0 {
		return form.ID{}, false
	}
	row := r.Rows[0]
	for _, key := range []string{form.RowIDColumn, "id", "ID"} {
		if v, ok := row[key]; ok {
			id := form.IDFromAny(v)
			return id, id.IsPersisted()
		}
	}
	if len(r.Columns) == 1 {
		id := form.IDFromAny(row[r.Columns[0]])
		return id, id.IsPersisted()
	}
	return form.ID{}, false
}

// ErrNoInsertedID is returned when an insert statement reports no new row id.
var ErrNoInsertedID = errors.New("insert returned no row id")

// ExecutionError is an executor rejection of one statement.
type ExecutionError struct {
	Statement string
	Err       error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute statement: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// summary returns the statement's leading keyword and target for logs.
func (e *ExecutionError) summary() string {
	fields := strings.Fields(e.Statement)
	if len(fields) > 3 {
		fields = fields[:3]
	}
	return strings.Join(fields, " ")
}
