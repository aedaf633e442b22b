package executor

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"modernc.org/sqlite"

	"github.com/JonMunkholm/dynforms/internal/core"
	"github.com/JonMunkholm/dynforms/internal/form"
)

// MemoryPath opens a SQLite executor without files.
const MemoryPath = ":memory:"

var registerEditable sync.Once

// registerFunctions installs the scalar functions statements rely on.
// editable(column) answers 1: local databases carry no entitlements.
func registerFunctions() error {
	var err error
	registerEditable.Do(func() {
		err = sqlite.RegisterDeterministicScalarFunction("editable", 1,
			func(_ *sqlite.FunctionContext, _ []driver.Value) (driver.Value, error) {
				return int64(1), nil
			})
	})
	return err
}

var domainName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_ ]*$`)

// SQLite runs statements against a SQLite database. Every domain is an
// attached database named after it, so [Domain].[Table] references resolve
// unchanged. SQLite accepts bracket quoting and @name parameters natively.
type SQLite struct {
	db      *sql.DB
	path    string
	domains []string
}

// OpenSQLite opens the database at path and attaches one database per
// domain. With MemoryPath every domain is an in-memory database; otherwise
// domain databases live next to path as "<path>.<domain>.db".
func OpenSQLite(ctx context.Context, path string, domains []string) (*SQLite, error) {
	if err := registerFunctions(); err != nil {
		return nil, fmt.Errorf("register sqlite functions: %w", err)
	}
	if path == "" {
		path = MemoryPath
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// Attached databases belong to one connection.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	s := &SQLite{db: db, path: path}
	for _, d := range dedupe(domains) {
		if err := s.attach(ctx, d); err != nil {
			_ = db.Close() // ignore error
			return nil, err
		}
	}
	return s, nil
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (s *SQLite) attach(ctx context.Context, domain string) error {
	if !domainName.MatchString(domain) {
		return fmt.Errorf("invalid domain name %q", domain)
	}
	file := MemoryPath
	if s.path != MemoryPath {
		file = filepath.Clean(s.path) + "." + domain + ".db"
	}
	if _, err := s.db.ExecContext(ctx, "ATTACH DATABASE ? AS ["+domain+"]", file); err != nil {
		return fmt.Errorf("attach domain %s: %w", domain, err)
	}
	s.domains = append(s.domains, domain)
	return nil
}

// Domains returns the attached domains, sorted.
func (s *SQLite) Domains() []string {
	return append([]string(nil), s.domains...)
}

// DB exposes the underlying handle.
func (s *SQLite) DB() *sql.DB {
	return s.db
}

// ExecScript runs a multi-statement script such as a schema definition.
func (s *SQLite) ExecScript(ctx context.Context, script string) error {
	if _, err := s.db.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("exec script: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Execute runs one statement.
func (s *SQLite) Execute(ctx context.Context, query string, params map[string]any) (*core.Result, error) {
	stmt := rewriteLegacyInsert(query)
	args := make([]any, 0, len(params))
	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		if !strings.Contains(stmt, "@"+k) {
			continue
		}
		args = append(args, sql.Named(k, params[k]))
	}

	if !returnsRows(stmt) {
		res, err := s.db.ExecContext(ctx, stmt, args...)
		if err != nil {
			return nil, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("rows affected: %w", err)
		}
		return &core.Result{RowsAffected: n}, nil
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	result := &core.Result{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(form.Row, len(cols))
		for i, c := range cols {
			row[c] = normalizeValue(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	result.RowsAffected = int64(len(result.Rows))
	return result, nil
}
