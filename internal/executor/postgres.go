package executor

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/dynforms/internal/core"
	"github.com/JonMunkholm/dynforms/internal/form"
)

// DBTX is the subset of pgx used by the Postgres executor.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
}

// PoolConfig configures the pgx connection pool.
type PoolConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// NewPool parses the config, connects, and pings the database.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Postgres runs statements through pgx. Identifiers are rewritten to
// double quotes and @name parameters are bound with pgx.NamedArgs.
type Postgres struct {
	db DBTX
	// editableFunc names the database function answering per-column edit
	// permissions. When empty every column is editable.
	editableFunc string
}

// PostgresOption configures a Postgres executor.
type PostgresOption func(*Postgres)

// WithEditableFunc routes entitlement checks to a database function taking
// the column value and returning a boolean.
func WithEditableFunc(name string) PostgresOption {
	return func(p *Postgres) { p.editableFunc = name }
}

// NewPostgres creates an executor over db.
func NewPostgres(db DBTX, opts ...PostgresOption) *Postgres {
	p := &Postgres{db: db}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var editableCall = regexp.MustCompile(`\beditable\(("(?:[^"]|"")*")\)`)

// Translate rewrites a statement into PostgreSQL syntax.
func (p *Postgres) Translate(query string) string {
	q := translateBrackets(rewriteLegacyInsert(query), quotePostgres)
	if p.editableFunc == "" {
		return editableCall.ReplaceAllString(q, "TRUE")
	}
	if p.editableFunc != "editable" {
		return editableCall.ReplaceAllString(q, p.editableFunc+"($1)")
	}
	return q
}

func quotePostgres(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Execute runs one statement.
func (p *Postgres) Execute(ctx context.Context, query string, params map[string]any) (*core.Result, error) {
	sql := p.Translate(query)
	args := pgx.NamedArgs{}
	for k, v := range params {
		args[k] = toPgArg(v)
	}

	if !returnsRows(sql) {
		tag, err := p.db.Exec(ctx, sql, args)
		if err != nil {
			return nil, pgError(err)
		}
		return &core.Result{RowsAffected: tag.RowsAffected()}, nil
	}

	rows, err := p.db.Query(ctx, sql, args)
	if err != nil {
		return nil, pgError(err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	res := &core.Result{Columns: make([]string, len(fields))}
	for i, fd := range fields {
		res.Columns[i] = fd.Name
	}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(form.Row, len(values))
		for i, col := range res.Columns {
			row[col] = fromPgValue(values[i])
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, pgError(err)
	}
	res.RowsAffected = rows.CommandTag().RowsAffected()
	return res, nil
}

// pgError marks errors raised before the server saw the statement.
// Server errors already carry their SQLSTATE.
func pgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return err
	}
	if pgconn.SafeToRetry(err) {
		return fmt.Errorf("connection reset before statement was sent: %w", err)
	}
	return err
}
