package infra

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// SQLExecutor defines the contract required by stores for executing SQL
// queries. *pgxpool.Pool satisfies it.
type SQLExecutor interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
}

// ErrSQLMarker is returned for queries without a leading `--sql <uuid>` line.
var ErrSQLMarker = errors.New("sql marker missing or invalid")

var errEmptyQuery = errors.New("empty query")

var markerRegexp = regexp.MustCompile(`^--sql ([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})$`)

// DefaultSlowQuery is the duration above which a statement is logged at warn.
const DefaultSlowQuery = 500 * time.Millisecond

// SQLRunner requires every statement to carry a marker line, strips it and
// logs the statement outcome keyed by that marker.
type SQLRunner struct {
	DB        SQLExecutor
	Logger    zerolog.Logger
	SlowQuery time.Duration
	now       func() time.Time
}

func NewSQLRunner(db SQLExecutor, logger zerolog.Logger) *SQLRunner {
	return &SQLRunner{DB: db, Logger: logger, SlowQuery: DefaultSlowQuery, now: time.Now}
}

type statement struct {
	marker string
	op     string
	sql    string
	start  time.Time
}

func (r *SQLRunner) prepare(op, query string) (statement, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return statement{}, errEmptyQuery
	}
	head, body, _ := strings.Cut(trimmed, "\n")
	m := markerRegexp.FindStringSubmatch(strings.TrimSpace(head))
	if m == nil {
		r.Logger.Error().Str("op", op).Msg("sql: statement without marker rejected")
		return statement{}, ErrSQLMarker
	}
	return statement{marker: m[1], op: op, sql: body, start: r.clock()}, nil
}

// finish logs the statement outcome. rows is negative when unknown.
func (r *SQLRunner) finish(st statement, rows int64, err error) {
	elapsed := r.clock().Sub(st.start)
	var ev *zerolog.Event
	switch {
	case err != nil && !errors.Is(err, pgx.ErrNoRows):
		ev = r.Logger.Error().Err(err)
	case r.SlowQuery > 0 && elapsed > r.SlowQuery:
		ev = r.Logger.Warn()
	default:
		ev = r.Logger.Debug()
	}
	ev = ev.Str("sql_marker", st.marker).Str("op", st.op).Dur("duration_ms", elapsed)
	if rows >= 0 {
		ev = ev.Int64("rows", rows)
	}
	ev.Msg("sql")
}

func (r *SQLRunner) clock() time.Time {
	if r.now == nil {
		return time.Now()
	}
	return r.now()
}

func (r *SQLRunner) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	st, err := r.prepare("exec", query)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	tag, err := r.DB.Exec(ctx, st.sql, args...)
	rows := int64(-1)
	if err == nil {
		rows = tag.RowsAffected()
	}
	r.finish(st, rows, err)
	return tag, err
}

func (r *SQLRunner) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	st, err := r.prepare("query_row", query)
	if err != nil {
		return errorRow{err: err}
	}
	return &trackedRow{row: r.DB.QueryRow(ctx, st.sql, args...), runner: r, st: st}
}

func (r *SQLRunner) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	st, err := r.prepare("query", query)
	if err != nil {
		return nil, err
	}
	rows, err := r.DB.Query(ctx, st.sql, args...)
	if err != nil {
		r.finish(st, -1, err)
		return nil, err
	}
	return &trackedRows{Rows: rows, runner: r, st: st}, nil
}

type trackedRow struct {
	row    pgx.Row
	runner *SQLRunner
	st     statement
}

func (t *trackedRow) Scan(dest ...any) error {
	err := t.row.Scan(dest...)
	rows := int64(1)
	if err != nil {
		rows = 0
	}
	t.runner.finish(t.st, rows, err)
	return err
}

// trackedRows counts rows read and logs once on Close.
type trackedRows struct {
	pgx.Rows
	runner *SQLRunner
	st     statement
	read   int64
	closed bool
}

func (t *trackedRows) Next() bool {
	if t.Rows.Next() {
		t.read++
		return true
	}
	return false
}

func (t *trackedRows) Close() {
	t.Rows.Close()
	if t.closed {
		return
	}
	t.closed = true
	t.runner.finish(t.st, t.read, t.Rows.Err())
}

type errorRow struct {
	err error
}

func (e errorRow) Scan(...any) error {
	return e.err
}

var _ SQLExecutor = (*SQLRunner)(nil)
