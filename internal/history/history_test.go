package history

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adgenerator/internal/infra"
)

type call struct {
	query string
	args  []any
}

type stubDB struct {
	calls   []call
	rows    [][]any
	execErr error
}

func (s *stubDB) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.calls = append(s.calls, call{query: query, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), s.execErr
}

func (s *stubDB) QueryRow(_ context.Context, query string, args ...any) pgx.Row {
	s.calls = append(s.calls, call{query: query, args: args})
	return nil
}

func (s *stubDB) Query(_ context.Context, query string, args ...any) (pgx.Rows, error) {
	s.calls = append(s.calls, call{query: query, args: args})
	return &stubRows{data: s.rows, idx: -1}, nil
}

type stubRows struct {
	data   [][]any
	idx    int
	closed bool
}

func (r *stubRows) Close() { r.closed = true }
func (r *stubRows) Err() error { return nil }
func (r *stubRows) CommandTag() pgconn.CommandTag { return pgconn.NewCommandTag("SELECT") }
func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *stubRows) Values() ([]any, error) { return r.data[r.idx], nil }
func (r *stubRows) RawValues() [][]byte { return nil }
func (r *stubRows) Conn() *pgx.Conn { return nil }

func (r *stubRows) Next() bool {
	r.idx++
	return r.idx < len(r.data)
}

func (r *stubRows) Scan(dest ...any) error {
	row := r.data[r.idx]
	if len(row) != len(dest) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = row[i].(string)
		case *int:
			*p = row[i].(int)
		case *int64:
			*p = row[i].(int64)
		case *time.Time:
			*p = row[i].(time.Time)
		default:
			return errors.New("unsupported scan target")
		}
	}
	return nil
}

func newStore(db *stubDB) *Store {
	return NewStore(infra.NewSQLRunner(db, zerolog.Nop()))
}

func TestEnsureSchema(t *testing.T) {
	db := &stubDB{}
	require.NoError(t, newStore(db).EnsureSchema(context.Background()))
	require.Len(t, db.calls, 2)
	assert.Contains(t, db.calls[0].query, "create table if not exists generations")
	assert.NotContains(t, db.calls[0].query, "--sql")
}

func TestRecordStampsCreatedAt(t *testing.T) {
	db := &stubDB{}
	store := newStore(db)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	err := store.Record(context.Background(), Entry{TaskID: "task_1", Status: "completed", Files: 1, Prompts: 16, Images: 16, DurationMS: 1200})
	require.NoError(t, err)
	require.Len(t, db.calls, 1)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(db.calls[0].query), "insert into generations"))
	assert.Equal(t, "task_1", db.calls[0].args[0])
	assert.Equal(t, fixed, db.calls[0].args[8])
}

func TestRecordErrors(t *testing.T) {
	boom := errors.New("boom")
	store := newStore(&stubDB{execErr: boom})
	assert.Error(t, store.Record(context.Background(), Entry{}))
	assert.ErrorIs(t, store.Record(context.Background(), Entry{TaskID: "t"}), boom)
}

func TestRecentScansRows(t *testing.T) {
	created := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	db := &stubDB{rows: [][]any{
		{"task_2", "failed", 1, 0, 0, int64(30), "openai status 500", "Vertical: Fitness", created},
		{"task_1", "completed", 2, 32, 32, int64(9000), "", "make it pop", created.Add(-time.Hour)},
	}}
	entries, err := newStore(db).Recent(context.Background(), 500)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "task_2", entries[0].TaskID)
	assert.Equal(t, "openai status 500", entries[0].Error)
	assert.Equal(t, 32, entries[1].Images)
	assert.Equal(t, MaxLimit, db.calls[0].args[0])
}

func TestDisabledStore(t *testing.T) {
	var store *Store
	assert.False(t, store.Enabled())
	assert.ErrorIs(t, store.Record(context.Background(), Entry{TaskID: "t"}), ErrDisabled)
	_, err := store.Recent(context.Background(), 1)
	assert.ErrorIs(t, err, ErrDisabled)
	assert.ErrorIs(t, NewStore(nil).EnsureSchema(context.Background()), ErrDisabled)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, ClampLimit(0))
	assert.Equal(t, DefaultLimit, ClampLimit(-3))
	assert.Equal(t, 7, ClampLimit(7))
	assert.Equal(t, MaxLimit, ClampLimit(1000))
}
