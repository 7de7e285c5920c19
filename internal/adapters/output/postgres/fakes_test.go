package postgres

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var errFakeScanMismatch = errors.New("fake scan mismatch")

type call struct {
	sql  string
	args []any
}

// fakeExecutor answers Exec/QueryRow/Query from queues, in call order.
type fakeExecutor struct {
	execResults []execResult
	rows        []pgx.Row
	queryRows   *fakeRows
	queryErr    error

	execCalls  []call
	rowCalls   []call
	queryCalls []call
}

type execResult struct {
	tag pgconn.CommandTag
	err error
}

func (f *fakeExecutor) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execCalls = append(f.execCalls, call{sql: sql, args: args})
	if len(f.execResults) == 0 {
		return pgconn.NewCommandTag("UPDATE 1"), nil
	}
	res := f.execResults[0]
	f.execResults = f.execResults[1:]
	return res.tag, res.err
}

func (f *fakeExecutor) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.rowCalls = append(f.rowCalls, call{sql: sql, args: args})
	if len(f.rows) == 0 {
		return &fakeRow{err: pgx.ErrNoRows}
	}
	row := f.rows[0]
	f.rows = f.rows[1:]
	return row
}

func (f *fakeExecutor) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.queryCalls = append(f.queryCalls, call{sql: sql, args: args})
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if f.queryRows == nil {
		return &fakeRows{}, nil
	}
	return f.queryRows, nil
}

type fakeRow struct {
	values []any
	err    error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(r.values, dest)
}

// assign copies values into dest pointers. nil leaves the zero value, and a
// plain value is boxed when the destination is a pointer field.
func assign(values []any, dest []any) error {
	if len(dest) != len(values) {
		return fmt.Errorf("%w: dest=%d values=%d", errFakeScanMismatch, len(dest), len(values))
	}
	for i, d := range dest {
		target := reflect.ValueOf(d).Elem()
		if values[i] == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		v := reflect.ValueOf(values[i])
		switch {
		case v.Type().AssignableTo(target.Type()):
			target.Set(v)
		case target.Kind() == reflect.Ptr && v.Type().AssignableTo(target.Type().Elem()):
			p := reflect.New(target.Type().Elem())
			p.Elem().Set(v)
			target.Set(p)
		default:
			return fmt.Errorf("%w: column %d: %T into %s", errFakeScanMismatch, i, values[i], target.Type())
		}
	}
	return nil
}

type fakeRows struct {
	data   [][]any
	pos    int
	err    error
	closed bool
}

func (r *fakeRows) Close()                                       { r.closed = true }
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	return assign(r.data[r.pos-1], dest)
}

func (r *fakeRows) Values() ([]any, error) {
	return r.data[r.pos-1], nil
}
