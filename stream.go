package sqlrelay

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lexiumindustries/sqlrelay/driver"
)

// ColumnShape names one expected result column and the type its values are
// coerced to. TypeAuto passes driver values through unchanged.
type ColumnShape struct {
	Name string
	Kind TypeCode
}

// RowShape describes the record a caller expects from a stream. The zero
// value applies no checking and no coercion.
type RowShape struct {
	Columns []ColumnShape
}

// Row is one decoded result record: column names in cursor order plus their
// values.
type Row struct {
	columns []string
	values  []any
}

// Columns returns the column names in cursor order.
func (r Row) Columns() []string { return r.columns }

// Values returns the decoded values in cursor order.
func (r Row) Values() []any { return r.values }

// Get returns the value of the named column.
func (r Row) Get(name string) (any, bool) {
	for i, c := range r.columns {
		if c == name {
			return r.values[i], true
		}
	}
	return nil, false
}

// RowStream is a lazy, forward-only sequence of decoded rows tied to a live
// cursor. One wire row is decoded per Next call; nothing is prefetched.
// A RowStream is not safe for concurrent use.
type RowStream struct {
	rows    driver.Rows
	shape   RowShape
	closeFn func() error
	release func(broken bool)

	cols    []string
	current Row
	rowErr  error
	err     error
	closed  bool
	once    sync.Once
}

func newRowStream(rows driver.Rows, shape RowShape, closeFn func() error, release func(bool)) *RowStream {
	return &RowStream{rows: rows, shape: shape, closeFn: closeFn, release: release}
}

// Next advances to the next row, decoding it against the stream's shape.
// It returns false at end of stream or on an iteration error; exhaustion
// releases the underlying connection.
func (s *RowStream) Next() bool {
	if s.closed {
		return false
	}
	if !s.rows.Next() {
		s.err = s.rows.Err()
		_ = s.Close()
		return false
	}
	s.current, s.rowErr = s.decode()
	return true
}

// Row returns the current record. A shape mismatch or an uncoercible value
// fails this row only; the stream position is unaffected and the caller may
// keep iterating.
func (s *RowStream) Row() (Row, error) {
	return s.current, s.rowErr
}

// Err returns the iteration error that ended the stream, if any. Per-row
// decode errors are reported by Row instead.
func (s *RowStream) Err() error { return classify(s.err) }

// Close releases the cursor and returns the owning connection to the pool.
// It is idempotent and safe to call after natural exhaustion; the
// connection is released exactly once either way.
func (s *RowStream) Close() error {
	var err error
	s.once.Do(func() {
		s.closed = true
		err = s.closeFn()
		s.release(isBroken(s.err))
	})
	return err
}

func (s *RowStream) decode() (Row, error) {
	if s.cols == nil {
		cols, err := s.rows.Columns()
		if err != nil {
			return Row{}, classify(err)
		}
		s.cols = cols
	}
	values := make([]any, len(s.cols))
	dest := make([]any, len(s.cols))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := s.rows.Scan(dest...); err != nil {
		return Row{}, classify(err)
	}
	if len(s.shape.Columns) == 0 {
		return Row{columns: s.cols, values: values}, nil
	}
	if len(s.shape.Columns) != len(s.cols) {
		return Row{}, appErrorf("row has %d columns, shape expects %d", len(s.cols), len(s.shape.Columns))
	}
	for i, col := range s.shape.Columns {
		if col.Name != "" && col.Name != s.cols[i] {
			return Row{}, appErrorf("column %d is %q, shape expects %q", i, s.cols[i], col.Name)
		}
		v, err := coerceValue(values[i], col.Kind)
		if err != nil {
			return Row{}, appErrorf("column %q: %v", s.cols[i], err)
		}
		values[i] = v
	}
	return Row{columns: s.cols, values: values}, nil
}

// coerceValue converts a raw driver value into the requested kind.
func coerceValue(v any, kind TypeCode) (any, error) {
	if kind == TypeAuto || v == nil {
		return v, nil
	}
	switch kind {
	case TypeInt:
		switch t := v.(type) {
		case int64:
			return t, nil
		case []byte:
			return parseInt(string(t))
		case string:
			return parseInt(t)
		}
	case TypeFloat:
		switch t := v.(type) {
		case float64:
			return t, nil
		case int64:
			return float64(t), nil
		case []byte:
			return parseFloat(string(t))
		case string:
			return parseFloat(t)
		}
	case TypeDecimal:
		switch t := v.(type) {
		case []byte:
			return parseDecimal(string(t))
		case string:
			return parseDecimal(t)
		case int64:
			return decimal.NewFromInt(t), nil
		case float64:
			return decimal.NewFromFloat(t), nil
		}
	case TypeString:
		switch t := v.(type) {
		case string:
			return t, nil
		case []byte:
			return string(t), nil
		}
	case TypeBytes:
		switch t := v.(type) {
		case []byte:
			return t, nil
		case string:
			return []byte(t), nil
		}
	case TypeBool:
		switch t := v.(type) {
		case bool:
			return t, nil
		case int64:
			return t != 0, nil
		case []byte:
			return parseBool(string(t))
		case string:
			return parseBool(t)
		}
	case TypeTime:
		switch t := v.(type) {
		case time.Time:
			return t, nil
		case []byte:
			return parseTime(string(t))
		case string:
			return parseTime(t)
		}
	case TypeNull:
		return nil, fmt.Errorf("non-null value %v where null expected", v)
	}
	return nil, fmt.Errorf("cannot decode %T as %s", v, kind)
}

func parseInt(s string) (any, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("cannot decode %q as int", s)
	}
	return n, nil
}

func parseFloat(s string) (any, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("cannot decode %q as float", s)
	}
	return f, nil
}

func parseDecimal(s string) (any, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("cannot decode %q as decimal", s)
	}
	return d, nil
}

func parseBool(s string) (any, error) {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, fmt.Errorf("cannot decode %q as bool", s)
	}
	return b, nil
}

func parseTime(s string) (any, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return nil, fmt.Errorf("cannot decode %q as time", s)
}
