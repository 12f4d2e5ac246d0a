package sqlrelay

import (
	"sync"

	"github.com/lexiumindustries/sqlrelay/driver"
)

// ProcedureCallResult exposes the result sets and return code of a stored
// procedure call. The owning connection stays checked out until Close,
// which releases every associated open result set in one step.
type ProcedureCallResult struct {
	rows    driver.Rows
	shapes  []RowShape
	retDest *int64
	release func(broken bool)

	idx     int
	current *RowStream
	closed  bool
	once    sync.Once
}

func newProcedureCallResult(rows driver.Rows, shapes []RowShape, retDest *int64, release func(bool)) *ProcedureCallResult {
	return &ProcedureCallResult{rows: rows, shapes: shapes, retDest: retDest, release: release}
}

// NextResultSet returns the stream over the next result set, in the order
// the procedure produced them, or nil when none remain. The previous
// stream's unread rows are drained first; result sets cannot be revisited.
func (r *ProcedureCallResult) NextResultSet() (*RowStream, error) {
	if r.closed {
		return nil, &ApplicationError{msg: "procedure result is closed"}
	}
	if r.current != nil {
		if err := r.current.Close(); err != nil {
			return nil, classify(err)
		}
		if !r.rows.NextResultSet() {
			if err := r.rows.Err(); err != nil {
				return nil, classify(err)
			}
			return nil, nil
		}
	}
	var shape RowShape
	if r.idx < len(r.shapes) {
		shape = r.shapes[r.idx]
	}
	r.idx++
	// Sub-streams drain their set on close; the cursor and connection are
	// released by ProcedureCallResult.Close alone.
	r.current = newRowStream(r.rows, shape, r.drainSet, func(bool) {})
	return r.current, nil
}

// Status returns the procedure's return code when one was bound with
// Return; zero otherwise. Read it after the result is closed.
func (r *ProcedureCallResult) Status() int64 {
	if r.retDest == nil {
		return 0
	}
	return *r.retDest
}

// Close drains and releases every open result set and returns the owning
// connection to the pool exactly once. Idempotent.
func (r *ProcedureCallResult) Close() error {
	var err error
	r.once.Do(func() {
		r.closed = true
		err = r.rows.Close()
		r.release(false)
	})
	return err
}

// drainSet consumes the remaining rows of the current result set without
// closing the cursor, so the following set stays reachable.
func (r *ProcedureCallResult) drainSet() error {
	for r.rows.Next() {
	}
	return r.rows.Err()
}
