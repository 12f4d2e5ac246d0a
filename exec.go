package sqlrelay

import (
	"context"
	"database/sql"
)

// ExecutionResult summarizes a completed DML or DDL statement.
type ExecutionResult struct {
	// AffectedRows is -1 when the driver cannot report it.
	AffectedRows int64
	// LastInsertID is nil when the driver or statement produced none.
	LastInsertID *int64
}

// Query runs a statement that returns rows. The connection stays checked
// out until the returned stream is exhausted or closed; both release it
// exactly once. shape may be the zero value to stream raw driver values.
func (c *Client) Query(ctx context.Context, stmt BoundStatement, shape RowShape) (*RowStream, error) {
	l, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := l.conn.QueryContext(l.ctx, rewritePlaceholders(stmt.query, c.drv.Placeholder()), stmt.args)
	if err != nil {
		l.release(isBroken(err))
		return nil, classify(err)
	}
	c.log.Debug("query dispatched", "conn_id", l.conn.ID())
	return newRowStream(rows, shape, rows.Close, l.release), nil
}

// QueryRow runs a statement expected to return a single row. With no rows
// it fails with a DatabaseError carrying SQLSTATE 02000.
func (c *Client) QueryRow(ctx context.Context, stmt BoundStatement, shape RowShape) (Row, error) {
	stream, err := c.Query(ctx, stmt, shape)
	if err != nil {
		return Row{}, err
	}
	defer stream.Close()
	if !stream.Next() {
		if err := stream.Err(); err != nil {
			return Row{}, classify(err)
		}
		return Row{}, classify(sql.ErrNoRows)
	}
	return stream.Row()
}

// Execute runs a statement that returns no rows and releases the connection
// before returning.
func (c *Client) Execute(ctx context.Context, stmt BoundStatement) (ExecutionResult, error) {
	l, err := c.begin(ctx)
	if err != nil {
		return ExecutionResult{}, err
	}
	res, err := c.execOn(l, stmt)
	l.release(isBroken(err))
	if err != nil {
		return ExecutionResult{}, classify(err)
	}
	return res, nil
}

// BatchExecute runs the statements in submission order over one connection.
// An empty batch is rejected before any connection is acquired. On failure
// the returned BatchExecuteError carries the results of the statements that
// completed; with Options.BatchContinueOnError the remaining statements
// still run and every failing index is reported.
func (c *Client) BatchExecute(ctx context.Context, stmts []BoundStatement) ([]ExecutionResult, error) {
	if len(stmts) == 0 {
		return nil, &ApplicationError{msg: "batch must contain at least one statement", err: ErrEmptyBatch}
	}
	l, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]ExecutionResult, 0, len(stmts))
	var failed []int
	var cause error
	for i, stmt := range stmts {
		res, err := c.execOn(l, stmt)
		if err != nil {
			failed = append(failed, i)
			if cause == nil {
				cause = err
			}
			if !c.opts.BatchContinueOnError || isBroken(err) {
				break
			}
			continue
		}
		results = append(results, res)
	}
	l.release(isBroken(cause))

	if cause != nil {
		c.log.Debug("batch failed", "completed", len(results), "failed", failed)
		return results, newBatchError(cause, results, failed)
	}
	return results, nil
}

func (c *Client) execOn(l *lease, stmt BoundStatement) (ExecutionResult, error) {
	res, err := l.conn.ExecContext(l.ctx, rewritePlaceholders(stmt.query, c.drv.Placeholder()), stmt.args)
	if err != nil {
		return ExecutionResult{}, err
	}
	out := ExecutionResult{AffectedRows: -1}
	if n, err := res.RowsAffected(); err == nil {
		out.AffectedRows = n
	}
	if id, err := res.LastInsertId(); err == nil && id != 0 {
		out.LastInsertID = &id
	}
	return out, nil
}

func newBatchError(cause error, partial []ExecutionResult, failed []int) *BatchExecuteError {
	be := &BatchExecuteError{Partial: partial, Failed: failed}
	if dbe, ok := classify(cause).(*DatabaseError); ok {
		be.DatabaseError = *dbe
	} else {
		be.DatabaseError = DatabaseError{Message: cause.Error(), err: cause}
	}
	return be
}

// Call invokes a stored procedure that may produce several result sets,
// shapes[i] applying to set i. The connection stays checked out until the
// returned result is closed; output parameters bound with OutParam or
// Return are populated by then.
func (c *Client) Call(ctx context.Context, stmt BoundStatement, shapes []RowShape) (*ProcedureCallResult, error) {
	l, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := l.conn.QueryContext(l.ctx, rewritePlaceholders(stmt.query, c.drv.Placeholder()), stmt.args)
	if err != nil {
		l.release(isBroken(err))
		return nil, classify(err)
	}
	c.log.Debug("procedure dispatched", "conn_id", l.conn.ID(), "result_shapes", len(shapes))
	return newProcedureCallResult(rows, shapes, stmt.retDest, l.release), nil
}
