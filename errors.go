package sqlrelay

import (
	"context"
	"database/sql"
	sqldriver "database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"github.com/lexiumindustries/sqlrelay/internal/pool"
)

var (
	// ErrClientClosed marks operations attempted after Close.
	ErrClientClosed = errors.New("sqlrelay: client is closed")

	// ErrEmptyBatch marks a BatchExecute call with no statements.
	ErrEmptyBatch = errors.New("sqlrelay: batch contains no statements")
)

// ApplicationError reports local misuse of the library: operations on a
// closed client, empty batches, parameter arity mismatches, unsupported
// parameter types, shape mismatches. It is always raised before any network
// traffic for the failing call.
type ApplicationError struct {
	msg string
	err error
}

func (e *ApplicationError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *ApplicationError) Unwrap() error { return e.err }

func appErrorf(format string, args ...any) *ApplicationError {
	return &ApplicationError{msg: fmt.Sprintf(format, args...)}
}

// ConnectionError reports transport-level failures: pool exhaustion,
// network faults, timeouts, use after pool shutdown.
type ConnectionError struct {
	msg string
	err error
}

func (e *ConnectionError) Error() string { return "connection error: " + e.msg }

func (e *ConnectionError) Unwrap() error { return e.err }

// DatabaseError carries an engine-reported fault together with its SQL
// state and vendor code, when the driver surfaces them.
type DatabaseError struct {
	Message  string
	SQLState string
	Code     int64

	err error
}

func (e *DatabaseError) Error() string {
	if e.SQLState != "" {
		return fmt.Sprintf("database error (SQLSTATE %s): %s", e.SQLState, e.Message)
	}
	return "database error: " + e.Message
}

func (e *DatabaseError) Unwrap() error { return e.err }

// BatchExecuteError reports a batch that did not run to completion.
// Partial holds the results of the statements that completed, in submission
// order; callers must inspect it to learn how much of the batch took effect.
type BatchExecuteError struct {
	DatabaseError

	// Partial holds one ExecutionResult per completed statement.
	Partial []ExecutionResult
	// Failed holds the indexes of the statements that failed. Without
	// ContinueOnError the batch stopped at Failed[0].
	Failed []int
}

func (e *BatchExecuteError) Error() string {
	return fmt.Sprintf("batch failed at statement %d after %d completed: %s",
		e.Failed[0], len(e.Partial), e.Message)
}

// classify maps any failure surfaced from the pool, the driver or local
// validation into the error taxonomy. Mapping is deterministic and keeps the
// original error in the chain.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch err.(type) {
	case *ApplicationError, *ConnectionError, *DatabaseError, *BatchExecuteError:
		return err
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return &DatabaseError{
			Message:  myErr.Message,
			SQLState: sqlState(myErr.SQLState),
			Code:     int64(myErr.Number),
			err:      err,
		}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &DatabaseError{
			Message:  pqErr.Message,
			SQLState: string(pqErr.Code),
			err:      err,
		}
	}
	if errors.Is(err, sql.ErrNoRows) {
		return &DatabaseError{Message: "no rows in result set", SQLState: "02000", err: err}
	}
	if isConnErr(err) {
		return &ConnectionError{msg: err.Error(), err: err}
	}
	// Anything else came back from the engine through the driver.
	return &DatabaseError{Message: err.Error(), err: err}
}

func isConnErr(err error) bool {
	if errors.Is(err, pool.ErrTimeout) || errors.Is(err, pool.ErrClosed) ||
		errors.Is(err, sqldriver.ErrBadConn) || errors.Is(err, io.EOF) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// isBroken reports whether the connection the error came from should be
// discarded instead of returned to the pool.
func isBroken(err error) bool {
	if err == nil {
		return false
	}
	return isConnErr(err)
}

func sqlState(b [5]byte) string {
	if b == [5]byte{} {
		return ""
	}
	return string(b[:])
}
