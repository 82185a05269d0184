package executor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Kind classifies an execution failure.
type Kind string

const (
	Timeout           Kind = "timeout"
	ConnectionFailure Kind = "connection_failure"
	DatabaseError     Kind = "database_error"
)

// ExecutionError is the only error type Execute returns. Code and Message
// carry the server's SQLSTATE and text for DatabaseError; the other kinds
// never expose raw database text.
type ExecutionError struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *ExecutionError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (SQLSTATE %s)", e.Kind, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

var connectionStates = map[string]bool{
	"57P01": true, // admin_shutdown
	"57P02": true, // crash_shutdown
	"57P03": true, // cannot_connect_now
}

// classify maps a driver error to the execution taxonomy. ctx is the
// execution context, consulted when the driver reports a bare I/O error
// after the deadline fired.
func classify(ctx context.Context, timeout time.Duration, err error) *ExecutionError {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr
	}

	timedOut := &ExecutionError{
		Kind:    Timeout,
		Message: fmt.Sprintf("statement exceeded the %s timeout", timeout),
		Err:     err,
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "57014":
			return timedOut
		case strings.HasPrefix(pgErr.Code, "08") || connectionStates[pgErr.Code]:
			return &ExecutionError{Kind: ConnectionFailure, Message: "database connection lost", Err: err}
		}
		return &ExecutionError{Kind: DatabaseError, Code: pgErr.Code, Message: pgErr.Message, Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) ||
		errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return timedOut
	}
	if errors.Is(err, context.Canceled) {
		return &ExecutionError{Kind: ConnectionFailure, Message: "execution cancelled", Err: err}
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return &ExecutionError{Kind: ConnectionFailure, Message: "could not connect to database", Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return timedOut
	}
	if netErr != nil || isClosedConn(err) {
		return &ExecutionError{Kind: ConnectionFailure, Message: "database connection lost", Err: err}
	}

	return &ExecutionError{Kind: DatabaseError, Message: err.Error(), Err: err}
}

func isClosedConn(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "conn closed") ||
		strings.Contains(msg, "closed pool") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "unexpected eof")
}
