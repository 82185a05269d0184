package executor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutNetError struct{}

func (timeoutNetError) Error() string   { return "i/o timeout" }
func (timeoutNetError) Timeout() bool   { return true }
func (timeoutNetError) Temporary() bool { return false }

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind Kind
		wantCode string
	}{
		{
			name:     "statement timeout",
			err:      &pgconn.PgError{Code: "57014", Message: "canceling statement due to statement timeout"},
			wantKind: Timeout,
		},
		{
			name:     "wrapped statement timeout",
			err:      fmt.Errorf("query: %w", &pgconn.PgError{Code: "57014"}),
			wantKind: Timeout,
		},
		{
			name:     "context deadline",
			err:      fmt.Errorf("read: %w", context.DeadlineExceeded),
			wantKind: Timeout,
		},
		{
			name:     "net timeout",
			err:      &net.OpError{Op: "read", Err: timeoutNetError{}},
			wantKind: Timeout,
		},
		{
			name:     "admin shutdown",
			err:      &pgconn.PgError{Code: "57P01", Message: "terminating connection due to administrator command"},
			wantKind: ConnectionFailure,
		},
		{
			name:     "connection exception class",
			err:      &pgconn.PgError{Code: "08006"},
			wantKind: ConnectionFailure,
		},
		{
			name:     "network error",
			err:      &net.OpError{Op: "dial", Err: errors.New("connection refused")},
			wantKind: ConnectionFailure,
		},
		{
			name:     "closed connection",
			err:      errors.New("conn closed"),
			wantKind: ConnectionFailure,
		},
		{
			name:     "caller cancelled",
			err:      context.Canceled,
			wantKind: ConnectionFailure,
		},
		{
			name:     "undefined column",
			err:      &pgconn.PgError{Code: "42703", Message: `column "nope" does not exist`},
			wantKind: DatabaseError,
			wantCode: "42703",
		},
		{
			name:     "read-only transaction",
			err:      &pgconn.PgError{Code: "25006", Message: "cannot execute INSERT in a read-only transaction"},
			wantKind: DatabaseError,
			wantCode: "25006",
		},
		{
			name:     "division by zero",
			err:      &pgconn.PgError{Code: "22012", Message: "division by zero"},
			wantKind: DatabaseError,
			wantCode: "22012",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(context.Background(), time.Second, tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantKind, got.Kind)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestClassify_DeadlineFromContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	got := classify(ctx, 2*time.Second, errors.New("unexpected EOF reading message"))
	assert.Equal(t, Timeout, got.Kind)
	assert.Equal(t, "statement exceeded the 2s timeout", got.Message)
}

func TestClassify_OnlyDatabaseErrorCarriesServerText(t *testing.T) {
	conn := classify(context.Background(), time.Second, &pgconn.PgError{Code: "08006", Message: "secret host detail"})
	assert.NotContains(t, conn.Error(), "secret host detail")

	db := classify(context.Background(), time.Second, &pgconn.PgError{Code: "42P01", Message: `relation "x" does not exist`})
	assert.Equal(t, `database_error: relation "x" does not exist (SQLSTATE 42P01)`, db.Error())
}

func TestClassify_PassesThroughExecutionError(t *testing.T) {
	in := &ExecutionError{Kind: Timeout, Message: "already classified"}
	assert.Same(t, in, classify(context.Background(), time.Second, fmt.Errorf("wrap: %w", in)))
}

func TestArgs_DecimalsAsText(t *testing.T) {
	out := args([]any{"x", int64(3), true, decimal.RequireFromString("10.50")})
	assert.Equal(t, []any{"x", int64(3), true, "10.5"}, out)
}

func TestFormatMillis(t *testing.T) {
	assert.Equal(t, "30000", formatMillis(30*time.Second))
	assert.Equal(t, "250", formatMillis(250*time.Millisecond))
	assert.Equal(t, "1", formatMillis(time.Microsecond))
}
