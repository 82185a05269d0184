// Package executor runs bound statements against PostgreSQL under a
// read-only transaction and a statement timeout.
package executor

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-gateway/pkg/result"
	"github.com/ekaya-inc/ekaya-gateway/pkg/rewrite"
)

const (
	DefaultStatementTimeout = 30 * time.Second
	DefaultCancelGrace      = 5 * time.Second

	// cleanupTimeout bounds the rollback and close that run after the
	// request context may already be done.
	cleanupTimeout = 5 * time.Second
)

type Config struct {
	// StatementTimeout is set as the server-side statement_timeout.
	StatementTimeout time.Duration
	// CancelGrace is added to StatementTimeout for the client-side
	// deadline, giving the server time to report its own timeout first.
	CancelGrace time.Duration
}

// Executor runs one statement per call on a connection from pool. It holds
// no per-request state and is safe for concurrent use.
type Executor struct {
	pool    *pgxpool.Pool
	timeout time.Duration
	grace   time.Duration
	logger  *zap.Logger
}

func New(pool *pgxpool.Pool, cfg Config, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.StatementTimeout <= 0 {
		cfg.StatementTimeout = DefaultStatementTimeout
	}
	if cfg.CancelGrace < 0 {
		cfg.CancelGrace = DefaultCancelGrace
	}
	return &Executor{
		pool:    pool,
		timeout: cfg.StatementTimeout,
		grace:   cfg.CancelGrace,
		logger:  logger.Named("executor"),
	}
}

// Execute runs bound and returns the fully consumed result. Every error is
// an *ExecutionError. Nothing is retried.
//
// The connection goes back to the pool only when the transaction was
// rolled back cleanly; otherwise it is taken out of the pool and closed.
func (e *Executor) Execute(ctx context.Context, bound *rewrite.BoundStatement) (*result.Set, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout+e.grace)
	defer cancel()

	conn, err := e.pool.Acquire(ctx)
	if err != nil {
		return nil, classify(ctx, e.timeout, err)
	}
	reusable := false
	defer func() {
		if reusable {
			conn.Release()
			return
		}
		e.discard(conn)
	}()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, classify(ctx, e.timeout, err)
	}

	set, runErr := e.run(ctx, tx, bound)
	reusable = e.finish(ctx, conn, tx)

	if runErr != nil {
		return nil, classify(ctx, e.timeout, runErr)
	}
	return set, nil
}

func (e *Executor) run(ctx context.Context, tx pgx.Tx, bound *rewrite.BoundStatement) (*result.Set, error) {
	// SET does not accept parameters; the value is an integer we format.
	if _, err := tx.Exec(ctx, "SET LOCAL statement_timeout = "+formatMillis(e.timeout)); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, bound.SQL, args(bound.Params)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	mapper := result.NewMapper(rows.FieldDescriptions())
	set := &result.Set{Columns: mapper.Columns(), Records: []result.Record{}}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		rec, err := mapper.Map(values)
		if err != nil {
			return nil, err
		}
		set.Records = append(set.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return set, nil
}

// finish rolls the read-only transaction back and reports whether the
// connection is known to be idle and healthy.
func (e *Executor) finish(ctx context.Context, conn *pgxpool.Conn, tx pgx.Tx) bool {
	rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if err := tx.Rollback(rbCtx); err != nil {
		e.logger.Warn("Rollback failed, discarding connection", zap.Error(err))
		return false
	}
	if ctx.Err() != nil {
		// The client deadline fired, so the statement may not have been
		// aborted server-side when the driver gave up on it.
		return false
	}
	return !conn.Conn().IsClosed()
}

func (e *Executor) discard(conn *pgxpool.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	c := conn.Hijack()
	if err := c.Close(ctx); err != nil {
		e.logger.Debug("Closing discarded connection", zap.Error(err))
	}
	e.logger.Info("Connection discarded after uncertain execution state")
}

// args converts bound values to driver arguments. Decimals are sent as
// text, which PostgreSQL reads as numeric through the placeholder cast.
func args(params []any) []any {
	out := make([]any, len(params))
	for i, p := range params {
		if d, ok := p.(decimal.Decimal); ok {
			out[i] = d.String()
			continue
		}
		out[i] = p
	}
	return out
}

func formatMillis(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return strconv.FormatInt(ms, 10)
}
