// Package gateway runs the full pipeline for one untrusted candidate:
// parse, validate, rewrite, execute, map.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-gateway/pkg/audit"
	"github.com/ekaya-inc/ekaya-gateway/pkg/catalog"
	"github.com/ekaya-inc/ekaya-gateway/pkg/executor"
	"github.com/ekaya-inc/ekaya-gateway/pkg/logging"
	"github.com/ekaya-inc/ekaya-gateway/pkg/policy"
	"github.com/ekaya-inc/ekaya-gateway/pkg/result"
	"github.com/ekaya-inc/ekaya-gateway/pkg/rewrite"
	"github.com/ekaya-inc/ekaya-gateway/pkg/sql"
)

// Runner executes a bound statement. *executor.Executor implements it.
type Runner interface {
	Execute(ctx context.Context, bound *rewrite.BoundStatement) (*result.Set, error)
}

// CatalogSource returns the current catalog. *catalog.Store implements it.
type CatalogSource interface {
	Current() (*catalog.Catalog, error)
}

// Prepared is a candidate that passed validation and was rewritten, but
// not executed.
type Prepared struct {
	RequestID string `json:"request_id"`
	SQL       string `json:"sql"`
	Params    []any  `json:"params"`

	bound *rewrite.BoundStatement
}

// Result is a successful execution.
type Result struct {
	RequestID string          `json:"request_id"`
	SQL       string          `json:"sql"`
	Columns   []result.Column `json:"columns"`
	Rows      []result.Record `json:"rows"`
	RowCount  int             `json:"row_count"`
}

// Service is the gateway as seen by the transports.
type Service interface {
	// Prepare validates and rewrites candidate without executing it.
	Prepare(ctx context.Context, candidate string) (*Prepared, error)
	// Run prepares candidate and executes it.
	Run(ctx context.Context, candidate string) (*Result, error)
	// DescribeSchema renders the catalog for the SQL generator. maxTables
	// <= 0 means all tables.
	DescribeSchema(ctx context.Context, maxTables int) (string, error)
}

type Config struct {
	// AuditExecutions logs every successful execution to the security
	// audit log.
	AuditExecutions bool
}

type gatewayService struct {
	parser    sql.Parser
	validator *policy.Validator
	catalogs  CatalogSource
	runner    Runner
	auditor   *audit.SecurityAuditor
	cfg       Config
	logger    *zap.Logger
}

// NewService wires the pipeline. The rewrite ceiling is the validator's
// MaxLimit so a limit that validates never fails to rewrite.
func NewService(
	parser sql.Parser,
	validator *policy.Validator,
	catalogs CatalogSource,
	runner Runner,
	auditor *audit.SecurityAuditor,
	cfg Config,
	logger *zap.Logger,
) Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if auditor == nil {
		auditor = audit.NewSecurityAuditor(logger)
	}
	return &gatewayService{
		parser:    parser,
		validator: validator,
		catalogs:  catalogs,
		runner:    runner,
		auditor:   auditor,
		cfg:       cfg,
		logger:    logger.Named("gateway"),
	}
}

func (g *gatewayService) Prepare(ctx context.Context, candidate string) (*Prepared, error) {
	ctx, info := audit.EnsureRequest(ctx, "")
	return g.prepare(ctx, info, candidate)
}

func (g *gatewayService) prepare(ctx context.Context, info audit.RequestInfo, candidate string) (*Prepared, error) {
	stmt, err := g.parser.Parse(candidate)
	if err != nil {
		var syntaxErr *sql.SyntaxError
		if errors.As(err, &syntaxErr) {
			g.auditor.LogSyntaxRejection(ctx, audit.SyntaxDetails{
				Message:  syntaxErr.Message,
				Position: syntaxErr.Position,
				SQL:      candidate,
			})
		}
		return nil, err
	}

	cat, err := g.catalogs.Current()
	if err != nil {
		return nil, err
	}

	approved, err := g.validator.Validate(stmt, cat)
	if err != nil {
		g.auditViolation(ctx, err, candidate)
		return nil, err
	}

	// Untrusted text has no parameter channel; a placeholder would be
	// bound to one of our extracted literals.
	if n := approved.MaxParam(); n > 0 {
		viol := &policy.Violation{
			Kind:   policy.ForbiddenConstruct,
			Object: fmt.Sprintf("$%d", n),
			Detail: "bind parameters are not accepted in candidate SQL; write constants inline",
		}
		g.auditViolation(ctx, viol, candidate)
		return nil, viol
	}

	bound, err := rewrite.Rewrite(approved, g.validator.MaxLimit())
	if err != nil {
		g.auditViolation(ctx, err, candidate)
		return nil, err
	}

	for _, hit := range sql.CheckAllParameters(bound.Params, 0) {
		g.auditor.LogSuspiciousParameter(ctx, audit.ParameterDetails{
			Position:    hit.Position,
			Value:       fmt.Sprint(bound.Params[hit.Position-1]),
			Fingerprint: hit.Fingerprint,
		})
	}

	g.logger.Debug("Candidate approved",
		zap.String("request_id", info.ID),
		zap.String("sql", logging.SanitizeQuery(bound.SQL)),
		zap.Int("params", len(bound.Params)))

	return &Prepared{
		RequestID: info.ID,
		SQL:       bound.SQL,
		Params:    bound.Params,
		bound:     bound,
	}, nil
}

func (g *gatewayService) Run(ctx context.Context, candidate string) (*Result, error) {
	ctx, info := audit.EnsureRequest(ctx, "")

	prepared, err := g.prepare(ctx, info, candidate)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	set, err := g.runner.Execute(ctx, prepared.bound)
	elapsed := time.Since(start)
	if err != nil {
		g.auditFailure(ctx, err, prepared.SQL, elapsed)
		return nil, err
	}

	if g.cfg.AuditExecutions {
		g.auditor.LogQueryExecution(ctx, audit.ExecutionDetails{
			SQL:        prepared.SQL,
			ParamCount: len(prepared.Params),
			RowCount:   set.Len(),
			DurationMS: elapsed.Milliseconds(),
		})
	}

	g.logger.Debug("Candidate executed",
		zap.String("request_id", info.ID),
		zap.Int("rows", set.Len()),
		zap.Duration("elapsed", elapsed))

	return &Result{
		RequestID: info.ID,
		SQL:       prepared.SQL,
		Columns:   set.Columns,
		Rows:      set.Records,
		RowCount:  set.Len(),
	}, nil
}

func (g *gatewayService) DescribeSchema(ctx context.Context, maxTables int) (string, error) {
	cat, err := g.catalogs.Current()
	if err != nil {
		return "", err
	}
	return cat.Describe(maxTables), nil
}

func (g *gatewayService) auditViolation(ctx context.Context, err error, candidate string) {
	var viol *policy.Violation
	if !errors.As(err, &viol) {
		return
	}
	g.auditor.LogPolicyViolation(ctx, audit.ViolationDetails{
		Kind:   string(viol.Kind),
		Object: viol.Object,
		Detail: viol.Detail,
		SQL:    candidate,
	})
}

func (g *gatewayService) auditFailure(ctx context.Context, err error, boundSQL string, elapsed time.Duration) {
	details := audit.FailureDetails{
		Kind:       "unknown",
		SQL:        boundSQL,
		DurationMS: elapsed.Milliseconds(),
	}
	var execErr *executor.ExecutionError
	if errors.As(err, &execErr) {
		details.Kind = string(execErr.Kind)
		details.Code = execErr.Code
		if execErr.Kind == executor.DatabaseError {
			details.Message = execErr.Message
		}
	}
	g.auditor.LogExecutionFailure(ctx, details)
}
