// Package audit provides security audit logging for SIEM consumption.
// Every gateway decision about an untrusted candidate statement is logged
// as a structured event with a JSON copy for easy parsing.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ekaya-inc/ekaya-gateway/pkg/logging"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventPolicyViolation is logged when a candidate parses but breaks the
	// safety policy.
	EventPolicyViolation SecurityEventType = "policy_violation"
	// EventSyntaxRejection is logged when a candidate is not exactly one
	// parseable statement.
	EventSyntaxRejection SecurityEventType = "syntax_rejection"
	// EventSuspiciousParameter is logged when an extracted literal looks
	// like SQL injection. The value is still bound as data.
	EventSuspiciousParameter SecurityEventType = "suspicious_parameter"
	// EventQueryExecution is logged for successful executions when enabled
	// (can be high volume).
	EventQueryExecution SecurityEventType = "query_execution"
	// EventExecutionFailure is logged when an approved statement fails in
	// the database.
	EventExecutionFailure SecurityEventType = "execution_failure"
)

// SecurityEvent represents an auditable security event with all relevant context
// for SIEM ingestion and analysis.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	RequestID string            `json:"request_id"`
	Source    string            `json:"source,omitempty"`
	Caller    string            `json:"caller,omitempty"`
	ClientIP  string            `json:"client_ip,omitempty"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"` // info, warning, critical
}

// ViolationDetails describes a rejected candidate.
type ViolationDetails struct {
	Kind   string `json:"kind"`
	Object string `json:"object,omitempty"`
	Detail string `json:"detail"`
	SQL    string `json:"sql"`
}

// SyntaxDetails describes a candidate that failed to parse.
type SyntaxDetails struct {
	Message  string `json:"message"`
	Position int    `json:"position,omitempty"`
	SQL      string `json:"sql"`
}

// ParameterDetails describes an extracted literal flagged by libinjection.
type ParameterDetails struct {
	Position    int    `json:"position"`
	Value       string `json:"value"`
	Fingerprint string `json:"fingerprint"` // libinjection fingerprint for pattern analysis
}

// ExecutionDetails describes one execution of an approved statement.
type ExecutionDetails struct {
	SQL        string `json:"sql"`
	ParamCount int    `json:"param_count"`
	RowCount   int    `json:"row_count"`
	DurationMS int64  `json:"duration_ms"`
}

// FailureDetails describes a failed execution. Message is omitted for
// kinds that must not expose database text.
type FailureDetails struct {
	Kind       string `json:"kind"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
	SQL        string `json:"sql"`
	DurationMS int64  `json:"duration_ms"`
}

// SecurityAuditor logs security events for SIEM consumption.
// Events are logged in structured JSON format with appropriate severity levels.
type SecurityAuditor struct {
	logger *zap.Logger
}

// NewSecurityAuditor creates a new security auditor with a dedicated logger namespace.
// The logger is automatically configured with "security_audit" namespace for easy
// filtering in SIEM systems.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SecurityAuditor{logger: logger.Named("security_audit")}
}

// LogPolicyViolation records a rejected candidate at WARN level. Repeated
// violations from one caller are the signal worth alerting on.
func (a *SecurityAuditor) LogPolicyViolation(ctx context.Context, details ViolationDetails) {
	details.SQL = logging.SanitizeQuery(details.SQL)
	a.emit(ctx, zapcore.WarnLevel, "Candidate rejected by policy", EventPolicyViolation, "warning", details,
		zap.String("kind", details.Kind),
		zap.String("object", details.Object),
	)
}

// LogSyntaxRejection records an unparseable candidate at INFO level; these
// are usually generator mistakes rather than attacks.
func (a *SecurityAuditor) LogSyntaxRejection(ctx context.Context, details SyntaxDetails) {
	details.SQL = logging.SanitizeQuery(details.SQL)
	a.emit(ctx, zapcore.InfoLevel, "Candidate rejected as invalid syntax", EventSyntaxRejection, "info", details,
		zap.Int("position", details.Position),
	)
}

// LogSuspiciousParameter records an extracted literal that libinjection
// fingerprints as SQL injection. Logged at ERROR level with "critical"
// severity: the statement still runs, but the candidate text was crafted
// to break out of a string.
func (a *SecurityAuditor) LogSuspiciousParameter(ctx context.Context, details ParameterDetails) {
	details.Value = logging.TruncateString(details.Value, logging.MaxValueLogLength)
	a.emit(ctx, zapcore.ErrorLevel, "Suspicious parameter value detected", EventSuspiciousParameter, "critical", details,
		zap.Int("param_position", details.Position),
		zap.String("fingerprint", details.Fingerprint),
	)
}

// LogQueryExecution records a successful execution at INFO level.
// Note: This can generate high log volume in production.
func (a *SecurityAuditor) LogQueryExecution(ctx context.Context, details ExecutionDetails) {
	details.SQL = logging.SanitizeQuery(details.SQL)
	a.emit(ctx, zapcore.InfoLevel, "Query executed", EventQueryExecution, "info", details,
		zap.Int("row_count", details.RowCount),
		zap.Int64("duration_ms", details.DurationMS),
	)
}

// LogExecutionFailure records a failed execution at WARN level.
func (a *SecurityAuditor) LogExecutionFailure(ctx context.Context, details FailureDetails) {
	details.SQL = logging.SanitizeQuery(details.SQL)
	a.emit(ctx, zapcore.WarnLevel, "Query execution failed", EventExecutionFailure, "warning", details,
		zap.String("kind", details.Kind),
		zap.String("code", details.Code),
	)
}

func (a *SecurityAuditor) emit(
	ctx context.Context,
	level zapcore.Level,
	msg string,
	eventType SecurityEventType,
	severity string,
	details any,
	fields ...zap.Field,
) {
	info := RequestFromContext(ctx)

	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		RequestID: info.ID,
		Source:    info.Source,
		Caller:    info.Caller,
		ClientIP:  info.ClientIP,
		Details:   details,
		Severity:  severity,
	}

	// Ignoring error as marshaling known types should never fail
	eventJSON, _ := json.Marshal(event)

	all := append([]zap.Field{
		zap.String("event_json", string(eventJSON)),
		zap.String("event_type", string(eventType)),
		zap.String("request_id", info.ID),
		zap.String("client_ip", info.ClientIP),
		zap.String("caller", info.Caller),
		zap.String("severity", severity),
	}, fields...)

	if ce := a.logger.Check(level, msg); ce != nil {
		ce.Write(all...)
	}
}
