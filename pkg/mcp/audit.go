package mcp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-gateway/pkg/audit"
	"github.com/ekaya-inc/ekaya-gateway/pkg/logging"
)

// ToolCallLogger records one log entry per MCP tool call. Gateway-level
// security events are written by the gateway itself; this adds the MCP
// view: tool, arguments, outcome and latency.
type ToolCallLogger struct {
	logger *zap.Logger

	// startTimes tracks when tool calls begin, keyed by JSON-RPC id.
	startTimes sync.Map
}

// NewToolCallLogger creates a ToolCallLogger. A nil logger disables it.
func NewToolCallLogger(logger *zap.Logger) *ToolCallLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ToolCallLogger{logger: logger.Named("mcp")}
}

// Hooks returns mcp-go Hooks that capture tool call events.
func (a *ToolCallLogger) Hooks() *server.Hooks {
	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(a.beforeCallTool)
	hooks.AddAfterCallTool(a.afterCallTool)
	hooks.AddOnError(a.onError)
	return hooks
}

func (a *ToolCallLogger) beforeCallTool(_ context.Context, id any, _ *mcplib.CallToolRequest) {
	a.startTimes.Store(id, time.Now())
}

func (a *ToolCallLogger) afterCallTool(ctx context.Context, id any, req *mcplib.CallToolRequest, result *mcplib.CallToolResult) {
	startTime, _ := a.loadAndDeleteStart(id)
	summary := summarizeResult(result)

	fields := []zap.Field{
		zap.String("request_id", audit.RequestFromContext(ctx).ID),
		zap.String("tool", req.Params.Name),
		zap.Any("params", sanitizeParams(req.Params.Arguments)),
		zap.Int64("duration_ms", time.Since(startTime).Milliseconds()),
		zap.Any("result", summary),
	}
	if result != nil && result.IsError {
		a.logger.Info("MCP tool call rejected", fields...)
		return
	}
	a.logger.Info("MCP tool call", fields...)
}

func (a *ToolCallLogger) onError(ctx context.Context, id any, method mcplib.MCPMethod, message any, err error) {
	if method != mcplib.MethodToolsCall {
		return
	}
	req, ok := message.(*mcplib.CallToolRequest)
	if !ok {
		return
	}

	startTime, _ := a.loadAndDeleteStart(id)
	a.logger.Warn("MCP tool call failed",
		zap.String("request_id", audit.RequestFromContext(ctx).ID),
		zap.String("tool", req.Params.Name),
		zap.Any("params", sanitizeParams(req.Params.Arguments)),
		zap.Int64("duration_ms", time.Since(startTime).Milliseconds()),
		zap.String("error", logging.SanitizeError(err)),
	)
}

func (a *ToolCallLogger) loadAndDeleteStart(id any) (time.Time, bool) {
	if v, ok := a.startTimes.LoadAndDelete(id); ok {
		return v.(time.Time), true
	}
	return time.Now(), false
}

// sqlStringLiteralPattern matches SQL string literals, including doubled
// quotes inside them.
var sqlStringLiteralPattern = regexp.MustCompile(`'(?:[^']*(?:'')?)*[^']*'`)

// sanitizeParams prepares tool arguments for a log entry: SQL is collapsed,
// truncated and has its string literals masked, and sensitive values are
// replaced by a hash prefix.
func sanitizeParams(args any) map[string]any {
	params, ok := args.(map[string]any)
	if !ok || len(params) == 0 {
		return nil
	}

	sanitized := make(map[string]any, len(params))
	for k, v := range params {
		sanitized[k] = sanitizeValue(k, v)
	}
	return sanitized
}

func sanitizeValue(key string, value any) any {
	if logging.IsSensitiveKey(key) {
		return hashSensitiveValue(value)
	}

	switch val := value.(type) {
	case string:
		if isSQLParam(key) {
			return logging.SanitizeQuery(redactSQLStringLiterals(val))
		}
		return logging.TruncateString(val, logging.MaxQueryLogLength)
	case map[string]any:
		return sanitizeParams(val)
	default:
		return value
	}
}

func isSQLParam(key string) bool {
	lower := strings.ToLower(key)
	return lower == "sql" || lower == "query" || strings.HasSuffix(lower, "_sql")
}

// redactSQLStringLiterals replaces string literals with '***', keeping the
// statement shape for debugging.
func redactSQLStringLiterals(sql string) string {
	return sqlStringLiteralPattern.ReplaceAllString(sql, "'***'")
}

// hashSensitiveValue returns a SHA-256 prefix so entries can be correlated
// without storing the value.
func hashSensitiveValue(value any) string {
	str, ok := value.(string)
	if !ok {
		str = fmt.Sprintf("%v", value)
	}
	hash := sha256.Sum256([]byte(str))
	return "sha256:" + hex.EncodeToString(hash[:8])
}

// summarizeResult extracts the outcome of a tool call: whether it was
// rejected, the rejection code, and the row count of a query result.
func summarizeResult(result *mcplib.CallToolResult) map[string]any {
	if result == nil {
		return nil
	}

	summary := map[string]any{"is_error": result.IsError}
	for _, c := range result.Content {
		tc, ok := c.(mcplib.TextContent)
		if !ok {
			continue
		}
		var partial struct {
			RowCount *int   `json:"row_count"`
			Code     string `json:"code"`
		}
		if err := json.Unmarshal([]byte(tc.Text), &partial); err == nil {
			if partial.RowCount != nil {
				summary["row_count"] = *partial.RowCount
			}
			if partial.Code != "" {
				summary["code"] = partial.Code
			}
		}
		break
	}
	return summary
}
