package mcp

import (
	"context"
	"errors"
	"strings"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/ekaya-gateway/pkg/mcp/tools"
)

func callRequest(name string, args map[string]any) *mcplib.CallToolRequest {
	req := &mcplib.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func TestToolCallLogger_Rejection(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	a := NewToolCallLogger(zap.New(core))

	req := callRequest("query", map[string]any{"sql": "SELECT * FROM secrets WHERE name = 'alice'"})
	a.beforeCallTool(context.Background(), 1, req)
	a.afterCallTool(context.Background(), 1, req, tools.NewErrorResult("unknown_table", `table "secrets" does not exist`))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "MCP tool call rejected", entry.Message)

	fields := entry.ContextMap()
	params := fields["params"].(map[string]any)
	assert.Equal(t, "SELECT * FROM secrets WHERE name = '***'", params["sql"])
	result := fields["result"].(map[string]any)
	assert.Equal(t, true, result["is_error"])
	assert.Equal(t, "unknown_table", result["code"])

	_, pending := a.startTimes.Load(1)
	assert.False(t, pending)
}

func TestToolCallLogger_OnError(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	a := NewToolCallLogger(zap.New(core))

	req := callRequest("query", nil)
	a.onError(context.Background(), 2, mcplib.MethodToolsCall, req, errors.New("dial postgres://u:hunter2@db/x failed"))
	a.onError(context.Background(), 3, mcplib.MethodToolsList, req, errors.New("ignored"))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.NotContains(t, entry.ContextMap()["error"], "hunter2")
}

func TestSanitizeParams(t *testing.T) {
	t.Run("nil input", func(t *testing.T) {
		assert.Nil(t, sanitizeParams(nil))
		assert.Nil(t, sanitizeParams(map[string]any{}))
	})

	t.Run("redacts escaped literals", func(t *testing.T) {
		got := sanitizeParams(map[string]any{"sql": "SELECT 1 FROM users WHERE name = 'O''Brien'"})
		assert.Equal(t, "SELECT 1 FROM users WHERE name = '***'", got["sql"])
	})

	t.Run("truncates long sql", func(t *testing.T) {
		got := sanitizeParams(map[string]any{"sql": "SELECT " + strings.Repeat("a, ", 500) + "b FROM t"})
		assert.True(t, strings.HasSuffix(got["sql"].(string), "..."))
	})

	t.Run("hashes sensitive keys", func(t *testing.T) {
		got := sanitizeParams(map[string]any{"api_key": "sk-123", "max_tables": float64(4)})
		hashed := got["api_key"].(string)
		assert.True(t, strings.HasPrefix(hashed, "sha256:"))
		assert.Len(t, hashed, len("sha256:")+16)
		assert.Equal(t, hashed, sanitizeParams(map[string]any{"api_key": "sk-123"})["api_key"])
		assert.Equal(t, float64(4), got["max_tables"])
	})

	t.Run("nested maps", func(t *testing.T) {
		got := sanitizeParams(map[string]any{"options": map[string]any{"password": "x", "mode": "fast"}})
		nested := got["options"].(map[string]any)
		assert.True(t, strings.HasPrefix(nested["password"].(string), "sha256:"))
		assert.Equal(t, "fast", nested["mode"])
	})
}

func TestSummarizeResult(t *testing.T) {
	assert.Nil(t, summarizeResult(nil))

	summary := summarizeResult(mcplib.NewToolResultText(`{"sql":"SELECT 1 LIMIT 100","row_count":3}`))
	assert.Equal(t, false, summary["is_error"])
	assert.Equal(t, 3, summary["row_count"])

	summary = summarizeResult(mcplib.NewToolResultText("Database schema:\n"))
	_, hasCount := summary["row_count"]
	assert.False(t, hasCount)
}
