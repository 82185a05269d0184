package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-gateway/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-gateway/pkg/audit"
	"github.com/ekaya-inc/ekaya-gateway/pkg/executor"
	"github.com/ekaya-inc/ekaya-gateway/pkg/gateway"
	"github.com/ekaya-inc/ekaya-gateway/pkg/policy"
)

type mockGateway struct {
	result    *gateway.Result
	prepared  *gateway.Prepared
	schema    string
	err       error
	candidate string
	maxTables int
	request   audit.RequestInfo
}

func (m *mockGateway) Prepare(ctx context.Context, candidate string) (*gateway.Prepared, error) {
	m.candidate = candidate
	m.request = audit.RequestFromContext(ctx)
	return m.prepared, m.err
}

func (m *mockGateway) Run(ctx context.Context, candidate string) (*gateway.Result, error) {
	m.candidate = candidate
	m.request = audit.RequestFromContext(ctx)
	return m.result, m.err
}

func (m *mockGateway) DescribeSchema(ctx context.Context, maxTables int) (string, error) {
	m.maxTables = maxTables
	return m.schema, m.err
}

// toolResponse is the tools/call result as it appears on the wire.
type toolResponse struct {
	Result struct {
		IsError bool `json:"isError"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func callTool(t *testing.T, s *server.MCPServer, name string, args map[string]any) toolResponse {
	t.Helper()
	request, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params":  map[string]any{"name": name, "arguments": args},
	})
	require.NoError(t, err)

	result := s.HandleMessage(context.Background(), request)
	raw, err := json.Marshal(result)
	require.NoError(t, err)

	var resp toolResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	require.Nil(t, resp.Error, "unexpected JSON-RPC error")
	require.NotEmpty(t, resp.Result.Content)
	return resp
}

func newToolServer(gw gateway.Service) *server.MCPServer {
	s := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	RegisterQueryTools(s, &QueryToolDeps{Gateway: gw})
	return s
}

func TestRegisterQueryTools(t *testing.T) {
	s := newToolServer(&mockGateway{})

	raw, err := json.Marshal(s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"tools/list","id":1}`)))
	require.NoError(t, err)

	var response struct {
		Result struct {
			Tools []struct {
				Name        string `json:"name"`
				Annotations struct {
					ReadOnlyHint *bool `json:"readOnlyHint"`
				} `json:"annotations"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(raw, &response))

	names := map[string]bool{}
	for _, tool := range response.Result.Tools {
		names[tool.Name] = true
		require.NotNil(t, tool.Annotations.ReadOnlyHint, tool.Name)
		assert.True(t, *tool.Annotations.ReadOnlyHint, tool.Name)
	}
	assert.Equal(t, map[string]bool{"query": true, "prepare_query": true, "describe_schema": true}, names)
}

func TestQueryTool_Success(t *testing.T) {
	gw := &mockGateway{result: &gateway.Result{
		RequestID: "req-9",
		SQL:       "SELECT name FROM users WHERE city = $1 LIMIT 100",
		RowCount:  0,
	}}
	s := newToolServer(gw)

	resp := callTool(t, s, "query", map[string]any{"sql": "SELECT name FROM users WHERE city = 'Boston'"})

	assert.False(t, resp.Result.IsError)
	assert.Equal(t, "SELECT name FROM users WHERE city = 'Boston'", gw.candidate)
	assert.Equal(t, "mcp", gw.request.Source)
	assert.NotEmpty(t, gw.request.ID)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(resp.Result.Content[0].Text), &got))
	assert.Equal(t, "SELECT name FROM users WHERE city = $1 LIMIT 100", got["sql"])
}

func TestQueryTool_RejectionIsToolError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     string
		category string
		details  map[string]any
	}{
		{
			name:     "unknown table",
			err:      &policy.Violation{Kind: policy.UnknownTable, Object: "secrets", Detail: `table "secrets" does not exist`},
			code:     "unknown_table",
			category: "policy",
			details:  map[string]any{"object": "secrets"},
		},
		{
			name:     "database error carries reason",
			err:      &executor.ExecutionError{Kind: executor.DatabaseError, Code: "22012", Message: "division by zero"},
			code:     "database_error",
			category: "execution",
			details:  map[string]any{"sqlstate": "22012", "reason": "division_by_zero"},
		},
		{
			name:     "catalog not loaded",
			err:      apperrors.ErrCatalogNotLoaded,
			code:     gateway.CodeCatalogNotLoaded,
			category: "unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newToolServer(&mockGateway{err: tt.err})

			resp := callTool(t, s, "query", map[string]any{"sql": "SELECT 1"})
			assert.True(t, resp.Result.IsError)

			var errResp ErrorResponse
			require.NoError(t, json.Unmarshal([]byte(resp.Result.Content[0].Text), &errResp))
			assert.True(t, errResp.Error)
			assert.Equal(t, tt.code, errResp.Code)
			assert.Equal(t, tt.category, errResp.Category)
			assert.NotEmpty(t, errResp.Message)
			if tt.details == nil {
				assert.Nil(t, errResp.Details)
			} else {
				assert.Equal(t, tt.details, errResp.Details)
			}
		})
	}
}

func TestQueryTool_MissingSQL(t *testing.T) {
	gw := &mockGateway{}
	s := newToolServer(gw)

	for _, args := range []map[string]any{{}, {"sql": "  "}} {
		resp := callTool(t, s, "query", args)
		assert.True(t, resp.Result.IsError)
		assert.Contains(t, resp.Result.Content[0].Text, "invalid_parameters")
	}
	assert.Empty(t, gw.candidate)
}

func TestPrepareQueryTool(t *testing.T) {
	gw := &mockGateway{prepared: &gateway.Prepared{
		SQL:    "SELECT id FROM users WHERE id > $1::int4 LIMIT 100",
		Params: []any{int64(10)},
	}}
	s := newToolServer(gw)

	resp := callTool(t, s, "prepare_query", map[string]any{"sql": "SELECT id FROM users WHERE id > 10"})

	assert.False(t, resp.Result.IsError)
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(resp.Result.Content[0].Text), &got))
	assert.Equal(t, []any{float64(10)}, got["params"])
}

func TestDescribeSchemaTool(t *testing.T) {
	gw := &mockGateway{schema: "Database schema:\n\nTable: users\n"}
	s := newToolServer(gw)

	resp := callTool(t, s, "describe_schema", map[string]any{"max_tables": 3})
	assert.False(t, resp.Result.IsError)
	assert.Equal(t, gw.schema, resp.Result.Content[0].Text)
	assert.Equal(t, 3, gw.maxTables)

	resp = callTool(t, s, "describe_schema", map[string]any{"max_tables": -1})
	assert.True(t, resp.Result.IsError)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(resp.Result.Content[0].Text), &errResp))
	assert.Equal(t, "invalid_parameters", errResp.Code)
	assert.Equal(t, map[string]any{"max_tables": float64(-1)}, errResp.Details)
}

func TestSQLStateReason(t *testing.T) {
	tests := map[string]string{
		"42703": "undefined_column",
		"25006": "read_only_transaction",
		"22023": "data_exception",
		"54000": "program_limit_exceeded",
		"XX000": "sql_error",
		"4":     "sql_error",
	}
	for state, want := range tests {
		assert.Equal(t, want, SQLStateReason(state), state)
	}
}

func TestNewErrorResult(t *testing.T) {
	result := NewErrorResult("invalid_parameters", "sql is required")
	require.Len(t, result.Content, 1)
	assert.True(t, result.IsError)

	text := result.Content[0].(mcp.TextContent).Text
	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(text), &errResp))
	assert.True(t, errResp.Error)
	assert.Equal(t, "invalid_parameters", errResp.Code)
	assert.Nil(t, errResp.Details)
}
