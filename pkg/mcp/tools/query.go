package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-gateway/pkg/audit"
	"github.com/ekaya-inc/ekaya-gateway/pkg/gateway"
	"github.com/ekaya-inc/ekaya-gateway/pkg/logging"
)

// QueryToolDeps contains dependencies for the query tools.
type QueryToolDeps struct {
	Gateway gateway.Service
	Logger  *zap.Logger
}

// RegisterQueryTools adds query, prepare_query and describe_schema.
func RegisterQueryTools(s *server.MCPServer, deps *QueryToolDeps) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	registerQueryTool(s, deps)
	registerPrepareQueryTool(s, deps)
	registerDescribeSchemaTool(s, deps)
}

func registerQueryTool(s *server.MCPServer, deps *QueryToolDeps) {
	tool := mcp.NewTool(
		"query",
		mcp.WithDescription(
			"Run one read-only PostgreSQL SELECT against the database. "+
				"Only tables and columns listed by describe_schema may be referenced. "+
				"Write constants inline; bind parameters ($1) are rejected. "+
				"A row limit is applied automatically; an explicit LIMIT may not exceed it. "+
				"Rejections explain what to change.",
		),
		mcp.WithString(
			"sql",
			mcp.Required(),
			mcp.Description("A single SELECT statement"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		candidate, errResult := requireSQL(req)
		if errResult != nil {
			return errResult, nil
		}
		ctx, _ = audit.EnsureRequest(ctx, "mcp")

		res, err := deps.Gateway.Run(ctx, candidate)
		if err != nil {
			deps.Logger.Debug("Query rejected",
				zap.String("sql", logging.SanitizeQuery(candidate)),
				zap.String("error", logging.SanitizeError(err)))
			return NewRejectionResult(err), nil
		}

		return jsonResult(res)
	})
}

func registerPrepareQueryTool(s *server.MCPServer, deps *QueryToolDeps) {
	tool := mcp.NewTool(
		"prepare_query",
		mcp.WithDescription(
			"Validate a SELECT without running it. Returns the parameterized SQL "+
				"that would execute and its bound values, or the reason it would be rejected.",
		),
		mcp.WithString(
			"sql",
			mcp.Required(),
			mcp.Description("A single SELECT statement"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		candidate, errResult := requireSQL(req)
		if errResult != nil {
			return errResult, nil
		}
		ctx, _ = audit.EnsureRequest(ctx, "mcp")

		prepared, err := deps.Gateway.Prepare(ctx, candidate)
		if err != nil {
			return NewRejectionResult(err), nil
		}
		return jsonResult(prepared)
	})
}

func registerDescribeSchemaTool(s *server.MCPServer, deps *QueryToolDeps) {
	tool := mcp.NewTool(
		"describe_schema",
		mcp.WithDescription(
			"List the tables and columns that queries may reference, with types, "+
				"nullability, comments and foreign keys.",
		),
		mcp.WithNumber(
			"max_tables",
			mcp.Description("Maximum number of tables to include (default: all)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		maxTables := 0
		if v, ok := getOptionalFloat(req, "max_tables"); ok {
			if v < 0 {
				return NewErrorResultWithDetails("invalid_parameters", "max_tables must be non-negative",
					map[string]any{"max_tables": v}), nil
			}
			maxTables = int(v)
		}

		text, err := deps.Gateway.DescribeSchema(ctx, maxTables)
		if err != nil {
			return NewRejectionResult(err), nil
		}
		return mcp.NewToolResultText(text), nil
	})
}

// requireSQL extracts the sql argument. A missing or blank value yields a
// tool error result rather than a protocol error.
func requireSQL(req mcp.CallToolRequest) (string, *mcp.CallToolResult) {
	candidate, err := req.RequireString("sql")
	if err != nil {
		return "", NewErrorResult("invalid_parameters", "sql is required")
	}
	if strings.TrimSpace(candidate) == "" {
		return "", NewErrorResult("invalid_parameters", "sql must not be empty")
	}
	return candidate, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func getOptionalFloat(req mcp.CallToolRequest, key string) (float64, bool) {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return 0, false
	}
	val, ok := args[key].(float64)
	return val, ok
}
