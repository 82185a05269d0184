package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/ekaya-gateway/pkg/logging"
)

// CatalogStatus reports catalog freshness. *catalog.Refresher implements it.
type CatalogStatus interface {
	Status() (time.Time, error)
}

type healthResult struct {
	Status          string     `json:"status"`
	Version         string     `json:"version"`
	CatalogLoadedAt *time.Time `json:"catalog_loaded_at,omitempty"`
	CatalogError    string     `json:"catalog_error,omitempty"`
}

// RegisterHealthTool adds a health check tool to the MCP server. catalog
// may be nil.
func RegisterHealthTool(s *server.MCPServer, version string, catalog CatalogStatus) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health status and version"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		health := healthResult{Status: "ok", Version: version}
		if catalog != nil {
			loadedAt, lastErr := catalog.Status()
			if loadedAt.IsZero() {
				health.Status = "catalog_not_loaded"
			} else {
				health.CatalogLoadedAt = &loadedAt
			}
			if lastErr != nil {
				health.CatalogError = logging.SanitizeError(lastErr)
			}
		}

		result, err := json.Marshal(health)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal health result: %w", err)
		}
		return mcp.NewToolResultText(string(result)), nil
	})
}
