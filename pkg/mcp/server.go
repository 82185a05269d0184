// Package mcp exposes the gateway as MCP tools over streamable HTTP.
package mcp

import (
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-gateway/pkg/gateway"
	"github.com/ekaya-inc/ekaya-gateway/pkg/mcp/tools"
)

// Server wraps the mcp-go MCPServer.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// NewServer creates a new MCP server instance. Tool calls are logged through
// a ToolCallLogger built on logger.
func NewServer(name, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	mcpServer := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(true),
		server.WithHooks(NewToolCallLogger(logger).Hooks()),
		server.WithRecovery(),
	)

	return &Server{
		mcp:    mcpServer,
		logger: logger,
	}
}

// NewGatewayServer creates a server with the gateway tools registered.
func NewGatewayServer(version string, svc gateway.Service, catalog tools.CatalogStatus, logger *zap.Logger) *Server {
	s := NewServer("ekaya-gateway", version, logger)
	tools.RegisterQueryTools(s.mcp, &tools.QueryToolDeps{Gateway: svc, Logger: s.logger.Named("mcp_tools")})
	tools.RegisterHealthTool(s.mcp, version, catalog)
	return s
}

// MCP returns the underlying MCPServer for tool registration.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// Handler returns the stateless streamable HTTP transport. The caller's mux
// decides the path.
func (s *Server) Handler() http.Handler {
	return server.NewStreamableHTTPServer(
		s.mcp,
		server.WithStateLess(true),
	)
}

// RegisterTool is a convenience wrapper for registering a tool.
func (s *Server) RegisterTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcp.AddTool(tool, handler)
}
