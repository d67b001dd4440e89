// Package mcp exposes the engine's deterministic operations as MCP tools
// over stdio, so agent frontends can search the catalog without going
// through the HTTP chat surface.
package mcp

import (
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// Server wraps the mcp-go MCPServer.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// NewServer creates an MCP server instance and registers the catalog tools.
func NewServer(version string, deps *ToolDeps) *Server {
	mcpServer := server.NewMCPServer(
		"folio-engine",
		version,
		server.WithToolCapabilities(true),
	)

	s := &Server{mcp: mcpServer, logger: deps.Logger}
	RegisterCatalogTools(mcpServer, deps)
	return s
}

// ServeStdio runs the server over stdin/stdout until EOF.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCP returns the underlying MCPServer, mainly for tests.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}
