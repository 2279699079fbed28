// Package mcp exposes the director as an MCP tool surface: project and
// thread management, tick, replay, explain, and history over a stdio
// transport.
package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// serverName identifies this MCP server to clients.
	serverName = "Storyloom Director MCP"
	// serverVersion identifies the MCP server version.
	serverVersion = "0.1.0"
)

// Server hosts the MCP server.
type Server struct {
	mcpServer *mcp.Server
}

// New creates a configured MCP server over the director service.
func New(service *Service) *Server {
	mcpServer := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil)
	registerTools(mcpServer, service)
	return &Server{mcpServer: mcpServer}
}

func registerTools(mcpServer *mcp.Server, service *Service) {
	mcp.AddTool(mcpServer, ProjectPutTool(), ProjectPutHandler(service))
	mcp.AddTool(mcpServer, ThreadCreateTool(), ThreadCreateHandler(service))
	mcp.AddTool(mcpServer, DirectorTickTool(), DirectorTickHandler(service))
	mcp.AddTool(mcpServer, DirectorReplayTool(), DirectorReplayHandler(service))
	mcp.AddTool(mcpServer, DirectorExplainTool(), DirectorExplainHandler(service))
	mcp.AddTool(mcpServer, ThreadHistoryTool(), ThreadHistoryHandler(service))
}

// Run serves the MCP server on stdio until the context ends.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}
