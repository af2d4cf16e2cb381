// Package mcp exposes case operations to MCP clients over stdio.
package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/triagekit/triage/internal/cases"
	"github.com/triagekit/triage/internal/orchestrator"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Server wraps an MCP server that exposes troubleshooting case tools.
type Server struct {
	store *cases.Store
	orch  *orchestrator.Orchestrator
	mcp   *server.MCPServer
}

// NewServer creates a new MCP server over the case store and orchestrator.
func NewServer(store *cases.Store, orch *orchestrator.Orchestrator) *Server {
	s := &Server{store: store, orch: orch}

	s.mcp = server.NewMCPServer(
		"triage",
		Version,
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s
}

// registerTools adds all tool definitions and their handlers to the MCP server.
func (s *Server) registerTools() {
	s.mcp.AddTool(listCasesTool, s.handleListCases)
	s.mcp.AddTool(caseStatusTool, s.handleCaseStatus)
	s.mcp.AddTool(caseReportTool, s.handleCaseReport)
	s.mcp.AddTool(advanceCaseTool, s.handleAdvanceCase)
	s.mcp.AddTool(answerQuestionTool, s.handleAnswerQuestion)
}

// Serve starts the MCP server on stdio. Stdout is used for MCP protocol
// messages; all logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}
