package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/mbd888/risklens/internal/scoring"
)

// NewMCPServer creates a configured MCP server with all RiskLens tools
// registered. Scoring tools run in process; recent_verdicts is added only
// when cfg points at a running API.
func NewMCPServer(svc *scoring.Service, cfg Config, version string) *server.MCPServer {
	s := server.NewMCPServer("risklens", version)

	var client *APIClient
	if cfg.APIURL != "" {
		client = NewAPIClient(cfg)
	}
	h := NewHandlers(svc, client)

	s.AddTool(ToolScoreTransaction, h.HandleScoreTransaction)
	s.AddTool(ToolClassifyContext, h.HandleClassifyContext)
	s.AddTool(ToolPredictFraud, h.HandlePredictFraud)
	if client != nil {
		s.AddTool(ToolRecentVerdicts, h.HandleRecentVerdicts)
	}

	return s
}
