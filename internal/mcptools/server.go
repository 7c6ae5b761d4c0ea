// Package mcptools exposes the research service as Model Context Protocol
// tools over streamable HTTP or stdio.
package mcptools

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/dusk-indust/dataflow/internal/logging"
	"github.com/dusk-indust/dataflow/internal/metrics"
	"github.com/dusk-indust/dataflow/internal/toolmcp"
)

// version is set by the linker at build time.
var version = "dev"

// ServerName is the MCP implementation name.
const ServerName = "multi-agent-research"

const instructions = `This server provides multi-agent research capabilities using specialized AI agents.

The system coordinates metadata discovery, entitlement validation, data retrieval and aggregation agents.

Available capabilities:
- Multi-agent research with automatic task decomposition
- Cross-source metadata discovery and data retrieval
- Entitlement checking and access validation
- Session management and context preservation
- Health monitoring and analytics`

// NewServer creates an MCP server with the five research tools registered.
func NewServer(svc Researcher, logger *zap.Logger) *mcp.Server {
	tools := NewResearchTools(svc, logger)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    ServerName,
		Version: version,
	}, &mcp.ServerOptions{Instructions: instructions})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "multi_agent_research",
		Description: "Perform multi-agent research across data sources using specialized AI agents. Returns agent findings, aggregated insights and citations.",
	}, tools.MultiAgentResearch)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "analyze_query_intent",
		Description: "Analyze a query to determine research intent, complexity and the recommended research mode.",
	}, tools.AnalyzeQueryIntent)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_session_status",
		Description: "Get the current status and progress of a research session, including agent executions.",
	}, tools.GetSessionStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "health_check",
		Description: "Check the health of the research system: LLM, database, agent server and recent performance.",
	}, tools.HealthCheck)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_system_analytics",
		Description: "Get session statistics and agent performance for the given number of days.",
	}, tools.GetSystemAnalytics)

	return server
}

// Handler serves server over streamable HTTP at /mcp, with /health and
// /metrics alongside.
func Handler(server *mcp.Server) http.Handler {
	r := mux.NewRouter()
	r.PathPrefix("/mcp").Handler(mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	))
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"status":"healthy","server":%q}`, ServerName)
	}).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	return r
}

// RunHTTP serves the MCP server on addr until ctx is cancelled.
func RunHTTP(ctx context.Context, server *mcp.Server, addr string, logger *zap.Logger) error {
	logging.OrNop(logger).Info("starting MCP server", zap.String("transport", "http"), zap.String("addr", addr))
	return toolmcp.ListenAndServe(ctx, addr, Handler(server), logger)
}

// RunStdio runs the MCP server on stdio, blocking until stdin is closed or
// ctx is cancelled.
func RunStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}
