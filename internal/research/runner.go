package research

import (
	"context"

	"go.uber.org/zap"

	"github.com/dusk-indust/dataflow/internal/agent"
	"github.com/dusk-indust/dataflow/internal/config"
	"github.com/dusk-indust/dataflow/internal/orchestrator"
	"github.com/dusk-indust/dataflow/internal/toolmcp"
)

// NewRunner picks where plans execute. Remote agents are used when
// cfg.MCP.RemoteAgents is set and the agent server is healthy; otherwise
// the plan runs on agents. Either way a failed run falls back to the demo
// tool server.
func NewRunner(ctx context.Context, cfg *config.Config, agents map[agent.Kind]agent.Agent, client *toolmcp.Client, detector *orchestrator.Detector, logger *zap.Logger) orchestrator.Runner {
	var primary orchestrator.Runner
	switch detector.Detect(ctx, cfg.MCP.AgentsEndpoint, cfg.MCP.RemoteAgents) {
	case orchestrator.ModeRemote:
		primary = orchestrator.NewRemoteRunner(cfg.MCP.AgentsEndpoint, nil, logger)
	default:
		primary = orchestrator.NewPlanPipeline(agents, nil, logger)
	}
	return &orchestrator.FallbackRunner{
		Primary:  primary,
		Fallback: orchestrator.NewDemoRunner(client, cfg.Tools.DemoEndpoint, logger),
		Logger:   logger,
	}
}
