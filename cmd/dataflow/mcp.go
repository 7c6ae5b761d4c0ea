package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dusk-indust/dataflow/internal/mcptools"
	"github.com/dusk-indust/dataflow/internal/orchestrator"
	"github.com/dusk-indust/dataflow/internal/research"
)

func newMCPCmd(a *app) *cobra.Command {
	var transport string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Run the research MCP server",
		Long: `Start the Model Context Protocol server exposing multi_agent_research,
analyze_query_intent, get_session_status, health_check and
get_system_analytics.

With --transport stdio the server speaks over stdin/stdout, which is how
MCP clients launch it from .mcp.json:
  dataflow mcp --transport stdio`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("transport") {
				a.cfg.MCP.Transport = transport
			}
			ctx := cmd.Context()
			svc, closeFn, err := a.researchService(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			server := mcptools.NewServer(svc, a.logger)
			switch a.cfg.MCP.Transport {
			case "stdio":
				a.logger.Info("mcp server starting", zap.String("transport", "stdio"))
				return mcptools.RunStdio(ctx, server)
			case "http":
				return mcptools.RunHTTP(ctx, server, a.cfg.MCP.Addr(), a.logger)
			default:
				return fmt.Errorf("unknown transport %q (want http or stdio)", a.cfg.MCP.Transport)
			}
		},
	}
	cmd.Flags().StringVar(&transport, "transport", "http", "MCP transport: http or stdio")
	return cmd
}

// researchService wires a research.Service over a fresh runtime. The
// returned func releases the runtime.
func (a *app) researchService(cmd *cobra.Command) (*research.Service, func(), error) {
	ctx := cmd.Context()
	rt, err := a.buildRuntime(ctx)
	if err != nil {
		return nil, nil, err
	}
	detector := orchestrator.NewDetector(nil, 0, a.logger)
	svc := research.New(research.Options{
		Store:          rt.store,
		LLM:            rt.llm,
		Runner:         research.NewRunner(ctx, a.cfg, rt.agents, rt.client, detector, a.logger),
		Deployment:     a.cfg.LLM.Deployment,
		AgentsEndpoint: a.cfg.MCP.AgentsEndpoint,
		Detector:       detector,
		Logger:         a.logger,
	})
	return svc, func() { _ = rt.Close() }, nil
}
