package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dusk-indust/dataflow/internal/orchestrator"
	"github.com/dusk-indust/dataflow/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the agent API server",
		Long: `Run the HTTP server hosting the supervisor workflow (/research), the
plan executor used by remote MCP servers (/execute_research) and the
streaming chat endpoint (/api/chat).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := a.buildRuntime(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			srv := server.New(server.Options{
				Workflow: orchestrator.NewSupervisor(rt.agents, rt.llm, orchestrator.OptionsFromConfig(a.cfg.Supervisor), a.logger),
				Runner:   orchestrator.NewPlanPipeline(rt.agents, nil, a.logger),
				Chat:     rt.llm,
				Logger:   a.logger,
			})
			a.logger.Info("agent server starting", zap.String("addr", a.cfg.Server.Addr()))
			return srv.ListenAndServe(ctx, a.cfg.Server.Addr())
		},
	}
}
