package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/dusk-indust/dataflow/internal/agent"
	"github.com/dusk-indust/dataflow/internal/config"
	"github.com/dusk-indust/dataflow/internal/llm"
	"github.com/dusk-indust/dataflow/internal/logging"
	"github.com/dusk-indust/dataflow/internal/store"
	"github.com/dusk-indust/dataflow/internal/toolmcp"
)

// app carries the state shared by every subcommand. It is populated in the
// root PersistentPreRunE.
type app struct {
	v         *viper.Viper
	configDir string
	cfg       *config.Config
	logger    *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "dataflow",
		Short: "Multi-agent research over enterprise data sources",
		Long: `dataflow coordinates metadata, entitlement, data and aggregation agents
to answer research questions against the Denodo platform and a demo AI
source. It serves the agents over HTTP, exposes research tools over MCP
and hosts the tool servers the agents call.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations["skipConfig"] == "true" {
				return nil
			}
			return a.load()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configDir, "config-dir", ".", "directory holding dataflow.yaml and .env")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.String("log-format", "", "log format (json, console)")
	_ = a.v.BindPFlag("log.level", pf.Lookup("log-level"))
	_ = a.v.BindPFlag("log.format", pf.Lookup("log-format"))

	root.AddCommand(
		newServeCmd(a),
		newMCPCmd(a),
		newToolServerCmd(a),
		newResearchCmd(a),
		newMigrateCmd(a),
		newHealthCmd(a),
		newInitCmd(),
		newVersionCmd(),
	)
	return root
}

// load reads the configuration and builds the logger.
func (a *app) load() error {
	cfg, err := config.LoadViper(a.v, a.configDir)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	if cfg.Tools.ConfigPath != "" && !filepath.IsAbs(cfg.Tools.ConfigPath) {
		cfg.Tools.ConfigPath = filepath.Join(a.configDir, cfg.Tools.ConfigPath)
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// openStore opens the configured store.
func (a *app) openStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, a.cfg.Database, a.logger)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return st, nil
}

// newLLM builds the chat client. An unconfigured deployment yields a
// client whose calls fail, so the rest of the system still starts.
func (a *app) newLLM(ctx context.Context) (llm.Chatter, error) {
	c, err := llm.NewFromConfig(ctx, llm.FromConfig(a.cfg.LLM), a.logger)
	if err != nil {
		return nil, fmt.Errorf("creating llm client: %w", err)
	}
	return c, nil
}

// toolClient returns the client agents use to reach the tool servers.
func (a *app) toolClient() *toolmcp.Client {
	opts := []toolmcp.ClientOption{toolmcp.WithClientInfo("dataflow-agents", version)}
	if a.cfg.Tools.Timeout > 0 {
		opts = append(opts, toolmcp.WithTimeout(a.cfg.Tools.Timeout))
	}
	return toolmcp.NewClient(opts...)
}

// runtime holds the collaborators built by buildRuntime.
type runtime struct {
	store  store.Store
	llm    llm.Chatter
	client *toolmcp.Client
	agents map[agent.Kind]agent.Agent
}

// buildRuntime opens the store, builds the LLM client and spawns every
// agent. Callers must Close the runtime.
func (a *app) buildRuntime(ctx context.Context) (*runtime, error) {
	st, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	chat, err := a.newLLM(ctx)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	client := a.toolClient()
	agents, err := agent.NewRegistry(agent.Deps{
		Store:       st,
		LLM:         chat,
		ToolClient:  client,
		Tools:       a.cfg.Tools,
		Entitlement: a.cfg.Entitlement,
		Logger:      a.logger,
	}).SpawnAll()
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("spawning agents: %w", err)
	}
	return &runtime{store: st, llm: chat, client: client, agents: agents}, nil
}

// Close releases the store.
func (r *runtime) Close() error {
	return r.store.Close()
}
