package agent

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/dusk-indust/dataflow/internal/config"
	"github.com/dusk-indust/dataflow/internal/llm"
	"github.com/dusk-indust/dataflow/internal/logging"
	"github.com/dusk-indust/dataflow/internal/store"
	"github.com/dusk-indust/dataflow/internal/toolmcp"
)

// Deps are the collaborators shared by every agent.
type Deps struct {
	Store       store.Store
	LLM         llm.Completer
	ToolClient  *toolmcp.Client
	Tools       config.ToolsConfig
	Entitlement config.EntitlementConfig
	// Catalog overrides the mcp_servers file named by Tools.ConfigPath.
	Catalog *Catalog
	Logger  *zap.Logger
}

func (d Deps) toolClient() *toolmcp.Client {
	if d.ToolClient != nil {
		return d.ToolClient
	}
	opts := []toolmcp.ClientOption{toolmcp.WithClientInfo("dataflow-agents", "1.0.0")}
	if d.Tools.Timeout > 0 {
		opts = append(opts, toolmcp.WithTimeout(d.Tools.Timeout))
	}
	return toolmcp.NewClient(opts...)
}

func (d Deps) logger() *zap.Logger {
	return logging.OrNop(d.Logger)
}

// Factory constructs an agent.
type Factory func() (Agent, error)

// Registry maps agent kinds to their factories.
type Registry struct {
	mu        sync.Mutex
	factories map[Kind]Factory
}

// NewRegistry creates a Registry pre-registered with all four specialists.
func NewRegistry(deps Deps) *Registry {
	if deps.ToolClient == nil {
		deps.ToolClient = deps.toolClient()
	}
	r := &Registry{factories: make(map[Kind]Factory)}
	r.factories[KindMetadata] = func() (Agent, error) { return NewMetadataAgent(deps), nil }
	r.factories[KindEntitlement] = func() (Agent, error) { return NewEntitlementAgent(deps), nil }
	r.factories[KindData] = func() (Agent, error) { return NewDataAgent(deps) }
	r.factories[KindAggregation] = func() (Agent, error) { return NewAggregationAgent(deps), nil }
	return r
}

// Register adds or replaces the factory for kind.
func (r *Registry) Register(kind Kind, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

// Kinds returns the registered kinds in pipeline order.
func (r *Registry) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()

	var kinds []Kind
	for _, k := range Kinds {
		if _, ok := r.factories[k]; ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Spawn creates a single agent by kind.
func (r *Registry) Spawn(kind Kind) (Agent, error) {
	r.mu.Lock()
	factory, ok := r.factories[kind]
	r.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("no factory registered for agent %q", kind)
	}
	ag, err := factory()
	if err != nil {
		return nil, fmt.Errorf("create %s agent: %w", kind, err)
	}
	return ag, nil
}

// SpawnAll creates every registered agent.
func (r *Registry) SpawnAll() (map[Kind]Agent, error) {
	agents := make(map[Kind]Agent)
	for _, k := range r.Kinds() {
		ag, err := r.Spawn(k)
		if err != nil {
			return nil, err
		}
		agents[k] = ag
	}
	return agents, nil
}
