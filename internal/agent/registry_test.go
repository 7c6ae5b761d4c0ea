package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/dataflow/internal/config"
	"github.com/dusk-indust/dataflow/internal/llm/llmtest"
)

type stubAgent struct{ kind Kind }

func (s stubAgent) Kind() Kind { return s.kind }

func (s stubAgent) Execute(context.Context, Task) (*Result, error) {
	return &Result{Kind: s.kind}, nil
}

func TestRegistry_SpawnAll(t *testing.T) {
	r := NewRegistry(Deps{LLM: llmtest.Replies("{}")})

	assert.Equal(t, Kinds, r.Kinds())

	agents, err := r.SpawnAll()
	require.NoError(t, err)
	require.Len(t, agents, 4)
	for _, k := range Kinds {
		require.Contains(t, agents, k)
		assert.Equal(t, k, agents[k].Kind())
	}
	assert.IsType(t, &DataAgent{}, agents[KindData])
}

func TestRegistry_Spawn(t *testing.T) {
	r := NewRegistry(Deps{LLM: llmtest.Replies("{}")})

	ag, err := r.Spawn(KindEntitlement)
	require.NoError(t, err)
	assert.IsType(t, &EntitlementAgent{}, ag)

	_, err = r.Spawn(Kind("planner"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no factory registered for agent "planner"`)
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry(Deps{LLM: llmtest.Replies("{}")})
	r.Register(KindMetadata, func() (Agent, error) { return stubAgent{kind: KindMetadata}, nil })

	ag, err := r.Spawn(KindMetadata)
	require.NoError(t, err)
	assert.IsType(t, stubAgent{}, ag)
}

func TestRegistry_BadCatalogFailsDataAgent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mcp_servers: [oops"), 0o644))
	r := NewRegistry(Deps{LLM: llmtest.Replies("{}"), Tools: config.ToolsConfig{ConfigPath: path}})

	_, err := r.Spawn(KindData)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create data agent")

	_, err = r.SpawnAll()
	require.Error(t, err)
}
