//go:build e2e

// Package e2e drives full research runs against a live Demo tool server.
package e2e

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/dataflow/internal/agent"
	"github.com/dusk-indust/dataflow/internal/config"
	"github.com/dusk-indust/dataflow/internal/export"
	"github.com/dusk-indust/dataflow/internal/llm/llmtest"
	"github.com/dusk-indust/dataflow/internal/orchestrator"
	"github.com/dusk-indust/dataflow/internal/research"
	"github.com/dusk-indust/dataflow/internal/store"
	"github.com/dusk-indust/dataflow/internal/toolserver"
)

type harness struct {
	store  *store.MemStore
	llm    *llmtest.Completer
	agents map[agent.Kind]agent.Agent
	demo   string
}

// newHarness starts a Demo tool server and spawns every agent against it.
// The LLM is down, so every component takes its fallback path.
func newHarness(t *testing.T) *harness {
	t.Helper()
	completer := llmtest.Failing(errors.New("llm unavailable"))

	ts := httptest.NewServer(toolserver.NewDemoServer(completer, "gpt-4o", nil).Handler())
	t.Cleanup(ts.Close)

	st := store.NewMemStore()
	agents, err := agent.NewRegistry(agent.Deps{
		Store: st,
		LLM:   completer,
		Tools: config.ToolsConfig{Timeout: 5 * time.Second},
		Catalog: &agent.Catalog{Servers: map[string]agent.ServerSpec{
			"demoAgent": {Type: "http", URL: ts.URL + "/mcp"},
		}},
	}).SpawnAll()
	require.NoError(t, err)

	return &harness{store: st, llm: completer, agents: agents, demo: ts.URL}
}

func TestSupervisor_E2E(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	sup := orchestrator.NewSupervisor(h.agents, h.llm, orchestrator.Options{}, nil)
	out, err := sup.Run(ctx, orchestrator.Request{
		TaskDescription: "Summarize customer growth",
		Query:           "How many customers signed up last quarter?",
		UserEmail:       agent.DefaultUserEmail,
	})
	require.NoError(t, err)
	require.NotNil(t, out)

	require.NotEmpty(t, out.Trace)
	assert.Equal(t, orchestrator.End, out.Trace[len(out.Trace)-1].Next)
	assert.NotNil(t, out.MetadataResults)
	assert.NotEmpty(t, out.ExecutionSummary.SessionID)

	diagram := export.GenerateMermaid(out.Trace)
	assert.True(t, strings.HasPrefix(diagram, "graph TD\n"))
	assert.Contains(t, diagram, "metadata_agent")

	exp := export.ExportTrace(out, time.Now())
	assert.Len(t, exp.Steps, len(out.Trace))
}

func TestResearchService_E2E(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	svc := research.New(research.Options{
		Store:  h.store,
		LLM:    h.llm,
		Runner: orchestrator.NewPlanPipeline(h.agents, nil, nil),
	})
	out, err := svc.Research(ctx, research.Request{Query: "Show revenue by region"})
	require.NoError(t, err)
	assert.NotEmpty(t, out.SessionID)
	assert.NotEmpty(t, out.AgentResults)

	status, err := svc.SessionStatus(ctx, out.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "Show revenue by region", status.InitialQuery)
	assert.NotEmpty(t, status.SubagentExecutions)
}
