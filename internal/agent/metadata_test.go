package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/dataflow/internal/config"
	"github.com/dusk-indust/dataflow/internal/llm/llmtest"
	"github.com/dusk-indust/dataflow/internal/store"
)

func TestMetadataAgent_DiscoversSchema(t *testing.T) {
	var calls callLog
	url := fakeDenodo(t, "customers, orders", &calls)
	completer := llmtest.Replies(`{"relevant_sources": ["denodo"]}`)

	a := NewMetadataAgent(Deps{
		LLM:   completer,
		Tools: config.ToolsConfig{DenodoEndpoint: url},
	})
	res, err := a.Execute(context.Background(), Task{
		SessionID:   "s1",
		Description: "Find customer tables",
		Context:     Context{Query: "customer churn", UserEmail: "analyst@example.com"},
	})
	require.NoError(t, err)
	require.Equal(t, store.ExecutionCompleted, res.Status)

	out, ok := res.Output.(*MetadataOutput)
	require.True(t, ok)
	assert.Equal(t, []string{"denodo", "demo"}, out.Sources)
	require.Len(t, out.ToolCalls, 1)
	assert.Equal(t, ToolCall{Source: "denodo", Type: "schema_discovery", Result: "customers, orders"}, out.ToolCalls[0])
	assert.Equal(t, []any{"denodo"}, out.Analysis["relevant_sources"])
	assert.Equal(t, "schema-first approach", out.Recommendations.ExplorationStrategy)
	assert.Equal(t, []string{"denodo"}, out.Recommendations.PrioritySources)

	got := calls.all()
	require.Len(t, got, 1)
	assert.Equal(t, map[string]any{"question": "SHOW TABLES", "mode": "metadata"}, got[0].Args)

	llmCalls := completer.Calls()
	require.Len(t, llmCalls, 1)
	assert.Contains(t, llmCalls[0].User, "Find customer tables")
	assert.Contains(t, llmCalls[0].User, "customer churn")
	assert.Equal(t, 1000, llmCalls[0].MaxTokens)
}

func TestMetadataAgent_ToolFailureIsRecorded(t *testing.T) {
	a := NewMetadataAgent(Deps{
		LLM:   llmtest.Replies("plain text analysis"),
		Tools: config.ToolsConfig{DenodoEndpoint: unreachableURL(t)},
	})
	res, err := a.Execute(context.Background(), Task{Description: "d"})
	require.NoError(t, err)
	require.Equal(t, store.ExecutionCompleted, res.Status)

	out := res.Output.(*MetadataOutput)
	require.Len(t, out.ToolCalls, 1)
	assert.NotEmpty(t, out.ToolCalls[0].Error)
	assert.False(t, out.ToolCalls[0].OK())
	assert.Equal(t, map[string]any{"analysis": "plain text analysis"}, out.Analysis)
}

func TestMetadataAgent_ToolErrorTextIsRecorded(t *testing.T) {
	url := fakeDenodo(t, "Error: Could not connect to Denodo AI SDK at http://x", nil)
	a := NewMetadataAgent(Deps{LLM: llmtest.Replies("{}"), Tools: config.ToolsConfig{DenodoEndpoint: url}})

	res, err := a.Execute(context.Background(), Task{})
	require.NoError(t, err)
	out := res.Output.(*MetadataOutput)
	assert.Equal(t, "Error: Could not connect to Denodo AI SDK at http://x", out.ToolCalls[0].Error)
	assert.Nil(t, out.ToolCalls[0].Result)
}

func TestMetadataAgent_LLMFailureFailsAgent(t *testing.T) {
	url := fakeDenodo(t, "tables", nil)
	a := NewMetadataAgent(Deps{LLM: llmtest.Failing(errors.New("rate limited")), Tools: config.ToolsConfig{DenodoEndpoint: url}})

	res, err := a.Execute(context.Background(), Task{})
	require.NoError(t, err)
	assert.Equal(t, store.ExecutionFailed, res.Status)
	assert.Equal(t, "metadata agent failed: metadata analysis: rate limited", res.Summary)
}

func TestMCPURL(t *testing.T) {
	assert.Equal(t, "http://localhost:8081/mcp", MCPURL("http://localhost:8081"))
	assert.Equal(t, "http://localhost:8081/mcp", MCPURL("http://localhost:8081/"))
	assert.Equal(t, "http://localhost:8081/mcp", MCPURL("http://localhost:8081/mcp"))
}
