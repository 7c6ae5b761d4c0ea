package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/dataflow/internal/llm/llmtest"
	"github.com/dusk-indust/dataflow/internal/store"
)

func upstreamContext() Context {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return Context{
		Query: "customer churn",
		Metadata: &Result{Status: store.ExecutionCompleted, Output: &MetadataOutput{
			Timestamp: ts,
			ToolCalls: []ToolCall{
				{Source: "denodo", Type: "schema_discovery", Result: "tables"},
				{Source: "denodo", Type: "schema_discovery", Error: "timeout"},
			},
		}},
		Entitlement: &Result{Status: store.ExecutionCompleted, Output: &EntitlementOutput{}},
		Data: &Result{Status: store.ExecutionCompleted, Output: &DataOutput{
			Timestamp: ts,
			ToolExecutions: []ToolExecution{
				{Tool: "denodoAgent:ask_database", Server: "denodoAgent", Status: "success", Query: "customer churn"},
				{Tool: "demoAgent:ask_ai", Server: "demoAgent", Status: "error", Error: "boom"},
			},
		}},
	}
}

func TestCitations(t *testing.T) {
	citations := Citations(upstreamContext())
	require.Len(t, citations, 2)

	assert.Equal(t, "denodo", citations[0].Source)
	assert.Equal(t, "metadata", citations[0].Type)
	assert.Empty(t, citations[0].Query)

	assert.Equal(t, "denodoAgent", citations[1].Source)
	assert.Equal(t, "data", citations[1].Type)
	assert.Equal(t, "customer churn", citations[1].Query)
}

func TestCitations_FromDecodedOutputs(t *testing.T) {
	c := upstreamContext()
	data, err := json.Marshal(c.Data.Output)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	c.Data.Output = decoded
	c.Metadata = nil

	citations := Citations(c)
	require.Len(t, citations, 1)
	assert.Equal(t, "data", citations[0].Type)
}

func TestAggregationAgent_Synthesizes(t *testing.T) {
	completer := llmtest.Replies(`{"executive_summary": "churn is low", "key_insights": ["a", "b", "c"]}`)
	a := NewAggregationAgent(Deps{LLM: completer})

	res, err := a.Execute(context.Background(), Task{Description: "Summarize churn", Context: upstreamContext()})
	require.NoError(t, err)
	require.Equal(t, store.ExecutionCompleted, res.Status)

	out := res.Output.(*AggregationOutput)
	assert.Equal(t, "churn is low", out.Synthesis["executive_summary"])
	assert.Equal(t, 3, out.PrimaryInsights)
	assert.Len(t, out.Citations, 2)
	assert.Equal(t, map[string]string{
		"metadata_agent":    "completed",
		"entitlement_agent": "completed",
		"data_agent":        "completed",
	}, out.AgentSummary)
	assert.Equal(t, Completeness{TotalAgents: 3, CompletedAgents: 3, SuccessRate: 1}, out.Completeness)

	calls := completer.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, 1500, calls[0].MaxTokens)
	assert.Contains(t, calls[0].User, "Summarize churn")
}

func TestAggregationAgent_PartialUpstream(t *testing.T) {
	a := NewAggregationAgent(Deps{LLM: llmtest.Replies("prose answer")})
	c := upstreamContext()
	c.Entitlement, c.Data = nil, nil

	res, err := a.Execute(context.Background(), Task{Context: c})
	require.NoError(t, err)

	out := res.Output.(*AggregationOutput)
	assert.Equal(t, map[string]any{"synthesis": "prose answer"}, out.Synthesis)
	assert.Equal(t, "not_executed", out.AgentSummary["data_agent"])
	assert.Equal(t, 1, out.Completeness.CompletedAgents)
	assert.InDelta(t, 1.0/3, out.Completeness.SuccessRate, 1e-9)
	assert.Zero(t, out.PrimaryInsights)
}

func TestAggregationAgent_LLMFailure(t *testing.T) {
	a := NewAggregationAgent(Deps{LLM: llmtest.Failing(errors.New("down"))})

	res, err := a.Execute(context.Background(), Task{})
	require.NoError(t, err)
	assert.Equal(t, store.ExecutionFailed, res.Status)
}
