package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoteRunner_Execute(t *testing.T) {
	var got PlanRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/execute_research", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"agent_results":{"metadata":{"status":"completed"}},"aggregated_findings":{"synthesis":"s"},"citations":[{"source":"denodo","type":"metadata"}],"total_tokens":120}`))
	}))
	defer ts.Close()

	out, err := NewRemoteRunner(ts.URL+"/", nil, nil).Execute(context.Background(), PlanRequest{
		SessionID: "sess",
		Query:     "q",
		Plan:      DegradedPlan("q"),
	})
	require.NoError(t, err)

	assert.Equal(t, "sess", got.SessionID)
	assert.Equal(t, []string{"metadata", "data"}, got.Plan.ExecutionOrder)
	assert.Equal(t, 120, out.TotalTokens)
	assert.Equal(t, "s", out.AggregatedFindings["synthesis"])
	require.Len(t, out.Citations, 1)
	assert.Equal(t, "denodo", out.Citations[0].Source)
}

func TestRemoteRunner_NonOKStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	out, err := NewRemoteRunner(ts.URL, nil, nil).Execute(context.Background(), PlanRequest{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, "Agent execution failed with status 502", out.Error)
	assert.Empty(t, out.AgentResults)
	assert.Zero(t, out.TotalTokens)
}

func TestRemoteRunner_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := NewRemoteRunner(url, nil, nil).Execute(context.Background(), PlanRequest{Query: "q"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remote runner")
}

func TestRemoteRunner_BadBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer ts.Close()

	_, err := NewRemoteRunner(ts.URL, nil, nil).Execute(context.Background(), PlanRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}
