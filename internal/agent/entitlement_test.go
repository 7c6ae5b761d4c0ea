package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/dataflow/internal/config"
	"github.com/dusk-indust/dataflow/internal/llm/llmtest"
	"github.com/dusk-indust/dataflow/internal/store"
)

func TestEntitlementAgent_Evaluate(t *testing.T) {
	a := NewEntitlementAgent(Deps{
		LLM: llmtest.Replies("{}"),
		Entitlement: config.EntitlementConfig{
			Sources:          []string{"denodo", "demo"},
			RestrictedTables: []string{"payroll"},
			DeniedUsers:      []string{" Blocked@Example.com "},
		},
	})

	status, summary := a.Evaluate("analyst@example.com")
	assert.Equal(t, map[string]string{"denodo": AccessGranted, "demo": AccessGranted}, status.Sources)
	assert.Equal(t, []string{"payroll"}, status.RestrictedTables)
	assert.Equal(t, "basic_check", status.ValidationMethod)
	assert.True(t, summary.AccessGranted)
	assert.Equal(t, []string{"denodo", "demo"}, summary.GrantedSources)

	status, summary = a.Evaluate("blocked@example.com")
	assert.Equal(t, map[string]string{"denodo": AccessDenied, "demo": AccessDenied}, status.Sources)
	assert.False(t, summary.AccessGranted)
	assert.Equal(t, []string{"denodo", "demo"}, summary.DeniedSources)
}

func TestEntitlementAgent_Execute(t *testing.T) {
	a := NewEntitlementAgent(Deps{LLM: llmtest.Replies(`{"access": "ok"}`)})

	res, err := a.Execute(context.Background(), Task{Context: Context{}})
	require.NoError(t, err)
	require.Equal(t, store.ExecutionCompleted, res.Status)

	out := res.Output.(*EntitlementOutput)
	require.Len(t, out.ToolCalls, 1)
	assert.Equal(t, "entitlement_service", out.ToolCalls[0].Source)
	assert.Equal(t, "access_validation", out.ToolCalls[0].Type)
	assert.Equal(t, "default@example.com", out.ToolCalls[0].User)
	assert.Equal(t, "standard_user", out.Permissions.ApprovalLevel)
	assert.Equal(t, []string{"denodo", "demo"}, out.Permissions.DataSources)
	assert.Equal(t, "ok", out.Analysis["access"])
	assert.True(t, out.Summary.AccessGranted)
	assert.Equal(t, "entitlement agent granted access to denodo, demo", res.Summary)
	assert.True(t, AccessGrantedBy(res))
}

func TestEntitlementAgent_DeniedUser(t *testing.T) {
	a := NewEntitlementAgent(Deps{
		LLM:         llmtest.Replies("{}"),
		Entitlement: config.EntitlementConfig{DeniedUsers: []string{"blocked@example.com"}},
	})

	res, err := a.Execute(context.Background(), Task{Context: Context{UserEmail: "blocked@example.com"}})
	require.NoError(t, err)
	assert.Equal(t, "entitlement agent denied data access", res.Summary)
	assert.False(t, AccessGrantedBy(res))
}

func TestAccessGrantedBy(t *testing.T) {
	remote := func(out map[string]any) *Result {
		return &Result{Status: store.ExecutionCompleted, Output: out}
	}
	tests := []struct {
		name string
		res  *Result
		want bool
	}{
		{"no result", nil, true},
		{"failed run", &Result{Status: store.ExecutionFailed}, false},
		{"typed output", &Result{Status: store.ExecutionCompleted, Output: &EntitlementOutput{Summary: EntitlementSummary{AccessGranted: true}}}, true},
		{"remote denied", remote(map[string]any{"summary": map[string]any{"access_granted": false}}), false},
		{"remote granted", remote(map[string]any{"summary": map[string]any{"access_granted": true}}), true},
		{"remote summary without decision", remote(map[string]any{"summary": map[string]any{"user_email": "a@example.com"}}), false},
		{"remote output without summary", remote(map[string]any{}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AccessGrantedBy(tt.res))
		})
	}
}
