package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/dataflow/internal/toolmcp"
	"github.com/dusk-indust/dataflow/internal/toolmcp/toolmcptest"
)

type runnerFunc func(ctx context.Context, req PlanRequest) (*PlanOutput, error)

func (f runnerFunc) Execute(ctx context.Context, req PlanRequest) (*PlanOutput, error) {
	return f(ctx, req)
}

type askFunc func(args map[string]any) (string, error)

// demoClient serves an ask_ai tool in memory at http://demo/mcp.
func demoClient(fn askFunc) *toolmcp.Client {
	s := mcp.NewServer(&mcp.Implementation{Name: "demo_ai", Version: "1.0.0"}, nil)
	mcp.AddTool(s, &mcp.Tool{Name: "ask_ai", InputSchema: &jsonschema.Schema{Type: "object"}},
		func(_ context.Context, _ *mcp.CallToolRequest, args map[string]any) (*mcp.CallToolResult, any, error) {
			text, err := fn(args)
			if err != nil {
				return nil, nil, err
			}
			return toolmcp.TextResult(text), nil, nil
		})
	return toolmcptest.Client(map[string]*mcp.Server{"http://demo/mcp": s})
}

func TestDemoRunner_Analyze(t *testing.T) {
	var gotArgs map[string]any
	client := demoClient(func(args map[string]any) (string, error) {
		gotArgs = args
		return "three segments drive churn", nil
	})

	out, err := NewDemoRunner(client, "http://demo", nil).Execute(context.Background(), PlanRequest{SessionID: "s", Query: "churn drivers"})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"question": "churn drivers", "mode": "analyze"}, gotArgs)
	assert.Equal(t, map[string]any{"answer": "three segments drive churn"}, out.AgentResults["demo_research"])
	assert.Equal(t, map[string]any{
		"summary": "Basic research completed for: churn drivers",
		"method":  "fallback_execution",
	}, out.AggregatedFindings)
	assert.Empty(t, out.Citations)
	assert.Equal(t, FallbackTokenEstimate, out.TotalTokens)
}

func TestDemoRunner_ErrorsAreReported(t *testing.T) {
	client := demoClient(func(map[string]any) (string, error) {
		return "", errors.New("model unavailable")
	})

	out, err := NewDemoRunner(client, "http://demo", nil).Execute(context.Background(), PlanRequest{Query: "q"})
	require.NoError(t, err)

	res, ok := out.AgentResults["demo_research"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, res["error"], "model unavailable")
	assert.Zero(t, out.TotalTokens)
	assert.Equal(t, "fallback_execution", out.AggregatedFindings["method"])
}

func TestDemoRunner_UnreachableServer(t *testing.T) {
	out, err := NewDemoRunner(toolmcptest.Client(nil), "http://demo", nil).Execute(context.Background(), PlanRequest{Query: "q"})
	require.NoError(t, err)

	res, ok := out.AgentResults["demo_research"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, res["error"], "no server at http://demo/mcp")
	assert.Zero(t, out.TotalTokens)
}

func TestFallbackRunner(t *testing.T) {
	primaryOut := &PlanOutput{TotalTokens: 7}
	fallbackOut := &PlanOutput{TotalTokens: FallbackTokenEstimate}
	fallback := runnerFunc(func(context.Context, PlanRequest) (*PlanOutput, error) { return fallbackOut, nil })

	t.Run("primary succeeds", func(t *testing.T) {
		r := &FallbackRunner{
			Primary:  runnerFunc(func(context.Context, PlanRequest) (*PlanOutput, error) { return primaryOut, nil }),
			Fallback: fallback,
		}
		out, err := r.Execute(context.Background(), PlanRequest{})
		require.NoError(t, err)
		assert.Same(t, primaryOut, out)
	})

	t.Run("primary fails", func(t *testing.T) {
		r := &FallbackRunner{
			Primary: runnerFunc(func(context.Context, PlanRequest) (*PlanOutput, error) {
				return nil, errors.New("connection refused")
			}),
			Fallback: fallback,
		}
		out, err := r.Execute(context.Background(), PlanRequest{})
		require.NoError(t, err)
		assert.Same(t, fallbackOut, out)
	})

	t.Run("canceled context skips fallback", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		r := &FallbackRunner{
			Primary: runnerFunc(func(ctx context.Context, _ PlanRequest) (*PlanOutput, error) {
				return nil, ctx.Err()
			}),
			Fallback: fallback,
		}
		_, err := r.Execute(ctx, PlanRequest{})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
