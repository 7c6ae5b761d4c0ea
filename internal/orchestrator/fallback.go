package orchestrator

import (
	"context"

	"go.uber.org/zap"

	"github.com/dusk-indust/dataflow/internal/agent"
	"github.com/dusk-indust/dataflow/internal/logging"
	"github.com/dusk-indust/dataflow/internal/toolmcp"
)

// FallbackTokenEstimate is charged for a successful demo research call.
const FallbackTokenEstimate = 500

// FallbackRunner runs Primary and, when it fails, Fallback.
type FallbackRunner struct {
	Primary  Runner
	Fallback Runner
	Logger   *zap.Logger
}

var _ Runner = (*FallbackRunner)(nil)

func (f *FallbackRunner) Execute(ctx context.Context, req PlanRequest) (*PlanOutput, error) {
	out, err := f.Primary.Execute(ctx, req)
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		return out, err
	}
	logging.OrNop(f.Logger).Warn("research execution failed, using fallback execution",
		zap.String("session_id", req.SessionID), zap.Error(err))
	return f.Fallback.Execute(ctx, req)
}

// DemoRunner answers a plan with a single analyze call to the demo tool
// server. It never fails; call errors are reported inside the output.
type DemoRunner struct {
	client   *toolmcp.Client
	endpoint string
	logger   *zap.Logger
}

var _ Runner = (*DemoRunner)(nil)

// NewDemoRunner calls the demo tool server at endpoint, the server's base
// URL without the /mcp suffix.
func NewDemoRunner(client *toolmcp.Client, endpoint string, logger *zap.Logger) *DemoRunner {
	if client == nil {
		client = toolmcp.NewClient()
	}
	return &DemoRunner{client: client, endpoint: endpoint, logger: logging.OrNop(logger)}
}

func (d *DemoRunner) Execute(ctx context.Context, req PlanRequest) (*PlanOutput, error) {
	d.logger.Info("using fallback research execution", zap.String("session_id", req.SessionID))

	out := &PlanOutput{
		AgentResults: map[string]any{},
		AggregatedFindings: map[string]any{
			"summary": "Basic research completed for: " + req.Query,
			"method":  "fallback_execution",
		},
		Citations: []agent.Citation{},
	}

	res, err := d.client.CallTool(ctx, agent.MCPURL(d.endpoint), "ask_ai", map[string]any{
		"question": req.Query,
		"mode":     "analyze",
	})
	switch {
	case err != nil:
		d.logger.Warn("demo research call failed", zap.Error(err))
		out.AgentResults["demo_research"] = map[string]any{"error": err.Error()}
	case res.IsError:
		out.AgentResults["demo_research"] = map[string]any{"error": toolmcp.Text(res)}
	default:
		out.AgentResults["demo_research"] = map[string]any{"answer": toolmcp.Text(res)}
		out.TotalTokens += FallbackTokenEstimate
	}
	return out, nil
}
