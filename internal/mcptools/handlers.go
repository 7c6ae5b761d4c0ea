package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/dusk-indust/dataflow/internal/logging"
	"github.com/dusk-indust/dataflow/internal/research"
	"github.com/dusk-indust/dataflow/internal/store"
)

// Researcher is the research surface the tools expose. *research.Service
// satisfies it.
type Researcher interface {
	Research(ctx context.Context, req research.Request) (*research.Outcome, error)
	AnalyzeIntent(ctx context.Context, query string) (map[string]any, error)
	SessionStatus(ctx context.Context, id string) (*research.SessionStatus, error)
	Health(ctx context.Context) *research.HealthReport
	Analytics(ctx context.Context, days int) (*research.AnalyticsReport, error)
}

var _ Researcher = (*research.Service)(nil)

// ResearchTools handles MCP tool calls. Failures are reported in the
// output's error field, never as protocol errors.
type ResearchTools struct {
	svc    Researcher
	logger *zap.Logger
}

// NewResearchTools creates the tool handlers over svc.
func NewResearchTools(svc Researcher, logger *zap.Logger) *ResearchTools {
	return &ResearchTools{svc: svc, logger: logging.OrNop(logger)}
}

// MultiAgentResearch plans and runs a research query.
func (t *ResearchTools) MultiAgentResearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ResearchInput,
) (*mcp.CallToolResult, ResearchOutput, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, ResearchOutput{Error: "Query cannot be empty"}, nil
	}
	mode, err := research.ParseMode(input.ResearchMode)
	if err != nil {
		return nil, ResearchOutput{Error: fmt.Sprintf("Invalid research mode: %q", input.ResearchMode)}, nil
	}

	out, err := t.svc.Research(ctx, research.Request{
		Query:     input.Query,
		UserEmail: input.UserEmail,
		SessionID: input.SessionID,
		Mode:      mode,
	})
	if err != nil {
		t.logger.Error("multi-agent research error", zap.Error(err))
		return nil, ResearchOutput{Error: researchError(err, input.SessionID)}, nil
	}

	plan := out.ResearchPlan
	return nil, ResearchOutput{
		Query:              out.Query,
		ResearchMode:       string(out.ResearchMode),
		ResearchPlan:       &plan,
		AgentResults:       out.AgentResults,
		AggregatedFindings: out.AggregatedFindings,
		Citations:          out.Citations,
		ExecutionTimeMS:    out.ExecutionTimeMS,
		TotalTokens:        out.TotalTokens,
		SessionID:          out.SessionID,
		Error:              out.Error,
	}, nil
}

// AnalyzeQueryIntent classifies a query and recommends a research mode.
func (t *ResearchTools) AnalyzeQueryIntent(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input IntentInput,
) (*mcp.CallToolResult, IntentOutput, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, IntentOutput{Error: "Query cannot be empty"}, nil
	}
	intent, err := t.svc.AnalyzeIntent(ctx, input.Query)
	if err != nil {
		t.logger.Error("intent analysis error", zap.Error(err))
		return nil, IntentOutput{Error: "Intent analysis failed: " + unwrapMessage(err, "intent analysis failed: ")}, nil
	}

	var out IntentOutput
	data, err := json.Marshal(intent)
	if err == nil {
		err = json.Unmarshal(data, &out)
	}
	if err != nil {
		return nil, IntentOutput{Error: "Intent analysis failed: " + err.Error()}, nil
	}
	out.Error = ""
	return nil, out, nil
}

// GetSessionStatus reports a session and its agent executions.
func (t *ResearchTools) GetSessionStatus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SessionStatusInput,
) (*mcp.CallToolResult, SessionStatusOutput, error) {
	st, err := t.svc.SessionStatus(ctx, input.SessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, SessionStatusOutput{Error: fmt.Sprintf("Session %s not found", input.SessionID)}, nil
		}
		t.logger.Error("get session status error", zap.Error(err))
		return nil, SessionStatusOutput{Error: "Failed to get session status: " + unwrapMessage(err, "get session status: ")}, nil
	}

	created := st.CreatedAt
	return nil, SessionStatusOutput{
		SessionID:          st.SessionID,
		Status:             string(st.Status),
		InitialQuery:       st.InitialQuery,
		CreatedAt:          &created,
		CompletedAt:        st.CompletedAt,
		TokenUsage:         st.TokenUsage,
		ResearchPlan:       st.ResearchPlan,
		SubagentExecutions: st.SubagentExecutions,
		MemoryCount:        st.MemoryCount,
	}, nil
}

// HealthCheck probes the LLM, the database and the agent server.
func (t *ResearchTools) HealthCheck(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ HealthInput,
) (*mcp.CallToolResult, HealthOutput, error) {
	t.logger.Info("performing health check")
	h := t.svc.Health(ctx)
	out := HealthOutput{
		ServerStatus:   h.ServerStatus,
		Timestamp:      h.Timestamp,
		ServerName:     h.ServerName,
		Version:        h.Version,
		LLMStatus:      h.LLMStatus,
		LLMModel:       h.LLMModel,
		DatabaseStatus: h.DatabaseStatus,
		AgentsStatus:   h.AgentsStatus,
	}
	if h.RecentAnalytics != nil {
		a := analyticsOutput(h.RecentAnalytics)
		out.RecentAnalytics = &a
	}
	return nil, out, nil
}

// GetSystemAnalytics reports session and agent statistics.
func (t *ResearchTools) GetSystemAnalytics(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AnalyticsInput,
) (*mcp.CallToolResult, AnalyticsOutput, error) {
	a, err := t.svc.Analytics(ctx, input.Days)
	if err != nil {
		t.logger.Error("analytics error", zap.Error(err))
		return nil, AnalyticsOutput{Error: "Failed to get analytics: " + unwrapMessage(err, "get analytics: ")}, nil
	}
	return nil, analyticsOutput(a), nil
}

func analyticsOutput(a *research.AnalyticsReport) AnalyticsOutput {
	generated := a.GeneratedAt
	stats := a.SessionStats
	return AnalyticsOutput{
		TimePeriodDays: a.TimePeriodDays,
		GeneratedAt:    &generated,
		SessionStats:   &stats,
		AgentStats:     a.AgentStats,
	}
}

// researchError renders a research failure the way clients expect it.
func researchError(err error, sessionID string) string {
	switch {
	case errors.Is(err, research.ErrEmptyQuery):
		return "Query cannot be empty"
	case errors.Is(err, store.ErrNotFound) && sessionID != "":
		return fmt.Sprintf("Session %s not found", sessionID)
	}
	return "Research failed: " + unwrapMessage(err, "research failed: ")
}

func unwrapMessage(err error, prefix string) string {
	return strings.TrimPrefix(err.Error(), prefix)
}
