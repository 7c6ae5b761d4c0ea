package research

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dusk-indust/dataflow/internal/llm"
	"github.com/dusk-indust/dataflow/internal/logging"
	"github.com/dusk-indust/dataflow/internal/orchestrator"
)

const planSystemPrompt = `You are a research strategist for a multi-agent system. Create a detailed research plan that will guide specialized agents.

Consider:
- What information is needed to answer the query
- Which data sources should be explored
- What metadata discovery is required
- How to break down the work for parallel execution
- What entitlement checks are needed

Create a plan that maximizes parallel execution while ensuring thorough coverage.`

const intentSystemPrompt = `You are a query intent analyzer for a multi-agent research system. Analyze the user's query and determine:

1. Research type: metadata exploration, data retrieval, cross-source analysis, or general inquiry
2. Data sources likely needed: databases, APIs, documents, etc.
3. Required agents: metadata, entitlement, data, aggregation
4. Complexity level: simple (1-2 agents), moderate (2-3 agents), complex (3-4 agents)
5. Recommended research mode: metadata, data, analysis, or full

Respond with a JSON object containing your analysis.`

const (
	planMaxTokens   = 800
	intentMaxTokens = 500
	plannerTemp     = 0.3
)

// DevelopPlan asks the LLM for a research plan. An unparseable reply yields
// orchestrator.FallbackPlan and an LLM failure orchestrator.DegradedPlan.
func (s *Service) DevelopPlan(ctx context.Context, query string, mode Mode) orchestrator.Plan {
	reply, err := s.llm.Complete(ctx, planSystemPrompt, fmt.Sprintf(`Create a research plan for this query in %[1]s mode:

Query: %[2]q
Mode: %[1]s

Provide a JSON research plan with:
{
    "objective": "Clear research objective",
    "approach": "Overall strategy",
    "agent_tasks": {
        "metadata": "Specific task for metadata agent",
        "entitlement": "Specific task for entitlement agent",
        "data": "Specific task for data agent",
        "aggregation": "Specific task for aggregation agent"
    },
    "execution_order": ["metadata,entitlement", "data", "aggregation"],
    "success_criteria": "How to measure successful completion"
}`, mode, query), llm.WithMaxTokens(planMaxTokens), llm.WithTemperature(plannerTemp))
	if err != nil {
		s.logger.Error("research plan development failed", zap.Error(err))
		return orchestrator.DegradedPlan(query)
	}

	plan, err := llm.ParseInto[orchestrator.Plan](reply)
	if err != nil || len(plan.ExecutionOrder) == 0 {
		s.logger.Warn("research plan reply is not a plan, using fallback plan", zap.Error(err))
		return orchestrator.FallbackPlan(query, string(mode))
	}
	return plan
}

// fallbackIntent is returned when the intent reply is not JSON.
func fallbackIntent() map[string]any {
	return map[string]any{
		"research_type":    "inquiry",
		"complexity_level": "moderate",
		"recommended_mode": "full",
		"required_agents":  []any{"metadata", "data"},
		"data_sources":     []any{"unknown"},
		"strategy_notes":   "Could not parse detailed analysis, using default approach",
	}
}

// AnalyzeIntent classifies query and recommends a research mode.
func (s *Service) AnalyzeIntent(ctx context.Context, query string) (map[string]any, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	s.logger.Info("analyzing query intent", zap.String("query", logging.Truncate(query, 100)))

	reply, err := s.llm.Complete(ctx, intentSystemPrompt, fmt.Sprintf(`Analyze this query and provide research recommendations:

Query: %q

Provide analysis in this JSON format:
{
    "research_type": "metadata|data|analysis|inquiry",
    "complexity_level": "simple|moderate|complex",
    "recommended_mode": "metadata|data|analysis|full",
    "required_agents": ["metadata", "entitlement", "data", "aggregation"],
    "data_sources": ["source1", "source2"],
    "strategy_notes": "Brief explanation of recommended approach"
}`, query), llm.WithMaxTokens(intentMaxTokens), llm.WithTemperature(plannerTemp))
	if err != nil {
		return nil, fmt.Errorf("intent analysis failed: %w", err)
	}

	intent, err := llm.ParseJSON(reply)
	if err != nil {
		return fallbackIntent(), nil
	}
	return intent, nil
}
