package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dusk-indust/dataflow/internal/llm"
)

const aggregationSystemPrompt = `You are a research synthesis specialist. Your job is to:
1. Combine findings from metadata, entitlement, and data agents
2. Identify key insights and patterns
3. Provide comprehensive conclusions
4. Generate citations and source attributions

Create a cohesive narrative from multiple agent findings.`

const aggregationMaxTokens = 1500

// Citation attributes a finding to the source that produced it.
type Citation struct {
	Source    string     `json:"source"`
	Type      string     `json:"type"`
	Query     string     `json:"query,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Completeness measures how many upstream agents contributed.
type Completeness struct {
	TotalAgents     int     `json:"total_agents"`
	CompletedAgents int     `json:"completed_agents"`
	SuccessRate     float64 `json:"success_rate"`
}

// AggregationOutput is the synthesis of all upstream findings.
type AggregationOutput struct {
	Synthesis       map[string]any    `json:"synthesis"`
	Citations       []Citation        `json:"citations"`
	AgentSummary    map[string]string `json:"agent_summary"`
	Completeness    Completeness      `json:"research_completeness"`
	PrimaryInsights int               `json:"primary_insights"`
	Timestamp       time.Time         `json:"timestamp"`
}

// AggregationAgent turns the upstream results into a final answer.
type AggregationAgent struct {
	*BaseAgent
	llm llm.Completer
	now func() time.Time
}

// NewAggregationAgent wires the agent from deps.
func NewAggregationAgent(deps Deps) *AggregationAgent {
	a := &AggregationAgent{llm: deps.LLM, now: time.Now}
	a.BaseAgent = NewBaseAgent(KindAggregation, deps.Store, deps.Logger, a.run)
	return a
}

func (a *AggregationAgent) run(ctx context.Context, task Task) (any, error) {
	c := task.Context
	reply, err := a.llm.Complete(ctx, aggregationSystemPrompt, fmt.Sprintf(`Task: %s

Aggregate and synthesize these agent findings:

Metadata Agent Results:
%s

Entitlement Agent Results:
%s

Data Agent Results:
%s

Provide a comprehensive synthesis including:
1. Executive summary of findings
2. Key insights discovered
3. Data source citations
4. Recommendations for further research
5. Limitations and caveats

Respond in JSON format with structured synthesis.`, task.Description,
		resultJSON(c.Metadata), resultJSON(c.Entitlement), resultJSON(c.Data)),
		llm.WithMaxTokens(aggregationMaxTokens))
	if err != nil {
		return nil, fmt.Errorf("aggregation synthesis: %w", err)
	}
	synthesis := llm.ParseOr(reply, "synthesis")

	out := &AggregationOutput{
		Synthesis:    synthesis,
		Citations:    Citations(c),
		AgentSummary: map[string]string{},
		Completeness: Completeness{TotalAgents: 3},
		Timestamp:    a.now().UTC(),
	}
	for _, k := range []Kind{KindMetadata, KindEntitlement, KindData} {
		state := "not_executed"
		if c.Upstream(k) != nil {
			state = "completed"
			out.Completeness.CompletedAgents++
		}
		out.AgentSummary[string(k)+"_agent"] = state
	}
	out.Completeness.SuccessRate = float64(out.Completeness.CompletedAgents) / float64(out.Completeness.TotalAgents)
	out.PrimaryInsights = countInsights(synthesis)
	return out, nil
}

// Citations collects sources from successful metadata tool calls and data
// tool executions.
func Citations(c Context) []Citation {
	citations := []Citation{}
	if m, ok := outputOf[*MetadataOutput](c.Metadata); ok {
		ts := m.Timestamp
		for _, call := range m.ToolCalls {
			if call.OK() {
				citations = append(citations, Citation{Source: call.Source, Type: "metadata", Timestamp: &ts})
			}
		}
	}
	if d, ok := outputOf[*DataOutput](c.Data); ok {
		ts := d.Timestamp
		for _, e := range d.ToolExecutions {
			if e.OK() {
				citations = append(citations, Citation{Source: e.Server, Type: "data", Query: e.Query, Timestamp: &ts})
			}
		}
	}
	return citations
}

// outputOf returns r's output as T. Outputs that crossed a JSON boundary
// arrive as maps and are decoded into T.
func outputOf[T any](r *Result) (T, bool) {
	var zero T
	if r == nil || r.Output == nil {
		return zero, false
	}
	if out, ok := r.Output.(T); ok {
		return out, true
	}
	data, err := json.Marshal(r.Output)
	if err != nil {
		return zero, false
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return zero, false
	}
	return out, true
}

func countInsights(synthesis map[string]any) int {
	for _, key := range []string{"key_insights", "insights", "primary_insights"} {
		if list, ok := synthesis[key].([]any); ok {
			return len(list)
		}
	}
	return 0
}

func resultJSON(r *Result) string {
	if r == nil {
		return "{}"
	}
	data, err := json.MarshalIndent(r.Output, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}
