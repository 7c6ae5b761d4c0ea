package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dusk-indust/dataflow/internal/agent"
	"github.com/dusk-indust/dataflow/internal/llm"
	"github.com/dusk-indust/dataflow/internal/logging"
)

// Plan is a research plan for the sequential pipeline.
type Plan struct {
	Objective  string            `json:"objective"`
	Approach   string            `json:"approach"`
	AgentTasks map[string]string `json:"agent_tasks"`
	// ExecutionOrder lists phases. Each entry is a comma-separated group of
	// agent names that run in parallel.
	ExecutionOrder  []string `json:"execution_order"`
	SuccessCriteria string   `json:"success_criteria"`
}

// DefaultExecutionOrder is used when a plan names no known agents.
var DefaultExecutionOrder = []string{"metadata,entitlement", "data", "aggregation"}

// FallbackPlan is used when the planner's reply is not a usable plan.
func FallbackPlan(query, mode string) Plan {
	return Plan{
		Objective: "Research and analyze: " + query,
		Approach:  fmt.Sprintf("Multi-agent %s research", mode),
		AgentTasks: map[string]string{
			"metadata":    "Discover relevant data sources and schemas",
			"entitlement": "Validate data access permissions",
			"data":        "Retrieve and process relevant data",
			"aggregation": "Synthesize findings into comprehensive response",
		},
		ExecutionOrder:  append([]string(nil), DefaultExecutionOrder...),
		SuccessCriteria: "Complete answer to user query with proper citations",
	}
}

// DegradedPlan is used when the planner could not be reached.
func DegradedPlan(query string) Plan {
	return Plan{
		Objective: "Research: " + query,
		Approach:  "Basic multi-agent research",
		AgentTasks: map[string]string{
			"metadata": "Discover data sources",
			"data":     "Retrieve relevant data",
		},
		ExecutionOrder:  []string{"metadata", "data"},
		SuccessCriteria: "Answer user query",
	}
}

// Tasks returns the per-agent task descriptions keyed by kind.
func (p Plan) Tasks() map[agent.Kind]string {
	out := make(map[agent.Kind]string, len(p.AgentTasks))
	for name, task := range p.AgentTasks {
		if kind, ok := agent.ParseKind(name); ok {
			out[kind] = task
		}
	}
	return out
}

// ParsePhases splits an execution order into phases of agent kinds. Unknown
// names are reported in skipped. Duplicates within a phase are dropped.
func ParsePhases(order []string) (phases [][]agent.Kind, skipped []string) {
	for _, group := range order {
		var phase []agent.Kind
		seen := map[agent.Kind]bool{}
		for _, name := range strings.Split(group, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			kind, ok := agent.ParseKind(name)
			if !ok {
				skipped = append(skipped, name)
				continue
			}
			if !seen[kind] {
				seen[kind] = true
				phase = append(phase, kind)
			}
		}
		if len(phase) > 0 {
			phases = append(phases, phase)
		}
	}
	return phases, skipped
}

// PlanRequest is the input of a plan run. It is also the body of
// POST /execute_research.
type PlanRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
	UserEmail string `json:"user_email,omitempty"`
	Plan      Plan   `json:"research_plan"`
}

// PlanOutput is the result of a plan run.
type PlanOutput struct {
	AgentResults       map[string]any   `json:"agent_results"`
	AggregatedFindings map[string]any   `json:"aggregated_findings"`
	Citations          []agent.Citation `json:"citations"`
	TotalTokens        int              `json:"total_tokens"`
	Error              string           `json:"error,omitempty"`
}

// Runner executes research plans.
type Runner interface {
	Execute(ctx context.Context, req PlanRequest) (*PlanOutput, error)
}

// PlanPipeline runs a plan against local agents, phase by phase.
type PlanPipeline struct {
	fanout *FanOut
	logger *zap.Logger
}

var _ Runner = (*PlanPipeline)(nil)

// NewPlanPipeline creates a pipeline over agents. progress may be nil.
func NewPlanPipeline(agents map[agent.Kind]agent.Agent, progress *ProgressReporter, logger *zap.Logger) *PlanPipeline {
	return &PlanPipeline{fanout: NewFanOut(agents, progress), logger: logging.OrNop(logger)}
}

// Execute runs each phase in order. Later phases see the results of earlier
// ones. Token usage is summed over every LLM call made during the run.
func (p *PlanPipeline) Execute(ctx context.Context, req PlanRequest) (*PlanOutput, error) {
	log := p.logger.With(zap.String("session_id", req.SessionID))

	phases, skipped := ParsePhases(req.Plan.ExecutionOrder)
	if len(skipped) > 0 {
		log.Warn("skipping unknown agents in execution order", zap.Strings("agents", skipped))
	}
	if len(phases) == 0 {
		log.Warn("plan names no known agents, using default execution order")
		phases, _ = ParsePhases(DefaultExecutionOrder)
	}

	ctx, usage := llm.WithUsageTracker(ctx)
	c := agent.Context{
		UserEmail: req.UserEmail,
		SessionID: req.SessionID,
		Query:     req.Query,
	}
	tasks := req.Plan.Tasks()
	out := &PlanOutput{AgentResults: map[string]any{}}

	var aggregation *agent.Result
	for i, phase := range phases {
		log.Info("executing plan phase", zap.Int("phase", i+1), zap.Any("agents", phase))
		results, err := p.fanout.Run(ctx, c, phase, tasks, req.Query)
		for _, r := range results {
			key := string(r.Kind)
			switch {
			case r.Err != nil:
				out.AgentResults[key] = map[string]any{"error": r.Err.Error()}
				continue
			case r.Result == nil:
				continue
			}
			out.AgentResults[key] = r.Result
			switch r.Kind {
			case agent.KindMetadata:
				c.Metadata = r.Result
			case agent.KindEntitlement:
				c.Entitlement = r.Result
			case agent.KindData:
				c.Data = r.Result
			case agent.KindAggregation:
				aggregation = r.Result
			}
		}
		if err != nil {
			out.TotalTokens = usage.Total()
			return out, fmt.Errorf("plan phase %d: %w", i+1, err)
		}
	}

	out.Citations = agent.Citations(c)
	out.AggregatedFindings = findings(aggregation)
	out.TotalTokens = usage.Total()
	return out, nil
}

func findings(r *agent.Result) map[string]any {
	if r == nil || !r.Succeeded() || r.Output == nil {
		return map[string]any{}
	}
	data, err := json.Marshal(r.Output)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{}
	}
	return m
}
