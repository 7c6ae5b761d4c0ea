// Package orchestrator drives the research agents. Supervisor runs the
// LLM-directed state machine; PlanPipeline runs a fixed research plan phase
// by phase.
package orchestrator

import (
	"errors"
	"time"

	"github.com/dusk-indust/dataflow/internal/agent"
)

// ErrRecursionLimit ends a supervisor run that exceeded its step budget.
var ErrRecursionLimit = errors.New("orchestrator: recursion limit reached")

// Node is a vertex of the supervisor graph.
type Node string

const (
	NodeSupervisor   Node = "supervisor"
	NodeMetadata     Node = "metadata_agent"
	NodeEntitlement  Node = "entitlement_agent"
	NodeData         Node = "data_agent"
	NodeAggregation  Node = "aggregation_agent"
	NodeErrorHandler Node = "error_handler"
	End              Node = "__end__"
)

// NodeFor returns the graph node that runs kind.
func NodeFor(kind agent.Kind) Node {
	return Node(string(kind) + "_agent")
}

// Kind returns the agent kind behind n.
func (n Node) Kind() (agent.Kind, bool) {
	return agent.ParseKind(string(n))
}

// WorkflowStatus is the lifecycle of a supervisor run.
type WorkflowStatus string

const (
	StatusStarted    WorkflowStatus = "started"
	StatusRunning    WorkflowStatus = "running"
	StatusRecovering WorkflowStatus = "recovering"
	StatusCompleted  WorkflowStatus = "completed"
	StatusFailed     WorkflowStatus = "failed"
)

// Request starts a supervisor run.
type Request struct {
	TaskDescription string `json:"task_description"`
	UserEmail       string `json:"user_email"`
	Query           string `json:"query,omitempty"`
	// SessionID defaults to session_YYYYMMDD_HHMMSS.
	SessionID string `json:"session_id,omitempty"`
}

// ExecutionSummary is the bookkeeping part of an Outcome.
type ExecutionSummary struct {
	TotalAgentsExecuted int        `json:"total_agents_executed"`
	ErrorCount          int        `json:"error_count"`
	StartedAt           time.Time  `json:"started_at"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	SessionID           string     `json:"session_id"`
}

// Outcome is the final state of a supervisor run.
type Outcome struct {
	WorkflowStatus     WorkflowStatus   `json:"workflow_status"`
	MetadataResults    *agent.Result    `json:"metadata_results"`
	EntitlementResults *agent.Result    `json:"entitlement_results"`
	DataResults        *agent.Result    `json:"data_results"`
	AggregationResults *agent.Result    `json:"aggregation_results"`
	ExecutionSummary   ExecutionSummary `json:"execution_summary"`
	Messages           []agent.Message  `json:"messages"`
	Trace              []TraceStep      `json:"trace"`
	Success            bool             `json:"success"`
	Error              string           `json:"error,omitempty"`
}

// TraceStep records one visited node.
type TraceStep struct {
	Step int  `json:"step"`
	Node Node `json:"node"`
	// Next is the node the step handed control to.
	Next Node `json:"next"`
	// Source tells how the supervisor chose Next: llm, fallback or limit.
	Source     string `json:"source,omitempty"`
	Status     string `json:"status,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}
