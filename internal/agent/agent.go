// Package agent implements the four specialist research agents and the
// bookkeeping they share.
package agent

import (
	"context"

	"github.com/dusk-indust/dataflow/internal/store"
)

// Kind identifies a specialist agent.
type Kind string

const (
	KindMetadata    Kind = "metadata"
	KindEntitlement Kind = "entitlement"
	KindData        Kind = "data"
	KindAggregation Kind = "aggregation"
)

// DefaultUserEmail stands in for callers that do not identify themselves.
const DefaultUserEmail = "default@example.com"

// Kinds lists every agent in the order the sequential fallback visits them.
var Kinds = []Kind{KindMetadata, KindEntitlement, KindData, KindAggregation}

// AgentType maps k onto the persisted agent type.
func (k Kind) AgentType() store.AgentType {
	return store.AgentType(k)
}

// ParseKind accepts "metadata" as well as "metadata_agent".
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if s == string(k) || s == string(k)+"_agent" {
			return k, true
		}
	}
	return "", false
}

// Agent is implemented by every specialist.
type Agent interface {
	Kind() Kind

	// Execute runs the task. A failure inside the agent is reported as a
	// Result with status failed; the error return is reserved for
	// callers that cannot get a Result at all.
	Execute(ctx context.Context, task Task) (*Result, error)
}

// Message is one entry of the conversation history carried in Context.
type Message struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// Context is what an agent knows about the research so far.
type Context struct {
	UserEmail      string    `json:"user_email"`
	SessionID      string    `json:"session_id"`
	Query          string    `json:"query"`
	Metadata       *Result   `json:"metadata_results,omitempty"`
	Entitlement    *Result   `json:"entitlement_results,omitempty"`
	Data           *Result   `json:"data_results,omitempty"`
	WorkflowStatus string    `json:"workflow_status,omitempty"`
	Messages       []Message `json:"messages,omitempty"`
}

// Upstream returns the stored result for k, or nil.
func (c Context) Upstream(k Kind) *Result {
	switch k {
	case KindMetadata:
		return c.Metadata
	case KindEntitlement:
		return c.Entitlement
	case KindData:
		return c.Data
	}
	return nil
}

// Task is one unit of work handed to an agent.
type Task struct {
	SessionID   string  `json:"session_id"`
	Description string  `json:"task_description"`
	Context     Context `json:"context"`
}

// Result is the outcome of one agent execution. Output holds the
// agent-specific struct: *MetadataOutput, *EntitlementOutput, *DataOutput
// or *AggregationOutput.
type Result struct {
	ExecutionID     string                `json:"execution_id"`
	Kind            Kind                  `json:"agent_type"`
	Status          store.ExecutionStatus `json:"status"`
	Output          any                   `json:"results,omitempty"`
	ExecutionTimeMS int                   `json:"execution_time_ms"`
	Summary         string                `json:"summary"`
	Error           string                `json:"error,omitempty"`
}

// Succeeded reports whether r completed.
func (r *Result) Succeeded() bool {
	return r != nil && r.Status == store.ExecutionCompleted
}

// ToolCall records one call made to an external system.
type ToolCall struct {
	Source string `json:"source"`
	Type   string `json:"type"`
	User   string `json:"user,omitempty"`
	Query  string `json:"query,omitempty"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// OK reports whether the call produced a result.
func (c ToolCall) OK() bool {
	return c.Error == ""
}
