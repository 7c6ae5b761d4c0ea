package orchestrator

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dusk-indust/dataflow/internal/agent"
)

// Message types.
const (
	MessageHuman = "human"
	MessageAI    = "ai"
)

// State is the shared blackboard of a supervisor run.
type State struct {
	TaskDescription     string          `json:"task_description"`
	UserEmail           string          `json:"user_email"`
	SessionID           string          `json:"session_id"`
	Query               string          `json:"query,omitempty"`
	Metadata            *agent.Result   `json:"metadata_results,omitempty"`
	Entitlement         *agent.Result   `json:"entitlement_results,omitempty"`
	Data                *agent.Result   `json:"data_results,omitempty"`
	Aggregation         *agent.Result   `json:"aggregation_results,omitempty"`
	CurrentAgent        Node            `json:"current_agent,omitempty"`
	Status              WorkflowStatus  `json:"workflow_status"`
	ErrorCount          int             `json:"error_count"`
	MaxErrors           int             `json:"max_errors"`
	StartedAt           time.Time       `json:"started_at"`
	CompletedAt         *time.Time      `json:"completed_at,omitempty"`
	TotalAgentsExecuted int             `json:"total_agents_executed"`
	Messages            []agent.Message `json:"messages"`
	Trace               []TraceStep     `json:"trace"`

	stepSource string
	stepStatus string
}

// NewState seeds a run from req.
func NewState(req Request, maxErrors int, now time.Time) *State {
	id := req.SessionID
	if id == "" {
		id = SessionID(now)
	}
	return &State{
		TaskDescription: req.TaskDescription,
		UserEmail:       req.UserEmail,
		SessionID:       id,
		Query:           req.Query,
		Status:          StatusStarted,
		MaxErrors:       maxErrors,
		StartedAt:       now,
		Messages:        []agent.Message{{Type: MessageHuman, Content: req.TaskDescription}},
	}
}

// SessionID formats the default session id for t.
func SessionID(t time.Time) string {
	return "session_" + t.Format("20060102_150405")
}

// Result returns the stored result for kind.
func (s *State) Result(kind agent.Kind) *agent.Result {
	switch kind {
	case agent.KindMetadata:
		return s.Metadata
	case agent.KindEntitlement:
		return s.Entitlement
	case agent.KindData:
		return s.Data
	case agent.KindAggregation:
		return s.Aggregation
	}
	return nil
}

func (s *State) setResult(kind agent.Kind, r *agent.Result) {
	switch kind {
	case agent.KindMetadata:
		s.Metadata = r
	case agent.KindEntitlement:
		s.Entitlement = r
	case agent.KindData:
		s.Data = r
	case agent.KindAggregation:
		s.Aggregation = r
	}
}

func (s *State) say(name Node, format string, args ...any) {
	s.Messages = append(s.Messages, agent.Message{
		Type:    MessageAI,
		Content: fmt.Sprintf(format, args...),
		Name:    string(name),
	})
}

// mark annotates the trace entry of the step in progress.
func (s *State) mark(source, status string) {
	s.stepSource, s.stepStatus = source, status
}

func (s *State) finish(status WorkflowStatus, now time.Time) {
	s.Status = status
	s.CompletedAt = &now
}

// AgentContext is the view of the state handed to agents.
func (s *State) AgentContext() agent.Context {
	return agent.Context{
		UserEmail:      s.UserEmail,
		SessionID:      s.SessionID,
		Query:          s.Query,
		Metadata:       s.Metadata,
		Entitlement:    s.Entitlement,
		Data:           s.Data,
		WorkflowStatus: string(s.Status),
		Messages:       append([]agent.Message(nil), s.Messages...),
	}
}

// summaryJSON is the compact view the supervisor LLM decides on.
func (s *State) summaryJSON() string {
	summary := map[string]any{
		"task":                  s.TaskDescription,
		"metadata_completed":    s.Metadata != nil,
		"entitlement_completed": s.Entitlement != nil,
		"data_completed":        s.Data != nil,
		"aggregation_completed": s.Aggregation != nil,
		"current_agent":         s.CurrentAgent,
		"error_count":           s.ErrorCount,
	}
	data, _ := json.MarshalIndent(summary, "", "  ")
	return string(data)
}

// Outcome snapshots the state.
func (s *State) Outcome() *Outcome {
	return &Outcome{
		WorkflowStatus:     s.Status,
		MetadataResults:    s.Metadata,
		EntitlementResults: s.Entitlement,
		DataResults:        s.Data,
		AggregationResults: s.Aggregation,
		ExecutionSummary: ExecutionSummary{
			TotalAgentsExecuted: s.TotalAgentsExecuted,
			ErrorCount:          s.ErrorCount,
			StartedAt:           s.StartedAt,
			CompletedAt:         s.CompletedAt,
			SessionID:           s.SessionID,
		},
		Messages: s.Messages,
		Trace:    s.Trace,
		Success:  s.Status == StatusCompleted,
	}
}
