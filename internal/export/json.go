// Package export renders supervisor runs for humans and tools: a JSON
// trace export and a Mermaid flowchart of the visited nodes.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dusk-indust/dataflow/internal/agent"
	"github.com/dusk-indust/dataflow/internal/orchestrator"
)

// TraceExport is the top-level JSON export structure.
type TraceExport struct {
	SessionID      string        `json:"sessionId"`
	ExportedAt     string        `json:"exportedAt"`
	WorkflowStatus string        `json:"workflowStatus"`
	ErrorCount     int           `json:"errorCount"`
	AgentsExecuted int           `json:"agentsExecuted"`
	DurationMS     int64         `json:"durationMs,omitempty"`
	Error          string        `json:"error,omitempty"`
	Steps          []StepExport  `json:"steps"`
	Agents         []AgentExport `json:"agents"`
}

// StepExport is one visited node.
type StepExport struct {
	Step       int    `json:"step"`
	Node       string `json:"node"`
	Next       string `json:"next"`
	Source     string `json:"source,omitempty"`
	Status     string `json:"status,omitempty"`
	DurationMS int64  `json:"durationMs"`
}

// AgentExport summarises one agent's stored result.
type AgentExport struct {
	Agent   string `json:"agent"`
	Status  string `json:"status"`
	Summary string `json:"summary,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ExportTrace builds a TraceExport from a finished run.
func ExportTrace(out *orchestrator.Outcome, now time.Time) *TraceExport {
	sum := out.ExecutionSummary
	export := &TraceExport{
		SessionID:      sum.SessionID,
		ExportedAt:     now.UTC().Format(time.RFC3339),
		WorkflowStatus: string(out.WorkflowStatus),
		ErrorCount:     sum.ErrorCount,
		AgentsExecuted: sum.TotalAgentsExecuted,
		Error:          out.Error,
		Steps:          make([]StepExport, 0, len(out.Trace)),
		Agents:         []AgentExport{},
	}
	if sum.CompletedAt != nil {
		export.DurationMS = sum.CompletedAt.Sub(sum.StartedAt).Milliseconds()
	}

	for _, s := range out.Trace {
		export.Steps = append(export.Steps, StepExport{
			Step:       s.Step,
			Node:       string(s.Node),
			Next:       string(s.Next),
			Source:     s.Source,
			Status:     s.Status,
			DurationMS: s.DurationMS,
		})
	}

	results := map[agent.Kind]*agent.Result{
		agent.KindMetadata:    out.MetadataResults,
		agent.KindEntitlement: out.EntitlementResults,
		agent.KindData:        out.DataResults,
		agent.KindAggregation: out.AggregationResults,
	}
	for _, k := range agent.Kinds {
		r := results[k]
		if r == nil {
			export.Agents = append(export.Agents, AgentExport{Agent: string(k), Status: "not_executed"})
			continue
		}
		export.Agents = append(export.Agents, AgentExport{
			Agent:   string(k),
			Status:  string(r.Status),
			Summary: r.Summary,
			Error:   r.Error,
		})
	}
	return export
}

// WriteJSON writes the trace export of out as indented JSON.
func WriteJSON(w io.Writer, out *orchestrator.Outcome, now time.Time) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(ExportTrace(out, now)); err != nil {
		return fmt.Errorf("export json: %w", err)
	}
	return nil
}
