package orchestrator

import (
	"context"
	"errors"
	"sync"

	"github.com/dusk-indust/dataflow/internal/agent"
	"github.com/dusk-indust/dataflow/internal/store"
)

// stubAgent is a scripted agent. run receives the task and the 1-based call
// number; a nil run succeeds with a bare result.
type stubAgent struct {
	kind agent.Kind
	run  func(task agent.Task, call int) (*agent.Result, error)

	mu    sync.Mutex
	tasks []agent.Task
}

func (s *stubAgent) Kind() agent.Kind { return s.kind }

func (s *stubAgent) Execute(_ context.Context, task agent.Task) (*agent.Result, error) {
	s.mu.Lock()
	s.tasks = append(s.tasks, task)
	call := len(s.tasks)
	s.mu.Unlock()

	if s.run == nil {
		return completed(s.kind, nil), nil
	}
	return s.run(task, call)
}

func (s *stubAgent) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *stubAgent) lastTask() agent.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks[len(s.tasks)-1]
}

func completed(kind agent.Kind, output any) *agent.Result {
	return &agent.Result{
		ExecutionID: "exec-" + string(kind),
		Kind:        kind,
		Status:      store.ExecutionCompleted,
		Output:      output,
		Summary:     string(kind) + " done",
	}
}

func failedResult(kind agent.Kind, msg string) *agent.Result {
	return &agent.Result{Kind: kind, Status: store.ExecutionFailed, Error: msg, Summary: msg}
}

func alwaysFail(msg string) func(agent.Task, int) (*agent.Result, error) {
	return func(agent.Task, int) (*agent.Result, error) { return nil, errors.New(msg) }
}

// stubAgents returns one succeeding stub per kind with typed outputs.
func stubAgents(granted bool) map[agent.Kind]*stubAgent {
	outputs := map[agent.Kind]any{
		agent.KindMetadata: &agent.MetadataOutput{
			Sources:   []string{"denodo"},
			ToolCalls: []agent.ToolCall{{Source: "denodo", Type: "metadata"}},
		},
		agent.KindEntitlement: &agent.EntitlementOutput{
			Summary: agent.EntitlementSummary{AccessGranted: granted},
		},
		agent.KindData: &agent.DataOutput{
			ToolExecutions: []agent.ToolExecution{
				{Tool: "demoAgent.ask_ai", Status: "success", Server: "demoAgent", Query: "q"},
				{Tool: "denodoAgent.ask_database", Status: "error", Server: "denodoAgent", Error: "down"},
			},
		},
		agent.KindAggregation: &agent.AggregationOutput{
			Synthesis:       map[string]any{"executive_summary": "all good"},
			PrimaryInsights: 3,
		},
	}
	out := make(map[agent.Kind]*stubAgent, len(outputs))
	for kind, o := range outputs {
		out[kind] = &stubAgent{kind: kind, run: func(agent.Task, int) (*agent.Result, error) {
			return completed(kind, o), nil
		}}
	}
	return out
}

func asAgents(stubs map[agent.Kind]*stubAgent) map[agent.Kind]agent.Agent {
	out := make(map[agent.Kind]agent.Agent, len(stubs))
	for k, s := range stubs {
		out[k] = s
	}
	return out
}
