package orchestrator

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/dataflow/internal/agent"
	"github.com/dusk-indust/dataflow/internal/store"
)

// PhaseResult holds the outcome of one agent within a phase.
type PhaseResult struct {
	Kind   agent.Kind
	Result *agent.Result
	// Err is set when the agent could not run at all.
	Err error
}

// FanOut runs the agents of a phase in parallel and collects their results.
// Agent failures are recorded per result and do not cancel the siblings.
type FanOut struct {
	agents   map[agent.Kind]agent.Agent
	progress *ProgressReporter
}

// NewFanOut creates a FanOut over agents. progress may be nil.
func NewFanOut(agents map[agent.Kind]agent.Agent, progress *ProgressReporter) *FanOut {
	return &FanOut{agents: agents, progress: progress}
}

// Run executes every kind against the same context snapshot. tasks supplies
// per-kind descriptions; kinds without one get fallback. Results come back
// in the order of kinds. The returned error is non-nil only when ctx ended.
func (f *FanOut) Run(ctx context.Context, c agent.Context, kinds []agent.Kind, tasks map[agent.Kind]string, fallback string) ([]PhaseResult, error) {
	results := make([]PhaseResult, len(kinds))
	g, gctx := errgroup.WithContext(ctx)

	for i, kind := range kinds {
		node := NodeFor(kind)
		f.progress.Emit(ProgressEvent{SessionID: c.SessionID, Node: node, Status: ProgressStarted})

		g.Go(func() error {
			if kind == agent.KindData && c.Entitlement != nil && !agent.AccessGrantedBy(c.Entitlement) {
				results[i] = PhaseResult{Kind: kind, Result: accessDenied()}
				f.progress.Emit(ProgressEvent{SessionID: c.SessionID, Node: node, Status: ProgressCompleted, Message: AccessDeniedError})
				return nil
			}

			ag, ok := f.agents[kind]
			if !ok {
				err := fmt.Errorf("no %s agent configured", kind)
				results[i] = PhaseResult{Kind: kind, Err: err}
				f.progress.Emit(ProgressEvent{SessionID: c.SessionID, Node: node, Status: ProgressFailed, Message: err.Error()})
				return nil
			}

			desc := tasks[kind]
			if desc == "" {
				desc = fallback
			}
			res, err := ag.Execute(gctx, agent.Task{SessionID: c.SessionID, Description: desc, Context: c})
			results[i] = PhaseResult{Kind: kind, Result: res, Err: err}

			switch {
			case err != nil:
				f.progress.Emit(ProgressEvent{SessionID: c.SessionID, Node: node, Status: ProgressFailed, Message: err.Error()})
			case !res.Succeeded():
				f.progress.Emit(ProgressEvent{SessionID: c.SessionID, Node: node, Status: ProgressFailed, Message: res.Error})
			default:
				f.progress.Emit(ProgressEvent{SessionID: c.SessionID, Node: node, Status: ProgressCompleted, Message: res.Summary})
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}

func accessDenied() *agent.Result {
	return &agent.Result{
		Kind:    agent.KindData,
		Status:  store.ExecutionFailed,
		Output:  map[string]any{"error": AccessDeniedError},
		Summary: "data retrieval skipped: access denied",
		Error:   AccessDeniedError,
	}
}
