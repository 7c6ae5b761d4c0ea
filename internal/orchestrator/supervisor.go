package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dusk-indust/dataflow/internal/agent"
	"github.com/dusk-indust/dataflow/internal/llm"
	"github.com/dusk-indust/dataflow/internal/logging"
	"github.com/dusk-indust/dataflow/internal/metrics"
)

const supervisorSystemPrompt = `You are a workflow supervisor coordinating a multi-agent data analysis system.

Available agents:
- metadata_agent: Discovers data schemas and structures
- entitlement_agent: Validates security and access permissions
- data_agent: Retrieves and processes data from sources
- aggregation_agent: Analyzes and synthesizes results

Workflow rules:
1. Metadata discovery should typically happen first
2. Entitlement validation should happen before data access
3. Data retrieval should happen after entitlement approval
4. Aggregation should happen after data retrieval

Decide which agent should execute next based on current state.`

const (
	decisionComplete = "complete"
	decisionError    = "error"

	decisionMaxTokens = 50

	// AccessDeniedError marks data results skipped by entitlement.
	AccessDeniedError = "Access denied by entitlement validation"
)

var validDecisions = []string{
	string(NodeMetadata), string(NodeEntitlement), string(NodeData), string(NodeAggregation),
	decisionComplete, decisionError,
}

// Supervisor runs the agent graph: a supervisor node picks the next agent,
// the agent runs and control returns to the supervisor until it decides the
// work is complete or too many errors accumulate.
type Supervisor struct {
	agents map[agent.Kind]agent.Agent
	llm    llm.Completer
	opts   Options
	router *Router
	logger *zap.Logger
	now    func() time.Time
}

// NewSupervisor wires the graph. Kinds missing from agents fail when the
// supervisor routes to them.
func NewSupervisor(agents map[agent.Kind]agent.Agent, c llm.Completer, opts Options, logger *zap.Logger) *Supervisor {
	s := &Supervisor{
		agents: agents,
		llm:    c,
		opts:   opts.withDefaults(),
		router: NewRouter(),
		logger: logging.OrNop(logger),
		now:    time.Now,
	}
	s.router.Register(NodeSupervisor, s.supervise)
	s.router.Register(NodeErrorHandler, s.handleError)
	for _, kind := range agent.Kinds {
		s.router.Register(NodeFor(kind), s.agentNode(kind))
	}
	return s
}

// Run executes the graph to completion. Failures inside the workflow are
// reported in the Outcome; the error return is set only when ctx ends the
// run early.
func (s *Supervisor) Run(ctx context.Context, req Request) (*Outcome, error) {
	st := NewState(req, s.opts.MaxErrors, s.now())
	log := s.logger.With(zap.String("session_id", st.SessionID))
	log.Info("starting supervisor workflow", zap.String("task", req.TaskDescription))

	var runErr error
	node := NodeSupervisor
	for step := 0; node != End; step++ {
		if err := ctx.Err(); err != nil {
			st.finish(StatusFailed, s.now())
			runErr = err
			break
		}
		if step >= s.opts.MaxSteps {
			log.Error("step limit reached", zap.Int("max_steps", s.opts.MaxSteps))
			st.finish(StatusFailed, s.now())
			st.Trace = append(st.Trace, TraceStep{Step: step, Node: node, Next: End, Source: "limit", Status: string(StatusFailed)})
			runErr = ErrRecursionLimit
			break
		}

		start := s.now()
		st.mark("", "")
		next, err := s.router.Route(ctx, node, st)
		if err != nil {
			log.Error("node failed", zap.String("node", string(node)), zap.Error(err))
			st.finish(StatusFailed, s.now())
			runErr = err
			break
		}
		st.Trace = append(st.Trace, TraceStep{
			Step:       step,
			Node:       node,
			Next:       next,
			Source:     st.stepSource,
			Status:     st.stepStatus,
			DurationMS: s.now().Sub(start).Milliseconds(),
		})
		node = next
	}

	metrics.Workflows.WithLabelValues(string(st.Status)).Inc()
	log.Info("supervisor workflow finished",
		zap.String("status", string(st.Status)),
		zap.Int("agents_executed", st.TotalAgentsExecuted),
		zap.Int("errors", st.ErrorCount),
	)

	out := st.Outcome()
	if runErr != nil {
		out.Error = runErr.Error()
	}
	if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
		return out, runErr
	}
	return out, nil
}

func (s *Supervisor) supervise(ctx context.Context, st *State) (Node, error) {
	if st.ErrorCount >= st.MaxErrors {
		s.logger.Error("max errors reached, terminating workflow", zap.Int("max_errors", st.MaxErrors))
		st.finish(StatusFailed, s.now())
		st.mark("limit", string(StatusFailed))
		return End, nil
	}

	decision, source := s.decide(ctx, st)
	metrics.SupervisorDecisions.WithLabelValues(source).Inc()
	s.logger.Info("supervisor decision", zap.String("next", decision), zap.String("source", source))

	switch decision {
	case decisionComplete:
		st.finish(StatusCompleted, s.now())
		st.mark(source, string(StatusCompleted))
		return End, nil
	case decisionError:
		st.mark(source, "")
		return NodeErrorHandler, nil
	default:
		next := Node(decision)
		st.CurrentAgent = next
		st.Status = StatusRunning
		st.mark(source, "")
		return next, nil
	}
}

// decide asks the LLM for the next node and falls back to the sequential
// order when the answer is unusable.
func (s *Supervisor) decide(ctx context.Context, st *State) (string, string) {
	reply, err := s.llm.Complete(ctx, supervisorSystemPrompt, fmt.Sprintf(`Current workflow state: %s

Decide the next agent to execute. Options:
- "metadata_agent" - if metadata discovery is needed
- "entitlement_agent" - if security validation is needed
- "data_agent" - if data retrieval is needed
- "aggregation_agent" - if final analysis is needed
- "complete" - if all work is done
- "error" - if there's an error condition

Respond with just the agent name.`, st.summaryJSON()), llm.WithMaxTokens(decisionMaxTokens))
	if err != nil {
		s.logger.Warn("llm supervisor decision failed", zap.Error(err))
		return SequentialNext(st), "fallback"
	}

	decision := strings.ToLower(strings.TrimSpace(reply))
	if slices.Contains(validDecisions, decision) {
		return decision, "llm"
	}
	s.logger.Warn("invalid llm decision, falling back to sequential logic", zap.String("decision", decision))
	return SequentialNext(st), "fallback"
}

// SequentialNext names the first agent without a result, or complete.
func SequentialNext(st *State) string {
	for _, kind := range agent.Kinds {
		if st.Result(kind) == nil {
			return string(NodeFor(kind))
		}
	}
	return decisionComplete
}

func (s *Supervisor) agentNode(kind agent.Kind) NodeFunc {
	node := NodeFor(kind)
	title := strings.ToUpper(string(kind[:1])) + string(kind[1:])

	return func(ctx context.Context, st *State) (Node, error) {
		s.opts.Progress.Emit(ProgressEvent{SessionID: st.SessionID, Node: node, Status: ProgressStarted})
		s.logger.Info("executing agent", zap.String("agent", string(kind)))

		if kind == agent.KindData && st.Entitlement != nil && !agent.AccessGrantedBy(st.Entitlement) {
			s.logger.Warn("access denied by entitlement agent, skipping data retrieval")
			st.Data = accessDenied()
			st.say(node, "Data access denied due to security restrictions")
			st.mark("", "denied")
			s.opts.Progress.Emit(ProgressEvent{SessionID: st.SessionID, Node: node, Status: ProgressCompleted, Message: AccessDeniedError})
			return NodeSupervisor, nil
		}

		res, err := s.execute(ctx, kind, st)
		if err != nil {
			s.logger.Error("agent failed", zap.String("agent", string(kind)), zap.Error(err))
			st.ErrorCount++
			st.say(node, "%s agent failed: %v", title, err)
			st.mark("", string(ProgressFailed))
			s.opts.Progress.Emit(ProgressEvent{SessionID: st.SessionID, Node: node, Status: ProgressFailed, Message: err.Error()})
			return NodeSupervisor, nil
		}

		st.setResult(kind, res)
		st.TotalAgentsExecuted++
		msg := completionMessage(kind, res)
		st.say(node, "%s", msg)
		st.mark("", string(ProgressCompleted))
		s.opts.Progress.Emit(ProgressEvent{SessionID: st.SessionID, Node: node, Status: ProgressCompleted, Message: msg})
		return NodeSupervisor, nil
	}
}

func (s *Supervisor) execute(ctx context.Context, kind agent.Kind, st *State) (*agent.Result, error) {
	ag, ok := s.agents[kind]
	if !ok {
		return nil, fmt.Errorf("no %s agent configured", kind)
	}
	res, err := ag.Execute(ctx, agent.Task{
		SessionID:   st.SessionID,
		Description: st.TaskDescription,
		Context:     st.AgentContext(),
	})
	if err != nil {
		return nil, err
	}
	if !res.Succeeded() {
		if res.Error != "" {
			return nil, errors.New(res.Error)
		}
		return nil, errors.New(res.Summary)
	}
	return res, nil
}

func (s *Supervisor) handleError(_ context.Context, st *State) (Node, error) {
	s.logger.Info("handling error", zap.Int("error_count", st.ErrorCount))
	st.say(NodeErrorHandler, "Error handled. Attempting recovery (error count: %d)", st.ErrorCount)
	st.Status = StatusRecovering
	st.mark("", string(StatusRecovering))
	return NodeSupervisor, nil
}

func completionMessage(kind agent.Kind, res *agent.Result) string {
	switch out := res.Output.(type) {
	case *agent.MetadataOutput:
		return fmt.Sprintf("Metadata discovery completed. Queried %d sources.", len(out.Sources))
	case *agent.EntitlementOutput:
		if out.Summary.AccessGranted {
			return "Security validation completed. Access granted."
		}
		return "Security validation completed. Access denied."
	case *agent.DataOutput:
		return fmt.Sprintf("Data retrieval completed. Executed %d data tools.", len(out.ToolExecutions))
	case *agent.AggregationOutput:
		return fmt.Sprintf("Analysis completed. Generated %d key insights.", out.PrimaryInsights)
	}
	return res.Summary
}
