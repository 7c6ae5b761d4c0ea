package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dusk-indust/dataflow/internal/logging"
	"github.com/dusk-indust/dataflow/internal/metrics"
	"github.com/dusk-indust/dataflow/internal/store"
)

// Compile-time interface check.
var _ Agent = (*BaseAgent)(nil)

// LogicFunc is what specialist agents implement. It returns the
// agent-specific output struct.
type LogicFunc func(ctx context.Context, task Task) (any, error)

// Summarizer is implemented by outputs that carry their own summary line.
type Summarizer interface {
	SummaryText() string
}

// BaseAgent wraps a LogicFunc with execution bookkeeping: every run gets a
// subagent_executions row that ends completed or failed. Bookkeeping
// failures are logged and never fail the agent.
type BaseAgent struct {
	kind   Kind
	store  store.Store
	logic  LogicFunc
	logger *zap.Logger
	now    func() time.Time
}

// NewBaseAgent creates a BaseAgent. st may be nil, in which case nothing is
// persisted.
func NewBaseAgent(kind Kind, st store.Store, logger *zap.Logger, logic LogicFunc) *BaseAgent {
	return &BaseAgent{
		kind:   kind,
		store:  st,
		logic:  logic,
		logger: logging.OrNop(logger).With(zap.String("agent", string(kind))),
		now:    time.Now,
	}
}

// Kind returns the agent kind.
func (b *BaseAgent) Kind() Kind {
	return b.kind
}

// Execute runs the agent logic with tracking.
func (b *BaseAgent) Execute(ctx context.Context, task Task) (*Result, error) {
	start := b.now()
	execID := b.createExecution(ctx, task)
	b.logger.Info("agent starting execution", zap.String("execution_id", execID))

	out, err := b.logic(ctx, task)
	elapsed := int(b.now().Sub(start).Milliseconds())

	if err != nil {
		b.logger.Error("agent failed", zap.Error(err), zap.Int("execution_time_ms", elapsed))
		b.updateExecution(ctx, execID, store.ExecutionUpdate{
			Status:          store.Ptr(store.ExecutionFailed),
			ExecutionTimeMS: &elapsed,
			ErrorMessage:    err.Error(),
		})
		metrics.AgentExecutions.WithLabelValues(string(b.kind), string(store.ExecutionFailed)).Inc()
		return &Result{
			ExecutionID:     execID,
			Kind:            b.kind,
			Status:          store.ExecutionFailed,
			ExecutionTimeMS: elapsed,
			Summary:         fmt.Sprintf("%s agent failed: %v", b.kind, err),
			Error:           err.Error(),
		}, nil
	}

	b.updateExecution(ctx, execID, store.ExecutionUpdate{
		Status:          store.Ptr(store.ExecutionCompleted),
		Results:         toMap(out),
		ExecutionTimeMS: &elapsed,
	})
	metrics.AgentExecutions.WithLabelValues(string(b.kind), string(store.ExecutionCompleted)).Inc()
	b.logger.Info("agent completed", zap.Int("execution_time_ms", elapsed))

	summary := fmt.Sprintf("%s agent completed successfully", b.kind)
	if s, ok := out.(Summarizer); ok && s.SummaryText() != "" {
		summary = s.SummaryText()
	}
	return &Result{
		ExecutionID:     execID,
		Kind:            b.kind,
		Status:          store.ExecutionCompleted,
		Output:          out,
		ExecutionTimeMS: elapsed,
		Summary:         summary,
	}, nil
}

func (b *BaseAgent) createExecution(ctx context.Context, task Task) string {
	if b.store == nil {
		return ""
	}
	id, err := b.store.CreateExecution(ctx, task.SessionID, b.kind.AgentType(), task.Description, nil)
	if err != nil {
		b.logger.Warn("could not record execution", zap.Error(err))
		return ""
	}
	return id
}

func (b *BaseAgent) updateExecution(ctx context.Context, id string, u store.ExecutionUpdate) {
	if b.store == nil || id == "" {
		return
	}
	if _, err := b.store.UpdateExecution(ctx, id, u); err != nil {
		b.logger.Warn("could not update execution", zap.String("execution_id", id), zap.Error(err))
	}
}

// toMap flattens an output struct into the JSON object stored with the
// execution.
func toMap(v any) map[string]any {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"value": string(data)}
	}
	return m
}
