// Package research is the session-level research service behind the REST
// and MCP transports: it plans a query, runs the plan and keeps the session
// bookkeeping.
package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dusk-indust/dataflow/internal/agent"
	"github.com/dusk-indust/dataflow/internal/llm"
	"github.com/dusk-indust/dataflow/internal/logging"
	"github.com/dusk-indust/dataflow/internal/orchestrator"
	"github.com/dusk-indust/dataflow/internal/store"
)

var (
	// ErrEmptyQuery rejects blank queries.
	ErrEmptyQuery = errors.New("research: query cannot be empty")
	// ErrInvalidMode rejects unknown research modes.
	ErrInvalidMode = errors.New("research: mode must be one of metadata, data, analysis, full")
)

// DefaultUserEmail identifies anonymous callers.
const DefaultUserEmail = agent.DefaultUserEmail

// Mode scopes a research run.
type Mode string

const (
	ModeMetadata Mode = "metadata"
	ModeData     Mode = "data"
	ModeAnalysis Mode = "analysis"
	ModeFull     Mode = "full"
)

// ParseMode maps "" to ModeFull and rejects unknown modes.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeFull, nil
	case ModeMetadata, ModeData, ModeAnalysis, ModeFull:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Request starts a research run.
type Request struct {
	Query     string `json:"query"`
	UserEmail string `json:"user_email,omitempty"`
	// SessionID continues an existing session.
	SessionID string `json:"session_id,omitempty"`
	Mode      Mode   `json:"research_mode,omitempty"`
}

// Outcome is the final outcome of a research run. It is also stored on the
// session.
type Outcome struct {
	Query              string            `json:"query"`
	ResearchMode       Mode              `json:"research_mode"`
	ResearchPlan       orchestrator.Plan `json:"research_plan"`
	AgentResults       map[string]any    `json:"agent_results"`
	AggregatedFindings map[string]any    `json:"aggregated_findings"`
	Citations          []agent.Citation  `json:"citations"`
	ExecutionTimeMS    int64             `json:"execution_time_ms"`
	TotalTokens        int               `json:"total_tokens"`
	SessionID          string            `json:"session_id"`
	Error              string            `json:"error,omitempty"`
}

// Model is the LLM surface the service needs.
type Model interface {
	llm.Completer
	Ping(ctx context.Context) error
}

// Options configures a Service.
type Options struct {
	Store  store.Store
	LLM    Model
	Runner orchestrator.Runner
	// Deployment is reported by Health.
	Deployment string
	// AgentsEndpoint is probed by Health when set.
	AgentsEndpoint string
	Detector       *orchestrator.Detector
	Logger         *zap.Logger
}

// Service runs research sessions.
type Service struct {
	store          store.Store
	llm            Model
	runner         orchestrator.Runner
	deployment     string
	agentsEndpoint string
	detector       *orchestrator.Detector
	logger         *zap.Logger
	now            func() time.Time
}

// New creates a Service.
func New(opts Options) *Service {
	logger := logging.OrNop(opts.Logger)
	detector := opts.Detector
	if detector == nil {
		detector = orchestrator.NewDetector(nil, 0, logger)
	}
	return &Service{
		store:          opts.Store,
		llm:            opts.LLM,
		runner:         opts.Runner,
		deployment:     opts.Deployment,
		agentsEndpoint: opts.AgentsEndpoint,
		detector:       detector,
		logger:         logger,
		now:            time.Now,
	}
}

// Research plans req.Query, runs the plan and records the outcome on the
// session. Failures after the session exists mark it failed.
func (s *Service) Research(ctx context.Context, req Request) (*Outcome, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, ErrEmptyQuery
	}
	mode, err := ParseMode(string(req.Mode))
	if err != nil {
		return nil, err
	}
	email := req.UserEmail
	if email == "" {
		email = DefaultUserEmail
	}

	start := s.now()
	s.logger.Info("starting multi-agent research", zap.String("query", logging.Truncate(req.Query, 100)), zap.String("mode", string(mode)))

	userID, err := s.store.GetOrCreateUser(ctx, email, "")
	if err != nil {
		return nil, fmt.Errorf("research failed: %w", err)
	}

	sessionID := req.SessionID
	if sessionID != "" {
		if _, err := s.store.GetSession(ctx, sessionID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("session %s not found: %w", sessionID, err)
			}
			return nil, fmt.Errorf("research failed: %w", err)
		}
	} else {
		sessionID, err = s.store.CreateSession(ctx, userID, req.Query, nil)
		if err != nil {
			return nil, fmt.Errorf("research failed: %w", err)
		}
	}
	log := s.logger.With(zap.String("session_id", sessionID))

	out, err := s.run(ctx, sessionID, email, req.Query, mode, start)
	if err != nil {
		log.Error("multi-agent research failed", zap.Error(err))
		if _, uerr := s.store.UpdateSession(context.WithoutCancel(ctx), sessionID, store.SessionUpdate{
			Status: store.Ptr(store.SessionFailed),
		}); uerr != nil {
			log.Warn("mark session failed", zap.Error(uerr))
		}
		return nil, fmt.Errorf("research failed: %w", err)
	}
	log.Info("research completed",
		zap.Int64("execution_time_ms", out.ExecutionTimeMS),
		zap.Int("total_tokens", out.TotalTokens),
	)
	return out, nil
}

func (s *Service) run(ctx context.Context, sessionID, email, query string, mode Mode, start time.Time) (*Outcome, error) {
	plan := s.DevelopPlan(ctx, query, mode)
	planMap := toMap(plan)

	if _, err := s.store.UpdateSession(ctx, sessionID, store.SessionUpdate{ResearchPlan: planMap}); err != nil {
		return nil, fmt.Errorf("store plan: %w", err)
	}
	if _, err := s.store.StoreMemory(ctx, store.Memory{
		SessionID: sessionID,
		Type:      store.MemoryResearchPlan,
		Content:   planMap,
	}); err != nil {
		return nil, fmt.Errorf("store plan memory: %w", err)
	}

	res, err := s.runner.Execute(ctx, orchestrator.PlanRequest{
		SessionID: sessionID,
		Query:     query,
		UserEmail: email,
		Plan:      plan,
	})
	if err != nil {
		return nil, err
	}

	out := &Outcome{
		Query:              query,
		ResearchMode:       mode,
		ResearchPlan:       plan,
		AgentResults:       res.AgentResults,
		AggregatedFindings: res.AggregatedFindings,
		Citations:          res.Citations,
		ExecutionTimeMS:    s.now().Sub(start).Milliseconds(),
		TotalTokens:        res.TotalTokens,
		SessionID:          sessionID,
		Error:              res.Error,
	}
	if out.AgentResults == nil {
		out.AgentResults = map[string]any{}
	}
	if out.AggregatedFindings == nil {
		out.AggregatedFindings = map[string]any{}
	}
	if out.Citations == nil {
		out.Citations = []agent.Citation{}
	}

	if _, err := s.store.UpdateSession(ctx, sessionID, store.SessionUpdate{
		Status:       store.Ptr(store.SessionCompleted),
		FinalOutcome: toMap(out),
		TokenUsage:   store.Ptr(out.TotalTokens),
	}); err != nil {
		return nil, fmt.Errorf("store outcome: %w", err)
	}
	return out, nil
}

// SessionExecution is one agent run in a SessionStatus.
type SessionExecution struct {
	ExecutionID     string                `json:"execution_id"`
	AgentType       store.AgentType       `json:"agent_type"`
	Status          store.ExecutionStatus `json:"status"`
	TaskDescription string                `json:"task_description"`
	ExecutionTimeMS *int                  `json:"execution_time_ms"`
	ErrorMessage    string                `json:"error_message,omitempty"`
}

// SessionStatus reports a session with its agent runs.
type SessionStatus struct {
	SessionID          string              `json:"session_id"`
	Status             store.SessionStatus `json:"status"`
	InitialQuery       string              `json:"initial_query"`
	CreatedAt          time.Time           `json:"created_at"`
	CompletedAt        *time.Time          `json:"completed_at"`
	TokenUsage         int                 `json:"token_usage"`
	ResearchPlan       map[string]any      `json:"research_plan"`
	SubagentExecutions []SessionExecution  `json:"subagent_executions"`
	MemoryCount        int                 `json:"memory_count"`
}

// SessionStatus loads session id with its executions and memory count.
func (s *Service) SessionStatus(ctx context.Context, id string) (*SessionStatus, error) {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("session %s not found: %w", id, err)
		}
		return nil, fmt.Errorf("get session status: %w", err)
	}
	execs, err := s.store.ListExecutions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get session status: %w", err)
	}
	memories, err := s.store.ListMemory(ctx, id, nil)
	if err != nil {
		return nil, fmt.Errorf("get session status: %w", err)
	}

	out := &SessionStatus{
		SessionID:          sess.ID,
		Status:             sess.Status,
		InitialQuery:       sess.InitialQuery,
		CreatedAt:          sess.CreatedAt,
		CompletedAt:        sess.CompletedAt,
		TokenUsage:         sess.TokenUsage,
		ResearchPlan:       sess.ResearchPlan,
		SubagentExecutions: make([]SessionExecution, 0, len(execs)),
		MemoryCount:        len(memories),
	}
	for _, e := range execs {
		out.SubagentExecutions = append(out.SubagentExecutions, SessionExecution{
			ExecutionID:     e.ID,
			AgentType:       e.AgentType,
			Status:          e.Status,
			TaskDescription: e.TaskDescription,
			ExecutionTimeMS: e.ExecutionTimeMS,
			ErrorMessage:    e.ErrorMessage,
		})
	}
	return out, nil
}

// AnalyticsReport is Store.Analytics with its time window.
type AnalyticsReport struct {
	TimePeriodDays int       `json:"time_period_days"`
	GeneratedAt    time.Time `json:"generated_at"`
	store.Analytics
}

// Analytics reports the last days of activity.
func (s *Service) Analytics(ctx context.Context, days int) (*AnalyticsReport, error) {
	if days <= 0 {
		days = 7
	}
	a, err := s.store.Analytics(ctx, days)
	if err != nil {
		return nil, fmt.Errorf("get analytics: %w", err)
	}
	return &AnalyticsReport{TimePeriodDays: days, GeneratedAt: s.now(), Analytics: *a}, nil
}

func toMap(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}
