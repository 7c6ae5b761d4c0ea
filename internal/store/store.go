// Package store persists research sessions, agent executions and session
// memory. Postgres is the store of record; MemStore serves development and
// tests.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dusk-indust/dataflow/internal/config"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("store: not found")

// SessionStatus is the lifecycle state of a research session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionCancelled SessionStatus = "cancelled"
)

// Terminal reports whether s ends the session.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed || s == SessionCancelled
}

// AgentType names the agent that produced an execution row.
type AgentType string

const (
	AgentMetadata    AgentType = "metadata"
	AgentEntitlement AgentType = "entitlement"
	AgentData        AgentType = "data"
	AgentAggregation AgentType = "aggregation"
)

// ExecutionStatus is the state of a single agent execution.
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
)

// Terminal reports whether s ends the execution.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed
}

// MemoryType classifies a session memory entry.
type MemoryType string

const (
	MemoryResearchPlan        MemoryType = "research_plan"
	MemoryIntermediateResults MemoryType = "intermediate_results"
	MemoryContextSummary      MemoryType = "context_summary"
	MemoryArtifactReference   MemoryType = "artifact_reference"
)

// Session is one research request and its outcome.
type Session struct {
	ID           string         `json:"session_id"`
	UserID       string         `json:"user_id"`
	InitialQuery string         `json:"initial_query"`
	ResearchPlan map[string]any `json:"research_plan,omitempty"`
	FinalOutcome map[string]any `json:"final_outcome,omitempty"`
	TokenUsage   int            `json:"token_usage"`
	Status       SessionStatus  `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

// Duration is the elapsed time of a finished session, zero while active.
func (s *Session) Duration() time.Duration {
	if s.CompletedAt == nil {
		return 0
	}
	return s.CompletedAt.Sub(s.CreatedAt)
}

// Execution is one agent run inside a session.
type Execution struct {
	ID              string          `json:"execution_id"`
	SessionID       string          `json:"session_id"`
	AgentType       AgentType       `json:"agent_type"`
	TaskDescription string          `json:"task_description"`
	ToolCalls       map[string]any  `json:"tool_calls,omitempty"`
	Results         map[string]any  `json:"results,omitempty"`
	Status          ExecutionStatus `json:"status"`
	ExecutionTimeMS *int            `json:"execution_time_ms,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// Memory is a piece of session context kept between agent runs.
type Memory struct {
	ID           string         `json:"memory_id"`
	SessionID    string         `json:"session_id"`
	Type         MemoryType     `json:"memory_type"`
	Content      map[string]any `json:"content,omitempty"`
	ArtifactPath string         `json:"artifact_path,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	ExpiresAt    *time.Time     `json:"expires_at,omitempty"`
}

// SessionUpdate carries optional changes. Nil or empty fields are left
// unchanged.
type SessionUpdate struct {
	Status       *SessionStatus
	ResearchPlan map[string]any
	FinalOutcome map[string]any
	TokenUsage   *int
}

// ExecutionUpdate carries optional changes. Nil or empty fields are left
// unchanged.
type ExecutionUpdate struct {
	Status          *ExecutionStatus
	Results         map[string]any
	ExecutionTimeMS *int
	ErrorMessage    string
}

// SessionStats aggregates sessions over a time window.
type SessionStats struct {
	TotalSessions      int      `json:"total_sessions"`
	CompletedSessions  int      `json:"completed_sessions"`
	FailedSessions     int      `json:"failed_sessions"`
	AvgTokenUsage      *float64 `json:"avg_token_usage"`
	AvgDurationSeconds *float64 `json:"avg_duration_seconds"`
}

// AgentStats aggregates executions of one agent type.
type AgentStats struct {
	AgentType            AgentType `json:"agent_type"`
	TotalExecutions      int       `json:"total_executions"`
	SuccessfulExecutions int       `json:"successful_executions"`
	AvgExecutionTimeMS   *float64  `json:"avg_execution_time_ms"`
}

// Analytics is the result of Store.Analytics.
type Analytics struct {
	SessionStats SessionStats `json:"session_stats"`
	AgentStats   []AgentStats `json:"subagent_stats"`
}

// Store is the persistence boundary used by agents and services.
type Store interface {
	GetOrCreateUser(ctx context.Context, email, name string) (string, error)

	CreateSession(ctx context.Context, userID, query string, plan map[string]any) (string, error)
	UpdateSession(ctx context.Context, id string, u SessionUpdate) (bool, error)
	GetSession(ctx context.Context, id string) (*Session, error)

	CreateExecution(ctx context.Context, sessionID string, agentType AgentType, task string, toolCalls map[string]any) (string, error)
	UpdateExecution(ctx context.Context, id string, u ExecutionUpdate) (bool, error)
	ListExecutions(ctx context.Context, sessionID string) ([]Execution, error)

	StoreMemory(ctx context.Context, m Memory) (string, error)
	ListMemory(ctx context.Context, sessionID string, memType *MemoryType) ([]Memory, error)

	Analytics(ctx context.Context, days int) (*Analytics, error)

	Ping(ctx context.Context) error
	Close() error
}

// Open returns the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemStore(), nil
	case "postgres", "":
		return OpenPostgres(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// Ptr returns a pointer to v, for building updates.
func Ptr[T any](v T) *T { return &v }
