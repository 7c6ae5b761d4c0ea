package mcptools

import (
	"time"

	"github.com/dusk-indust/dataflow/internal/agent"
	"github.com/dusk-indust/dataflow/internal/orchestrator"
	"github.com/dusk-indust/dataflow/internal/research"
	"github.com/dusk-indust/dataflow/internal/store"
)

// --- MCP Tool Types ---
// Every output carries an optional error. A failed tool call answers with
// only the error set, so clients see {"error": "..."}.

// ResearchInput is the input for the multi_agent_research MCP tool.
type ResearchInput struct {
	Query        string `json:"query" jsonschema:"natural language research query or request"`
	UserEmail    string `json:"user_email,omitempty" jsonschema:"user identifier for session tracking and entitlements (default: default@example.com)"`
	SessionID    string `json:"session_id,omitempty" jsonschema:"existing session ID to continue research"`
	ResearchMode string `json:"research_mode,omitempty" jsonschema:"research scope: metadata, data, analysis or full (default: full)"`
}

// ResearchOutput is the result of the multi_agent_research MCP tool.
type ResearchOutput struct {
	Query              string             `json:"query,omitempty"`
	ResearchMode       string             `json:"research_mode,omitempty"`
	ResearchPlan       *orchestrator.Plan `json:"research_plan,omitempty"`
	AgentResults       map[string]any     `json:"agent_results,omitempty"`
	AggregatedFindings map[string]any     `json:"aggregated_findings,omitempty"`
	Citations          []agent.Citation   `json:"citations,omitempty"`
	ExecutionTimeMS    int64              `json:"execution_time_ms,omitempty"`
	TotalTokens        int                `json:"total_tokens,omitempty"`
	SessionID          string             `json:"session_id,omitempty"`
	Error              string             `json:"error,omitempty"`
}

// IntentInput is the input for the analyze_query_intent MCP tool.
type IntentInput struct {
	Query string `json:"query" jsonschema:"natural language query to analyze"`
}

// IntentOutput is the result of the analyze_query_intent MCP tool.
type IntentOutput struct {
	ResearchType    string   `json:"research_type,omitempty"`
	ComplexityLevel string   `json:"complexity_level,omitempty"`
	RecommendedMode string   `json:"recommended_mode,omitempty"`
	RequiredAgents  []string `json:"required_agents,omitempty"`
	DataSources     []string `json:"data_sources,omitempty"`
	StrategyNotes   string   `json:"strategy_notes,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// SessionStatusInput is the input for the get_session_status MCP tool.
type SessionStatusInput struct {
	SessionID string `json:"session_id" jsonschema:"research session ID to check"`
}

// SessionStatusOutput is the result of the get_session_status MCP tool.
type SessionStatusOutput struct {
	SessionID          string                      `json:"session_id,omitempty"`
	Status             string                      `json:"status,omitempty"`
	InitialQuery       string                      `json:"initial_query,omitempty"`
	CreatedAt          *time.Time                  `json:"created_at,omitempty"`
	CompletedAt        *time.Time                  `json:"completed_at,omitempty"`
	TokenUsage         int                         `json:"token_usage,omitempty"`
	ResearchPlan       map[string]any              `json:"research_plan,omitempty"`
	SubagentExecutions []research.SessionExecution `json:"subagent_executions,omitempty"`
	MemoryCount        int                         `json:"memory_count,omitempty"`
	Error              string                      `json:"error,omitempty"`
}

// HealthInput is the (empty) input for the health_check MCP tool.
type HealthInput struct{}

// HealthOutput is the result of the health_check MCP tool.
type HealthOutput struct {
	ServerStatus    string           `json:"server_status"`
	Timestamp       time.Time        `json:"timestamp"`
	ServerName      string           `json:"server_name"`
	Version         string           `json:"version"`
	LLMStatus       string           `json:"azure_openai_status"`
	LLMModel        string           `json:"azure_openai_model,omitempty"`
	DatabaseStatus  string           `json:"database_status"`
	RecentAnalytics *AnalyticsOutput `json:"recent_analytics,omitempty"`
	AgentsStatus    string           `json:"langraph_agents_status,omitempty"`
}

// AnalyticsInput is the input for the get_system_analytics MCP tool.
type AnalyticsInput struct {
	Days int `json:"days,omitempty" jsonschema:"number of days to analyze (default: 7)"`
}

// AnalyticsOutput is the result of the get_system_analytics MCP tool.
type AnalyticsOutput struct {
	TimePeriodDays int                 `json:"time_period_days,omitempty"`
	GeneratedAt    *time.Time          `json:"generated_at,omitempty"`
	SessionStats   *store.SessionStats `json:"session_stats,omitempty"`
	AgentStats     []store.AgentStats  `json:"subagent_stats,omitempty"`
	Error          string              `json:"error,omitempty"`
}
