package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/dusk-indust/dataflow/internal/llm"
	"github.com/dusk-indust/dataflow/internal/metrics"
	"github.com/dusk-indust/dataflow/internal/toolmcp"
)

const metadataSystemPrompt = `You are a metadata discovery specialist. Your job is to:
1. Identify relevant data sources for the user's query
2. Discover available schemas, tables, and data structures
3. Map relationships between data sources
4. Provide recommendations for data exploration

Focus on structural discovery, not actual data retrieval.`

// Recommendations steer the agents that run after metadata discovery.
type Recommendations struct {
	NextSteps           string   `json:"next_steps"`
	PrioritySources     []string `json:"priority_sources"`
	ExplorationStrategy string   `json:"exploration_strategy"`
}

// MetadataOutput is the result of schema discovery.
type MetadataOutput struct {
	Sources         []string        `json:"metadata_sources"`
	ToolCalls       []ToolCall      `json:"tool_calls"`
	Analysis        map[string]any  `json:"llm_analysis"`
	Recommendations Recommendations `json:"recommendations"`
	Timestamp       time.Time       `json:"timestamp"`
}

// MetadataAgent discovers schemas through the Denodo tool server and asks
// the LLM to map them onto the query.
type MetadataAgent struct {
	*BaseAgent
	llm      llm.Completer
	tools    *toolmcp.Client
	endpoint string
	logger   *zap.Logger
	now      func() time.Time
}

// NewMetadataAgent wires the agent from deps.
func NewMetadataAgent(deps Deps) *MetadataAgent {
	a := &MetadataAgent{
		llm:      deps.LLM,
		tools:    deps.toolClient(),
		endpoint: MCPURL(deps.Tools.DenodoEndpoint),
		logger:   deps.logger().With(zap.String("agent", string(KindMetadata))),
		now:      time.Now,
	}
	a.BaseAgent = NewBaseAgent(KindMetadata, deps.Store, deps.Logger, a.run)
	return a
}

func (a *MetadataAgent) run(ctx context.Context, task Task) (any, error) {
	call := ToolCall{Source: "denodo", Type: "schema_discovery"}
	res, err := a.tools.CallTool(ctx, a.endpoint, "ask_database", map[string]any{
		"question": "SHOW TABLES",
		"mode":     "metadata",
	})
	switch {
	case err != nil:
		a.logger.Warn("denodo metadata call failed", zap.Error(err))
		call.Error = err.Error()
	case isToolError(res):
		call.Error = toolmcp.Text(res)
	default:
		call.Result = toolmcp.Text(res)
	}
	metrics.ToolCalls.WithLabelValues("denodo", toolStatus(call)).Inc()

	reply, err := a.llm.Complete(ctx, metadataSystemPrompt, fmt.Sprintf(`Task: %s
Context: %s

Discover metadata and provide a structured analysis of:
1. Relevant data sources to explore
2. Key schemas/tables/structures to investigate
3. Relationships between data sources
4. Recommended exploration strategy

Respond in JSON format with clear categorization.`, task.Description, contextJSON(task.Context)))
	if err != nil {
		return nil, fmt.Errorf("metadata analysis: %w", err)
	}

	return &MetadataOutput{
		Sources:   []string{"denodo", "demo"},
		ToolCalls: []ToolCall{call},
		Analysis:  llm.ParseOr(reply, "analysis"),
		Recommendations: Recommendations{
			NextSteps:           "Proceed with entitlement validation and data retrieval",
			PrioritySources:     []string{"denodo"},
			ExplorationStrategy: "schema-first approach",
		},
		Timestamp: a.now().UTC(),
	}, nil
}

// MCPURL returns the streamable HTTP MCP endpoint for a tool server base URL.
func MCPURL(base string) string {
	base = strings.TrimRight(base, "/")
	if strings.HasSuffix(base, "/mcp") {
		return base
	}
	return base + "/mcp"
}

// isToolError treats tool-reported errors and "Error..." text as failures.
func isToolError(res *mcp.CallToolResult) bool {
	return res.IsError || strings.HasPrefix(toolmcp.Text(res), "Error")
}

func toolStatus(c ToolCall) string {
	if c.OK() {
		return "ok"
	}
	return "error"
}

func contextJSON(c Context) string {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}
