package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/dataflow/internal/llm"
	"github.com/dusk-indust/dataflow/internal/metrics"
	"github.com/dusk-indust/dataflow/internal/toolmcp"
)

const (
	dataSystemPrompt = `You are a data retrieval specialist. Your job is to:
1. Retrieve relevant data based on metadata findings
2. Process and clean the retrieved data
3. Apply any necessary transformations
4. Ensure data quality and completeness

Focus on efficient data retrieval while respecting access permissions.`

	selectionSystemPrompt = `You are a tool selection specialist for a data retrieval agent.
Given the user's request and the tools available on the connected tool servers,
choose the tools that best answer the request. Prefer enterprise data tools for
questions about real business data and synthetic data tools for examples,
prototypes or test data. Never select health or server info tools.

Respond only with JSON:
{"selected_tools": ["server:tool"], "reasoning": "...", "execution_strategy": "parallel|sequential", "confidence": 0.0}`

	maxParallelTools = 4
)

// Tools that describe a server rather than answer questions.
var infoTools = []string{"health_check", "get_server_info"}

// ToolSelection is the LLM's (or the heuristic's) choice of tools.
type ToolSelection struct {
	SelectedTools     []string `json:"selected_tools"`
	Reasoning         any      `json:"reasoning"`
	ExecutionStrategy string   `json:"execution_strategy"`
	Confidence        any      `json:"confidence"`
}

// ToolExecution records one tools/call made by the data agent.
type ToolExecution struct {
	Tool     string `json:"tool"`
	Status   string `json:"status"`
	Result   string `json:"result,omitempty"`
	Error    string `json:"error,omitempty"`
	Server   string `json:"server"`
	ToolName string `json:"tool_name"`
	Query    string `json:"query,omitempty"`
}

// OK reports whether the call succeeded.
func (e ToolExecution) OK() bool {
	return e.Status == "success"
}

// ToolDiscovery summarises what the catalog offered.
type ToolDiscovery struct {
	TotalTools int      `json:"total_tools"`
	Servers    []string `json:"servers"`
	Tools      []string `json:"tools"`
}

// DataSummary is the bottom line of a data run.
type DataSummary struct {
	DataQuality         string `json:"data_quality"`
	TotalToolsAvailable int    `json:"total_tools_available"`
	ToolsSelected       int    `json:"tools_selected"`
	ToolsExecuted       int    `json:"tools_executed"`
	SourcesAccessed     int    `json:"sources_accessed"`
}

// DataOutput is the result of data retrieval.
type DataOutput struct {
	ToolDiscovery      ToolDiscovery   `json:"tool_discovery"`
	SelectionReasoning any             `json:"tool_selection_reasoning"`
	ExecutionStrategy  string          `json:"execution_strategy,omitempty"`
	ToolExecutions     []ToolExecution `json:"tool_executions"`
	FinalAnalysis      map[string]any  `json:"final_analysis"`
	DataSummary        DataSummary     `json:"data_summary"`
	Timestamp          time.Time       `json:"timestamp"`
}

// DataAgent discovers tools on the catalog servers, picks the ones that fit
// the query and runs them.
type DataAgent struct {
	*BaseAgent
	llm     llm.Completer
	tools   *toolmcp.Client
	catalog *Catalog
	logger  *zap.Logger
	now     func() time.Time
}

// NewDataAgent wires the agent from deps. The catalog comes from
// deps.Catalog, or is loaded from deps.Tools.
func NewDataAgent(deps Deps) (*DataAgent, error) {
	catalog := deps.Catalog
	if catalog == nil {
		var err error
		if catalog, err = LoadCatalog(deps.Tools); err != nil {
			return nil, err
		}
	}
	a := &DataAgent{
		llm:     deps.LLM,
		tools:   deps.toolClient(),
		catalog: catalog,
		logger:  deps.logger().With(zap.String("agent", string(KindData))),
		now:     time.Now,
	}
	a.BaseAgent = NewBaseAgent(KindData, deps.Store, deps.Logger, a.run)
	return a, nil
}

func (a *DataAgent) run(ctx context.Context, task Task) (any, error) {
	query := task.Context.Query
	if query == "" {
		query = task.Description
	}

	discovered := a.catalog.Discover(ctx, a.tools, a.logger)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	selection := a.selectTools(ctx, task, discovered)
	executions := a.execute(ctx, query, selection.SelectedTools, discovered)

	summary := DataSummary{
		DataQuality:         "no_data",
		TotalToolsAvailable: len(discovered),
		ToolsSelected:       len(selection.SelectedTools),
		ToolsExecuted:       len(executions),
	}
	servers := map[string]bool{}
	for _, e := range executions {
		if e.OK() {
			servers[e.Server] = true
		}
	}
	summary.SourcesAccessed = len(servers)
	if summary.SourcesAccessed > 0 {
		summary.DataQuality = "validated"
	}

	return &DataOutput{
		ToolDiscovery:      discoverySummary(a.catalog, discovered),
		SelectionReasoning: selection.Reasoning,
		ExecutionStrategy:  selection.ExecutionStrategy,
		ToolExecutions:     executions,
		FinalAnalysis:      a.analyse(ctx, task, executions),
		DataSummary:        summary,
		Timestamp:          a.now().UTC(),
	}, nil
}

// selectTools asks the LLM which tools to run and falls back to the first
// data tool of each server when the answer is unusable.
func (a *DataAgent) selectTools(ctx context.Context, task Task, tools []DiscoveredTool) ToolSelection {
	if len(tools) == 0 {
		return ToolSelection{Reasoning: "no tools available", ExecutionStrategy: "none"}
	}

	reply, err := a.llm.Complete(ctx, selectionSystemPrompt, fmt.Sprintf(`Task: %s
User query: %s
Upstream findings: %s

Available tools:
%s`, task.Description, task.Context.Query, upstreamSummary(task.Context), describeTools(tools)), llm.WithMaxTokens(500))
	if err != nil {
		a.logger.Warn("tool selection failed, using heuristic", zap.Error(err))
		return heuristicSelection(tools)
	}

	sel, err := llm.ParseInto[ToolSelection](reply)
	if err != nil {
		a.logger.Warn("tool selection unparsable, using heuristic", zap.Error(err))
		return heuristicSelection(tools)
	}
	known := make(map[string]bool, len(tools))
	for _, t := range tools {
		known[t.ID] = true
	}
	valid := sel.SelectedTools[:0]
	for _, id := range sel.SelectedTools {
		if known[id] && !slices.Contains(valid, id) {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		a.logger.Warn("tool selection named no known tools, using heuristic", zap.Strings("selected", sel.SelectedTools))
		return heuristicSelection(tools)
	}
	sel.SelectedTools = valid
	return sel
}

func heuristicSelection(tools []DiscoveredTool) ToolSelection {
	sel := ToolSelection{
		Reasoning:         "heuristic fallback: first data tool of each server",
		ExecutionStrategy: "parallel",
		Confidence:        0.5,
	}
	seen := map[string]bool{}
	for _, t := range tools {
		if seen[t.Server] || slices.Contains(infoTools, t.Name) {
			continue
		}
		seen[t.Server] = true
		sel.SelectedTools = append(sel.SelectedTools, t.ID)
	}
	return sel
}

func (a *DataAgent) execute(ctx context.Context, query string, ids []string, tools []DiscoveredTool) []ToolExecution {
	byID := make(map[string]DiscoveredTool, len(tools))
	for _, t := range tools {
		byID[t.ID] = t
	}

	out := make([]ToolExecution, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelTools)
	for i, id := range ids {
		tool := byID[id]
		g.Go(func() error {
			out[i] = a.callTool(gctx, tool, query)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (a *DataAgent) callTool(ctx context.Context, tool DiscoveredTool, query string) ToolExecution {
	exec := ToolExecution{Tool: tool.ID, Server: tool.Server, ToolName: tool.Name, Query: query}
	if tool.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, tool.timeout)
		defer cancel()
	}

	res, err := a.tools.CallTool(ctx, tool.url, tool.Name, ToolArguments(tool.InputSchema, query))
	switch {
	case err != nil:
		exec.Status, exec.Error = "error", err.Error()
	case isToolError(res):
		exec.Status, exec.Error = "error", toolmcp.Text(res)
	default:
		exec.Status, exec.Result = "success", toolmcp.Text(res)
	}
	if exec.OK() {
		metrics.ToolCalls.WithLabelValues(tool.Server, "ok").Inc()
	} else {
		metrics.ToolCalls.WithLabelValues(tool.Server, "error").Inc()
		a.logger.Warn("tool call failed", zap.String("tool", tool.ID), zap.String("error", exec.Error))
	}
	return exec
}

// ToolArguments derives call arguments from a tool's input schema: the
// query fills question and query properties, and mode is set to a data
// producing value.
func ToolArguments(schema map[string]any, query string) map[string]any {
	args := map[string]any{}
	props, _ := schema["properties"].(map[string]any)
	for _, key := range []string{"question", "query"} {
		if _, ok := props[key]; ok {
			args[key] = query
		}
	}
	if len(args) == 0 {
		args["question"] = query
	}
	if mode, ok := props["mode"].(map[string]any); ok {
		if m := pickMode(mode); m != "" {
			args["mode"] = m
		}
	}
	return args
}

func pickMode(prop map[string]any) string {
	var options []string
	enum, _ := prop["enum"].([]any)
	for _, v := range enum {
		if s, ok := v.(string); ok {
			options = append(options, s)
		}
	}
	for _, preferred := range []string{"data", "generate"} {
		if slices.Contains(options, preferred) {
			return preferred
		}
	}
	if def, ok := prop["default"].(string); ok {
		return def
	}
	if len(options) > 0 {
		return options[0]
	}
	return ""
}

func (a *DataAgent) analyse(ctx context.Context, task Task, executions []ToolExecution) map[string]any {
	data, _ := json.MarshalIndent(executions, "", "  ")
	reply, err := a.llm.Complete(ctx, dataSystemPrompt, fmt.Sprintf(`Task: %s
User query: %s

Tool execution results:
%s

Retrieve and process data providing:
1. Data retrieval results from approved sources
2. Data quality assessment
3. Processing steps applied
4. Summary statistics and insights

Respond in JSON format with structured data results.`, task.Description, task.Context.Query, data))
	if err != nil {
		a.logger.Warn("final analysis failed", zap.Error(err))
		return map[string]any{"analysis": "analysis unavailable: " + err.Error()}
	}
	return llm.ParseOr(reply, "analysis")
}

func discoverySummary(c *Catalog, tools []DiscoveredTool) ToolDiscovery {
	d := ToolDiscovery{TotalTools: len(tools), Servers: c.Names(), Tools: make([]string, 0, len(tools))}
	for _, t := range tools {
		d.Tools = append(d.Tools, t.ID)
	}
	return d
}

func describeTools(tools []DiscoveredTool) string {
	var b strings.Builder
	for _, t := range tools {
		fmt.Fprintf(&b, "- %s: %s", t.ID, t.Description)
		if props, ok := t.InputSchema["properties"].(map[string]any); ok && len(props) > 0 {
			names := make([]string, 0, len(props))
			for name := range props {
				names = append(names, name)
			}
			slices.Sort(names)
			fmt.Fprintf(&b, " (parameters: %s)", strings.Join(names, ", "))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func upstreamSummary(c Context) string {
	parts := map[string]any{}
	if c.Metadata != nil {
		parts["metadata"] = c.Metadata.Summary
	}
	if c.Entitlement != nil {
		parts["entitlement"] = c.Entitlement.Summary
		parts["access_granted"] = AccessGrantedBy(c.Entitlement)
	}
	data, _ := json.Marshal(parts)
	return string(data)
}
