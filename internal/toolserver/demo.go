package toolserver

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/dusk-indust/dataflow/internal/llm"
	"github.com/dusk-indust/dataflow/internal/logging"
	"github.com/dusk-indust/dataflow/internal/toolmcp"
)

const (
	demoServerName = "Demo MCP Server"
	demoVersion    = "1.0.0"
	maxRecords     = 100
)

// dataCategory describes one family of synthetic records.
type dataCategory struct {
	Description string            `json:"description"`
	Fields      map[string]string `json:"fields"`
}

var syntheticTypes = map[string]dataCategory{
	"people": {
		Description: "Generate synthetic person data",
		Fields: map[string]string{
			"name": "Full name of the person", "age": "Age in years (18-100)", "email": "Email address",
			"occupation": "Job title or profession", "salary": "Annual salary", "address": "Physical address",
		},
	},
	"companies": {
		Description: "Generate synthetic company data",
		Fields: map[string]string{
			"name": "Company name", "industry": "Industry sector", "size": "Number of employees",
			"revenue": "Annual revenue", "founded": "Year founded", "location": "Headquarters location",
		},
	},
	"products": {
		Description: "Generate synthetic product data",
		Fields: map[string]string{
			"name": "Product name", "category": "Product category", "price": "Price in USD",
			"rating": "Customer rating (1-5)", "brand": "Brand name", "availability": "Stock status",
		},
	},
	"events": {
		Description: "Generate synthetic event data",
		Fields: map[string]string{
			"name": "Event name", "type": "Event type", "date": "Event date and time",
			"location": "Event location", "attendees": "Number of attendees", "organizer": "Event organizer",
		},
	},
	"sales": {
		Description: "Generate synthetic sales data",
		Fields: map[string]string{
			"transaction_id": "Unique transaction identifier", "customer_name": "Customer name", "product": "Product name",
			"quantity": "Quantity sold", "total_amount": "Total transaction amount", "region": "Sales region",
		},
	},
	"surveys": {
		Description: "Generate synthetic survey data",
		Fields: map[string]string{
			"respondent_id": "Unique respondent identifier", "age_group": "Age group category",
			"satisfaction_score": "Overall satisfaction (1-10)", "feedback": "Additional written feedback",
			"survey_date": "Date survey was taken", "survey_type": "Type of survey",
		},
	},
}

var countRegex = regexp.MustCompile(`\b(\d+)\b`)

// queryContext is the heuristic reading of a demo question.
type queryContext struct {
	QueryType string
	DataTypes []string
	Count     int
	Format    string
}

func analyzeQuestion(question string) queryContext {
	q := strings.ToLower(question)
	qc := queryContext{QueryType: "info", Count: 1, Format: "json"}

	switch {
	case containsAny(q, "generate", "create", "make", "produce", "synthetic"):
		qc.QueryType = "generate"
	case containsAny(q, "analyze", "analysis", "insights", "trends", "patterns"):
		qc.QueryType = "analyze"
	}

	for _, name := range categoryNames() {
		if strings.Contains(q, name) || strings.Contains(q, strings.TrimSuffix(name, "s")) {
			qc.DataTypes = append(qc.DataTypes, name)
		}
	}

	if m := countRegex.FindStringSubmatch(q); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			qc.Count = min(n, maxRecords)
		}
	}

	switch {
	case strings.Contains(q, "csv"):
		qc.Format = "csv"
	case strings.Contains(q, "table") || strings.Contains(q, "tabular"):
		qc.Format = "table"
	}
	return qc
}

// Demo is a general purpose assistant that produces synthetic data with
// the LLM.
type Demo struct {
	llm        llm.Completer
	deployment string
	logger     *zap.Logger
	now        func() time.Time
}

// NewDemo builds the Demo tools. deployment is only reported by
// get_server_info.
func NewDemo(c llm.Completer, deployment string, logger *zap.Logger) *Demo {
	return &Demo{llm: c, deployment: deployment, logger: logging.OrNop(logger), now: time.Now}
}

// AskAI answers in generate, analyze or info mode. Info questions about
// the built-in categories are answered without the LLM.
func (d *Demo) AskAI(ctx context.Context, question, mode string) string {
	if strings.TrimSpace(question) == "" {
		return "Error: Question cannot be empty"
	}
	if mode == "" {
		mode = "generate"
	}
	if mode != "generate" && mode != "analyze" && mode != "info" {
		return "Error: Mode must be either 'generate', 'analyze', or 'info'"
	}
	d.logger.Info("processing ai request", zap.String("mode", mode), zap.String("question", logging.Truncate(question, 100)))

	qc := analyzeQuestion(question)
	qc.QueryType = mode

	if mode == "info" {
		if answer, ok := infoAnswer(question); ok {
			return answer
		}
	}

	out, err := d.llm.Complete(ctx, d.systemPrompt(), userPrompt(question, qc),
		llm.WithTemperature(0.7), llm.WithMaxTokens(2000))
	if err != nil {
		d.logger.Error("llm error", zap.Error(err))
		return "Error generating response: " + err.Error()
	}
	return out
}

func (d *Demo) systemPrompt() string {
	types, _ := json.MarshalIndent(syntheticTypes, "", "  ")
	return fmt.Sprintf(`You are a general purpose AI assistant with synthetic data generation capabilities.
Generate realistic, clearly synthetic data and never produce real personal information.
For analysis requests provide insights about synthetic scenarios; for info requests explain capabilities.
Use JSON, CSV or table format as requested.

Available synthetic data types:
%s

Current date: %s`, types, d.now().Format("2006-01-02"))
}

func userPrompt(question string, qc queryContext) string {
	return fmt.Sprintf(`Query Type: %s
Data Type Focus: %v
Count Requested: %d
Format: %s

User Question: %s`, qc.QueryType, qc.DataTypes, qc.Count, qc.Format, question)
}

func infoAnswer(question string) (string, bool) {
	q := strings.ToLower(question)
	for _, name := range categoryNames() {
		if !strings.Contains(q, name) && !strings.Contains(q, strings.TrimSuffix(name, "s")) {
			continue
		}
		cat := syntheticTypes[name]
		var b strings.Builder
		fmt.Fprintf(&b, "## %s Data Generation\n\n", title(name))
		fmt.Fprintf(&b, "**Description:** %s\n\n**Available Fields:**\n", cat.Description)
		fields := make([]string, 0, len(cat.Fields))
		for f := range cat.Fields {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, f := range fields {
			fmt.Fprintf(&b, "- `%s`: %s\n", f, cat.Fields[f])
		}
		return b.String(), true
	}

	if !containsAny(q, "capabilities", "what", "types", "generate") {
		return "", false
	}
	var b strings.Builder
	b.WriteString("## AI Synthetic Data Generation Capabilities\n\n")
	b.WriteString("I can generate realistic synthetic data for the following categories:\n\n")
	for _, name := range categoryNames() {
		cat := syntheticTypes[name]
		fmt.Fprintf(&b, "### %s\n%s\nFields available: %d\n\n", title(name), cat.Description, len(cat.Fields))
	}
	return b.String(), true
}

// HealthCheck reports whether the LLM answers.
func (d *Demo) HealthCheck(ctx context.Context) string {
	if _, err := d.llm.Complete(ctx, "", "Hello", llm.WithMaxTokens(5)); err != nil {
		return "Health check issues detected: Azure OpenAI API error: " + err.Error()
	}
	return "Demo MCP Server is healthy. Azure OpenAI API connection successful. Synthetic data generation ready."
}

// ServerInfo describes the configuration and capabilities.
func (d *Demo) ServerInfo() map[string]any {
	return map[string]any{
		"server_name":     demoServerName,
		"version":         demoVersion,
		"description":     "General purpose AI with synthetic data generation capabilities using Azure OpenAI",
		"data_types":      categoryNames(),
		"supported_modes": []string{"generate", "analyze", "info"},
		"ai_model":        fmt.Sprintf("Azure OpenAI (%s)", d.deployment),
	}
}

// Register installs ask_ai, health_check and get_server_info on s.
func (d *Demo) Register(s *mcp.Server) {
	mcp.AddTool(s, &mcp.Tool{
		Name:        "ask_ai",
		Description: "Ask the general purpose AI for information or to generate synthetic data",
		InputSchema: askSchema(
			"Natural language question or request",
			"Request mode",
			"generate", "generate", "analyze", "info"),
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in askInput) (*mcp.CallToolResult, any, error) {
		return toolmcp.TextResult(d.AskAI(ctx, in.Question, in.Mode)), nil, nil
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "health_check",
		Description: "Check the health status of the demo AI system",
		InputSchema: emptySchema(),
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
		return toolmcp.TextResult(d.HealthCheck(ctx)), nil, nil
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "get_server_info",
		Description: "Get information about the demo server configuration and capabilities",
		InputSchema: emptySchema(),
	}, func(context.Context, *mcp.CallToolRequest, struct{}) (*mcp.CallToolResult, any, error) {
		return textJSON(d.ServerInfo())
	})
}

// NewDemoServer returns an MCP server exposing the Demo tools.
func NewDemoServer(c llm.Completer, deployment string, logger *zap.Logger) *toolmcp.Server {
	s := toolmcp.NewServer(toolmcp.ServerInfo{
		Name:       "demo_ai",
		Version:    demoVersion,
		Title:      demoServerName,
		HealthName: "demo_mcp",
	}, logger)
	NewDemo(c, deployment, logger).Register(s.Server)
	return s
}

func categoryNames() []string {
	names := make([]string, 0, len(syntheticTypes))
	for name := range syntheticTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
