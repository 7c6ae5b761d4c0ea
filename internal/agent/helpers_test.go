package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dusk-indust/dataflow/internal/toolmcp"
)

// startToolServer serves s over streamable HTTP and returns its MCP URL.
func startToolServer(t *testing.T, s *mcp.Server) string {
	t.Helper()
	ts := httptest.NewServer(mcp.NewStreamableHTTPHandler(
		func(*http.Request) *mcp.Server { return s },
		&mcp.StreamableHTTPOptions{Stateless: true, JSONResponse: true},
	))
	t.Cleanup(ts.Close)
	return ts.URL + "/mcp"
}

// askSchema is a question plus enumerated mode input schema.
func askSchema(def string, modes ...any) *jsonschema.Schema {
	mode := &jsonschema.Schema{Type: "string", Enum: modes}
	if def != "" {
		mode.Default = json.RawMessage(`"` + def + `"`)
	}
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"question": {Type: "string"},
			"mode":     mode,
		},
		Required: []string{"question"},
	}
}

func textTool(s *mcp.Server, tool *mcp.Tool, fn func(args map[string]any) string) {
	if tool.InputSchema == nil {
		tool.InputSchema = &jsonschema.Schema{Type: "object"}
	}
	mcp.AddTool(s, tool, func(_ context.Context, _ *mcp.CallToolRequest, args map[string]any) (*mcp.CallToolResult, any, error) {
		return toolmcp.TextResult(fn(args)), nil, nil
	})
}

// recordedCall is one tools/call seen by a fake server.
type recordedCall struct {
	Tool string
	Args map[string]any
}

type callLog struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (l *callLog) add(c recordedCall) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, c)
}

func (l *callLog) all() []recordedCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]recordedCall(nil), l.calls...)
}

// fakeDenodo mimics the Denodo tool server.
func fakeDenodo(t *testing.T, answer string, calls *callLog) string {
	t.Helper()
	s := mcp.NewServer(&mcp.Implementation{Name: "denodo_aisdk", Version: "1.0.0"}, nil)
	textTool(s, &mcp.Tool{
		Name:        "ask_database",
		Description: "Query the database in natural language",
		InputSchema: askSchema("data", "data", "metadata"),
	}, func(args map[string]any) string {
		if calls != nil {
			calls.add(recordedCall{Tool: "ask_database", Args: args})
		}
		return answer
	})
	textTool(s, &mcp.Tool{Name: "health_check"}, func(map[string]any) string {
		return "healthy"
	})
	return startToolServer(t, s)
}

// fakeDemo mimics the Demo tool server.
func fakeDemo(t *testing.T, answer string) string {
	t.Helper()
	s := mcp.NewServer(&mcp.Implementation{Name: "demo_ai", Version: "1.0.0"}, nil)
	textTool(s, &mcp.Tool{Name: "health_check"}, func(map[string]any) string {
		return "healthy"
	})
	textTool(s, &mcp.Tool{
		Name:        "ask_ai",
		Description: "Generate synthetic data",
		InputSchema: askSchema("", "generate", "analyze", "info"),
	}, func(args map[string]any) string {
		mode, _ := args["mode"].(string)
		return answer + ": " + mode
	})
	return startToolServer(t, s)
}

// unreachableURL is an endpoint with nothing listening.
func unreachableURL(t *testing.T) string {
	t.Helper()
	ts := httptest.NewServer(nil)
	url := ts.URL + "/mcp"
	ts.Close()
	return url
}
