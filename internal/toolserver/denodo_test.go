package toolserver

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/dataflow/internal/config"
	"github.com/dusk-indust/dataflow/internal/toolmcp"
)

// fakeSDK mimics the Denodo AI SDK answerQuestion and health endpoints.
type fakeSDK struct {
	lastRequest answerRequest
	user, pass  string
	answer      map[string]any
	status      int
	delay       time.Duration
}

func (f *fakeSDK) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /answerQuestion", func(w http.ResponseWriter, r *http.Request) {
		f.user, f.pass, _ = r.BasicAuth()
		_ = json.NewDecoder(r.Body).Decode(&f.lastRequest)
		if f.delay > 0 {
			select {
			case <-time.After(f.delay):
			case <-r.Context().Done():
				return
			}
		}
		if f.status != 0 {
			w.WriteHeader(f.status)
			_, _ = w.Write([]byte("sdk unavailable"))
			return
		}
		_ = json.NewEncoder(w).Encode(f.answer)
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		if f.status != 0 {
			w.WriteHeader(f.status)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func newDenodo(t *testing.T, sdk *fakeSDK) *Denodo {
	t.Helper()
	ts := httptest.NewServer(sdk.handler())
	t.Cleanup(ts.Close)
	return NewDenodo(config.DenodoConfig{Endpoint: ts.URL + "/", User: "admin", Password: "secret"}, nil)
}

// closedAddr returns an address nothing listens on.
func closedAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return "http://" + addr
}

func TestDenodo_AskDatabaseDataMode(t *testing.T) {
	sdk := &fakeSDK{answer: map[string]any{
		"execution_result": map[string]any{"Row 1": []any{"acme", 42.0}},
		"answer":           "ignored in data mode",
	}}
	d := newDenodo(t, sdk)

	out := d.AskDatabase(context.Background(), "How many customers?", "")

	assert.JSONEq(t, `{"Row 1":["acme",42]}`, out)
	assert.Equal(t, "data", sdk.lastRequest.Mode)
	assert.True(t, sdk.lastRequest.MarkdownResponse)
	assert.False(t, sdk.lastRequest.Verbose)
	assert.Equal(t, "admin", sdk.user)
	assert.Equal(t, "secret", sdk.pass)
}

func TestDenodo_AskDatabaseMetadataMode(t *testing.T) {
	sdk := &fakeSDK{answer: map[string]any{"answer": "customers, orders, products"}}
	d := newDenodo(t, sdk)

	out := d.AskDatabase(context.Background(), "SHOW TABLES", "metadata")

	assert.Equal(t, "customers, orders, products", out)
	assert.Equal(t, "metadata", sdk.lastRequest.Mode)
}

func TestDenodo_AskDatabaseMissingResult(t *testing.T) {
	d := newDenodo(t, &fakeSDK{answer: map[string]any{"answer": "only answer"}})
	assert.Equal(t, noResult, d.AskDatabase(context.Background(), "q", "data"))
}

func TestDenodo_AskDatabaseValidation(t *testing.T) {
	d := newDenodo(t, &fakeSDK{})

	assert.Equal(t, "Error: Question cannot be empty", d.AskDatabase(context.Background(), "   ", "data"))
	assert.Equal(t, "Error: Mode must be either 'data' or 'metadata'", d.AskDatabase(context.Background(), "q", "sql"))
}

func TestDenodo_AskDatabaseHTTPError(t *testing.T) {
	d := newDenodo(t, &fakeSDK{status: http.StatusBadGateway})
	assert.Equal(t, "Error: HTTP error 502: sdk unavailable", d.AskDatabase(context.Background(), "q", "data"))
}

func TestDenodo_AskDatabaseConnectionFailure(t *testing.T) {
	endpoint := closedAddr(t)
	d := NewDenodo(config.DenodoConfig{Endpoint: endpoint, User: "u", Password: "p"}, nil)

	out := d.AskDatabase(context.Background(), "q", "data")
	assert.Equal(t, "Error: Could not connect to Denodo AI SDK at "+endpoint, out)
}

func TestDenodo_AskDatabaseTimeout(t *testing.T) {
	sdk := &fakeSDK{delay: time.Second}
	ts := httptest.NewServer(sdk.handler())
	t.Cleanup(ts.Close)
	d := NewDenodo(config.DenodoConfig{Endpoint: ts.URL, User: "u", Password: "p", Timeout: 20 * time.Millisecond}, nil)

	out := d.AskDatabase(context.Background(), "q", "data")
	assert.Equal(t, "Error: Request timed out while connecting to the Denodo AI SDK", out)
}

func TestDenodo_HealthCheck(t *testing.T) {
	t.Run("connected", func(t *testing.T) {
		d := newDenodo(t, &fakeSDK{})
		h := d.HealthCheck(context.Background())
		assert.Equal(t, "healthy", h.ServerStatus)
		assert.Equal(t, "connected", h.DenodoStatus)
	})

	t.Run("http error", func(t *testing.T) {
		d := newDenodo(t, &fakeSDK{status: http.StatusServiceUnavailable})
		assert.Equal(t, "http_error_503", d.HealthCheck(context.Background()).DenodoStatus)
	})

	t.Run("connection failed", func(t *testing.T) {
		d := NewDenodo(config.DenodoConfig{Endpoint: closedAddr(t)}, nil)
		assert.Equal(t, "connection_failed", d.HealthCheck(context.Background()).DenodoStatus)
	})
}

func TestDenodoServer_OverStreamableHTTP(t *testing.T) {
	sdk := &fakeSDK{answer: map[string]any{"answer": "3 tables"}}
	sdkServer := httptest.NewServer(sdk.handler())
	t.Cleanup(sdkServer.Close)

	s := NewDenodoServer(config.DenodoConfig{Endpoint: sdkServer.URL, User: "u", Password: "p"}, nil)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	c := toolmcp.NewClient()
	ctx := context.Background()
	endpoint := ts.URL + "/mcp"

	tools, err := c.ListTools(ctx, endpoint)
	require.NoError(t, err)
	byName := make(map[string]toolmcp.Tool, len(tools))
	for _, tool := range tools {
		byName[tool.Name] = tool
	}
	assert.ElementsMatch(t, []string{"ask_database", "health_check", "get_server_info"}, keys(byName))

	mode := byName["ask_database"].InputSchema["properties"].(map[string]any)["mode"].(map[string]any)
	assert.Equal(t, []any{"data", "metadata"}, mode["enum"])
	assert.Equal(t, "data", mode["default"])
	assert.Equal(t, []any{"question"}, byName["ask_database"].InputSchema["required"])

	res, err := c.CallTool(ctx, endpoint, "ask_database", map[string]any{"question": "SHOW TABLES", "mode": "metadata"})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "3 tables", toolmcp.Text(res))
	assert.Equal(t, "metadata", sdk.lastRequest.Mode)

	res, err = c.CallTool(ctx, endpoint, "get_server_info", nil)
	require.NoError(t, err)
	var serverInfo map[string]any
	require.NoError(t, json.Unmarshal([]byte(toolmcp.Text(res)), &serverInfo))
	assert.Equal(t, denodoServerName, serverInfo["server_name"])

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	var health map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "denodo_aisdk_mcp", health["server"])
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
