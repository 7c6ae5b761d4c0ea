// Package toolmcp connects the agents to the Denodo and Demo tool servers
// over the Model Context Protocol, and hosts those servers over streamable
// HTTP.
package toolmcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Tool is a tool advertised by a server, with its input schema decoded to
// plain JSON values.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// TransportFunc returns the transport used to reach endpoint.
type TransportFunc func(ctx context.Context, endpoint string) (mcp.Transport, error)

// Client opens one MCP session per operation against a tool server
// endpoint. It is safe for concurrent use.
type Client struct {
	http      *http.Client
	info      *mcp.Implementation
	transport TransportFunc
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithHTTPClient replaces the underlying *http.Client entirely.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// WithClientInfo sets the implementation reported during initialization.
func WithClientInfo(name, version string) ClientOption {
	return func(c *Client) {
		c.info = &mcp.Implementation{Name: name, Version: version}
	}
}

// WithTransport replaces the streamable HTTP transport.
func WithTransport(fn TransportFunc) ClientOption {
	return func(c *Client) {
		c.transport = fn
	}
}

// NewClient returns a client with a 60 second HTTP timeout.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		http: &http.Client{Timeout: 60 * time.Second},
		info: &mcp.Implementation{Name: "dataflow", Version: "1.0.0"},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) connect(ctx context.Context, endpoint string) (*mcp.ClientSession, error) {
	var (
		transport mcp.Transport
		err       error
	)
	if c.transport != nil {
		transport, err = c.transport(ctx, endpoint)
		if err != nil {
			return nil, fmt.Errorf("toolmcp: %s: %w", endpoint, err)
		}
	} else {
		transport = &mcp.StreamableClientTransport{Endpoint: endpoint, HTTPClient: c.http}
	}

	session, err := mcp.NewClient(c.info, nil).Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("toolmcp: connect %s: %w", endpoint, err)
	}
	return session, nil
}

// ListTools returns the tools advertised by the server at endpoint.
func (c *Client) ListTools(ctx context.Context, endpoint string) ([]Tool, error) {
	session, err := c.connect(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	res, err := session.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		return nil, fmt.Errorf("toolmcp: list tools at %s: %w", endpoint, err)
	}
	tools := make([]Tool, 0, len(res.Tools))
	for _, t := range res.Tools {
		schema, err := schemaMap(t.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("toolmcp: tool %s: %w", t.Name, err)
		}
		tools = append(tools, Tool{Name: t.Name, Description: t.Description, InputSchema: schema})
	}
	return tools, nil
}

// CallTool invokes a tool by name. Failures reported by the tool itself
// come back as a result with IsError set, not as an error.
func (c *Client) CallTool(ctx context.Context, endpoint, name string, args map[string]any) (*mcp.CallToolResult, error) {
	if args == nil {
		args = map[string]any{}
	}
	session, err := c.connect(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("toolmcp: call %s at %s: %w", name, endpoint, err)
	}
	return res, nil
}

// Text joins the text blocks of a tool result.
func Text(res *mcp.CallToolResult) string {
	if res == nil {
		return ""
	}
	var parts []string
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// TextResult wraps s as a single text block.
func TextResult(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: s}}}
}

// schemaMap decodes a received input schema into plain JSON values.
func schemaMap(v any) (map[string]any, error) {
	switch s := v.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return s, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode input schema: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode input schema: %w", err)
	}
	return m, nil
}
