// Package toolserver implements the Denodo and Demo MCP tool servers.
package toolserver

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/dusk-indust/dataflow/internal/config"
	"github.com/dusk-indust/dataflow/internal/logging"
	"github.com/dusk-indust/dataflow/internal/toolmcp"
)

const (
	denodoServerName = "Denodo AI SDK MCP Server"
	denodoVersion    = "1.0.0"
	noResult         = "The Denodo AI SDK did not return a result."
	healthTimeout    = 30 * time.Second
)

// Denodo answers natural-language database questions through the Denodo
// AI SDK.
type Denodo struct {
	cfg    config.DenodoConfig
	http   *http.Client
	logger *zap.Logger
}

// NewDenodo builds the Denodo tools. TLS verification follows
// cfg.VerifySSL.
func NewDenodo(cfg config.DenodoConfig, logger *zap.Logger) *Denodo {
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !cfg.VerifySSL {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &Denodo{
		cfg:    cfg,
		http:   &http.Client{Transport: transport},
		logger: logging.OrNop(logger),
	}
}

type answerRequest struct {
	Question         string `json:"question"`
	Mode             string `json:"mode"`
	Verbose          bool   `json:"verbose"`
	MarkdownResponse bool   `json:"markdown_response"`
}

// AskDatabase posts the question to /answerQuestion. Failures are returned
// as "Error: ..." text so the calling agent can record them as tool output.
func (d *Denodo) AskDatabase(ctx context.Context, question, mode string) string {
	if strings.TrimSpace(question) == "" {
		return "Error: Question cannot be empty"
	}
	if mode == "" {
		mode = "data"
	}
	if mode != "data" && mode != "metadata" {
		return "Error: Mode must be either 'data' or 'metadata'"
	}
	d.logger.Info("processing database question", zap.String("mode", mode), zap.String("question", logging.Truncate(question, 100)))

	body, err := json.Marshal(answerRequest{Question: question, Mode: mode, MarkdownResponse: true})
	if err != nil {
		return "Error processing database query: " + err.Error()
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.Endpoint+"/answerQuestion", bytes.NewReader(body))
	if err != nil {
		return "Error processing database query: " + err.Error()
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(d.cfg.User, d.cfg.Password)

	resp, err := d.http.Do(req)
	if err != nil {
		switch {
		case isTimeout(err):
			d.logger.Error("denodo request timed out")
			return "Error: Request timed out while connecting to the Denodo AI SDK"
		case isConnect(err):
			d.logger.Error("cannot reach denodo ai sdk", zap.String("endpoint", d.cfg.Endpoint))
			return "Error: Could not connect to Denodo AI SDK at " + d.cfg.Endpoint
		default:
			d.logger.Error("unexpected denodo error", zap.Error(err))
			return "Error processing database query: " + err.Error()
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "Error processing database query: " + err.Error()
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		d.logger.Error("denodo http error", zap.Int("status", resp.StatusCode))
		return fmt.Sprintf("Error: HTTP error %d: %s", resp.StatusCode, string(raw))
	}

	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return "Error processing database query: " + err.Error()
	}
	key := "answer"
	if mode == "data" {
		key = "execution_result"
	}
	v, ok := data[key]
	if !ok || v == nil {
		return noResult
	}
	d.logger.Info("processed database query")
	return stringify(v)
}

// HealthStatus is reported by the health_check tool.
type HealthStatus struct {
	ServerStatus    string  `json:"server_status"`
	ServerName      string  `json:"server_name"`
	Version         string  `json:"version"`
	DenodoEndpoint  string  `json:"denodo_endpoint"`
	SSLVerification bool    `json:"ssl_verification"`
	DenodoStatus    string  `json:"denodo_status"`
	ResponseTimeMS  float64 `json:"denodo_response_time_ms,omitempty"`
}

// HealthCheck probes the SDK /health endpoint.
func (d *Denodo) HealthCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		ServerStatus:    "healthy",
		ServerName:      denodoServerName,
		Version:         denodoVersion,
		DenodoEndpoint:  d.cfg.Endpoint,
		SSLVerification: d.cfg.VerifySSL,
	}

	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.cfg.Endpoint+"/health", nil)
	if err != nil {
		status.DenodoStatus = "error_request"
		return status
	}
	req.SetBasicAuth(d.cfg.User, d.cfg.Password)

	start := time.Now()
	resp, err := d.http.Do(req)
	switch {
	case err == nil:
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			status.DenodoStatus = "connected"
			status.ResponseTimeMS = float64(time.Since(start).Microseconds()) / 1000
		} else {
			status.DenodoStatus = fmt.Sprintf("http_error_%d", resp.StatusCode)
		}
	case isTimeout(err):
		status.DenodoStatus = "timeout"
		d.logger.Warn("denodo health check timed out")
	case isConnect(err):
		status.DenodoStatus = "connection_failed"
		d.logger.Warn("cannot connect to denodo ai sdk", zap.String("endpoint", d.cfg.Endpoint))
	default:
		status.DenodoStatus = "error"
		d.logger.Warn("denodo health check failed", zap.Error(err))
	}
	return status
}

// ServerInfo describes the configuration and capabilities.
func (d *Denodo) ServerInfo() map[string]any {
	return map[string]any{
		"server_name": denodoServerName,
		"version":     denodoVersion,
		"description": "Tools to retrieve data from the Data Platform",
		"denodo_ai_sdk": map[string]any{
			"endpoint":         d.cfg.Endpoint,
			"user":             d.cfg.User,
			"ssl_verification": d.cfg.VerifySSL,
		},
		"capabilities": []string{
			"Natural language database queries",
			"Database metadata exploration",
			"Schema information retrieval",
			"SQL generation and execution",
			"Health monitoring",
		},
		"query_modes": map[string]string{
			"data":     "Query actual data in the database",
			"metadata": "Query database schema and structure information",
		},
	}
}

// Register installs ask_database, health_check and get_server_info on s.
func (d *Denodo) Register(s *mcp.Server) {
	mcp.AddTool(s, &mcp.Tool{
		Name:        "ask_database",
		Description: "Query the user's database in natural language with support for data and metadata modes",
		InputSchema: askSchema(
			"Natural language question to ask the database",
			"Query mode: 'data' for querying data, 'metadata' for schema information",
			"data", "data", "metadata"),
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in askInput) (*mcp.CallToolResult, any, error) {
		return toolmcp.TextResult(d.AskDatabase(ctx, in.Question, in.Mode)), nil, nil
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "health_check",
		Description: "Check the health status of the Denodo AI SDK connection",
		InputSchema: emptySchema(),
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
		return textJSON(d.HealthCheck(ctx))
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "get_server_info",
		Description: "Get information about the MCP server configuration and capabilities",
		InputSchema: emptySchema(),
	}, func(context.Context, *mcp.CallToolRequest, struct{}) (*mcp.CallToolResult, any, error) {
		return textJSON(d.ServerInfo())
	})
}

// NewDenodoServer returns an MCP server exposing the Denodo tools.
func NewDenodoServer(cfg config.DenodoConfig, logger *zap.Logger) *toolmcp.Server {
	s := toolmcp.NewServer(toolmcp.ServerInfo{
		Name:       "denodo_aisdk",
		Version:    denodoVersion,
		Title:      denodoServerName,
		HealthName: "denodo_aisdk_mcp",
	}, logger)
	NewDenodo(cfg, logger).Register(s.Server)
	return s
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isConnect(err error) bool {
	var op *net.OpError
	return errors.As(err, &op) && op.Op == "dial"
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// textJSON returns v as an indented JSON text result.
func textJSON(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, err
	}
	return toolmcp.TextResult(string(data)), nil, nil
}
