package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dusk-indust/dataflow/internal/logging"
)

// DefaultRemoteTimeout bounds a remote plan run.
const DefaultRemoteTimeout = 5 * time.Minute

// RemoteRunner executes plans on an agent server via
// POST {endpoint}/execute_research.
type RemoteRunner struct {
	endpoint string
	http     *http.Client
	logger   *zap.Logger
}

var _ Runner = (*RemoteRunner)(nil)

// NewRemoteRunner targets the agent server at endpoint. A nil hc gets a
// client with DefaultRemoteTimeout.
func NewRemoteRunner(endpoint string, hc *http.Client, logger *zap.Logger) *RemoteRunner {
	if hc == nil {
		hc = &http.Client{Timeout: DefaultRemoteTimeout}
	}
	return &RemoteRunner{
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     hc,
		logger:   logging.OrNop(logger),
	}
}

// Execute returns an error only when the agent server could not be reached
// or answered with an unreadable body. Non-200 statuses are reported in
// PlanOutput.Error.
func (r *RemoteRunner) Execute(ctx context.Context, req PlanRequest) (*PlanOutput, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("remote runner: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/execute_research", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("remote runner: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("remote runner: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.logger.Error("agent server error", zap.Int("status", resp.StatusCode))
		return &PlanOutput{
			AgentResults: map[string]any{},
			Error:        fmt.Sprintf("Agent execution failed with status %d", resp.StatusCode),
		}, nil
	}

	var out PlanOutput
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("remote runner: decode response: %w", err)
	}
	if out.AgentResults == nil {
		out.AgentResults = map[string]any{}
	}
	return &out, nil
}
