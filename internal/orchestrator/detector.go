package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dusk-indust/dataflow/internal/logging"
)

// ExecutionMode says where research plans run.
type ExecutionMode string

const (
	// ModeRemote sends plans to an agent server.
	ModeRemote ExecutionMode = "remote"
	// ModeLocal runs plans against in-process agents.
	ModeLocal ExecutionMode = "local"
)

// DefaultProbeTimeout bounds a single health probe.
const DefaultProbeTimeout = 5 * time.Second

// Detector probes an agent server to decide the execution mode.
type Detector struct {
	http    *http.Client
	timeout time.Duration
	logger  *zap.Logger
}

// NewDetector creates a Detector. A nil hc uses http.DefaultClient; a zero
// timeout uses DefaultProbeTimeout.
func NewDetector(hc *http.Client, timeout time.Duration, logger *zap.Logger) *Detector {
	if hc == nil {
		hc = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &Detector{http: hc, timeout: timeout, logger: logging.OrNop(logger)}
}

// Probe GETs {endpoint}/health and fails unless it answers 200.
func (d *Detector) Probe(ctx context.Context, endpoint string) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(endpoint, "/")+"/health", nil)
	if err != nil {
		return fmt.Errorf("probe %s: %w", endpoint, err)
	}
	resp, err := d.http.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("probe %s: HTTP %d", endpoint, resp.StatusCode)
	}
	return nil
}

// Detect returns ModeRemote when remote execution is wanted and the agent
// server answers its health check, and ModeLocal otherwise.
func (d *Detector) Detect(ctx context.Context, agentsEndpoint string, wantRemote bool) ExecutionMode {
	if !wantRemote || agentsEndpoint == "" {
		return ModeLocal
	}
	if err := d.Probe(ctx, agentsEndpoint); err != nil {
		d.logger.Warn("agent server unreachable, running agents locally",
			zap.String("endpoint", agentsEndpoint), zap.Error(err))
		return ModeLocal
	}
	d.logger.Info("using remote agent server", zap.String("endpoint", agentsEndpoint))
	return ModeRemote
}
