package research

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Health probe timeouts.
const (
	llmProbeTimeout      = 10 * time.Second
	databaseProbeTimeout = 5 * time.Second
)

// HealthReport is the result of Health. Component statuses are
// "connected" or "error: <reason>".
type HealthReport struct {
	ServerStatus    string           `json:"server_status"`
	Timestamp       time.Time        `json:"timestamp"`
	ServerName      string           `json:"server_name"`
	Version         string           `json:"version"`
	LLMStatus       string           `json:"azure_openai_status"`
	LLMModel        string           `json:"azure_openai_model,omitempty"`
	DatabaseStatus  string           `json:"database_status"`
	RecentAnalytics *AnalyticsReport `json:"recent_analytics,omitempty"`
	AgentsStatus    string           `json:"langraph_agents_status,omitempty"`
}

// Health probes the LLM, the store and the agent server concurrently, each
// under its own timeout. It never fails; problems are reported per component.
func (s *Service) Health(ctx context.Context) *HealthReport {
	report := &HealthReport{
		ServerStatus: "healthy",
		Timestamp:    s.now(),
		ServerName:   "Multi-Agent Research MCP Server",
		Version:      "1.0.0",
	}

	var g errgroup.Group
	g.Go(func() error {
		pctx, cancel := context.WithTimeout(ctx, llmProbeTimeout)
		defer cancel()
		if err := s.llm.Ping(pctx); err != nil {
			report.LLMStatus = "error: " + err.Error()
			return nil
		}
		report.LLMStatus = "connected"
		report.LLMModel = s.deployment
		return nil
	})
	g.Go(func() error {
		pctx, cancel := context.WithTimeout(ctx, databaseProbeTimeout)
		defer cancel()
		if err := s.store.Ping(pctx); err != nil {
			report.DatabaseStatus = "error: " + err.Error()
			return nil
		}
		report.DatabaseStatus = "connected"
		if a, err := s.Analytics(pctx, 1); err == nil {
			report.RecentAnalytics = a
		}
		return nil
	})
	if s.agentsEndpoint != "" {
		g.Go(func() error {
			if err := s.detector.Probe(ctx, s.agentsEndpoint); err != nil {
				report.AgentsStatus = "error: " + err.Error()
				return nil
			}
			report.AgentsStatus = "connected"
			return nil
		})
	}
	_ = g.Wait()
	return report
}
