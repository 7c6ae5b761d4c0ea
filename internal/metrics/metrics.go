// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataflow_http_requests_total",
			Help: "Total number of HTTP requests served by the agent server",
		},
		[]string{"route", "status"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dataflow_http_request_duration_milliseconds",
			Help:    "HTTP request duration in milliseconds",
			Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000, 10000, 30000},
		},
		[]string{"route"},
	)
	AgentExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataflow_agent_executions_total",
			Help: "Agent executions by agent and final status",
		},
		[]string{"agent", "status"},
	)
	SupervisorDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataflow_supervisor_decisions_total",
			Help: "Supervisor routing decisions by source (llm or fallback)",
		},
		[]string{"source"},
	)
	LLMCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataflow_llm_calls_total",
			Help: "Chat completion calls by status",
		},
		[]string{"status"},
	)
	ToolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataflow_tool_calls_total",
			Help: "Tool server calls by server and status",
		},
		[]string{"server", "status"},
	)
	Workflows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataflow_workflows_total",
			Help: "Finished workflows by terminal status",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequests)
	prometheus.MustRegister(HTTPDuration)
	prometheus.MustRegister(AgentExecutions)
	prometheus.MustRegister(SupervisorDecisions)
	prometheus.MustRegister(LLMCalls)
	prometheus.MustRegister(ToolCalls)
	prometheus.MustRegister(Workflows)
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Status maps an error to the "ok"/"error" label value.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
