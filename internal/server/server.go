// Package server exposes the research agents over REST: supervisor runs,
// plan execution for the MCP server, an OpenAI-style streaming chat
// endpoint, health, agent discovery and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/dusk-indust/dataflow/internal/agent"
	"github.com/dusk-indust/dataflow/internal/llm"
	"github.com/dusk-indust/dataflow/internal/logging"
	"github.com/dusk-indust/dataflow/internal/metrics"
	"github.com/dusk-indust/dataflow/internal/orchestrator"
	"github.com/dusk-indust/dataflow/internal/toolmcp"
)

const (
	serviceName    = "Multi-Agent Research System"
	serviceVersion = "2.0.0"
)

// Workflow runs a supervisor workflow. *orchestrator.Supervisor satisfies
// it.
type Workflow interface {
	Run(ctx context.Context, req orchestrator.Request) (*orchestrator.Outcome, error)
}

// Options configures a Server. Runner and Chat are optional; their routes
// answer 503 when unset.
type Options struct {
	Workflow Workflow
	Runner   orchestrator.Runner
	Chat     llm.Chatter
	Logger   *zap.Logger
}

// Server is the REST agent server.
type Server struct {
	workflow Workflow
	runner   orchestrator.Runner
	chat     llm.Chatter
	logger   *zap.Logger
	validate *validator.Validate
	now      func() time.Time
}

// New creates a Server.
func New(opts Options) *Server {
	return &Server{
		workflow: opts.Workflow,
		runner:   opts.Runner,
		chat:     opts.Chat,
		logger:   logging.OrNop(opts.Logger),
		validate: validator.New(),
		now:      time.Now,
	}
}

// ResearchRequest is the body of POST /research.
type ResearchRequest struct {
	Query     string `json:"query"`
	UserEmail string `json:"user_email"`
	SessionID string `json:"session_id,omitempty"`
}

// ResearchResponse is the reply of POST /research.
type ResearchResponse struct {
	SessionID string                `json:"session_id"`
	Status    string                `json:"status"`
	Results   *orchestrator.Outcome `json:"results"`
	Timestamp time.Time             `json:"timestamp"`
}

// ChatMessage is one turn of a chat request.
type ChatMessage struct {
	Role    string `json:"role" validate:"oneof=user assistant system"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Messages  []ChatMessage `json:"messages" validate:"required,min=1,dive"`
	SessionID string        `json:"session_id,omitempty"`
}

// Handler returns the routes wrapped in CORS and request metrics.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(instrument)
	r.HandleFunc("/research", s.handleResearch).Methods(http.MethodPost)
	r.HandleFunc("/execute_research", s.handleExecute).Methods(http.MethodPost)
	r.HandleFunc("/api/chat", s.handleChat).Methods(http.MethodPost)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/agents", s.handleAgents).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
	})
	return c.Handler(r)
}

func (s *Server) handleResearch(w http.ResponseWriter, r *http.Request) {
	var req ResearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query cannot be empty")
		return
	}
	if req.UserEmail == "" {
		req.UserEmail = agent.DefaultUserEmail
	}
	if req.SessionID == "" {
		req.SessionID = s.sessionID()
	}

	log := s.logger.With(zap.String("session_id", req.SessionID))
	log.Info("research request", zap.String("query", logging.Truncate(req.Query, 100)))

	out, err := s.workflow.Run(r.Context(), orchestrator.Request{
		TaskDescription: req.Query,
		UserEmail:       req.UserEmail,
		Query:           req.Query,
		SessionID:       req.SessionID,
	})
	if err != nil {
		log.Error("research execution failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Research execution failed: "+err.Error())
		return
	}

	status := string(out.WorkflowStatus)
	if status == "" {
		status = string(orchestrator.StatusCompleted)
	}
	writeJSON(w, http.StatusOK, ResearchResponse{
		SessionID: req.SessionID,
		Status:    status,
		Results:   out,
		Timestamp: s.now().UTC(),
	})
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "plan execution is not configured")
		return
	}
	var req orchestrator.PlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query cannot be empty")
		return
	}

	out, err := s.runner.Execute(r.Context(), req)
	if err != nil {
		s.logger.Error("plan execution failed", zap.String("session_id", req.SessionID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Agent execution failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// chatChunk is an OpenAI chat.completion.chunk.
type chatChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []chunkChoice `json:"choices"`
}

type chunkChoice struct {
	Index        int               `json:"index"`
	Delta        map[string]string `json:"delta"`
	FinishReason *string           `json:"finish_reason"`
}

type streamError struct {
	Error struct {
		Message string  `json:"message"`
		Type    string  `json:"type"`
		Code    *string `json:"code"`
	} `json:"error"`
}

const chatModel = "gpt-4"

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, chatValidationMessage(req))
		return
	}
	if s.chat == nil {
		writeError(w, http.StatusServiceUnavailable, "chat is not configured")
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	messages := make([]llm.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, llm.Message{Role: llm.Role(m.Role), Content: m.Content})
	}

	ctx := r.Context()
	chunks, streamErr := s.chat.Stream(ctx, messages)

	sw := newSSEWriter(w)
	w.Header().Set("X-Accel-Buffering", "no")
	sw.init()

	if streamErr != nil {
		s.writeStreamError(sw, streamErr)
		return
	}
	id := "chatcmpl-" + req.SessionID
	for chunk := range chunks {
		if chunk.Err != nil {
			s.writeStreamError(sw, chunk.Err)
			return
		}
		ev := chatChunk{
			ID:      id,
			Object:  "chat.completion.chunk",
			Created: s.now().Unix(),
			Model:   chatModel,
			Choices: []chunkChoice{{Delta: map[string]string{"content": chunk.Content}}},
		}
		if chunk.FinishReason != "" {
			reason := chunk.FinishReason
			ev.Choices[0].FinishReason = &reason
		}
		if err := sw.writeJSON(ev); err != nil {
			s.logger.Warn("chat stream write failed", zap.String("session_id", req.SessionID), zap.Error(err))
			return
		}
	}
	if ctx.Err() != nil {
		return
	}
	_ = sw.writeDone()
}

func (s *Server) writeStreamError(sw *sseWriter, err error) {
	s.logger.Error("chat stream failed", zap.Error(err))
	var ev streamError
	ev.Error.Message = err.Error()
	ev.Error.Type = "server_error"
	_ = sw.writeJSON(ev)
	_ = sw.writeDone()
}

func chatValidationMessage(req ChatRequest) string {
	if len(req.Messages) == 0 {
		return "Messages cannot be empty"
	}
	for _, m := range req.Messages {
		switch m.Role {
		case "user", "assistant", "system":
		default:
			return "Invalid role: " + m.Role
		}
	}
	return "invalid chat request"
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	agents := map[string]string{"supervisor": "ready"}
	for _, k := range agent.Kinds {
		agents[string(orchestrator.NodeFor(k))] = "ready"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"agents":    agents,
		"timestamp": s.now().UTC(),
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": serviceName,
		"version": serviceVersion,
		"status":  "running",
		"endpoints": map[string]string{
			"research":         "/research",
			"execute_research": "/execute_research",
			"chat":             "/api/chat",
			"health":           "/health",
			"agents":           "/agents",
			"metrics":          "/metrics",
		},
	})
}

type agentInfo struct {
	Type         string   `json:"type"`
	Description  string   `json:"description"`
	Capabilities []string `json:"capabilities"`
}

var agentCatalog = map[string]agentInfo{
	"supervisor": {
		Type:         "coordinator",
		Description:  "LLM-powered workflow supervisor",
		Capabilities: []string{"intelligent_agent_selection", "workflow_coordination", "error_recovery", "state_management"},
	},
	string(orchestrator.NodeMetadata): {
		Type:         "specialist",
		Description:  "Metadata discovery across configured data sources",
		Capabilities: []string{"strategic_discovery_planning", "adaptive_metadata_exploration", "metadata_quality_assessment"},
	},
	string(orchestrator.NodeEntitlement): {
		Type:         "specialist",
		Description:  "Access control and compliance validation",
		Capabilities: []string{"security_threat_analysis", "compliance_requirement_reasoning", "access_control_decisions"},
	},
	string(orchestrator.NodeData): {
		Type:         "specialist",
		Description:  "Tool discovery and data retrieval over JSON-RPC tool servers",
		Capabilities: []string{"dynamic_tool_discovery", "intelligent_tool_selection", "cross_source_result_synthesis"},
	},
	string(orchestrator.NodeAggregation): {
		Type:         "specialist",
		Description:  "Synthesis of agent findings with citations",
		Capabilities: []string{"pattern_recognition", "insight_generation", "citation_tracking"},
	},
}

func (s *Server) handleAgents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"workflow_pattern": "Supervisor with LLM decision-making",
		"agents":           agentCatalog,
		"features": map[string]string{
			"error_handling":   "Bounded error recovery with sequential fallback",
			"workflow_control": "LLM-supervised execution flow",
			"plan_execution":   "Phased fan-out of research plans",
		},
	})
}

// sessionID formats session_YYYYMMDD_HHMMSS_<8 hex>.
func (s *Server) sessionID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%s", orchestrator.SessionID(s.now()), suffix)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// ListenAndServe serves s on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if err := toolmcp.ListenAndServe(ctx, addr, s.Handler(), s.logger); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
