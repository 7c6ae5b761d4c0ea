package toolmcp

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/dusk-indust/dataflow/internal/logging"
)

// ServerInfo identifies a tool server.
type ServerInfo struct {
	// Name is the MCP implementation name.
	Name    string
	Version string
	// Title is the human readable name used by GET /info and GET /.
	Title string
	// HealthName is reported by GET /health.
	HealthName string
}

// Server is an MCP tool server with the discovery routes the agents and
// operators expect next to /mcp.
type Server struct {
	*mcp.Server
	info ServerInfo
}

// NewServer returns a server with no tools. Every request it receives is
// logged at debug level.
func NewServer(info ServerInfo, logger *zap.Logger) *Server {
	if info.Version == "" {
		info.Version = "1.0.0"
	}
	logger = logging.OrNop(logger).With(zap.String("server", info.Name))

	s := mcp.NewServer(&mcp.Implementation{Name: info.Name, Title: info.Title, Version: info.Version}, nil)
	s.AddReceivingMiddleware(func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
			logger.Debug("processing mcp method", zap.String("method", method))
			res, err := next(ctx, method, req)
			if err != nil {
				logger.Warn("mcp method failed", zap.String("method", method), zap.Error(err))
			}
			return res, err
		}
	})
	return &Server{Server: s, info: info}
}

// Info returns the server's identity.
func (s *Server) Info() ServerInfo {
	return s.info
}

// Handler returns the HTTP routes: /mcp for stateless streamable HTTP with
// plain JSON responses, and GET /health, /info and / for discovery. CORS is
// open to all origins.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Handle("/mcp", mcp.NewStreamableHTTPHandler(
		func(*http.Request) *mcp.Server { return s.Server },
		&mcp.StreamableHTTPOptions{Stateless: true, JSONResponse: true},
	))
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)
	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Mcp-Session-Id"},
		MaxAge:         86400,
	})
	return c.Handler(r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "server": s.info.HealthName})
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"server":       s.info.Title,
		"version":      s.info.Version,
		"transport":    "streamable-http",
		"capabilities": []string{"tools"},
		"endpoints":    []string{"/mcp", "/health", "/info"},
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": s.info.Title,
		"endpoints": map[string]string{
			"POST /mcp":   "MCP streamable HTTP requests",
			"GET /health": "Health check",
			"GET /info":   "Server information",
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
