package agent

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/dusk-indust/dataflow/internal/config"
	"github.com/dusk-indust/dataflow/internal/logging"
	"github.com/dusk-indust/dataflow/internal/toolmcp"
)

// ServerSpec is one entry of the mcp_servers file. Timeout is in
// milliseconds.
type ServerSpec struct {
	Type        string `yaml:"type" json:"type"`
	URL         string `yaml:"url" json:"url"`
	Description string `yaml:"description" json:"description"`
	Timeout     int    `yaml:"timeout" json:"timeout"`
}

func (s ServerSpec) timeout() time.Duration {
	if s.Timeout <= 0 {
		return 0
	}
	return time.Duration(s.Timeout) * time.Millisecond
}

// Catalog is the set of tool servers the data agent may use.
type Catalog struct {
	Servers map[string]ServerSpec `yaml:"mcp_servers" json:"mcp_servers"`
}

// Names returns the server names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.Servers))
	for name := range c.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultCatalog describes the Denodo and Demo servers from cfg.
func DefaultCatalog(cfg config.ToolsConfig) *Catalog {
	timeout := int(cfg.Timeout / time.Millisecond)
	return &Catalog{Servers: map[string]ServerSpec{
		"denodoAgent": {
			Type:        "http",
			URL:         MCPURL(cfg.DenodoEndpoint),
			Description: "Enterprise data platform queries through the Denodo AI SDK",
			Timeout:     timeout,
		},
		"demoAgent": {
			Type:        "http",
			URL:         MCPURL(cfg.DemoEndpoint),
			Description: "General purpose AI with synthetic data generation",
			Timeout:     timeout,
		},
	}}
}

// LoadCatalog reads the mcp_servers file named by cfg.ConfigPath. YAML and
// JSON files are both accepted. A blank path or a missing file yields
// DefaultCatalog.
func LoadCatalog(cfg config.ToolsConfig) (*Catalog, error) {
	if cfg.ConfigPath == "" {
		return DefaultCatalog(cfg), nil
	}
	data, err := os.ReadFile(cfg.ConfigPath)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultCatalog(cfg), nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", cfg.ConfigPath, err)
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", cfg.ConfigPath, err)
	}
	if len(c.Servers) == 0 {
		return DefaultCatalog(cfg), nil
	}
	return &c, nil
}

// DiscoveredTool is a tool advertised by one catalog server.
type DiscoveredTool struct {
	ID          string         `json:"id"`
	Server      string         `json:"server_name"`
	Name        string         `json:"tool_name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema,omitempty"`

	url     string
	timeout time.Duration
}

// ToolID joins a server and tool name the way tools are referenced in
// selections.
func ToolID(server, tool string) string {
	return server + ":" + tool
}

// Discover lists the tools of every server in parallel. Servers that cannot
// be reached are skipped with a warning. The result is ordered by server
// name and then by the server's own tool order.
func (c *Catalog) Discover(ctx context.Context, client *toolmcp.Client, logger *zap.Logger) []DiscoveredTool {
	logger = logging.OrNop(logger)
	var (
		mu       sync.Mutex
		byServer = make(map[string][]DiscoveredTool, len(c.Servers))
	)

	g, gctx := errgroup.WithContext(ctx)
	for name, spec := range c.Servers {
		g.Go(func() error {
			callCtx := gctx
			if d := spec.timeout(); d > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(gctx, d)
				defer cancel()
			}
			tools, err := client.ListTools(callCtx, spec.URL)
			if err != nil {
				logger.Warn("tool discovery failed", zap.String("server", name), zap.String("url", spec.URL), zap.Error(err))
				return nil
			}
			found := make([]DiscoveredTool, 0, len(tools))
			for _, t := range tools {
				found = append(found, DiscoveredTool{
					ID:          ToolID(name, t.Name),
					Server:      name,
					Name:        t.Name,
					Description: t.Description,
					InputSchema: t.InputSchema,
					url:         spec.URL,
					timeout:     spec.timeout(),
				})
			}
			mu.Lock()
			byServer[name] = found
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	var out []DiscoveredTool
	for _, name := range c.Names() {
		out = append(out, byServer[name]...)
	}
	return out
}
