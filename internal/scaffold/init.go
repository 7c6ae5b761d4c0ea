package scaffold

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

// ServerName is the key of the dataflow entry in .mcp.json.
const ServerName = "multi-agent-research"

// mcpConfig represents the structure of a .mcp.json file.
type mcpConfig struct {
	MCPServers map[string]json.RawMessage `json:"mcpServers"`
}

// mcpEntry is the MCP client configuration for the dataflow binary.
var mcpEntry = json.RawMessage(`{
  "type": "stdio",
  "command": "dataflow",
  "args": ["mcp", "--transport", "stdio"]
}`)

// renames maps embedded names to their on-disk names.
var renames = map[string]string{"env.example": ".env.example"}

// Init writes the starter files into dir and registers the research MCP
// server in dir/.mcp.json. Existing files are kept unless force is set.
// Progress is reported on w.
func Init(dir string, force bool, w io.Writer) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolving project root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", abs, err)
	}

	entries, err := fs.ReadDir(FilesFS, "files")
	if err != nil {
		return fmt.Errorf("reading embedded files: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if r, ok := renames[name]; ok {
			name = r
		}
		dest := filepath.Join(abs, name)

		if !force {
			if _, err := os.Stat(dest); err == nil {
				fmt.Fprintf(w, "  skipped %s (exists, use --force to overwrite)\n", dotRelative(abs, dest))
				continue
			}
		}

		data, err := FilesFS.ReadFile(path.Join("files", e.Name()))
		if err != nil {
			return fmt.Errorf("reading embedded %s: %w", e.Name(), err)
		}
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", dest, err)
		}
		fmt.Fprintf(w, "  created %s\n", dotRelative(abs, dest))
	}

	if err := mergeMCPConfig(filepath.Join(abs, ".mcp.json"), force, w); err != nil {
		return err
	}

	fmt.Fprintln(w, "\nSetup complete. Edit dataflow.yaml or .env, then run 'dataflow migrate'.")
	return nil
}

// mergeMCPConfig creates or merges the dataflow entry into .mcp.json.
func mergeMCPConfig(mcpPath string, force bool, w io.Writer) error {
	var cfg mcpConfig

	data, err := os.ReadFile(mcpPath)
	if err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("parsing %s: %w", mcpPath, err)
		}
	}

	if cfg.MCPServers == nil {
		cfg.MCPServers = make(map[string]json.RawMessage)
	}

	if _, exists := cfg.MCPServers[ServerName]; exists && !force {
		fmt.Fprintf(w, "  skipped .mcp.json %s entry (exists, use --force to overwrite)\n", ServerName)
		return nil
	}

	cfg.MCPServers[ServerName] = mcpEntry

	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling .mcp.json: %w", err)
	}

	if err := os.WriteFile(mcpPath, append(out, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", mcpPath, err)
	}

	action := "created"
	if data != nil {
		action = "updated"
	}
	fmt.Fprintf(w, "  %s .mcp.json with %s MCP server\n", action, ServerName)
	return nil
}

// dotRelative returns a display path relative to the project root, prefixed
// with "./".
func dotRelative(base, p string) string {
	rel, err := filepath.Rel(base, p)
	if err != nil {
		return p
	}
	return "./" + rel
}
