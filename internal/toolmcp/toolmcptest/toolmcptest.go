// Package toolmcptest serves tool servers to a toolmcp.Client in memory.
package toolmcptest

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dusk-indust/dataflow/internal/toolmcp"
)

// Client returns a client that reaches servers[endpoint] over in-memory
// transports. Unknown endpoints fail to connect.
func Client(servers map[string]*mcp.Server) *toolmcp.Client {
	return toolmcp.NewClient(toolmcp.WithTransport(func(ctx context.Context, endpoint string) (mcp.Transport, error) {
		s, ok := servers[endpoint]
		if !ok {
			return nil, fmt.Errorf("no server at %s", endpoint)
		}
		st, ct := mcp.NewInMemoryTransports()
		if _, err := s.Connect(ctx, st, nil); err != nil {
			return nil, err
		}
		return ct, nil
	}))
}
