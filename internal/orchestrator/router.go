package orchestrator

import (
	"context"
	"fmt"
)

// NodeFunc executes one node and names the node to run next.
type NodeFunc func(ctx context.Context, st *State) (Node, error)

// Router maps graph nodes to the functions that execute them.
type Router struct {
	nodes map[Node]NodeFunc
}

// NewRouter creates a Router with no nodes registered.
func NewRouter() *Router {
	return &Router{nodes: make(map[Node]NodeFunc)}
}

// Register associates fn with node.
func (r *Router) Register(node Node, fn NodeFunc) {
	r.nodes[node] = fn
}

// Has reports whether node is registered.
func (r *Router) Has(node Node) bool {
	_, ok := r.nodes[node]
	return ok
}

// Route runs node against st.
func (r *Router) Route(ctx context.Context, node Node, st *State) (Node, error) {
	fn, ok := r.nodes[node]
	if !ok {
		return End, fmt.Errorf("router: no node registered for %q", node)
	}
	return fn(ctx, st)
}
