package export

import (
	"fmt"
	"strings"

	"github.com/dusk-indust/dataflow/internal/orchestrator"
)

// GenerateMermaid produces a Mermaid graph TD diagram of a supervisor run.
// Agent nodes are grouped in an "agents" subgraph; every trace step becomes
// an arrow labelled with its step number and, for supervisor decisions, how
// the decision was made.
func GenerateMermaid(trace []orchestrator.TraceStep) string {
	// Build node → ID mapping for Mermaid (alphanumeric only).
	nodeIDs := make(map[orchestrator.Node]string)
	var order []orchestrator.Node
	getID := func(n orchestrator.Node) string {
		if id, ok := nodeIDs[n]; ok {
			return id
		}
		id := fmt.Sprintf("N%d", len(nodeIDs))
		nodeIDs[n] = id
		order = append(order, n)
		return id
	}
	for _, s := range trace {
		getID(s.Node)
		getID(s.Next)
	}

	var sb strings.Builder
	sb.WriteString("graph TD\n")

	var agents, others []orchestrator.Node
	for _, n := range order {
		if _, ok := n.Kind(); ok {
			agents = append(agents, n)
		} else {
			others = append(others, n)
		}
	}
	for _, n := range others {
		sb.WriteString(fmt.Sprintf("  %s%s\n", nodeIDs[n], shape(n)))
	}
	if len(agents) > 0 {
		sb.WriteString("  subgraph agents[\"agents\"]\n")
		for _, n := range agents {
			sb.WriteString(fmt.Sprintf("    %s%s\n", nodeIDs[n], shape(n)))
		}
		sb.WriteString("  end\n")
	}

	for _, s := range trace {
		label := fmt.Sprintf("%d", s.Step)
		if s.Source != "" {
			label += " " + s.Source
		}
		if s.Status != "" {
			label += " " + s.Status
		}
		sb.WriteString(fmt.Sprintf("  %s -->|%s| %s\n", nodeIDs[s.Node], label, nodeIDs[s.Next]))
	}
	return sb.String()
}

// shape returns the Mermaid node declaration suffix for n.
func shape(n orchestrator.Node) string {
	switch n {
	case orchestrator.End:
		return "((end))"
	case orchestrator.NodeSupervisor:
		return "{\"supervisor\"}"
	case orchestrator.NodeErrorHandler:
		return "[/\"error_handler\"/]"
	}
	return fmt.Sprintf("[\"%s\"]", n)
}
