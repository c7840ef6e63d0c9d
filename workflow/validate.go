package workflow

import (
	"errors"
	"fmt"

	"github.com/labelmint/mintflow/types"
	"github.com/labelmint/mintflow/workflow/expr"
)

// ValidateDefinition checks a definition against the structural
// invariants: at least one trigger, existing edge endpoints, unique
// node and edge ids, parseable guards, per-kind config validity,
// acyclicity and trigger reachability. Every violation found is
// reported, not just the first.
func ValidateDefinition(def *WorkflowDefinition) error {
	if violations := collectViolations(def); len(violations) > 0 {
		return types.NewError(types.ErrStructural, "workflow definition is invalid").
			WithCause(errors.Join(violations...))
	}
	return nil
}

func collectViolations(def *WorkflowDefinition) []error {
	var violations []error

	if len(def.Nodes) == 0 {
		violations = append(violations, errors.New("definition has no nodes"))
	}

	nodeIDs := make(map[string]bool, len(def.Nodes))
	hasTrigger := false
	for _, n := range def.Nodes {
		if n.ID == "" {
			violations = append(violations, fmt.Errorf("node %q has an empty id", n.Label))
			continue
		}
		if nodeIDs[n.ID] {
			violations = append(violations, fmt.Errorf("duplicate node id %s", n.ID))
		}
		nodeIDs[n.ID] = true
		if n.Kind == KindTrigger {
			hasTrigger = true
		}
	}
	if len(def.Nodes) > 0 && !hasTrigger {
		violations = append(violations, errors.New("definition requires at least one trigger node"))
	}

	edgeIDs := make(map[string]bool, len(def.Edges))
	for _, e := range def.Edges {
		if edgeIDs[e.ID] {
			violations = append(violations, fmt.Errorf("duplicate edge id %s", e.ID))
		}
		edgeIDs[e.ID] = true
		if !nodeIDs[e.Source] {
			violations = append(violations, fmt.Errorf("edge %s references missing source node %s", e.ID, e.Source))
		}
		if !nodeIDs[e.Target] {
			violations = append(violations, fmt.Errorf("edge %s references missing target node %s", e.ID, e.Target))
		}
		if e.Guard != "" {
			if _, err := expr.Parse(e.Guard); err != nil {
				violations = append(violations, fmt.Errorf("edge %s has an invalid guard: %w", e.ID, err))
			}
		}
	}

	violations = append(violations, validateConfigs(def)...)

	if cycle := detectCycle(def, nodeIDs); cycle != "" {
		violations = append(violations, fmt.Errorf("cycle detected involving node %s", cycle))
	}

	violations = append(violations, detectUnreachable(def, nodeIDs)...)

	return violations
}

// validateConfigs checks every node's payload against its kind.
func validateConfigs(def *WorkflowDefinition) []error {
	var violations []error
	for _, n := range def.Nodes {
		if n.Config == nil {
			violations = append(violations, fmt.Errorf("node %s (%s) has no configuration", n.ID, n.Label))
			continue
		}
		if n.Config.Kind() != n.Kind {
			violations = append(violations, fmt.Errorf("node %s (%s) carries a %s config for kind %s",
				n.ID, n.Label, n.Config.Kind(), n.Kind))
			continue
		}
		if err := n.Config.Validate(); err != nil {
			violations = append(violations, fmt.Errorf("node %s (%s): %w", n.ID, n.Label, err))
		}
	}
	return violations
}

// detectCycle runs DFS with a recursion stack over every node and
// returns the id of a node inside a cycle, or "".
func detectCycle(def *WorkflowDefinition, nodeIDs map[string]bool) string {
	adj := adjacency(def, nodeIDs)
	visited := make(map[string]bool, len(nodeIDs))
	recStack := make(map[string]bool, len(nodeIDs))

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		recStack[id] = true
		for _, next := range adj[id] {
			if !visited[next] {
				if dfs(next) {
					return true
				}
			} else if recStack[next] {
				return true
			}
		}
		recStack[id] = false
		return false
	}

	for _, n := range def.Nodes {
		if nodeIDs[n.ID] && !visited[n.ID] {
			if dfs(n.ID) {
				return n.ID
			}
		}
	}
	return ""
}

// detectUnreachable flags nodes no trigger can reach; they would never
// be scheduled.
func detectUnreachable(def *WorkflowDefinition, nodeIDs map[string]bool) []error {
	adj := adjacency(def, nodeIDs)
	reachable := make(map[string]bool, len(nodeIDs))

	var mark func(id string)
	mark = func(id string) {
		if reachable[id] {
			return
		}
		reachable[id] = true
		for _, next := range adj[id] {
			mark(next)
		}
	}

	for _, n := range def.Nodes {
		if n.Kind == KindTrigger {
			mark(n.ID)
		}
	}

	var violations []error
	for _, n := range def.Nodes {
		if nodeIDs[n.ID] && !reachable[n.ID] {
			violations = append(violations, fmt.Errorf("node %s (%s) is not reachable from any trigger", n.ID, n.Label))
		}
	}
	return violations
}

func adjacency(def *WorkflowDefinition, nodeIDs map[string]bool) map[string][]string {
	adj := make(map[string][]string, len(nodeIDs))
	for _, e := range def.Edges {
		if nodeIDs[e.Source] && nodeIDs[e.Target] {
			adj[e.Source] = append(adj[e.Source], e.Target)
		}
	}
	return adj
}
