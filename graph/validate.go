package graph

import (
	"fmt"
	"strings"
)

// ValidationError lists every reference problem found in a method graph.
// Raw, when set by the caller, is the model answer the graph came from.
type ValidationError struct {
	Problems []string
	Raw      string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid method graph: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid method graph: %d problems: %s",
		len(e.Problems), strings.Join(e.Problems, "; "))
}

// Validate rejects empty or duplicate node ids and edges whose endpoints are
// not declared nodes. Confidence values are not range-checked and duplicate
// edges are allowed.
func Validate(g *MethodGraph) error {
	var problems []string

	declared := make(map[string]bool, len(g.Nodes))
	for i, n := range g.Nodes {
		switch {
		case n.ID == "":
			problems = append(problems, fmt.Sprintf("node %d has an empty id", i))
		case declared[n.ID]:
			problems = append(problems, fmt.Sprintf("duplicate node id %q", n.ID))
		default:
			declared[n.ID] = true
		}
	}

	for i, e := range g.Edges {
		if !declared[e.SourceID] {
			problems = append(problems, fmt.Sprintf("edge %d (%s) references undeclared source %q", i, e.Relation, e.SourceID))
		}
		if !declared[e.TargetID] {
			problems = append(problems, fmt.Sprintf("edge %d (%s) references undeclared target %q", i, e.Relation, e.TargetID))
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
