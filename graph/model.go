package graph

import (
	"bytes"
	"encoding/json"
)

// MethodNode is a method or concept extracted from a paper.
type MethodNode struct {
	ID            string  `json:"id"`
	CanonicalName string  `json:"canonical_name"`
	Confidence    float64 `json:"confidence_ie"`
}

// MethodEdge is a directed, labelled relation between two nodes.
type MethodEdge struct {
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
	Relation string `json:"relation"`
}

// MethodGraph is the {"nodes": [...], "edges": [...]} document the model
// returns for one paper.
type MethodGraph struct {
	Nodes []MethodNode `json:"nodes"`
	Edges []MethodEdge `json:"edges"`
}

// Node returns the node with the given id.
func (g *MethodGraph) Node(id string) (MethodNode, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return MethodNode{}, false
}

// Marshal encodes g with two-space indentation and without HTML escaping.
func Marshal(g *MethodGraph) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(g); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a persisted method graph.
func Unmarshal(data []byte) (*MethodGraph, error) {
	var g MethodGraph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, err
	}
	return &g, nil
}
