package render

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/brunobiangulo/papergraph/graph"
)

func sampleGraph() *graph.MethodGraph {
	return &graph.MethodGraph{
		Nodes: []graph.MethodNode{
			{ID: "m1", CanonicalName: "Attention", Confidence: 0.98},
			{ID: "m2", CanonicalName: "Multi-Head Attention", Confidence: 0.9},
			{ID: "m3", CanonicalName: "Adam", Confidence: 0},
		},
		Edges: []graph.MethodEdge{
			{SourceID: "m2", TargetID: "m1", Relation: "extends"},
			{SourceID: "m2", TargetID: "m1", Relation: "extends"},
		},
	}
}

func TestNodeSize(t *testing.T) {
	assert.Equal(t, 5.0, NodeSize(0))
	assert.Equal(t, 40.0, NodeSize(1))
	assert.InDelta(t, 22.5, NodeSize(0.5), 1e-9)
	assert.Equal(t, 75.0, NodeSize(2))
	assert.Equal(t, -30.0, NodeSize(-1))

	prev := NodeSize(-0.5)
	for c := -0.4; c <= 1.5; c += 0.1 {
		s := NodeSize(c)
		assert.GreaterOrEqual(t, s, prev)
		prev = s
	}
}

func TestColorKeysFirstAppearance(t *testing.T) {
	nodes := []graph.MethodNode{
		{ID: "a", CanonicalName: "BERT"},
		{ID: "b", CanonicalName: ""},
		{ID: "c", CanonicalName: "GPT"},
		{ID: "d", CanonicalName: "BERT"},
	}
	assert.Equal(t, []ColorKey{
		{Name: "BERT", Color: Palette[0]},
		{Name: "GPT", Color: Palette[1]},
	}, ColorKeys(nodes))
}

func TestAssignColors(t *testing.T) {
	colors := AssignColors(sampleGraph().Nodes)
	// "Multi-Head Attention" contains "Attention", which appears first.
	assert.Equal(t, []string{Palette[0], Palette[0], Palette[2]}, colors)

	assert.Equal(t, []string{DefaultColor}, AssignColors([]graph.MethodNode{{ID: "x"}}))
}

func TestAssignColorsCyclesPalette(t *testing.T) {
	var nodes []graph.MethodNode
	for i := 0; i < len(Palette)+2; i++ {
		name := fmt.Sprintf("method-%02d", i)
		nodes = append(nodes, graph.MethodNode{ID: name, CanonicalName: name})
	}
	colors := AssignColors(nodes)
	assert.Equal(t, Palette[0], colors[0])
	assert.Equal(t, Palette[0], colors[len(Palette)])
	assert.Equal(t, Palette[1], colors[len(Palette)+1])
}

func TestAssignColorsDeterministic(t *testing.T) {
	nodes := sampleGraph().Nodes
	first := AssignColors(nodes)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, AssignColors(nodes))
	}
}

func TestHTML(t *testing.T) {
	out, err := HTML(sampleGraph(), DefaultHTMLOptions())
	require.NoError(t, err)
	page := string(out)

	assert.True(t, strings.HasPrefix(page, "<!DOCTYPE html>"))
	assert.Contains(t, page, visScriptURL)
	assert.Contains(t, page, "height: 750px")
	assert.Contains(t, page, `"id":"m1"`)
	assert.Contains(t, page, `"label":"Multi-Head Attention"`)
	assert.Contains(t, page, `"size":40`)
	assert.Contains(t, page, "Confidence: 0.98")
	assert.Contains(t, page, `"gravitationalConstant":-8000`)
	assert.Contains(t, page, `"springLength":200`)
	assert.Equal(t, 2, strings.Count(page, `"label":"extends"`))
	assert.Contains(t, page, `"arrows":"to"`)
}

func TestHTMLEscapesNames(t *testing.T) {
	g := &graph.MethodGraph{Nodes: []graph.MethodNode{{ID: "x", CanonicalName: "</script><script>alert(1)</script>"}}}
	out, err := HTML(g, DefaultHTMLOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(out), "</script>\n</body>"))
	assert.NotContains(t, string(out), "<script>alert(1)")
}

func TestHTMLEmptyGraph(t *testing.T) {
	out, err := HTML(&graph.MethodGraph{}, DefaultHTMLOptions())
	require.NoError(t, err)
	assert.Contains(t, string(out), "new vis.DataSet([])")
}

func TestNodeTitle(t *testing.T) {
	assert.Equal(t, "<b>Adam</b><br>Confidence: 0.50",
		NodeTitle(graph.MethodNode{CanonicalName: "Adam", Confidence: 0.5}))
}

func TestXLSX(t *testing.T) {
	data, err := XLSX(sampleGraph())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{nodesSheet, edgesSheet}, f.GetSheetList())

	nodes, err := f.GetRows(nodesSheet)
	require.NoError(t, err)
	require.Len(t, nodes, 4)
	assert.Equal(t, []string{"id", "canonical_name", "confidence_ie", "size", "color"}, nodes[0])
	assert.Equal(t, "m1", nodes[1][0])
	assert.Equal(t, "Attention", nodes[1][1])
	assert.Equal(t, Palette[0], nodes[1][4])

	edges, err := f.GetRows(edgesSheet)
	require.NoError(t, err)
	require.Len(t, edges, 3)
	assert.Equal(t, []string{"m2", "m1", "extends"}, edges[1])
}
