package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"github.com/brunobiangulo/papergraph/graph"
)

//go:embed templates/graph.html.tmpl
var templateFS embed.FS

var graphTemplate = template.Must(template.ParseFS(templateFS, "templates/graph.html.tmpl"))

const (
	visScriptURL     = "https://cdnjs.cloudflare.com/ajax/libs/vis-network/9.1.2/dist/vis-network.min.js"
	visStylesheetURL = "https://cdnjs.cloudflare.com/ajax/libs/vis-network/9.1.2/dist/dist/vis-network.min.css"
)

// HTMLOptions controls the page around the network canvas.
type HTMLOptions struct {
	Title      string
	Height     string
	Width      string
	Background string
	Directed   bool
}

// DefaultHTMLOptions matches the layout the upload form embeds.
func DefaultHTMLOptions() HTMLOptions {
	return HTMLOptions{
		Title:      "Method graph",
		Height:     "750px",
		Width:      "100%",
		Background: "#ffffff",
		Directed:   true,
	}
}

type visNode struct {
	ID    string  `json:"id"`
	Label string  `json:"label"`
	Title string  `json:"title"`
	Size  float64 `json:"size"`
	Color string  `json:"color"`
	Shape string  `json:"shape"`
}

type visEdge struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Label  string `json:"label"`
	Title  string `json:"title"`
	Color  string `json:"color"`
	Arrows string `json:"arrows,omitempty"`
}

type pageData struct {
	Title         string
	ScriptURL     string
	StylesheetURL string
	Height        string
	Width         string
	Background    string
	Nodes         []visNode
	Edges         []visEdge
	Options       map[string]any
}

// NodeTitle is the hover text of a node.
func NodeTitle(n graph.MethodNode) string {
	return fmt.Sprintf("<b>%s</b><br>Confidence: %.2f", n.CanonicalName, n.Confidence)
}

// HTML renders g as a standalone page driven by vis-network. Every edge is
// emitted, including duplicates between the same pair.
func HTML(g *graph.MethodGraph, opts HTMLOptions) ([]byte, error) {
	colors := AssignColors(g.Nodes)

	nodes := make([]visNode, 0, len(g.Nodes))
	for i, n := range g.Nodes {
		nodes = append(nodes, visNode{
			ID:    n.ID,
			Label: n.CanonicalName,
			Title: NodeTitle(n),
			Size:  NodeSize(n.Confidence),
			Color: colors[i],
			Shape: "dot",
		})
	}

	arrows := ""
	if opts.Directed {
		arrows = "to"
	}
	edges := make([]visEdge, 0, len(g.Edges))
	for _, e := range g.Edges {
		edges = append(edges, visEdge{
			From:   e.SourceID,
			To:     e.TargetID,
			Label:  e.Relation,
			Title:  e.Relation,
			Color:  EdgeColor,
			Arrows: arrows,
		})
	}

	data := pageData{
		Title:         opts.Title,
		ScriptURL:     visScriptURL,
		StylesheetURL: visStylesheetURL,
		Height:        opts.Height,
		Width:         opts.Width,
		Background:    opts.Background,
		Nodes:         nodes,
		Edges:         edges,
		Options:       networkOptions(),
	}

	var buf bytes.Buffer
	if err := graphTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("rendering graph html: %w", err)
	}
	return buf.Bytes(), nil
}

func networkOptions() map[string]any {
	return map[string]any{
		"nodes": map[string]any{
			"font": map[string]any{"size": 20, "color": "#000000"},
		},
		"edges": map[string]any{
			"font":   map[string]any{"size": 15, "color": "#000000"},
			"smooth": map[string]any{"type": "dynamic"},
		},
		"physics": map[string]any{
			"solver": "barnesHut",
			"barnesHut": map[string]any{
				"gravitationalConstant": -8000,
				"centralGravity":        0.1,
				"springLength":          200,
			},
		},
	}
}
