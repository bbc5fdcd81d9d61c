package render

import (
	"strings"

	"github.com/brunobiangulo/papergraph/graph"
)

// Palette is cycled across distinct canonical names.
var Palette = []string{
	"#FF6B6B", "#4ECDC4", "#45B7D1", "#FDCB6E", "#E17055", "#A29BFE", "#636E72",
	"#FF9FF3", "#54A0FF", "#5F27CD", "#00D2D3", "#FF9F43", "#10AC84", "#EE5A24",
}

const (
	// DefaultColor is used for nodes whose name matches no palette entry.
	DefaultColor = "#636E72"
	// EdgeColor is the single colour of every edge.
	EdgeColor = "#2d3436"

	sizeBase  = 5.0
	sizeScale = 35.0
)

// NodeSize maps a confidence score to a node diameter. The result is not
// clamped, so confidences outside [0,1] give sizes outside [5,40].
func NodeSize(confidence float64) float64 {
	return sizeBase + sizeScale*confidence
}

// ColorKey is one entry of the name to colour table.
type ColorKey struct {
	Name  string
	Color string
}

// ColorKeys returns the distinct non-empty canonical names in order of first
// appearance, each with its palette colour.
func ColorKeys(nodes []graph.MethodNode) []ColorKey {
	seen := make(map[string]bool, len(nodes))
	var keys []ColorKey
	for _, n := range nodes {
		if n.CanonicalName == "" || seen[n.CanonicalName] {
			continue
		}
		seen[n.CanonicalName] = true
		keys = append(keys, ColorKey{
			Name:  n.CanonicalName,
			Color: Palette[len(keys)%len(Palette)],
		})
	}
	return keys
}

// AssignColors returns one colour per node, aligned with nodes. A node takes
// the colour of the first key (in ColorKeys order) contained in its name.
func AssignColors(nodes []graph.MethodNode) []string {
	keys := ColorKeys(nodes)
	colors := make([]string, len(nodes))
	for i, n := range nodes {
		colors[i] = DefaultColor
		if n.CanonicalName == "" {
			continue
		}
		for _, k := range keys {
			if strings.Contains(n.CanonicalName, k.Name) {
				colors[i] = k.Color
				break
			}
		}
	}
	return colors
}
