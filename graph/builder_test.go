package graph

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/papergraph/llm"
)

const sampleGraph = `{
  "nodes": [
    {"id": "m1", "canonical_name": "Transformer", "confidence_ie": 0.98},
    {"id": "m2", "canonical_name": "Multi-Head Attention", "confidence_ie": 0.9}
  ],
  "edges": [
    {"source_id": "m1", "target_id": "m2", "relation": "is composed of"}
  ]
}`

// fakeChat records requests and answers with a fixed reply.
type fakeChat struct {
	reply string
	err   error
	reqs  []llm.ChatRequest
}

func (f *fakeChat) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ChatResponse{Content: f.reply, FinishReason: "stop", TotalTokens: 42}, nil
}

func (f *fakeChat) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("not supported")
}

func TestExtractSendsOneCall(t *testing.T) {
	chat := &fakeChat{reply: "```json\n" + sampleGraph + "\n```"}
	x, err := NewExtractor(chat).Extract(context.Background(), "google/gemini-2.5-pro", "Attention is all you need")
	require.NoError(t, err)

	require.Len(t, chat.reqs, 1)
	req := chat.reqs[0]
	assert.Equal(t, "google/gemini-2.5-pro", req.Model)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, llm.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, SystemPrompt, req.Messages[0].Content)
	assert.Equal(t, llm.RoleUser, req.Messages[1].Role)
	assert.Equal(t, "Paper content: Attention is all you need", req.Messages[1].Content)

	assert.Equal(t, chat.reply, x.Raw)
	assert.Equal(t, "google/gemini-2.5-pro", x.Model)
	assert.Equal(t, 42, x.TotalTokens)
}

func TestExtractError(t *testing.T) {
	chat := &fakeChat{err: errors.New("connection refused")}
	_, err := NewExtractor(chat).Extract(context.Background(), "m", "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestStripFence(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"no fence", `{"a":1}`, `{"a":1}`},
		{"surrounding whitespace", "  \n```json\n{\"a\":1}\n```\n  ", `{"a":1}`},
		{"only leading", "```json\n{\"a\":1}", `{"a":1}`},
		{"fence inside body kept", "```json\n{\"code\":\"```go\"}\n```", "{\"code\":\"```go\"}"},
		{"no fence ending in backticks", "{\"a\":\"x\"}```", `{"a":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripFence(tt.input))
		})
	}
}

func TestParseFencedPayload(t *testing.T) {
	p, err := Parse("```json\n" + sampleGraph + "\n```")
	require.NoError(t, err)

	want := &MethodGraph{
		Nodes: []MethodNode{
			{ID: "m1", CanonicalName: "Transformer", Confidence: 0.98},
			{ID: "m2", CanonicalName: "Multi-Head Attention", Confidence: 0.9},
		},
		Edges: []MethodEdge{{SourceID: "m1", TargetID: "m2", Relation: "is composed of"}},
	}
	assert.Equal(t, want, p.Graph)
	assert.JSONEq(t, sampleGraph, string(p.Document))
}

func TestParseKeepsExtraFieldsAndOrder(t *testing.T) {
	raw := `{"paper":"Attention","nodes":[{"id":"a","canonical_name":"Ünïcode <b>","confidence_ie":1,"kind":"model"}],"edges":[]}`
	p, err := Parse(raw)
	require.NoError(t, err)

	doc := string(p.Document)
	assert.Less(t, strings.Index(doc, `"paper"`), strings.Index(doc, `"nodes"`))
	assert.Contains(t, doc, `"kind": "model"`)
	assert.Contains(t, doc, "Ünïcode <b>")
	assert.True(t, strings.HasPrefix(doc, "{\n  \"paper\""))
}

func TestParseFailures(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"only fence", "```json\n```"},
		{"invalid json", "```json\n{not valid json}\n```"},
		{"prose", "Here is the graph you asked for."},
		{"trailing data", `{"nodes":[],"edges":[]} {"nodes":[]}`},
		{"missing edges", `{"nodes":[]}`},
		{"array", `[]`},
		{"node without name", `{"nodes":[{"id":"a","confidence_ie":0.5}],"edges":[]}`},
		{"confidence as string", `{"nodes":[{"id":"a","canonical_name":"A","confidence_ie":"high"}],"edges":[]}`},
		{"edge without relation", `{"nodes":[],"edges":[{"source_id":"a","target_id":"b"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.raw)
			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.raw, pe.Raw)
		})
	}
}

func TestValidate(t *testing.T) {
	ok := &MethodGraph{
		Nodes: []MethodNode{{ID: "a", CanonicalName: "A"}, {ID: "b", CanonicalName: "B", Confidence: 1.7}},
		Edges: []MethodEdge{
			{SourceID: "a", TargetID: "b", Relation: "uses"},
			{SourceID: "a", TargetID: "b", Relation: "uses"},
		},
	}
	assert.NoError(t, Validate(ok))
	assert.NoError(t, Validate(&MethodGraph{}))

	bad := &MethodGraph{
		Nodes: []MethodNode{{ID: "a"}, {ID: "a"}, {ID: ""}},
		Edges: []MethodEdge{{SourceID: "a", TargetID: "ghost", Relation: "uses"}},
	}
	err := Validate(bad)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Problems, 3)
	assert.Contains(t, err.Error(), `duplicate node id "a"`)
	assert.Contains(t, err.Error(), `undeclared target "ghost"`)
}

func TestMarshalRoundTrip(t *testing.T) {
	g := &MethodGraph{
		Nodes: []MethodNode{
			{ID: "m1", CanonicalName: "Transformer", Confidence: 0.98},
			{ID: "m2", CanonicalName: "Self-Attention <QKV>", Confidence: 0},
			{ID: "m3", CanonicalName: "Adam", Confidence: 1},
		},
		Edges: []MethodEdge{
			{SourceID: "m1", TargetID: "m2", Relation: "uses"},
			{SourceID: "m1", TargetID: "m3", Relation: "is trained with"},
		},
	}
	data, err := Marshal(g)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<QKV>")

	back, err := Unmarshal(data)
	require.NoError(t, err)
	assert.ElementsMatch(t, g.Nodes, back.Nodes)
	assert.ElementsMatch(t, g.Edges, back.Edges)
}

func TestComputeStats(t *testing.T) {
	g := &MethodGraph{
		Nodes: []MethodNode{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}},
		Edges: []MethodEdge{
			{SourceID: "a", TargetID: "b"},
			{SourceID: "b", TargetID: "a"},
			{SourceID: "c", TargetID: "ghost"},
		},
	}
	st := ComputeStats(g)
	assert.Equal(t, Stats{Nodes: 4, Edges: 3, Components: 3, Isolated: 2}, st)
	assert.Equal(t, Stats{}, ComputeStats(&MethodGraph{}))
}

func TestNodeLookup(t *testing.T) {
	g := &MethodGraph{Nodes: []MethodNode{{ID: "a", CanonicalName: "A"}}}
	n, ok := g.Node("a")
	assert.True(t, ok)
	assert.Equal(t, "A", n.CanonicalName)
	_, ok = g.Node("z")
	assert.False(t, ok)
}
