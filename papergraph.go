// Package papergraph turns the PDF of a research paper into a method graph:
// the methods and concepts the paper uses, and how they relate, as named by
// one chat-completion call. Each run persists the graph as JSON and as an
// interactive HTML page.
package papergraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/brunobiangulo/papergraph/graph"
	"github.com/brunobiangulo/papergraph/llm"
	"github.com/brunobiangulo/papergraph/output"
	"github.com/brunobiangulo/papergraph/parser"
	"github.com/brunobiangulo/papergraph/render"
	"github.com/brunobiangulo/papergraph/store"
)

// Engine is the main entry point for method graph extraction.
type Engine interface {
	// Run executes one extraction: text extraction, one model call,
	// parsing, rendering and writing the artifacts. Either every artifact
	// is written or none is.
	Run(ctx context.Context, req Request) (*Result, error)

	// Runs returns recent runs, newest first. A limit of zero returns all.
	Runs(ctx context.Context, limit int) ([]store.Run, error)

	// GetRun returns a run recorded in history.
	GetRun(ctx context.Context, id string) (*store.Run, error)

	// RunGraph returns the method graph stored for a successful run.
	RunGraph(ctx context.Context, id string) (*graph.MethodGraph, error)

	// SimilarMethods finds the k stored nodes whose names are closest to
	// query across all recorded papers. apiKey is used when no embedding
	// key is configured.
	SimilarMethods(ctx context.Context, apiKey, query string, k int) ([]store.NodeMatch, error)

	// Stats returns history row counts.
	Stats(ctx context.Context) (*store.DBStats, error)

	// Models lists the selectable model identifiers, default first.
	Models() []string

	// Metrics exposes the engine's Prometheus collectors.
	Metrics() *Metrics

	// Close cleanly shuts down the engine.
	Close() error
}

// Request is one extraction job.
type Request struct {
	PDF      []byte `json:"-" validate:"required,min=1"`
	Filename string `json:"filename"`
	// Format selects the parser. Empty means "pdf".
	Format string `json:"format"`
	APIKey string `json:"-" validate:"required"`
	Model  string `json:"model" validate:"required"`
}

// Usage is the token accounting reported by the chat endpoint.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is the outcome of a successful run.
type Result struct {
	RunID     string             `json:"run_id"`
	Model     string             `json:"model"`
	Graph     *graph.MethodGraph `json:"graph"`
	GraphJSON []byte             `json:"-"`
	HTML      []byte             `json:"-"`
	Raw       string             `json:"-"`
	Artifacts output.Artifacts   `json:"artifacts"`
	Stats     graph.Stats        `json:"stats"`
	Pages     int                `json:"pages"`
	TextChars int                `json:"text_chars"`
	Usage     Usage              `json:"usage"`
	Elapsed   time.Duration      `json:"elapsed"`
}

// engine is the concrete implementation of Engine.
type engine struct {
	cfg      Config
	store    *store.Store
	parsers  *parser.Registry
	writer   *output.Writer
	metrics  *Metrics
	validate *validator.Validate
}

// New creates a papergraph engine with the given configuration.
func New(cfg Config) (Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &engine{
		cfg:      cfg,
		parsers:  parser.NewRegistry(),
		writer:   output.NewWriter(cfg.OutputDir),
		metrics:  NewMetrics(),
		validate: validator.New(),
	}

	if cfg.History {
		s, err := store.New(cfg.resolveDBPath(), cfg.EmbeddingDim)
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
		e.store = s
	}

	return e, nil
}

func (e *engine) Models() []string  { return slices.Clone(e.cfg.Models) }
func (e *engine) Metrics() *Metrics { return e.metrics }

// Close releases the history store.
func (e *engine) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}

// checkRequest maps missing inputs to sentinel errors before any work.
func (e *engine) checkRequest(req Request) error {
	if err := e.validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		switch fieldErrs[0].Field() {
		case "PDF":
			return ErrMissingPDF
		case "APIKey":
			return ErrMissingAPIKey
		default:
			return fmt.Errorf("%w: no model selected", ErrUnsupportedModel)
		}
	}
	if !slices.Contains(e.cfg.Models, req.Model) {
		return fmt.Errorf("%w: %s", ErrUnsupportedModel, req.Model)
	}
	if _, err := e.parsers.Get(formatOf(req)); err != nil {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, formatOf(req))
	}
	return nil
}

func formatOf(req Request) string {
	if req.Format == "" {
		return "pdf"
	}
	return req.Format
}

// Run executes the pipeline and records the outcome in history.
func (e *engine) Run(ctx context.Context, req Request) (*Result, error) {
	if err := e.checkRequest(req); err != nil {
		e.metrics.observeRun("", err)
		slog.Warn("run rejected", "filename", req.Filename, "error", err)
		return nil, err
	}

	runID := uuid.NewString()
	start := time.Now()
	rec := store.Run{
		ID:       runID,
		Filename: req.Filename,
		Model:    req.Model,
	}

	slog.Info("run started", "run_id", runID, "filename", req.Filename, "model", req.Model, "bytes", len(req.PDF))

	res, err := e.run(ctx, runID, req, &rec)

	elapsed := time.Since(start)
	rec.ElapsedMS = elapsed.Milliseconds()
	if err != nil {
		rec.Status = store.StatusFailed
		rec.ErrorKind = ErrorKind(err)
		rec.Error = err.Error()
		slog.Error("run failed",
			"run_id", runID,
			"kind", rec.ErrorKind,
			"elapsed", elapsed.Round(time.Millisecond),
			"error", err)
	} else {
		rec.Status = store.StatusSucceeded
		res.Elapsed = elapsed
		slog.Info("run finished",
			"run_id", runID,
			"nodes", res.Stats.Nodes,
			"edges", res.Stats.Edges,
			"json", res.Artifacts.JSON,
			"html", res.Artifacts.HTML,
			"elapsed", elapsed.Round(time.Millisecond))
	}
	e.metrics.observeRun(req.Model, err)

	// History is written even when the caller has gone away.
	e.record(context.WithoutCancel(ctx), req.APIKey, rec, res)

	return res, err
}

func (e *engine) run(ctx context.Context, runID string, req Request, rec *store.Run) (*Result, error) {
	// Stage 1: text extraction.
	t := time.Now()
	p, err := e.parsers.Get(formatOf(req))
	if err != nil {
		return nil, &ExtractionError{Filename: req.Filename, Err: err}
	}
	parsed, err := p.Parse(ctx, req.PDF)
	if err != nil {
		return nil, &ExtractionError{Filename: req.Filename, Err: err}
	}
	text := parsed.Text()
	rec.PageCount = len(parsed.Pages)
	rec.TextChars = len(text)
	e.metrics.observeStage("extract_text", time.Since(t))
	slog.Info("text extracted",
		"run_id", runID,
		"pages", rec.PageCount,
		"chars", rec.TextChars,
		"elapsed", time.Since(t).Round(time.Millisecond))

	// Stage 2: one model call with the caller's key.
	t = time.Now()
	chat, err := llm.NewProvider(llm.Config{
		Provider:   e.cfg.Chat.Provider,
		Model:      req.Model,
		BaseURL:    e.cfg.Chat.BaseURL,
		APIKey:     req.APIKey,
		Timeout:    e.cfg.Timeout,
		MaxRetries: e.cfg.MaxRetries,
		Referer:    e.cfg.Chat.Referer,
		Title:      e.cfg.Chat.Title,
	})
	if err != nil {
		return nil, &ModelCallError{Model: req.Model, Err: err}
	}
	x, err := graph.NewExtractor(chat).Extract(ctx, req.Model, text)
	e.metrics.observeStage("model_call", time.Since(t))
	if err != nil {
		return nil, &ModelCallError{Model: req.Model, Err: err}
	}
	rec.PromptTokens = x.PromptTokens
	rec.CompletionTokens = x.CompletionTokens
	rec.TotalTokens = x.TotalTokens
	e.metrics.Tokens.WithLabelValues(req.Model, "prompt").Add(float64(x.PromptTokens))
	e.metrics.Tokens.WithLabelValues(req.Model, "completion").Add(float64(x.CompletionTokens))

	// Stage 3: parse and validate. Nothing has been written yet.
	t = time.Now()
	doc, err := graph.Parse(x.Raw)
	if err != nil {
		rec.RawOutput = x.Raw
		return nil, err
	}
	if err := graph.Validate(doc.Graph); err != nil {
		rec.RawOutput = x.Raw
		var ve *graph.ValidationError
		if errors.As(err, &ve) {
			ve.Raw = x.Raw
		}
		return nil, err
	}
	stats := graph.ComputeStats(doc.Graph)
	rec.NodeCount = stats.Nodes
	rec.EdgeCount = stats.Edges
	e.metrics.observeStage("parse", time.Since(t))
	e.metrics.GraphNodes.Observe(float64(stats.Nodes))
	e.metrics.GraphEdges.Observe(float64(stats.Edges))
	slog.Info("method graph parsed",
		"run_id", runID,
		"nodes", stats.Nodes,
		"edges", stats.Edges,
		"components", stats.Components,
		"isolated", stats.Isolated)

	// Stage 4: render.
	t = time.Now()
	page, err := render.HTML(doc.Graph, render.DefaultHTMLOptions())
	if err != nil {
		return nil, &OutputError{Op: "rendering html", Err: err}
	}
	var workbook []byte
	if e.cfg.XLSX {
		workbook, err = render.XLSX(doc.Graph)
		if err != nil {
			return nil, &OutputError{Op: "rendering xlsx", Err: err}
		}
	}
	e.metrics.observeStage("render", time.Since(t))

	// Stage 5: persist.
	t = time.Now()
	artifacts, err := e.writer.Write(ctx, runID, output.Files{
		JSON: doc.Document,
		HTML: page,
		XLSX: workbook,
	})
	if err != nil {
		return nil, &OutputError{Op: "writing artifacts", Err: err}
	}
	e.metrics.observeStage("write", time.Since(t))
	rec.JSONPath = artifacts.JSON
	rec.HTMLPath = artifacts.HTML
	rec.XLSXPath = artifacts.XLSX

	return &Result{
		RunID:     runID,
		Model:     x.Model,
		Graph:     doc.Graph,
		GraphJSON: doc.Document,
		HTML:      page,
		Raw:       x.Raw,
		Artifacts: *artifacts,
		Stats:     stats,
		Pages:     rec.PageCount,
		TextChars: rec.TextChars,
		Usage: Usage{
			PromptTokens:     x.PromptTokens,
			CompletionTokens: x.CompletionTokens,
			TotalTokens:      x.TotalTokens,
		},
	}, nil
}

// record stores the run and, on success, its graph and node embeddings.
// History failures are logged and never fail the run.
func (e *engine) record(ctx context.Context, apiKey string, rec store.Run, res *Result) {
	if e.store == nil {
		return
	}
	if err := e.store.InsertRun(ctx, rec); err != nil {
		slog.Warn("history: recording run failed", "run_id", rec.ID, "error", err)
		return
	}
	if res == nil {
		return
	}

	nodes := make([]store.Node, len(res.Graph.Nodes))
	names := make([]string, len(res.Graph.Nodes))
	for i, n := range res.Graph.Nodes {
		nodes[i] = store.Node{NodeID: n.ID, CanonicalName: n.CanonicalName, Confidence: n.Confidence}
		names[i] = n.CanonicalName
	}
	ids, err := e.store.InsertNodes(ctx, rec.ID, nodes)
	if err != nil {
		slog.Warn("history: recording nodes failed", "run_id", rec.ID, "error", err)
		return
	}

	edges := make([]store.Edge, len(res.Graph.Edges))
	for i, ed := range res.Graph.Edges {
		edges[i] = store.Edge{SourceID: ed.SourceID, TargetID: ed.TargetID, Relation: ed.Relation}
	}
	if err := e.store.InsertEdges(ctx, rec.ID, edges); err != nil {
		slog.Warn("history: recording edges failed", "run_id", rec.ID, "error", err)
	}

	if e.cfg.Embedding.Provider == "" || len(names) == 0 {
		return
	}
	embedder, err := e.embedder(apiKey)
	if err != nil {
		slog.Warn("history: embedding provider unavailable", "error", err)
		return
	}
	t := time.Now()
	vecs, err := embedder.Embed(ctx, names)
	if err != nil {
		slog.Warn("history: embedding node names failed", "run_id", rec.ID, "error", err)
		return
	}
	if err := e.store.InsertNodeEmbeddings(ctx, ids, vecs); err != nil {
		slog.Warn("history: storing embeddings failed", "run_id", rec.ID, "error", err)
		return
	}
	e.metrics.observeStage("embed", time.Since(t))
}

func (e *engine) embedder(apiKey string) (llm.Provider, error) {
	key := e.cfg.Embedding.APIKey
	if key == "" {
		key = apiKey
	}
	return llm.NewProvider(llm.Config{
		Provider: e.cfg.Embedding.Provider,
		Model:    e.cfg.Embedding.Model,
		BaseURL:  e.cfg.Embedding.BaseURL,
		APIKey:   key,
		Timeout:  e.cfg.Timeout,
	})
}

// Runs lists recorded runs.
func (e *engine) Runs(ctx context.Context, limit int) ([]store.Run, error) {
	if e.store == nil {
		return nil, ErrHistoryDisabled
	}
	return e.store.ListRuns(ctx, limit)
}

// GetRun returns one recorded run.
func (e *engine) GetRun(ctx context.Context, id string) (*store.Run, error) {
	if e.store == nil {
		return nil, ErrHistoryDisabled
	}
	r, err := e.store.GetRun(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrRunNotFound
	}
	return r, err
}

// RunGraph rebuilds the method graph of a run from history.
func (e *engine) RunGraph(ctx context.Context, id string) (*graph.MethodGraph, error) {
	if _, err := e.GetRun(ctx, id); err != nil {
		return nil, err
	}
	nodes, err := e.store.RunNodes(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading nodes: %w", err)
	}
	edges, err := e.store.RunEdges(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading edges: %w", err)
	}

	g := &graph.MethodGraph{
		Nodes: make([]graph.MethodNode, len(nodes)),
		Edges: make([]graph.MethodEdge, len(edges)),
	}
	for i, n := range nodes {
		g.Nodes[i] = graph.MethodNode{ID: n.NodeID, CanonicalName: n.CanonicalName, Confidence: n.Confidence}
	}
	for i, ed := range edges {
		g.Edges[i] = graph.MethodEdge{SourceID: ed.SourceID, TargetID: ed.TargetID, Relation: ed.Relation}
	}
	return g, nil
}

// SimilarMethods embeds query and searches stored node names.
func (e *engine) SimilarMethods(ctx context.Context, apiKey, query string, k int) ([]store.NodeMatch, error) {
	if e.store == nil {
		return nil, ErrHistoryDisabled
	}
	if e.cfg.Embedding.Provider == "" {
		return nil, ErrEmbeddingDisabled
	}
	if k <= 0 {
		k = 10
	}

	embedder, err := e.embedder(apiKey)
	if err != nil {
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}
	vecs, err := embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedding query: got %d vectors", len(vecs))
	}
	return e.store.SearchNodes(ctx, vecs[0], k)
}

// Stats returns history counts.
func (e *engine) Stats(ctx context.Context) (*store.DBStats, error) {
	if e.store == nil {
		return nil, ErrHistoryDisabled
	}
	return e.store.DBStats(ctx)
}
