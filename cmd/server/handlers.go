package main

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/brunobiangulo/papergraph"
	"github.com/brunobiangulo/papergraph/store"
)

//go:embed templates/index.html.tmpl
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html.tmpl"))

// artifactName matches files written by the output writer.
var artifactName = regexp.MustCompile(`^method_\d{14}(_[0-9a-f]{8})?\.(json|html|xlsx)$`)

type handler struct {
	engine    papergraph.Engine
	outputDir string
	maxUpload int64
}

func newHandler(e papergraph.Engine, cfg papergraph.Config) *handler {
	return &handler{
		engine:    e,
		outputDir: cfg.OutputDir,
		maxUpload: int64(cfg.MaxUploadMB) << 20,
	}
}

type pageResult struct {
	Filename  string
	Model     string
	Nodes     int
	Edges     int
	JSONName  string
	HTMLName  string
	XLSXName  string
	GraphHTML string
}

type pageData struct {
	Models   []string
	Selected string
	Error    string
	Raw      string
	Result   *pageResult
}

func (h *handler) renderPage(w http.ResponseWriter, status int, data pageData) {
	data.Models = h.engine.Models()
	if data.Selected == "" && len(data.Models) > 0 {
		data.Selected = data.Models[0]
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := indexTemplate.Execute(w, data); err != nil {
		slog.Error("rendering page", "error", err)
	}
}

// GET /
func (h *handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, http.StatusOK, pageData{})
}

// POST /extract
// Accepts multipart fields api_key, pdf and model. Answers with the HTML
// page, or JSON when the client asks for application/json.
func (h *handler) handleExtract(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	wantJSON := strings.Contains(r.Header.Get("Accept"), "application/json")
	fail := func(status int, err error, raw string) {
		if wantJSON {
			body := map[string]string{"error": err.Error(), "kind": papergraph.ErrorKind(err)}
			if raw != "" {
				body["raw_output"] = raw
			}
			writeJSON(w, status, body)
			return
		}
		h.renderPage(w, status, pageData{Selected: r.FormValue("model"), Error: err.Error(), Raw: raw})
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) || strings.Contains(err.Error(), "request body too large") {
			fail(http.StatusRequestEntityTooLarge, errors.New("upload exceeds the size limit"), "")
			return
		}
		fail(http.StatusBadRequest, errors.New("invalid multipart form"), "")
		return
	}

	req := papergraph.Request{
		APIKey: r.FormValue("api_key"),
		Model:  r.FormValue("model"),
	}
	if req.Model == "" {
		if models := h.engine.Models(); len(models) > 0 {
			req.Model = models[0]
		}
	}

	file, header, err := r.FormFile("pdf")
	switch {
	case err == nil:
		defer file.Close()
		// Sanitise filename to prevent path traversal.
		req.Filename = filepath.Base(header.Filename)
		req.PDF, err = io.ReadAll(file)
		if err != nil {
			fail(http.StatusBadRequest, errors.New("failed to read upload"), "")
			return
		}
	case errors.Is(err, http.ErrMissingFile):
		// Left empty; the engine reports the missing PDF.
	default:
		fail(http.StatusBadRequest, errors.New("invalid pdf field"), "")
		return
	}

	res, err := h.engine.Run(ctx, req)
	if err != nil {
		var (
			raw string
			pe  *papergraph.ParseError
			ve  *papergraph.ValidationError
		)
		switch {
		case errors.As(err, &pe):
			raw = pe.Raw
		case errors.As(err, &ve):
			raw = ve.Raw
		}
		fail(statusFor(err), err, raw)
		return
	}

	if wantJSON {
		writeJSON(w, http.StatusOK, res)
		return
	}

	h.renderPage(w, http.StatusOK, pageData{
		Selected: req.Model,
		Result: &pageResult{
			Filename:  req.Filename,
			Model:     res.Model,
			Nodes:     res.Stats.Nodes,
			Edges:     res.Stats.Edges,
			JSONName:  filepath.Base(res.Artifacts.JSON),
			HTMLName:  filepath.Base(res.Artifacts.HTML),
			XLSXName:  baseOrEmpty(res.Artifacts.XLSX),
			GraphHTML: string(res.HTML),
		},
	})
}

// GET /artifacts/{name}
func (h *handler) handleArtifact(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !artifactName.MatchString(name) {
		writeError(w, http.StatusNotFound, "artifact not found")
		return
	}
	serveArtifact(w, r, filepath.Join(h.outputDir, name))
}

// GET /runs
func (h *handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	runs, err := h.engine.Runs(r.Context(), limit)
	if err != nil {
		h.lookupError(w, err, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	// Raw output can be large; it is served by /runs/{id}.
	for i := range runs {
		runs[i].RawOutput = ""
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs": runs,
	})
}

// GET /runs/{id}
func (h *handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.engine.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.lookupError(w, err, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// GET /runs/{id}/graph
func (h *handler) handleRunGraph(w http.ResponseWriter, r *http.Request) {
	g, err := h.engine.RunGraph(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.lookupError(w, err, "failed to load graph")
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// GET /runs/{id}/{kind}
func (h *handler) handleRunArtifact(w http.ResponseWriter, r *http.Request) {
	run, err := h.engine.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.lookupError(w, err, "failed to load run")
		return
	}

	var path string
	switch chi.URLParam(r, "kind") {
	case "json":
		path = run.JSONPath
	case "html":
		path = run.HTMLPath
	case "xlsx":
		path = run.XLSXPath
	default:
		writeError(w, http.StatusNotFound, "unknown artifact kind")
		return
	}
	if path == "" {
		writeError(w, http.StatusNotFound, "run has no such artifact")
		return
	}
	serveArtifact(w, r, path)
}

// GET /methods/similar?q=...&k=...
// The embedding key may be sent in X-API-Key when none is configured.
func (h *handler) handleSimilar(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	k := 10
	if v := r.URL.Query().Get("k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 100 {
			writeError(w, http.StatusBadRequest, "k must be between 1 and 100")
			return
		}
		k = n
	}

	matches, err := h.engine.SimilarMethods(r.Context(), r.Header.Get("X-API-Key"), q, k)
	if err != nil {
		h.lookupError(w, err, "similarity search failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"query":   q,
		"matches": matches,
	})
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status": "ok",
		"models": h.engine.Models(),
	}
	if stats, err := h.engine.Stats(r.Context()); err == nil {
		body["history"] = stats
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *handler) lookupError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, papergraph.ErrRunNotFound):
		writeError(w, http.StatusNotFound, "run not found")
	case errors.Is(err, papergraph.ErrHistoryDisabled), errors.Is(err, papergraph.ErrEmbeddingDisabled):
		writeError(w, http.StatusNotImplemented, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, msg)
		slog.Error(msg, "error", err)
	}
}

// statusFor maps a run error to an HTTP status.
func statusFor(err error) int {
	switch papergraph.ErrorKind(err) {
	case papergraph.KindInput:
		return http.StatusBadRequest
	case papergraph.KindExtraction:
		return http.StatusUnprocessableEntity
	case papergraph.KindModelCall, papergraph.KindParse, papergraph.KindValidation:
		return http.StatusBadGateway
	case papergraph.KindCanceled:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func serveArtifact(w http.ResponseWriter, r *http.Request, path string) {
	name := filepath.Base(path)
	if filepath.Ext(name) != ".html" {
		w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	}
	http.ServeFile(w, r, path)
}

func baseOrEmpty(path string) string {
	if path == "" {
		return ""
	}
	return filepath.Base(path)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
