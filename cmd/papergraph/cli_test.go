package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/papergraph"
	"github.com/brunobiangulo/papergraph/internal/testpdf"
)

const modelReply = "```json\n" + `{
  "nodes": [
    {"id": "m1", "canonical_name": "Transformer", "confidence_ie": 0.98},
    {"id": "m2", "canonical_name": "Adam", "confidence_ie": 0.7}
  ],
  "edges": [
    {"source_id": "m1", "target_id": "m2", "relation": "is trained with"}
  ]
}` + "\n```"

type cliEnv struct {
	dir    string
	outDir string
	config string
	paper  string

	mu   sync.Mutex
	auth []string
}

func (e *cliEnv) authHeaders() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.auth...)
}

func newCLIEnv(t *testing.T, reply string, extraConfig string) *cliEnv {
	t.Helper()
	t.Setenv("OPENROUTER_API_KEY", "")

	env := &cliEnv{dir: t.TempDir()}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.mu.Lock()
		env.auth = append(env.auth, r.Header.Get("Authorization"))
		env.mu.Unlock()
		content, _ := json.Marshal(reply)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"model":"google/gemini-2.5-pro","choices":[{"message":{"role":"assistant","content":%s},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":30,"completion_tokens":12,"total_tokens":42}}`, content)
	}))
	t.Cleanup(srv.Close)

	env.outDir = filepath.Join(env.dir, "out")
	env.config = filepath.Join(env.dir, "papergraph.yaml")
	cfg := fmt.Sprintf("chat:\n  base_url: %s\noutput_dir: %s\nlog:\n  level: error\n%s", srv.URL, env.outDir, extraConfig)
	require.NoError(t, os.WriteFile(env.config, []byte(cfg), 0o644))

	env.paper = filepath.Join(env.dir, "attention.pdf")
	require.NoError(t, os.WriteFile(env.paper, testpdf.Build("Attention is all you need"), 0o644))
	return env
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "papergraph dev\n", out)
}

func TestExtractSummary(t *testing.T) {
	env := newCLIEnv(t, modelReply, "")

	out, _, err := execute(t, "--config", env.config, "extract", env.paper, "--api-key", "sk-cli")
	require.NoError(t, err)
	assert.Equal(t, []string{"Bearer sk-cli"}, env.authHeaders())

	assert.Contains(t, out, "Method graph extracted")
	assert.Contains(t, out, "attention.pdf")
	assert.Contains(t, out, "42 (30 prompt, 12 completion)")
	assert.Equal(t, 3, strings.Count(out, "Written:"))

	entries, err := os.ReadDir(env.outDir)
	require.NoError(t, err)
	var exts []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "method_") {
			exts = append(exts, filepath.Ext(e.Name()))
		}
	}
	assert.ElementsMatch(t, []string{".json", ".html", ".xlsx"}, exts)
}

func TestExtractJSONOutputAndOverrides(t *testing.T) {
	env := newCLIEnv(t, modelReply, "")
	other := filepath.Join(env.dir, "elsewhere")

	out, _, err := execute(t, "-c", env.config, "extract", env.paper,
		"--api-key", "sk-cli", "--json", "--no-xlsx", "--out", other)
	require.NoError(t, err)

	var res struct {
		RunID string `json:"run_id"`
		Stats struct {
			Nodes int `json:"nodes"`
		} `json:"stats"`
		Artifacts struct {
			JSON string `json:"json"`
			XLSX string `json:"xlsx"`
		} `json:"artifacts"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 2, res.Stats.Nodes)
	assert.Empty(t, res.Artifacts.XLSX)
	assert.Equal(t, other, filepath.Dir(res.Artifacts.JSON))
	assert.FileExists(t, res.Artifacts.JSON)
}

func TestExtractKeyFromConfig(t *testing.T) {
	env := newCLIEnv(t, modelReply, "")
	t.Setenv("PAPERGRAPH_CHAT_API_KEY", "sk-from-env")

	_, _, err := execute(t, "-c", env.config, "extract", env.paper)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bearer sk-from-env"}, env.authHeaders())
}

func TestExtractMissingKey(t *testing.T) {
	env := newCLIEnv(t, modelReply, "")

	_, _, err := execute(t, "-c", env.config, "extract", env.paper)
	assert.ErrorIs(t, err, papergraph.ErrMissingAPIKey)
	assert.Empty(t, env.authHeaders())
}

func TestExtractPrintsRawOutputOnParseFailure(t *testing.T) {
	env := newCLIEnv(t, "I could not find any methods.", "")

	_, stderr, err := execute(t, "-c", env.config, "extract", env.paper, "--api-key", "k")
	var pe *papergraph.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, stderr, "Raw model output")
	assert.Contains(t, stderr, "I could not find any methods.")
	assert.NoDirExists(t, env.outDir)
}

func TestExtractMissingFile(t *testing.T) {
	env := newCLIEnv(t, modelReply, "")
	_, _, err := execute(t, "-c", env.config, "extract", filepath.Join(env.dir, "nope.pdf"), "--api-key", "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope.pdf")
}

func TestExtractRequiresOneArg(t *testing.T) {
	_, _, err := execute(t, "extract")
	assert.Error(t, err)
}
