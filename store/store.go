package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Run statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Run represents a row in the runs table.
type Run struct {
	ID               string `json:"id"`
	Filename         string `json:"filename"`
	Model            string `json:"model"`
	Status           string `json:"status"`
	ErrorKind        string `json:"error_kind,omitempty"`
	Error            string `json:"error,omitempty"`
	PageCount        int    `json:"page_count"`
	TextChars        int    `json:"text_chars"`
	NodeCount        int    `json:"node_count"`
	EdgeCount        int    `json:"edge_count"`
	JSONPath         string `json:"json_path,omitempty"`
	HTMLPath         string `json:"html_path,omitempty"`
	XLSXPath         string `json:"xlsx_path,omitempty"`
	RawOutput        string `json:"raw_output,omitempty"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	ElapsedMS        int64  `json:"elapsed_ms"`
	CreatedAt        string `json:"created_at"`
}

// Node represents a row in the nodes table.
type Node struct {
	ID            int64   `json:"id"`
	RunID         string  `json:"run_id"`
	NodeID        string  `json:"node_id"`
	CanonicalName string  `json:"canonical_name"`
	Confidence    float64 `json:"confidence"`
}

// Edge represents a row in the edges table.
type Edge struct {
	ID       int64  `json:"id"`
	RunID    string `json:"run_id"`
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
	Relation string `json:"relation"`
}

// NodeMatch is a node returned by a similarity search, with the paper it
// came from.
type NodeMatch struct {
	Node
	Filename string  `json:"filename"`
	Score    float64 `json:"score"`
}

// Store wraps the SQLite database holding run history.
type Store struct {
	db           *sql.DB
	embeddingDim int
}

// New opens (or creates) a SQLite database at the given path and
// initialises the schema including the sqlite-vec virtual table.
func New(dbPath string, embeddingDim int) (*Store, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL(embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	// Connection pool settings for SQLite.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, embeddingDim: embeddingDim}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// EmbeddingDim returns the configured embedding dimension.
func (s *Store) EmbeddingDim() int {
	return s.embeddingDim
}

// --- Run operations ---

const runColumns = `id, filename, model, status, error_kind, error, page_count, text_chars,
	node_count, edge_count, json_path, html_path, xlsx_path, raw_output,
	prompt_tokens, completion_tokens, total_tokens, elapsed_ms, created_at`

// InsertRun records a finished run.
func (s *Store) InsertRun(ctx context.Context, r Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, filename, model, status, error_kind, error, page_count, text_chars,
			node_count, edge_count, json_path, html_path, xlsx_path, raw_output,
			prompt_tokens, completion_tokens, total_tokens, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Filename, r.Model, r.Status, nullString(r.ErrorKind), nullString(r.Error),
		r.PageCount, r.TextChars, r.NodeCount, r.EdgeCount,
		nullString(r.JSONPath), nullString(r.HTMLPath), nullString(r.XLSXPath), nullString(r.RawOutput),
		r.PromptTokens, r.CompletionTokens, r.TotalTokens, r.ElapsedMS)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", r.ID, err)
	}
	return nil
}

// GetRun retrieves a run by ID. It returns ErrNotFound when no such run
// exists.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListRuns returns the most recent runs first. A limit of zero or less
// returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, "SELECT "+runColumns+`
		FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(sc rowScanner) (*Run, error) {
	var r Run
	var errorKind, errText, jsonPath, htmlPath, xlsxPath, raw sql.NullString
	if err := sc.Scan(&r.ID, &r.Filename, &r.Model, &r.Status, &errorKind, &errText,
		&r.PageCount, &r.TextChars, &r.NodeCount, &r.EdgeCount,
		&jsonPath, &htmlPath, &xlsxPath, &raw,
		&r.PromptTokens, &r.CompletionTokens, &r.TotalTokens, &r.ElapsedMS, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.ErrorKind = errorKind.String
	r.Error = errText.String
	r.JSONPath = jsonPath.String
	r.HTMLPath = htmlPath.String
	r.XLSXPath = xlsxPath.String
	r.RawOutput = raw.String
	return &r, nil
}

// --- Graph operations ---

// InsertNodes inserts the nodes of one run and returns their row IDs in
// input order.
func (s *Store) InsertNodes(ctx context.Context, runID string, nodes []Node) ([]int64, error) {
	ids := make([]int64, len(nodes))

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO nodes (run_id, node_id, canonical_name, confidence)
			VALUES (?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, n := range nodes {
			res, err := stmt.ExecContext(ctx, runID, n.NodeID, n.CanonicalName, n.Confidence)
			if err != nil {
				return fmt.Errorf("inserting node %q: %w", n.NodeID, err)
			}
			ids[i], err = res.LastInsertId()
			if err != nil {
				return err
			}
		}
		return nil
	})

	return ids, err
}

// InsertEdges inserts the edges of one run.
func (s *Store) InsertEdges(ctx context.Context, runID string, edges []Edge) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO edges (run_id, source_id, target_id, relation)
			VALUES (?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, e := range edges {
			if _, err := stmt.ExecContext(ctx, runID, e.SourceID, e.TargetID, e.Relation); err != nil {
				return err
			}
		}
		return nil
	})
}

// RunNodes returns the nodes stored for a run in insertion order.
func (s *Store) RunNodes(ctx context.Context, runID string) ([]Node, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, node_id, canonical_name, confidence
		FROM nodes WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []Node
	for rows.Next() {
		var n Node
		if err := rows.Scan(&n.ID, &n.RunID, &n.NodeID, &n.CanonicalName, &n.Confidence); err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// RunEdges returns the edges stored for a run in insertion order.
func (s *Store) RunEdges(ctx context.Context, runID string) ([]Edge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, source_id, target_id, relation
		FROM edges WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.ID, &e.RunID, &e.SourceID, &e.TargetID, &e.Relation); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// --- Embedding operations ---

// InsertNodeEmbeddings stores one embedding per node row ID. ids and
// embeddings must have the same length.
func (s *Store) InsertNodeEmbeddings(ctx context.Context, ids []int64, embeddings [][]float32) error {
	if len(ids) != len(embeddings) {
		return fmt.Errorf("got %d embeddings for %d nodes", len(embeddings), len(ids))
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for i, id := range ids {
			if len(embeddings[i]) != s.embeddingDim {
				return fmt.Errorf("embedding for node %d has dimension %d, want %d", id, len(embeddings[i]), s.embeddingDim)
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT OR REPLACE INTO vec_nodes (node_rowid, embedding) VALUES (?, ?)",
				id, serializeFloat32(embeddings[i])); err != nil {
				return err
			}
		}
		return nil
	})
}

// SearchNodes performs a KNN search returning the k nodes whose canonical
// name embeddings are nearest to query, across all runs.
func (s *Store) SearchNodes(ctx context.Context, query []float32, k int) ([]NodeMatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.node_rowid, v.distance,
			n.run_id, n.node_id, n.canonical_name, n.confidence, r.filename
		FROM vec_nodes v
		JOIN nodes n ON n.id = v.node_rowid
		JOIN runs r ON r.id = n.run_id
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance
	`, serializeFloat32(query), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []NodeMatch
	for rows.Next() {
		var m NodeMatch
		var distance float64
		if err := rows.Scan(&m.ID, &distance,
			&m.RunID, &m.NodeID, &m.CanonicalName, &m.Confidence, &m.Filename); err != nil {
			return nil, err
		}
		m.Score = 1.0 - distance
		results = append(results, m)
	}
	return results, rows.Err()
}

// --- Stats ---

// DBStats holds row counts for the history tables.
type DBStats struct {
	Runs       int `json:"runs"`
	Failed     int `json:"failed"`
	Nodes      int `json:"nodes"`
	Edges      int `json:"edges"`
	Embeddings int `json:"embeddings"`
}

// DBStats returns counts of runs, failed runs, nodes, edges and embeddings.
func (s *Store) DBStats(ctx context.Context) (*DBStats, error) {
	stats := &DBStats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM runs", &stats.Runs},
		{"SELECT COUNT(*) FROM runs WHERE status = 'failed'", &stats.Failed},
		{"SELECT COUNT(*) FROM nodes", &stats.Nodes},
		{"SELECT COUNT(*) FROM edges", &stats.Edges},
		{"SELECT COUNT(*) FROM vec_nodes", &stats.Embeddings},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", q.query, err)
		}
	}
	return stats, nil
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// serializeFloat32 converts a float32 slice to little-endian bytes for sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
