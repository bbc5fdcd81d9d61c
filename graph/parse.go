package graph

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema.json
var schemaJSON string

var methodGraphSchema = jsonschema.MustCompileString("method_graph.schema.json", schemaJSON)

// ParseError reports a model answer that is not a method graph document. Raw
// is the answer as received so it can be shown for manual inspection.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing method graph: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parsed is a decoded and schema-checked method graph.
type Parsed struct {
	Graph *MethodGraph
	// Document is the answer re-indented with two spaces. Key order and any
	// fields beyond the schema are kept as the model wrote them.
	Document []byte
}

// StripFence removes one leading ```json (or bare ```) marker and one
// trailing ``` marker. Only the ends are touched; a fence inside the body is
// left alone.
func StripFence(raw string) string {
	s := strings.TrimSpace(raw)
	for _, prefix := range []string{"```json", "```JSON", "```"} {
		if strings.HasPrefix(s, prefix) {
			s = s[len(prefix):]
			break
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// Parse strips the code fence from raw, decodes exactly one JSON value and
// checks it against the method graph schema. It does not attempt repair.
func Parse(raw string) (*Parsed, error) {
	body := StripFence(raw)
	if body == "" {
		return nil, &ParseError{Raw: raw, Err: errors.New("empty response")}
	}

	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, &ParseError{Raw: raw, Err: err}
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, &ParseError{Raw: raw, Err: errors.New("unexpected data after JSON value")}
	}

	if err := methodGraphSchema.Validate(doc); err != nil {
		return nil, &ParseError{Raw: raw, Err: fmt.Errorf("schema: %w", err)}
	}

	var g MethodGraph
	if err := json.Unmarshal([]byte(body), &g); err != nil {
		return nil, &ParseError{Raw: raw, Err: err}
	}

	var indented bytes.Buffer
	if err := json.Indent(&indented, []byte(body), "", "  "); err != nil {
		return nil, &ParseError{Raw: raw, Err: err}
	}
	indented.WriteByte('\n')

	return &Parsed{Graph: &g, Document: indented.Bytes()}, nil
}
