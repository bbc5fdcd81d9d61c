package parser

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Registry maps a format name to the parser that reads it.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry returns a registry with the PDF, DOCX and plain text parsers.
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]Parser)}
	for _, p := range []Parser{&PDFParser{}, &DOCXParser{}, &TextParser{}} {
		for _, f := range p.SupportedFormats() {
			r.parsers[f] = p
		}
	}
	return r
}

// Get returns the parser registered for format.
func (r *Registry) Get(format string) (Parser, error) {
	p, ok := r.parsers[format]
	if !ok {
		return nil, fmt.Errorf("no parser for format: %s", format)
	}
	return p, nil
}

// ForFile picks a parser by file extension.
func (r *Registry) ForFile(name string) (Parser, error) {
	return r.Get(FormatOf(name))
}

// Register adds or replaces the parser for format.
func (r *Registry) Register(format string, p Parser) {
	r.parsers[format] = p
}

// FormatOf returns the lowercase extension of name without the dot.
func FormatOf(name string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
}
