package parser

import "context"

// ParseResult is what a parser produces from an uploaded document.
type ParseResult struct {
	Pages  []Page // Ordered pages; a single page for plain text
	Method string // "native"
}

// Page is the extracted text of one page, 1-indexed.
type Page struct {
	Number int
	Text   string
}

// Text concatenates the pages in order with no separators.
func (r *ParseResult) Text() string {
	n := 0
	for _, p := range r.Pages {
		n += len(p.Text)
	}
	buf := make([]byte, 0, n)
	for _, p := range r.Pages {
		buf = append(buf, p.Text...)
	}
	return string(buf)
}

// Parser can parse a specific document format held in memory.
type Parser interface {
	Parse(ctx context.Context, data []byte) (*ParseResult, error)
	SupportedFormats() []string
}
