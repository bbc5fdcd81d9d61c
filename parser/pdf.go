package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// ErrEmptyDocument is returned when the payload has no bytes at all.
var ErrEmptyDocument = errors.New("empty document")

// PDFParser extracts plain text from an in-memory PDF.
type PDFParser struct{}

func (p *PDFParser) SupportedFormats() []string { return []string{"pdf"} }

// Parse returns one Page per PDF page, in page order. Pages without a page
// object contribute an empty string. A page whose content cannot be decoded
// fails the whole parse.
func (p *PDFParser) Parse(ctx context.Context, data []byte) (res *ParseResult, err error) {
	if len(data) == 0 {
		return nil, ErrEmptyDocument
	}

	// The decoder panics on some malformed object streams.
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("decoding PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}

	totalPages := reader.NumPage()
	pages := make([]Page, 0, totalPages)

	for i := 1; i <= totalPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, Page{Number: i})
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extracting text from page %d: %w", i, err)
		}
		pages = append(pages, Page{Number: i, Text: text})
	}

	return &ParseResult{
		Pages:  pages,
		Method: "native",
	}, nil
}

// ExtractPages returns the text of every page, 1-indexed.
func (p *PDFParser) ExtractPages(ctx context.Context, data []byte) ([]Page, error) {
	res, err := p.Parse(ctx, data)
	if err != nil {
		return nil, err
	}
	return res.Pages, nil
}

// ExtractText is the ordered concatenation of every page's text.
func (p *PDFParser) ExtractText(ctx context.Context, data []byte) (string, error) {
	res, err := p.Parse(ctx, data)
	if err != nil {
		return "", err
	}
	return res.Text(), nil
}
