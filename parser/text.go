package parser

import (
	"context"
	"fmt"
	"unicode/utf8"
)

// TextParser handles papers that were already converted to plain text.
type TextParser struct{}

func (p *TextParser) SupportedFormats() []string { return []string{"txt", "md"} }

func (p *TextParser) Parse(ctx context.Context, data []byte) (*ParseResult, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("text input is not valid UTF-8")
	}
	if len(data) == 0 {
		return &ParseResult{Method: "native"}, nil
	}
	return &ParseResult{
		Pages:  []Page{{Number: 1, Text: string(data)}},
		Method: "native",
	}, nil
}
