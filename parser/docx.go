package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// DOCXParser reads Word manuscripts. A DOCX file has no fixed pagination,
// so the whole body is returned as a single page.
type DOCXParser struct{}

func (p *DOCXParser) SupportedFormats() []string { return []string{"docx"} }

func (p *DOCXParser) Parse(ctx context.Context, data []byte) (*ParseResult, error) {
	if len(data) == 0 {
		return nil, ErrEmptyDocument
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening DOCX: %w", err)
	}

	var docFile *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return nil, fmt.Errorf("word/document.xml not found in DOCX")
	}

	rc, err := docFile.Open()
	if err != nil {
		return nil, fmt.Errorf("opening document.xml: %w", err)
	}
	defer rc.Close()

	body, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text, err := docxText(body)
	if err != nil {
		return nil, fmt.Errorf("parsing DOCX XML: %w", err)
	}
	if text == "" {
		return &ParseResult{Method: "native"}, nil
	}
	return &ParseResult{
		Pages:  []Page{{Number: 1, Text: text}},
		Method: "native",
	}, nil
}

// docxText walks the body in document order. Paragraphs become lines and
// table rows become pipe-separated lines.
func docxText(data []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	var (
		out       strings.Builder
		para      strings.Builder
		cells     []string
		inText    bool
		cellDepth int
	)
	flushLine := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if out.Len() > 0 {
			out.WriteByte('\n')
		}
		out.WriteString(s)
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				para.WriteByte('\t')
			case "br":
				para.WriteByte(' ')
			case "tr":
				cells = cells[:0]
			case "tc":
				cellDepth++
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if cellDepth > 0 {
					if para.Len() > 0 {
						para.WriteByte(' ')
					}
					continue
				}
				flushLine(para.String())
				para.Reset()
			case "tc":
				cellDepth--
				cells = append(cells, strings.TrimSpace(para.String()))
				para.Reset()
			case "tr":
				flushLine("| " + strings.Join(cells, " | ") + " |")
			}
		}
	}
	return out.String(), nil
}
