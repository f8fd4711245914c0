package feed

import (
	"fmt"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownSource wraps a Source containing markdown and serves only its
// readable text: headings, paragraphs, list items and blockquotes.
// Code blocks, inline code and raw HTML are dropped since they make
// poor listening.
type MarkdownSource struct {
	src    Source
	reader *strings.Reader
	err    error
}

// NewMarkdownSource wraps src. The underlying source is consumed and
// parsed on the first Read.
func NewMarkdownSource(src Source) *MarkdownSource {
	return &MarkdownSource{src: src}
}

// Read implements io.Reader.
func (m *MarkdownSource) Read(p []byte) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	if m.reader == nil {
		raw, err := io.ReadAll(m.src)
		if err != nil {
			m.err = fmt.Errorf("feed: reading markdown source: %w", err)
			return 0, m.err
		}
		m.reader = strings.NewReader(ExtractText(raw))
	}
	return m.reader.Read(p)
}

// SourceID implements Source.
func (m *MarkdownSource) SourceID() string { return m.src.SourceID() }

// Len implements Sizer once the source has been parsed; before that it
// reports the underlying source size as a rough estimate.
func (m *MarkdownSource) Len() int64 {
	if m.reader != nil {
		return int64(m.reader.Size())
	}
	if s, ok := m.src.(Sizer); ok {
		return s.Len()
	}
	return 0
}

// ExtractText renders markdown down to speakable plain text.
func ExtractText(markdown []byte) string {
	doc := goldmark.New().Parser().Parse(text.NewReader(markdown))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			switch n.(type) {
			case *ast.Paragraph, *ast.Heading, *ast.ListItem, *ast.Blockquote:
				b.WriteString("\n\n")
			}
			return ast.WalkContinue, nil
		}
		switch v := n.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock, *ast.CodeSpan, *ast.RawHTML, *ast.Image:
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			b.Write(v.Segment.Value(markdown))
			if v.SoftLineBreak() || v.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(v.Value)
		}
		return ast.WalkContinue, nil
	})

	// Collapse the block separators down to readable paragraphs.
	out := strings.TrimSpace(b.String())
	for strings.Contains(out, "\n\n\n") {
		out = strings.ReplaceAll(out, "\n\n\n", "\n\n")
	}
	return out
}
