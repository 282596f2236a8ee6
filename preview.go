package pdfagent

import (
	"bytes"
	"context"
	"fmt"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	highlighting "github.com/yuin/goldmark-highlighting/v2"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// previewTemplate wraps Goldmark's fragment output in a complete HTML5
// document for the browser preview pane.
const previewTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Preview</title>
</head>
<body>
%s
</body>
</html>`

// Previewer renders uploaded Markdown to HTML so clients can inspect a
// document before converting it. LaTeX uploads are not previewable.
type Previewer struct {
	md goldmark.Markdown
}

// NewPreviewer creates a Previewer with GFM extensions and chroma-backed
// syntax highlighting.
func NewPreviewer() *Previewer {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,      // Tables, strikethrough, autolinks, task lists
			extension.Footnote, // [^1] footnotes
			highlighting.NewHighlighting(
				highlighting.WithStyle("github"),
				highlighting.WithFormatOptions(
					chromahtml.WithClasses(false),
				),
			),
		),
		goldmark.WithRendererOptions(
			html.WithXHTML(),
		),
	)
	return &Previewer{md: md}
}

// Render converts Markdown content to a standalone HTML5 document.
// Goldmark has no native context support, so cancellation is handled
// with the goroutine + select pattern.
func (p *Previewer) Render(ctx context.Context, content string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	type result struct {
		html string
		err  error
	}
	done := make(chan result, 1)

	go func() {
		var buf bytes.Buffer
		if err := p.md.Convert([]byte(content), &buf); err != nil {
			done <- result{err: fmt.Errorf("rendering markdown: %w", err)}
			return
		}
		done <- result{html: fmt.Sprintf(previewTemplate, buf.String())}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		return r.html, r.err
	}
}
