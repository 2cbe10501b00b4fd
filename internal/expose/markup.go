package expose

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var md = goldmark.New()

// PlainText drops inline markup ("**Budget:** 5000 €" -> "Budget: 5000 €") for
// renderers that cannot draw it.
func PlainText(s string) string {
	src := []byte(s)
	root := md.Parser().Parse(text.NewReader(src))

	var b strings.Builder
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock && n.NextSibling() != nil && b.Len() > 0 {
				b.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}
		switch t := n.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

var page = template.Must(template.New("preview").Parse(`<!DOCTYPE html>
<html lang="de">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; max-width: 48rem; margin: 2rem auto; line-height: 1.4; }
h1 { border-bottom: 2px solid #2e7d32; }
h2 { color: #2e7d32; margin-top: 1.5rem; }
</style>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// HTML renders markdown as a standalone preview page.
func HTML(markdown string) ([]byte, error) {
	var body bytes.Buffer
	if err := md.Convert([]byte(markdown), &body); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}
	title := Parse(markdown).Title()
	if title == "" {
		title = "Exposé"
	}
	var out bytes.Buffer
	err := page.Execute(&out, struct {
		Title string
		Body  template.HTML
	}{PlainText(title), template.HTML(body.String())})
	if err != nil {
		return nil, fmt.Errorf("render preview: %w", err)
	}
	return out.Bytes(), nil
}
