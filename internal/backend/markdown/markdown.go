// Package markdown turns Markdown notes into standalone HTML documents.
// It is shared by the backends whose remote store holds Markdown files.
package markdown

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"github.com/synctogit/synctogit/internal/notes"
)

// Extension is the file extension of Markdown notes.
const Extension = ".md"

var tagRe = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)

// Document is a parsed Markdown note.
type Document struct {
	Frontmatter map[string]any
	Body        []byte
	Title       string
	Tags        []string
}

// Parse splits the front matter from the body and derives the title and
// tags. Invalid front matter is treated as part of the body.
func Parse(data []byte) *Document {
	fm, body := splitFrontmatter(data)
	return &Document{
		Frontmatter: fm,
		Body:        body,
		Title:       deriveTitle(fm, body),
		Tags:        extractTags(fm, body),
	}
}

func splitFrontmatter(data []byte) (map[string]any, []byte) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, data
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, data
	}

	var fm map[string]any
	if err := yaml.Unmarshal(rest[:idx], &fm); err != nil {
		return nil, data
	}
	return fm, bytes.TrimLeft(rest[idx+1+len(delim):], "\n\r")
}

func deriveTitle(fm map[string]any, body []byte) string {
	if s, ok := fm["title"].(string); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	for _, line := range strings.Split(string(body), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}

func extractTags(fm map[string]any, body []byte) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(s string) {
		s = strings.TrimPrefix(strings.TrimSpace(s), "#")
		if s == "" {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	switch v := fm["tags"].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				add(s)
			}
		}
	case string:
		for _, s := range strings.Split(v, ",") {
			add(s)
		}
	}
	for _, m := range tagRe.FindAllSubmatch(body, -1) {
		add(string(m[1]))
	}
	return out
}

// String returns a string front matter field.
func (d *Document) String(key string) string {
	s, _ := d.Frontmatter[key].(string)
	return strings.TrimSpace(s)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Time returns a timestamp front matter field, the zero time when it is
// missing or unparsable.
func (d *Document) Time(key string) time.Time {
	switch v := d.Frontmatter[key].(type) {
	case time.Time:
		return v
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, strings.TrimSpace(v)); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}

// ID returns the front matter id when it is usable as a note key.
func (d *Document) ID() (string, bool) {
	id := d.String("id")
	if !notes.Key(id).Valid() {
		return "", false
	}
	return id, true
}

// LocalImage reports whether an image destination refers to a file next to
// the note, and returns its unescaped slash-separated path.
func LocalImage(dest string) (string, bool) {
	if dest == "" || strings.HasPrefix(dest, "/") || strings.HasPrefix(dest, "#") {
		return "", false
	}
	u, err := url.Parse(dest)
	if err != nil || u.Scheme != "" || u.Host != "" || u.Path == "" {
		return "", false
	}
	p := path.Clean(u.Path)
	if p == "." || p == ".." {
		return "", false
	}
	return p, true
}

// RewriteFunc maps an image destination to the one written to the document.
// Returning an empty string keeps the original destination.
type RewriteFunc func(dest string) string

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

var page = template.Must(template.New("page").Parse(`<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
{{.Body}}</body>
</html>
`))

// Render converts a Markdown body into a complete HTML document.
func Render(title string, body []byte, rewrite RewriteFunc) ([]byte, error) {
	doc := md.Parser().Parse(text.NewReader(body))
	if rewrite != nil {
		err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
			if !entering {
				return ast.WalkContinue, nil
			}
			if img, ok := n.(*ast.Image); ok {
				if dest := rewrite(string(img.Destination)); dest != "" {
					img.Destination = []byte(dest)
				}
			}
			return ast.WalkContinue, nil
		})
		if err != nil {
			return nil, err
		}
	}

	var html bytes.Buffer
	if err := md.Renderer().Render(&html, body, doc); err != nil {
		return nil, fmt.Errorf("failed to render markdown: %w", err)
	}

	var out bytes.Buffer
	err := page.Execute(&out, struct {
		Title string
		Body  template.HTML
	}{title, template.HTML(html.String())})
	if err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
