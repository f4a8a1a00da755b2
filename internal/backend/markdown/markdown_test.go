package markdown

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	doc := Parse([]byte("---\nid: plan-1\ntitle: Weekly plan\ntags: [work, review]\ncreated: 2024-03-01\n---\n\n# Ignored heading\nSee #urgent and #work.\n"))

	assert.Equal(t, "Weekly plan", doc.Title)
	assert.Equal(t, []string{"work", "review", "urgent"}, doc.Tags)
	assert.Equal(t, "# Ignored heading\nSee #urgent and #work.\n", string(doc.Body))
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), doc.Time("created"))

	id, ok := doc.ID()
	assert.True(t, ok)
	assert.Equal(t, "plan-1", id)
}

func TestParseWithoutFrontmatter(t *testing.T) {
	doc := Parse([]byte("intro\n# Heading title\nbody"))
	assert.Nil(t, doc.Frontmatter)
	assert.Equal(t, "Heading title", doc.Title)

	_, ok := doc.ID()
	assert.False(t, ok)
	assert.True(t, doc.Time("created").IsZero())
}

func TestParseInvalidFrontmatter(t *testing.T) {
	src := "---\n: [broken\n---\ntext"
	doc := Parse([]byte(src))
	assert.Nil(t, doc.Frontmatter)
	assert.Equal(t, src, string(doc.Body))
	assert.Equal(t, "", doc.Title)
}

func TestUnsafeID(t *testing.T) {
	doc := Parse([]byte("---\nid: ../escape\n---\n"))
	_, ok := doc.ID()
	assert.False(t, ok)
}

func TestLocalImage(t *testing.T) {
	tests := map[string]struct {
		want string
		ok   bool
	}{
		"img/a.png":               {"img/a.png", true},
		"./img/my%20pic.png":      {"img/my pic.png", true},
		"../shared/b.png":         {"../shared/b.png", true},
		"https://example.com/a":   {"", false},
		"/abs/a.png":              {"", false},
		"data:image/png;base64,x": {"", false},
		"":                        {"", false},
	}
	for dest, tt := range tests {
		got, ok := LocalImage(dest)
		assert.Equal(t, tt.ok, ok, dest)
		assert.Equal(t, tt.want, got, dest)
	}
}

func TestRender(t *testing.T) {
	var seen []string
	out, err := Render("a < b", []byte("Hello **world** ~~old~~\n\n![pic](img/a.png)\n![remote](https://example.com/x.png)\n"),
		func(dest string) string {
			seen = append(seen, dest)
			if p, ok := LocalImage(dest); ok {
				return "../Resources/k/" + p[len("img/"):]
			}
			return ""
		})
	require.NoError(t, err)

	html := string(out)
	assert.Contains(t, html, "<title>a &lt; b</title>")
	assert.Contains(t, html, "<strong>world</strong>")
	assert.Contains(t, html, "<del>old</del>")
	assert.Contains(t, html, `src="../Resources/k/a.png"`)
	assert.Contains(t, html, `src="https://example.com/x.png"`)
	assert.Equal(t, []string{"img/a.png", "https://example.com/x.png"}, seen)
}

func TestMetadata(t *testing.T) {
	m, err := Metadata("k1", Dirs("Work/a:b/note.md"), "Plan", "v1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Work", "a_003ab"}, m.Dir)
	assert.Equal(t, "Plan.k1.html", m.File)
	assert.Equal(t, []string{"Work", "a:b", "Plan"}, m.Name)
	assert.Equal(t, "v1", m.Version)

	root, err := Metadata("k2", Dirs("note.md"), "x", "v")
	require.NoError(t, err)
	assert.Nil(t, root.Dir)
	assert.Equal(t, []string{"x"}, root.Name)

	long, err := Metadata("k3", nil, strings.Repeat("t", 400), "v")
	require.NoError(t, err)
	assert.Len(t, long.File, 250)
	assert.True(t, strings.HasSuffix(long.File, ".k3.html"))
}

func TestKeyAndTitle(t *testing.T) {
	doc := Parse([]byte("plain"))
	assert.Equal(t, PathKey("a/b.md"), doc.Key("a/b.md"))
	assert.Len(t, string(PathKey("a/b.md")), 16)
	assert.Equal(t, "b", doc.TitleFor("a/b.md"))

	doc = Parse([]byte("---\nid: fixed\n---\n# Head"))
	assert.Equal(t, "fixed", string(doc.Key("a/b.md")))
	assert.Equal(t, "Head", doc.TitleFor("a/b.md"))
}
