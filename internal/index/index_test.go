package index

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synctogit/synctogit/internal/notes"
)

var sampleLinks = []Link{
	{
		Path: []string{"Projects", "P - _0021Z (Щ) _003c_003e", "жизнь.04d42576.html"},
		Name: []string{"Projects", "P - !Z (Щ) <>", "жизнь"},
	},
	{
		Path: []string{"Learning", "Книги", "не мои.a5ccfd4c.html"},
		Name: []string{"Learning", "Книги", "не мои"},
	},
	{
		Path: []string{"Learning", "Книги", "мои.b04b7672.html"},
		Name: []string{"Learning", "Книги", "мои"},
	},
}

func TestTree(t *testing.T) {
	tree := Tree(sampleLinks)
	require.Len(t, tree, 2)

	learning := tree[0]
	assert.Equal(t, "Learning", learning.Name)
	assert.True(t, learning.IsDir)
	require.Len(t, learning.Items, 1)

	books := learning.Items[0]
	assert.Equal(t, "Книги", books.Name)
	require.Len(t, books.Items, 2)
	assert.Equal(t, "мои", books.Items[0].Name)
	assert.Equal(t, "не мои", books.Items[1].Name)
	assert.False(t, books.Items[0].IsDir)

	projects := tree[1]
	assert.Equal(t, "Projects", projects.Name)
	note := projects.Items[0].Items[0]
	assert.Equal(t, "жизнь", note.Name)
	assert.Equal(t,
		"./Notes/Projects/P%20-%20_0021Z%20%28%D0%A9%29%20_003c_003e/%D0%B6%D0%B8%D0%B7%D0%BD%D1%8C.04d42576.html",
		string(note.URL))
}

func TestTreeRootNote(t *testing.T) {
	tree := Tree([]Link{
		{Path: []string{"top.html"}, Name: []string{"top"}},
		{Path: []string{"A", "n.html"}, Name: []string{"A", "n"}},
	})
	require.Len(t, tree, 2)
	assert.True(t, tree[0].IsDir)
	assert.Equal(t, "top", tree[1].Name)
	assert.Equal(t, "./Notes/top.html", string(tree[1].URL))
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleLinks))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "<!doctype html>\n"))
	assert.Contains(t, out, "<li>Learning\n")
	assert.Contains(t, out, "P - !Z (Щ) &lt;&gt;")
	assert.Contains(t, out, `<a href="./Notes/Learning/`)
	assert.Less(t, strings.Index(out, ">мои<"), strings.Index(out, ">не мои<"))
}

func TestRenderEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, nil))
	assert.Contains(t, buf.String(), "No notes yet.")
	assert.NotContains(t, buf.String(), "<ul>")
}

func TestWriteFile(t *testing.T) {
	root := t.TempDir()
	meta := notes.Metadata{Dir: []string{"A"}, File: "n.k.html", Name: []string{"A", "n"}}
	require.NoError(t, WriteFile(root, []Link{LinkFor(meta)}))

	data, err := os.ReadFile(filepath.Join(root, FileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), `href="./Notes/A/n.k.html"`)
}
