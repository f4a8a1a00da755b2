package vault

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synctogit/synctogit/internal/backend/markdown"
	"github.com/synctogit/synctogit/internal/notes"
	"github.com/synctogit/synctogit/internal/service"
)

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func openVault(t *testing.T) (*Backend, string) {
	t.Helper()
	root := t.TempDir()
	b, err := Open(root, zerolog.Nop())
	require.NoError(t, err)
	return b, root
}

func TestRegistered(t *testing.T) {
	d, err := service.Lookup(Name)
	require.NoError(t, err)
	assert.Equal(t, 0, d.MinDepth)
	assert.Equal(t, MaxDepth, d.MaxDepth)
	assert.False(t, d.NeedsToken)
}

func TestOpenErrors(t *testing.T) {
	_, err := Open("", zerolog.Nop())
	assert.Error(t, err)

	_, err = Open(filepath.Join(t.TempDir(), "missing"), zerolog.Nop())
	assert.Error(t, err)

	file := writeFile(t, t.TempDir(), "a.md", "x")
	_, err = Open(file, zerolog.Nop())
	assert.Error(t, err)
}

func TestListMetadata(t *testing.T) {
	b, root := openVault(t)
	writeFile(t, root, "Work/Plans/q3.md", "---\nid: plan-q3\ntitle: Q3 plan\n---\nbody\n")
	writeFile(t, root, "Work/a/b.md", "# Slash a/b\n")
	writeFile(t, root, "inbox.md", "no title here")
	writeFile(t, root, "Work/readme.txt", "not a note")
	writeFile(t, root, ".obsidian/workspace.md", "hidden")
	writeFile(t, root, "1/2/3/4/5/6/7/8/9/deep.md", "too deep")

	got, err := b.ListMetadata(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 3)

	plan := got["plan-q3"]
	assert.Equal(t, []string{"Work", "Plans"}, plan.Dir)
	assert.Equal(t, "Q3 plan.plan-q3.html", plan.File)
	assert.Equal(t, []string{"Work", "Plans", "Q3 plan"}, plan.Name)
	assert.NotEmpty(t, plan.Version)

	slash := got[markdown.PathKey("Work/a/b.md")]
	assert.Equal(t, []string{"Work", "a", "Slash a/b"}, slash.Name)
	assert.True(t, strings.HasPrefix(slash.File, "Slash a_002fb."), slash.File)

	inbox := got[markdown.PathKey("inbox.md")]
	assert.Empty(t, inbox.Dir)
	assert.Equal(t, []string{"inbox"}, inbox.Name)
}

func TestListMetadataDuplicateID(t *testing.T) {
	b, root := openVault(t)
	writeFile(t, root, "a.md", "---\nid: same\n---\n")
	writeFile(t, root, "b.md", "---\nid: same\n---\n")

	got, err := b.ListMetadata(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Contains(t, got, notes.Key("same"))
	assert.Contains(t, got, markdown.PathKey("b.md"))
}

func TestVersionChangesOnEdit(t *testing.T) {
	b, root := openVault(t)
	p := writeFile(t, root, "n.md", "one")

	first, err := b.ListMetadata(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(p, []byte("one two"), 0o644))
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(p, later, later))

	second, err := b.ListMetadata(context.Background())
	require.NoError(t, err)

	key := markdown.PathKey("n.md")
	assert.NotEqual(t, first[key].Version, second[key].Version)
}

func TestFetch(t *testing.T) {
	b, root := openVault(t)
	writeFile(t, root, "Trips/rome.md", "---\nid: rome\ntags: [travel]\ncreated: 2024-02-03\n---\n"+
		"# Rome\n\n![colosseum](img/colosseum.jpg)\n![again](./img/colosseum.jpg)\n"+
		"![shared](../shared/map.png)\n![missing](img/missing.png)\n![outside](../../etc/passwd)\n")
	writeFile(t, root, "Trips/img/colosseum.jpg", "jpg-bytes")
	writeFile(t, root, "shared/map.png", "png-bytes")

	listed, err := b.ListMetadata(context.Background())
	require.NoError(t, err)
	meta := listed["rome"]

	n, err := b.Fetch(context.Background(), "rome", meta, "../../Resources/rome/")
	require.NoError(t, err)

	assert.Equal(t, notes.Key("rome"), n.Key)
	assert.Equal(t, "Rome", n.Title)
	assert.Equal(t, meta.Version, n.Version)
	assert.Equal(t, time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC), n.Created)
	assert.Equal(t, map[string]string{"source": "Trips/rome.md", "tags": "travel"}, n.Header)

	body := string(n.Body)
	assert.Contains(t, body, `src="../../Resources/rome/colosseum.jpg"`)
	assert.Contains(t, body, `src="../../Resources/rome/map.png"`)
	assert.Contains(t, body, `src="img/missing.png"`)
	assert.Contains(t, body, `src="../../etc/passwd"`)

	require.Len(t, n.Resources, 2)
	var names []string
	for _, r := range n.Resources {
		names = append(names, r.Filename)
		if r.Filename == "map.png" {
			assert.Equal(t, "png-bytes", string(r.Body))
			assert.Equal(t, "image/png", r.MimeType)
		}
	}
	assert.ElementsMatch(t, []string{"colosseum.jpg", "map.png"}, names)
}

func TestFetchUnknown(t *testing.T) {
	b, _ := openVault(t)
	_, err := b.Fetch(context.Background(), "nope", notes.Metadata{}, "../Resources/nope/")
	assert.ErrorIs(t, err, ErrUnknownNote)
}

func TestFetchStoresIntoWorkingCopy(t *testing.T) {
	b, root := openVault(t)
	writeFile(t, root, "Home/list.md", "# Groceries\n\n- milk\n")

	listed, err := b.ListMetadata(context.Background())
	require.NoError(t, err)
	key := markdown.PathKey("Home/list.md")
	meta := listed[key]

	out := t.TempDir()
	wc := &notes.WorkingCopy{Root: out, MinDepth: 0, MaxDepth: MaxDepth, Location: time.UTC, Logger: zerolog.Nop()}
	n, err := b.Fetch(context.Background(), key, meta, notes.ResourcesURL(key, meta))
	require.NoError(t, err)
	require.NoError(t, wc.Save(n, meta))

	scanned, err := wc.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[notes.Key]notes.Metadata{key: meta}, scanned)
}
