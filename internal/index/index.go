// Package index renders index.html, the table of contents of the synced
// tree. Notes are grouped by the directories of their display path.
package index

import (
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/synctogit/synctogit/internal/notes"
)

// FileName is the index file at the repository root.
const FileName = "index.html"

//go:embed templates/index.html.tmpl
var indexTemplateText string

var indexTemplate = template.Must(template.New(FileName).Parse(indexTemplateText))

// Link points at a single stored document.
type Link struct {
	// Path holds the encoded path below Notes/, file name included.
	Path []string
	// Name is the display path: directory names followed by the title.
	Name []string
}

// LinkFor builds the link of a note from its metadata.
func LinkFor(meta notes.Metadata) Link {
	return Link{
		Path: append(slices.Clone(meta.Dir), meta.File),
		Name: slices.Clone(meta.Name),
	}
}

// Item is a node of the rendered tree. Directories have Items, notes a URL.
type Item struct {
	Name  string
	URL   template.URL
	IsDir bool
	Items []*Item
}

// Tree groups links by the directory part of their display names. Links
// are ordered by display name first, so the output is deterministic.
func Tree(links []Link) []*Item {
	sorted := slices.Clone(links)
	slices.SortStableFunc(sorted, func(a, b Link) int {
		return slices.Compare(a.Name, b.Name)
	})

	var root []*Item
	dirs := make(map[string]*Item)
	for _, l := range sorted {
		if len(l.Name) == 0 {
			continue
		}

		var parent *Item
		for i := 1; i < len(l.Name); i++ {
			id := strings.Join(l.Name[:i], "\x00")
			dir, ok := dirs[id]
			if !ok {
				dir = &Item{Name: l.Name[i-1], IsDir: true}
				dirs[id] = dir
				if parent == nil {
					root = append(root, dir)
				} else {
					parent.Items = append(parent.Items, dir)
				}
			}
			parent = dir
		}

		note := &Item{Name: l.Name[len(l.Name)-1], URL: linkURL(l.Path)}
		if parent == nil {
			root = append(root, note)
		} else {
			parent.Items = append(parent.Items, note)
		}
	}
	return root
}

func linkURL(path []string) template.URL {
	parts := make([]string, 0, len(path)+1)
	parts = append(parts, url.PathEscape(notes.NotesDirName))
	for _, p := range path {
		parts = append(parts, url.PathEscape(p))
	}
	return template.URL("./" + strings.Join(parts, "/"))
}

// Render writes the index document for links to w.
func Render(w io.Writer, links []Link) error {
	if err := indexTemplate.Execute(w, Tree(links)); err != nil {
		return fmt.Errorf("failed to render index: %w", err)
	}
	return nil
}

// WriteFile renders the index into root/index.html.
func WriteFile(root string, links []Link) error {
	f, err := os.Create(filepath.Join(root, FileName))
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if err := Render(f, links); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
