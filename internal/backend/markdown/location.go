package markdown

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"strings"

	"github.com/synctogit/synctogit/internal/namecodec"
	"github.com/synctogit/synctogit/internal/notes"
)

// PathKey derives a note key from a slash-separated path.
func PathKey(p string) notes.Key {
	sum := sha256.Sum256([]byte(p))
	return notes.Key(hex.EncodeToString(sum[:])[:16])
}

// Key returns the front matter id when usable, the path key otherwise.
func (d *Document) Key(p string) notes.Key {
	if id, ok := d.ID(); ok {
		return notes.Key(id)
	}
	return PathKey(p)
}

// TitleFor returns the document title, falling back to the file stem of p.
func (d *Document) TitleFor(p string) string {
	if d.Title != "" {
		return d.Title
	}
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}

// Dirs returns the folders of a slash-separated file path.
func Dirs(p string) []string {
	dir := path.Dir(p)
	if dir == "." || dir == "/" {
		return nil
	}
	return strings.Split(dir, "/")
}

// Metadata builds the stored location of a note. The key is part of the
// file name so notes sharing a title never collide.
func Metadata(key notes.Key, dirs []string, title, version string) (notes.Metadata, error) {
	var encDirs []string
	if len(dirs) > 0 {
		var err error
		if encDirs, err = namecodec.EncodePath(dirs); err != nil {
			return notes.Metadata{}, err
		}
	}
	suffix := "." + string(key) + notes.DocumentExt
	file, err := namecodec.Fit(title, namecodec.MaxLen-len(suffix))
	if err != nil {
		return notes.Metadata{}, fmt.Errorf("invalid title %q: %w", title, err)
	}
	return notes.Metadata{
		Dir:     encDirs,
		File:    file + suffix,
		Name:    append(append([]string(nil), dirs...), title),
		Version: version,
	}, nil
}
