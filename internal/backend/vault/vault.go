// Package vault implements a backend over a local directory of Markdown
// files. Folders become display directories and every .md file becomes a
// note. Relative images are copied as note resources.
package vault

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/synctogit/synctogit/internal/backend/markdown"
	"github.com/synctogit/synctogit/internal/notes"
	"github.com/synctogit/synctogit/internal/service"
)

const (
	Name = "vault"

	// MaxDepth is the deepest folder nesting synced from the vault.
	MaxDepth = 8
)

// ErrUnknownNote is returned by Fetch for keys missing from the last listing.
var ErrUnknownNote = errors.New("note is not in the vault listing")

func init() {
	service.Register(service.Descriptor{
		Name:     Name,
		MinDepth: 0,
		MaxDepth: MaxDepth,
		New:      New,
	})
}

// Backend lists and renders the notes of a vault directory.
type Backend struct {
	root   string
	logger zerolog.Logger

	mu    sync.RWMutex
	paths map[notes.Key]string
}

// New creates the backend from the vault.path setting.
func New(opts service.Options) (service.Backend, error) {
	return Open(opts.Config.Vault.Path, opts.Logger)
}

// Open creates a backend over the vault at root.
func Open(root string, logger zerolog.Logger) (*Backend, error) {
	if root == "" {
		return nil, errors.New("vault path is not configured")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to open vault: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("vault %s is not a directory", abs)
	}
	return &Backend{
		root:   abs,
		logger: logger.With().Str("backend", Name).Logger(),
		paths:  make(map[notes.Key]string),
	}, nil
}

func version(info fs.FileInfo) string {
	return fmt.Sprintf("%s/%d", info.ModTime().UTC().Format("2006-01-02T15:04:05.000000000Z"), info.Size())
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// ListMetadata walks the vault and describes every Markdown note.
func (b *Backend) ListMetadata(ctx context.Context) (map[notes.Key]notes.Metadata, error) {
	out := make(map[notes.Key]notes.Metadata)
	paths := make(map[notes.Key]string)

	err := filepath.WalkDir(b.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if p != b.root && hidden(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if hidden(d.Name()) || !d.Type().IsRegular() || !strings.EqualFold(filepath.Ext(p), markdown.Extension) {
			return nil
		}

		rel, err := filepath.Rel(b.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		key, meta, err := b.describe(p, rel, paths)
		if err != nil {
			b.logger.Warn().Err(err).Str("path", rel).Msg("Skipping note")
			return nil
		}
		out[key] = meta
		paths[key] = rel
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk vault %s: %w", b.root, err)
	}

	b.mu.Lock()
	b.paths = paths
	b.mu.Unlock()
	return out, nil
}

func (b *Backend) describe(p, rel string, taken map[notes.Key]string) (notes.Key, notes.Metadata, error) {
	dirs := markdown.Dirs(rel)
	if len(dirs) > MaxDepth {
		return "", notes.Metadata{}, fmt.Errorf("nested deeper than %d folders", MaxDepth)
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return "", notes.Metadata{}, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return "", notes.Metadata{}, err
	}
	doc := markdown.Parse(data)

	key := doc.Key(rel)
	if other, dup := taken[key]; dup {
		b.logger.Warn().Str("id", string(key)).Str("path", rel).Str("other", other).
			Msg("Duplicate note id, falling back to a path based key")
		key = markdown.PathKey(rel)
	}

	meta, err := markdown.Metadata(key, dirs, doc.TitleFor(rel), version(info))
	if err != nil {
		return "", notes.Metadata{}, err
	}
	return key, meta, nil
}

// Fetch reads and renders one note. The returned version reflects the file
// as it was read, which may be newer than the listed one.
func (b *Backend) Fetch(ctx context.Context, key notes.Key, meta notes.Metadata, resourcesURL string) (*notes.Note, error) {
	b.mu.RLock()
	rel, ok := b.paths[key]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNote, key)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := filepath.Join(b.root, filepath.FromSlash(rel))
	info, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", rel, err)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", rel, err)
	}
	doc := markdown.Parse(data)
	t := doc.TitleFor(rel)

	res := newResources(b.root, path.Dir(rel), resourcesURL, b.logger)
	body, err := markdown.Render(t, doc.Body, res.rewrite)
	if err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", rel, err)
	}

	header := map[string]string{"source": rel}
	if len(doc.Tags) > 0 {
		header["tags"] = strings.Join(doc.Tags, ", ")
	}

	return &notes.Note{
		Key:       key,
		Title:     t,
		Version:   version(info),
		Created:   doc.Time("created"),
		Updated:   info.ModTime(),
		Body:      body,
		Resources: res.collected,
		Header:    header,
	}, nil
}

// resources copies images referenced by a note into its resource set.
type resources struct {
	root      string
	dir       string
	baseURL   string
	logger    zerolog.Logger
	collected map[string]notes.Resource
	names     map[string]string
}

func newResources(root, dir, baseURL string, logger zerolog.Logger) *resources {
	return &resources{
		root:      root,
		dir:       dir,
		baseURL:   baseURL,
		logger:    logger,
		collected: make(map[string]notes.Resource),
		names:     make(map[string]string),
	}
}

func (r *resources) rewrite(dest string) string {
	p, ok := markdown.LocalImage(dest)
	if !ok {
		return ""
	}
	rel := path.Clean(path.Join(r.dir, p))
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return ""
	}
	if name, ok := r.names[rel]; ok {
		return r.baseURL + url.PathEscape(name)
	}

	body, err := os.ReadFile(filepath.Join(r.root, filepath.FromSlash(rel)))
	if err != nil {
		r.logger.Debug().Err(err).Str("image", rel).Msg("Image not found")
		return ""
	}
	sum := sha256.Sum256(body)
	hash := hex.EncodeToString(sum[:])

	if res, ok := r.collected[hash]; ok {
		r.names[rel] = res.Filename
		return r.baseURL + url.PathEscape(res.Filename)
	}

	name := path.Base(rel)
	if r.used(name) {
		name = hash[:8] + "-" + name
	}
	r.names[rel] = name
	r.collected[hash] = notes.Resource{
		Filename: name,
		Body:     body,
		MimeType: mime.TypeByExtension(path.Ext(name)),
	}
	return r.baseURL + url.PathEscape(name)
}

func (r *resources) used(name string) bool {
	for _, res := range r.collected {
		if res.Filename == name {
			return true
		}
	}
	return false
}
