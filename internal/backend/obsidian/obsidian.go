// Package obsidian implements a backend over the Obsidian Local REST API
// plugin. Every Markdown file below the configured folder is a note.
package obsidian

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/synctogit/synctogit/internal/backend/markdown"
	"github.com/synctogit/synctogit/internal/namecodec"
	"github.com/synctogit/synctogit/internal/notes"
	"github.com/synctogit/synctogit/internal/service"
)

const (
	Name = "obsidian"

	// MaxDepth is the deepest folder nesting synced from the vault.
	MaxDepth = 8

	listWorkers = 8
)

// ErrUnknownNote is returned by Fetch for keys missing from the last listing.
var ErrUnknownNote = errors.New("note is not in the vault listing")

func init() {
	service.Register(service.Descriptor{
		Name:        Name,
		MinDepth:    0,
		MaxDepth:    MaxDepth,
		NeedsToken:  true,
		TokenPrompt: "Copy the API key from the Local REST API plugin settings in Obsidian.",
		New:         New,
	})
}

// Backend lists and renders notes served by the REST API.
type Backend struct {
	client *Client
	folder string
	logger zerolog.Logger

	mu    sync.RWMutex
	paths map[notes.Key]string
}

// New creates the backend from the obsidian.* settings.
func New(opts service.Options) (service.Backend, error) {
	if opts.Token == "" {
		return nil, fmt.Errorf("%w: API key is missing", service.ErrAuth)
	}
	cfg := opts.Config.Obsidian
	clientOpts := []Option{WithTimeout(cfg.Timeout)}
	if cfg.InsecureTLS {
		clientOpts = append(clientOpts, WithInsecureTLS())
	}
	client, err := NewClient(cfg.URL, opts.Token, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("invalid obsidian url: %w", err)
	}
	return NewBackend(client, cfg.Folder, opts.Logger), nil
}

// NewBackend creates a backend syncing the notes below folder.
func NewBackend(client *Client, folder string, logger zerolog.Logger) *Backend {
	return &Backend{
		client: client,
		folder: strings.Trim(folder, "/"),
		logger: logger.With().Str("backend", Name).Logger(),
		paths:  make(map[notes.Key]string),
	}
}

func version(st FileStat) string {
	return fmt.Sprintf("%d/%d", int64(st.Mtime), int64(st.Size))
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// walk returns the vault paths of every Markdown file below dir.
func (b *Backend) walk(ctx context.Context, dir string, depth int) ([]string, error) {
	entries, err := b.client.List(ctx, dir)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, e := range entries {
		full := e
		if dir != "" {
			full = dir + "/" + e
		}
		if strings.HasSuffix(e, "/") {
			name := strings.TrimSuffix(e, "/")
			if hidden(name) {
				continue
			}
			if depth >= MaxDepth {
				b.logger.Warn().Str("path", full).Msgf("Skipping folder nested deeper than %d", MaxDepth)
				continue
			}
			sub, err := b.walk(ctx, strings.TrimSuffix(full, "/"), depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
			continue
		}
		if hidden(path.Base(e)) || !strings.EqualFold(path.Ext(e), markdown.Extension) {
			continue
		}
		out = append(out, full)
	}
	return out, nil
}

// relative strips the configured folder from a vault path.
func (b *Backend) relative(p string) string {
	if b.folder == "" {
		return p
	}
	return strings.TrimPrefix(p, b.folder+"/")
}

type listed struct {
	path    string
	key     notes.Key
	dirs    []string
	title   string
	version string
}

// ListMetadata lists the vault recursively and reads every note's metadata.
func (b *Backend) ListMetadata(ctx context.Context) (map[notes.Key]notes.Metadata, error) {
	files, err := b.walk(ctx, b.folder, 0)
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	results := make([]*listed, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listWorkers)
	for i, p := range files {
		g.Go(func() error {
			n, err := b.client.GetNote(gctx, p)
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			results[i] = describe(p, b.relative(p), n)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[notes.Key]notes.Metadata, len(results))
	paths := make(map[notes.Key]string, len(results))
	for _, l := range results {
		if l == nil {
			continue
		}
		key := l.key
		if other, dup := paths[key]; dup {
			b.logger.Warn().Str("id", string(key)).Str("path", l.path).Str("other", other).
				Msg("Duplicate note id, falling back to a path based key")
			key = markdown.PathKey(l.path)
		}
		meta, err := markdown.Metadata(key, l.dirs, l.title, l.version)
		if err != nil {
			b.logger.Warn().Err(err).Str("path", l.path).Msg("Skipping note")
			continue
		}
		out[key] = meta
		paths[key] = l.path
	}

	b.mu.Lock()
	b.paths = paths
	b.mu.Unlock()
	return out, nil
}

func describe(p, rel string, n *Note) *listed {
	doc := markdown.Parse([]byte(n.Content))
	return &listed{
		path:    p,
		key:     doc.Key(p),
		dirs:    markdown.Dirs(rel),
		title:   doc.TitleFor(rel),
		version: version(n.Stat),
	}
}

// Fetch downloads and renders one note with its embedded images.
func (b *Backend) Fetch(ctx context.Context, key notes.Key, meta notes.Metadata, resourcesURL string) (*notes.Note, error) {
	b.mu.RLock()
	p, ok := b.paths[key]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNote, key)
	}

	n, err := b.client.GetNote(ctx, p)
	if err != nil {
		return nil, err
	}
	doc := markdown.Parse([]byte(n.Content))
	t := doc.TitleFor(b.relative(p))

	res := &resources{
		ctx:       ctx,
		client:    b.client,
		dir:       path.Dir(p),
		baseURL:   resourcesURL,
		logger:    b.logger,
		collected: make(map[string]notes.Resource),
		names:     make(map[string]string),
	}
	body, err := markdown.Render(t, doc.Body, res.rewrite)
	if err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", p, err)
	}
	if res.err != nil {
		return nil, res.err
	}

	header := map[string]string{"source": p}
	tags := doc.Tags
	if len(n.Tags) > 0 {
		tags = n.Tags
	}
	if len(tags) > 0 {
		header["tags"] = strings.Join(tags, ", ")
	}

	note := &notes.Note{
		Key:       key,
		Title:     t,
		Version:   version(n.Stat),
		Body:      body,
		Resources: res.collected,
		Header:    header,
	}
	if n.Stat.Ctime > 0 {
		note.Created = time.UnixMilli(int64(n.Stat.Ctime))
	}
	if n.Stat.Mtime > 0 {
		note.Updated = time.UnixMilli(int64(n.Stat.Mtime))
	}
	return note, nil
}

// resources downloads images referenced by a note.
type resources struct {
	ctx       context.Context
	client    *Client
	dir       string
	baseURL   string
	logger    zerolog.Logger
	collected map[string]notes.Resource
	names     map[string]string
	err       error
}

func (r *resources) rewrite(dest string) string {
	if r.err != nil {
		return ""
	}
	p, ok := markdown.LocalImage(dest)
	if !ok {
		return ""
	}
	full := path.Clean(path.Join(r.dir, p))
	if full == ".." || strings.HasPrefix(full, "../") {
		return ""
	}
	if name, ok := r.names[full]; ok {
		return r.baseURL + url.PathEscape(name)
	}

	body, mediaType, err := r.client.GetFile(r.ctx, full)
	if errors.Is(err, ErrNotFound) {
		r.logger.Debug().Str("image", full).Msg("Image not found")
		return ""
	}
	if err != nil {
		r.err = err
		return ""
	}
	sum := sha256.Sum256(body)
	hash := hex.EncodeToString(sum[:])

	if res, ok := r.collected[hash]; ok {
		r.names[full] = res.Filename
		return r.baseURL + url.PathEscape(res.Filename)
	}

	name := path.Base(full)
	if path.Ext(name) == "" && mediaType != "" {
		name += "." + namecodec.ExtFromMimeType(mediaType)
	}
	for _, res := range r.collected {
		if res.Filename == name {
			name = hash[:8] + "-" + name
			break
		}
	}
	r.names[full] = name
	r.collected[hash] = notes.Resource{
		Filename: name,
		Body:     body,
		MimeType: mediaType,
	}
	return r.baseURL + url.PathEscape(name)
}
