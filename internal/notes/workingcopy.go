package notes

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/synctogit/synctogit/internal/namecodec"
	"github.com/synctogit/synctogit/internal/vcs"
)

const (
	NotesDirName     = "Notes"
	ResourcesDirName = "Resources"

	// DocumentExt is the extension of stored documents. Other files under
	// Notes/ are left alone.
	DocumentExt = ".html"

	defaultScanWorkers = 20
)

// DirPruner removes directories left empty after a document was deleted.
// It is implemented by the git transaction which owns the tree.
type DirPruner interface {
	RemoveEmptyAncestors(path string) error
}

// WorkingCopy is the on-disk mirror of a note store. Save may be called
// concurrently for distinct keys.
type WorkingCopy struct {
	Root string

	// MinDepth and MaxDepth bound the number of directories a document may
	// be nested in below Notes/. Documents outside the bounds are corrupted.
	MinDepth int
	MaxDepth int

	// ScanWorkers limits concurrent header parsing during Scan.
	ScanWorkers int

	// Location is used to render timestamps in document headers.
	Location *time.Location

	Pruner DirPruner
	Logger zerolog.Logger
}

// NotesDir returns the directory holding the stored documents.
func (wc *WorkingCopy) NotesDir() string {
	return filepath.Join(wc.Root, NotesDirName)
}

// ResourcesDir returns the directory holding note attachments.
func (wc *WorkingCopy) ResourcesDir() string {
	return filepath.Join(wc.Root, ResourcesDirName)
}

// ResourcesURL returns the URL of the note's resource directory relative to
// its document.
func ResourcesURL(key Key, meta Metadata) string {
	ups := strings.Repeat("../", len(meta.Dir)+1)
	return ups + ResourcesDirName + "/" + url.PathEscape(string(key)) + "/"
}

// DocumentPath returns the absolute path of the note's document.
func (wc *WorkingCopy) DocumentPath(meta Metadata) string {
	return filepath.Join(wc.NotesDir(), meta.Path())
}

type scanned struct {
	path string
	key  Key
	meta Metadata
	err  error
}

// Scan reconstructs metadata from the stored document headers.
//
// Corrupted documents are deleted. Documents sharing a key are all deleted
// since their identity is ambiguous. Resource directories of notes that no
// longer exist are removed.
func (wc *WorkingCopy) Scan(ctx context.Context) (map[Key]Metadata, error) {
	var paths []string
	err := filepath.WalkDir(wc.NotesDir(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == wc.NotesDir() {
				return filepath.SkipDir
			}
			return err
		}
		if d.Type().IsRegular() && filepath.Ext(path) == DocumentExt {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", wc.NotesDir(), err)
	}

	results := make([]scanned, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(wc.scanWorkers())
	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			key, meta, err := wc.readMetadata(p)
			results[i] = scanned{path: p, key: key, meta: meta, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byKey := make(map[Key][]scanned)
	for _, r := range results {
		if r.err != nil {
			if !errors.Is(r.err, ErrCorruptedNote) {
				return nil, r.err
			}
			wc.Logger.Warn().Err(r.err).Str("path", r.path).Msg("Removing corrupted note")
			wc.removeDocument(r.path)
			continue
		}
		byKey[r.key] = append(byKey[r.key], r)
	}

	out := make(map[Key]Metadata, len(byKey))
	for key, rs := range byKey {
		if len(rs) == 1 {
			out[key] = rs[0].meta
			continue
		}
		for _, r := range rs {
			wc.Logger.Warn().Str("key", string(key)).Str("path", r.path).
				Int("copies", len(rs)).Msg("Removing note with a duplicate key")
			wc.removeDocument(r.path)
		}
	}

	if err := wc.removeOrphanResources(out); err != nil {
		return nil, err
	}
	return out, nil
}

func (wc *WorkingCopy) scanWorkers() int {
	if wc.ScanWorkers > 0 {
		return wc.ScanWorkers
	}
	return defaultScanWorkers
}

func (wc *WorkingCopy) readMetadata(path string) (Key, Metadata, error) {
	rel, err := filepath.Rel(wc.NotesDir(), path)
	if err != nil {
		return "", Metadata{}, err
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	dir, file := parts[:len(parts)-1], parts[len(parts)-1]

	if len(dir) < wc.MinDepth || len(dir) > wc.MaxDepth {
		return "", Metadata{}, &CorruptedNoteError{
			Path:   path,
			Reason: fmt.Sprintf("directory depth %d is outside of %d..%d", len(dir), wc.MinDepth, wc.MaxDepth),
		}
	}

	vars, err := ReadHeaderFile(path)
	if err != nil {
		return "", Metadata{}, err
	}
	for _, k := range []string{HeaderID, HeaderVersion, HeaderTitle} {
		if vars[k] == "" {
			return "", Metadata{}, &CorruptedNoteError{Path: path, Reason: fmt.Sprintf("header %q is missing", k)}
		}
	}

	key := Key(vars[HeaderID])
	if !key.Valid() {
		return "", Metadata{}, &CorruptedNoteError{Path: path, Reason: fmt.Sprintf("unsafe id %q", key)}
	}

	name, err := namecodec.DecodePath(dir)
	if err != nil {
		return "", Metadata{}, &CorruptedNoteError{Path: path, Reason: err.Error()}
	}

	return key, Metadata{
		Dir:     dir,
		File:    file,
		Name:    append(name, vars[HeaderTitle]),
		Version: vars[HeaderVersion],
	}, nil
}

func (wc *WorkingCopy) removeOrphanResources(known map[Key]Metadata) error {
	entries, err := os.ReadDir(wc.ResourcesDir())
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to list resources: %w", err)
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, ok := known[Key(e.Name())]; ok {
			continue
		}
		wc.Logger.Warn().Str("key", e.Name()).Msg("Removing resources of a non-existing note")
		if err := os.RemoveAll(filepath.Join(wc.ResourcesDir(), e.Name())); err != nil {
			return fmt.Errorf("failed to remove resources of %s: %w", e.Name(), err)
		}
	}
	return nil
}

// resourceDir returns the resource directory of key, which must be strictly
// below ResourcesDir.
func (wc *WorkingCopy) resourceDir(key Key) (string, error) {
	dir := filepath.Join(wc.ResourcesDir(), string(key))
	if !key.Valid() || dir == wc.ResourcesDir() || !vcs.IsSubPath(wc.ResourcesDir(), dir) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeKey, key)
	}
	return dir, nil
}

// Save writes the note document and replaces its resource directory.
func (wc *WorkingCopy) Save(note *Note, meta Metadata) error {
	resDir, err := wc.resourceDir(note.Key)
	if err != nil {
		return err
	}

	path := wc.DocumentPath(meta)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create note directory: %w", err)
	}

	var buf bytes.Buffer
	if err := WriteDocument(&buf, note.HeaderFields(wc.Location), note.Body); err != nil {
		return fmt.Errorf("failed to render note %s: %w", note.Key, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write note %s: %w", note.Key, err)
	}

	if err := os.RemoveAll(resDir); err != nil {
		return fmt.Errorf("failed to clear resources of %s: %w", note.Key, err)
	}
	if len(note.Resources) == 0 {
		return nil
	}
	if err := os.MkdirAll(resDir, 0o755); err != nil {
		return fmt.Errorf("failed to create resources dir: %w", err)
	}
	for _, r := range note.Resources {
		name := filepath.Base(r.Filename)
		if name == "." || name == ".." || name == string(filepath.Separator) {
			return fmt.Errorf("invalid resource file name %q", r.Filename)
		}
		if err := os.WriteFile(filepath.Join(resDir, name), r.Body, 0o644); err != nil {
			return fmt.Errorf("failed to write resource %s: %w", name, err)
		}
	}
	return nil
}

// Delete removes the documents and resources of the given notes.
func (wc *WorkingCopy) Delete(deleted map[Key]Metadata) error {
	for key, meta := range deleted {
		resDir, err := wc.resourceDir(key)
		if err != nil {
			return err
		}
		wc.removeDocument(wc.DocumentPath(meta))
		if err := os.RemoveAll(resDir); err != nil {
			return fmt.Errorf("failed to remove resources of %s: %w", key, err)
		}
	}
	return nil
}

func (wc *WorkingCopy) removeDocument(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		wc.Logger.Warn().Err(err).Str("path", path).Msg("Unable to delete file")
	}
	if wc.Pruner == nil {
		return
	}
	if err := wc.Pruner.RemoveEmptyAncestors(filepath.Dir(path)); err != nil {
		wc.Logger.Warn().Err(err).Str("path", path).Msg("Unable to prune empty directories")
	}
}
