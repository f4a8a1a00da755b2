// Package notes holds the backend-agnostic note model and the on-disk
// working copy that mirrors a remote note store.
//
// The working copy layout is:
//
//	Notes/<Dir...>/<File>      stored documents (header + body)
//	Resources/<Key>/<filename> attachments of a note
//	index.html                 navigable listing of all notes
package notes

import (
	"errors"
	"path/filepath"
	"regexp"
	"slices"
	"time"
)

// Key is a backend-issued identifier of a note. It must be safe to use as a
// directory name and stays stable across renames.
type Key string

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ErrUnsafeKey is returned when a key cannot name a resource directory.
var ErrUnsafeKey = errors.New("unsafe note key")

// Valid reports whether k is a single path segment safe to use as a
// directory name.
func (k Key) Valid() bool {
	return keyPattern.MatchString(string(k))
}

// Metadata describes where a note lives and which version of it is stored.
type Metadata struct {
	// Dir holds the encoded directory segments below Notes/.
	Dir []string

	// File is the encoded document file name.
	File string

	// Name is the human readable display path: directory names plus title.
	Name []string

	// Version is the backend's version marker (sequence number or timestamp).
	Version string
}

// Path returns the document path relative to the Notes directory.
func (m Metadata) Path() string {
	return filepath.Join(append(slices.Clone(m.Dir), m.File)...)
}

// Moved reports whether the note changed its display location.
func (m Metadata) Moved(other Metadata) bool {
	return !slices.Equal(m.Name, other.Name)
}

// Resource is a binary attachment of a note.
type Resource struct {
	Filename string
	Body     []byte
	MimeType string
}

// Note is a fully fetched note ready to be stored.
type Note struct {
	Key     Key
	Title   string
	Version string
	Created time.Time
	Updated time.Time

	// Body is the rendered document.
	Body []byte

	// Resources are keyed by a content hash or a backend-issued id.
	Resources map[string]Resource

	// Header carries extra backend-specific header fields.
	Header map[string]string
}
