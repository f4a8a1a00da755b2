// Package service defines the contract between the sync engine and the
// remote note stores, and the registry of available backends.
package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/synctogit/synctogit/internal/config"
	"github.com/synctogit/synctogit/internal/notes"
)

// Backend lists and fetches notes of one remote store. Implementations must
// be safe for concurrent use by the sync workers.
type Backend interface {
	// ListMetadata returns the current metadata of every remote note.
	ListMetadata(ctx context.Context) (map[notes.Key]notes.Metadata, error)

	// Fetch returns the full note. resourcesURL is the relative URL the
	// document should use to refer to its resources.
	Fetch(ctx context.Context, key notes.Key, meta notes.Metadata, resourcesURL string) (*notes.Note, error)
}

// Options are passed to a backend constructor.
type Options struct {
	Config *config.Config

	// Token is the stored credential, empty for backends without auth.
	Token string

	Logger zerolog.Logger
}
