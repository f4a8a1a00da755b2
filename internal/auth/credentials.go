// Package auth stores backend credentials and acquires new ones
// interactively when they are missing or expired.
package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/gofrs/flock"
)

const lockTimeout = 3 * time.Second

// ErrNoCredentials is returned by Load when no token is stored.
var ErrNoCredentials = errors.New("no stored credentials")

// credentialsFile is the on-disk format:
//
//	[tokens]
//	obsidian = "..."
type credentialsFile struct {
	Tokens map[string]string `toml:"tokens"`
}

// Store keeps one token per backend in a TOML file readable only by the
// owner. Writes are serialized across processes with a lock file.
type Store struct {
	Path string
}

// NewStore returns a store backed by path.
func NewStore(path string) *Store {
	return &Store{Path: path}
}

// Load returns the token stored for backend.
func (s *Store) Load(backend string) (string, error) {
	cf, err := s.read()
	if err != nil {
		return "", err
	}
	token := cf.Tokens[backend]
	if token == "" {
		return "", fmt.Errorf("%w for %s", ErrNoCredentials, backend)
	}
	return token, nil
}

// Save stores the token of backend, keeping the other tokens.
func (s *Store) Save(ctx context.Context, backend, token string) error {
	return s.update(ctx, func(cf *credentialsFile) {
		cf.Tokens[backend] = token
	})
}

// Remove forgets the token of backend. Removing a missing token is not an
// error.
func (s *Store) Remove(ctx context.Context, backend string) error {
	return s.update(ctx, func(cf *credentialsFile) {
		delete(cf.Tokens, backend)
	})
}

func (s *Store) read() (*credentialsFile, error) {
	cf := &credentialsFile{Tokens: make(map[string]string)}
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return cf, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}
	if _, err := toml.Decode(string(data), cf); err != nil {
		return nil, fmt.Errorf("failed to parse credentials %s: %w", s.Path, err)
	}
	if cf.Tokens == nil {
		cf.Tokens = make(map[string]string)
	}
	return cf, nil
}

func (s *Store) update(ctx context.Context, fn func(cf *credentialsFile)) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}

	lock := flock.New(s.Path + ".lock")
	lctx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()
	locked, err := lock.TryLockContext(lctx, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("failed to lock credentials: %w", err)
	}
	if !locked {
		return fmt.Errorf("could not lock credentials file %s", s.Path)
	}
	defer func() { _ = lock.Unlock() }()

	cf, err := s.read()
	if err != nil {
		return err
	}
	fn(cf)

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cf); err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace credentials: %w", err)
	}
	return nil
}
