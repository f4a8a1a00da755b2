package gitstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/synctogit/synctogit/internal/vcs"
)

const commitTimeFormat = "2006-01-02 15:04:05"

// Transaction wraps a single sync pass. Local edits found at Begin are
// stashed, so the pass always starts from the last committed state.
type Transaction struct {
	repo    *Repo
	lock    string
	message string
	ended   bool
}

// Begin starts a transaction. It fails with ErrSimultaneousTransaction while
// another transaction holds the lock file. The lock is advisory: it is a
// plain file in the working tree.
func (r *Repo) Begin(ctx context.Context) (*Transaction, error) {
	lock := filepath.Join(r.root, LockFileName)
	if _, err := os.Stat(lock); err == nil {
		return nil, fmt.Errorf("%w: remove %s if no sync is running", ErrSimultaneousTransaction, lock)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to check lock file: %w", err)
	}

	if err := r.stashIfDirty(ctx, "synctogit: local changes before sync"); err != nil {
		return nil, err
	}

	if err := os.WriteFile(lock, []byte("1"), 0o644); err != nil {
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	return &Transaction{repo: r, lock: lock}, nil
}

func (r *Repo) stashIfDirty(ctx context.Context, message string) error {
	dirty, err := r.vcs.IsDirty(ctx)
	if err != nil {
		return err
	}
	if !dirty {
		return nil
	}
	r.opts.Logger.Info().Msg("Stashing uncommitted changes")
	return r.vcs.Stash(ctx, message)
}

// Root returns the working tree directory.
func (t *Transaction) Root() string {
	return t.repo.root
}

// SetMessage overrides the commit message used by End.
func (t *Transaction) SetMessage(msg string) {
	t.message = msg
}

// End finishes the transaction. With a nil passErr the changes are
// committed and, if enabled, pushed. Otherwise the partial changes are
// stashed and passErr is returned unchanged. The lock file is removed
// before anything else in both cases.
func (t *Transaction) End(ctx context.Context, passErr error) error {
	if t.ended {
		return errors.New("transaction already ended")
	}
	t.ended = true

	log := t.repo.opts.Logger
	// Released before commit and push.
	if err := os.Remove(t.lock); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Str("path", t.lock).Msg("Unable to remove lock file")
	}

	if passErr != nil {
		log.Warn().Err(passErr).Msg("Sync failed, stashing partial changes")
		if err := t.repo.stashIfDirty(ctx, "synctogit: partial changes of a failed sync"); err != nil {
			log.Error().Err(err).Msg("Unable to stash partial changes")
		}
		return passErr
	}

	dirty, err := t.repo.vcs.IsDirty(ctx)
	if err != nil {
		return &CommitError{Err: err}
	}
	if dirty {
		msg := t.message
		if msg == "" {
			msg = "Sync at " + t.repo.opts.Now().Format(commitTimeFormat)
		}
		if err := t.repo.vcs.AddAll(ctx); err != nil {
			return &CommitError{Err: err}
		}
		if err := t.repo.vcs.Commit(ctx, vcs.CommitOptions{Message: msg}); err != nil {
			return &CommitError{Err: err}
		}
		log.Info().Str("message", msg).Msg("Committed changes")
	}

	if !t.repo.opts.Push {
		return nil
	}
	err = t.repo.vcs.Push(ctx, vcs.PushOptions{
		Remote: t.repo.opts.RemoteName,
		Ref:    t.repo.opts.Branch,
	})
	if err != nil {
		return &PushError{
			Remote:   t.repo.opts.RemoteName,
			Branch:   t.repo.opts.Branch,
			Rejected: errors.Is(err, vcs.ErrPushRejected),
			Err:      err,
		}
	}
	log.Info().Str("remote", t.repo.opts.RemoteName).Msg("Pushed changes")
	return nil
}

// RemoveEmptyAncestors removes path and each of its parents while they are
// empty, stopping at the repository root. Non-empty directories are kept.
func (t *Transaction) RemoveEmptyAncestors(path string) error {
	root := filepath.Clean(t.repo.root)
	path = filepath.Clean(path)
	for path != root {
		if !vcs.IsSubPath(root, path) {
			return fmt.Errorf("%w: %s", ErrOutsideRepo, path)
		}
		// Failure means the directory is not empty or already gone.
		_ = os.Remove(path)
		path = filepath.Dir(path)
	}
	return nil
}
