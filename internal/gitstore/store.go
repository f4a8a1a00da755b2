// Package gitstore binds a git working tree to synctogit and makes every
// sync pass a transaction over it: local edits are stashed before the pass,
// the result is committed and optionally pushed afterwards.
package gitstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/synctogit/synctogit/internal/vcs"
	"github.com/synctogit/synctogit/internal/vcs/git"
)

const (
	// FilesPrefix is shared by every file synctogit keeps in the tree
	// outside of version control.
	FilesPrefix = ".synctogit"

	// LockFileName marks a running transaction.
	LockFileName = FilesPrefix + ".lockfile"

	// CacheDirName holds local state such as the run journal.
	CacheDirName = FilesPrefix + ".sync_cache"

	// IgnorePattern is ensured to be present in .gitignore.
	IgnorePattern = FilesPrefix + "*"

	gitignoreCommitMessage = "Update .gitignore (automated commit by synctogit)"

	defaultUserName  = "synctogit"
	defaultUserEmail = "none@none"
)

// Options describe the repository binding.
type Options struct {
	// Dir is the working tree. It must exist.
	Dir string

	// Branch must be checked out in an existing repository.
	Branch string

	// Remote is the expected URL of RemoteName. Empty skips the check.
	Remote     string
	RemoteName string

	// Push enables pushing after every successful commit.
	Push bool

	Logger zerolog.Logger

	// Now returns the time used in default commit messages.
	Now func() time.Time
}

// Repo is a working tree bound to synctogit. Create it with Open.
type Repo struct {
	vcs  vcs.Repository
	root string
	opts Options
}

// Open validates or initializes the repository in opts.Dir:
//   - an existing repository must be the top level of its own tree, have
//     opts.Branch checked out with at least one commit, and its remote must
//     match opts.Remote (a missing remote is added);
//   - an empty directory gets a new repository with an initial commit;
//   - any other directory is rejected.
//
// In all cases .gitignore is made to ignore synctogit's own files.
func Open(ctx context.Context, opts Options) (*Repo, error) {
	if opts.Branch == "" {
		opts.Branch = "master"
	}
	if opts.RemoteName == "" {
		opts.RemoteName = "origin"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	dir, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", opts.Dir, err)
	}
	st, err := os.Stat(dir)
	if err != nil || !st.IsDir() {
		return nil, fmt.Errorf("%w: %s (create it manually)", ErrRepoDirMissing, dir)
	}

	r := &Repo{opts: opts}

	if v, err := git.Version(ctx); err == nil {
		opts.Logger.Debug().Str("version", v).Msg("Using git")
	}

	g, err := git.Open(dir)
	switch {
	case err == nil:
		if !vcs.SamePath(g.RepoRoot(), dir) {
			return nil, fmt.Errorf("%w: %s belongs to %s", ErrNestedRepo, dir, g.RepoRoot())
		}
		r.vcs, r.root = g, g.RepoRoot()
		if err := r.checkExisting(ctx); err != nil {
			return nil, err
		}
	case errors.Is(err, vcs.ErrNotInVCS):
		entries, rerr := os.ReadDir(dir)
		if rerr != nil {
			return nil, fmt.Errorf("failed to read %s: %w", dir, rerr)
		}
		if len(entries) > 0 {
			return nil, fmt.Errorf("%w: %s", ErrNotARepo, dir)
		}
		g, err = git.Init(ctx, dir, opts.Branch)
		if err != nil {
			return nil, err
		}
		r.vcs, r.root = g, g.RepoRoot()
		opts.Logger.Info().Str("dir", dir).Str("branch", opts.Branch).Msg("Initialized a new git repository")
	default:
		return nil, err
	}

	if err := r.ensureIdentity(ctx); err != nil {
		return nil, err
	}
	if err := r.ensureRemote(ctx); err != nil {
		return nil, err
	}
	if err := r.ensureGitignore(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Root returns the top level directory of the working tree.
func (r *Repo) Root() string {
	return r.root
}

// CacheDir returns the ignored scratch directory, creating it if needed.
func (r *Repo) CacheDir() (string, error) {
	dir := filepath.Join(r.root, CacheDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache dir: %w", err)
	}
	return dir, nil
}

func (r *Repo) checkExisting(ctx context.Context) error {
	branch, err := r.vcs.CurrentBranch(ctx)
	if err != nil {
		return err
	}
	if branch != r.opts.Branch {
		return fmt.Errorf("%w: HEAD points to %q, expected %q", ErrBranchMismatch, branch, r.opts.Branch)
	}

	has, err := r.vcs.HasCommits(ctx)
	if err != nil {
		return err
	}
	if !has {
		return fmt.Errorf("%w: create an initial commit manually or delete the .git directory", ErrEmptyBranch)
	}
	return nil
}

// ensureIdentity sets a local committer identity when git has none, so
// commits work on machines without a global git config.
func (r *Repo) ensureIdentity(ctx context.Context) error {
	out, err := r.vcs.Exec(ctx, "config", "--get", "user.email")
	if err == nil && vcs.TrimOutput(out) != "" {
		return nil
	}
	if _, err := r.vcs.Exec(ctx, "config", "user.name", defaultUserName); err != nil {
		return err
	}
	_, err = r.vcs.Exec(ctx, "config", "user.email", defaultUserEmail)
	return err
}

func (r *Repo) ensureRemote(ctx context.Context) error {
	if r.opts.Remote == "" {
		return nil
	}

	url, err := r.vcs.RemoteURL(ctx, r.opts.RemoteName)
	if errors.Is(err, vcs.ErrNoRemote) {
		r.opts.Logger.Info().Str("remote", r.opts.RemoteName).Str("url", r.opts.Remote).Msg("Adding git remote")
		return r.vcs.AddRemote(ctx, r.opts.RemoteName, r.opts.Remote)
	}
	if err != nil {
		return err
	}
	if url != r.opts.Remote {
		return fmt.Errorf("%w: %s points to %q, expected %q", ErrRemoteMismatch, r.opts.RemoteName, url, r.opts.Remote)
	}
	return nil
}

func (r *Repo) ensureGitignore(ctx context.Context) error {
	path := filepath.Join(r.root, ".gitignore")

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to read .gitignore: %w", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimRight(line, " \t\r") == IgnorePattern {
			return nil
		}
	}

	// A fresh repository has nothing to protect yet.
	has, err := r.vcs.HasCommits(ctx)
	if err != nil {
		return err
	}

	stashed := false
	if has {
		changes, err := r.vcs.Status(ctx, ".gitignore")
		if err != nil {
			return err
		}
		if len(changes) > 0 {
			return fmt.Errorf("%w: commit or reset it manually", ErrDirtyGitignore)
		}

		dirty, err := r.vcs.IsDirty(ctx)
		if err != nil {
			return err
		}
		if dirty {
			if err := r.vcs.Stash(ctx, "synctogit: before .gitignore update"); err != nil {
				return err
			}
			stashed = true
		}
	}

	commitErr := r.commitGitignore(ctx, path, data)

	if stashed {
		if err := r.vcs.StashPop(ctx); err != nil {
			return errors.Join(commitErr, fmt.Errorf("failed to restore stashed changes: %w", err))
		}
	}
	return commitErr
}

func (r *Repo) commitGitignore(ctx context.Context, path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open .gitignore: %w", err)
	}
	prefix := ""
	if len(data) > 0 && !strings.HasSuffix(string(data), "\n") {
		prefix = "\n"
	}
	if _, err := f.WriteString(prefix + IgnorePattern + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("failed to update .gitignore: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	if _, err := r.vcs.Exec(ctx, "add", "--", ".gitignore"); err != nil {
		return err
	}
	return r.vcs.Commit(ctx, vcs.CommitOptions{
		Message: gitignoreCommitMessage,
		Paths:   []string{".gitignore"},
	})
}
