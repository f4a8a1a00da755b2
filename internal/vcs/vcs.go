// Package vcs describes the version control operations synctogit relies on
// to make a sync pass atomic: status with untracked files, stashing,
// committing everything and pushing the current branch.
//
// The only implementation is internal/vcs/git, which drives the git
// command line tool.
package vcs

import "context"

// Repository is a working tree under version control.
type Repository interface {
	// RepoRoot returns the top level directory of the working tree.
	RepoRoot() string

	// CurrentBranch returns the checked out branch name, or an empty
	// string when HEAD is detached.
	CurrentBranch(ctx context.Context) (string, error)

	// HasCommits reports whether HEAD points to a commit.
	HasCommits(ctx context.Context) (bool, error)

	// Status returns the status of files in the working tree, including
	// untracked files. If paths are specified, only checks those paths.
	Status(ctx context.Context, paths ...string) ([]FileStatus, error)

	// IsDirty reports whether there are uncommitted or untracked changes.
	IsDirty(ctx context.Context) (bool, error)

	// AddAll stages every change, including deletions and new files.
	AddAll(ctx context.Context) error

	// Commit creates a commit with the specified options.
	Commit(ctx context.Context, opts CommitOptions) error

	// Stash saves and reverts local changes, untracked files included.
	Stash(ctx context.Context, message string) error

	// StashPop restores the most recent stash.
	StashPop(ctx context.Context) error

	// RemoteURL returns the URL of the named remote, or ErrNoRemote.
	RemoteURL(ctx context.Context, name string) (string, error)

	// AddRemote configures a new remote.
	AddRemote(ctx context.Context, name, url string) error

	// Push pushes a branch to a remote.
	Push(ctx context.Context, opts PushOptions) error

	// Exec executes a raw command (escape hatch).
	Exec(ctx context.Context, args ...string) ([]byte, error)
}

// FileStatus represents the status of a file in the working directory
type FileStatus struct {
	// Path is the file path relative to repository root
	Path string

	// Status is the working directory status
	Status StatusCode

	// StagedCode is the staging area status
	StagedCode StatusCode
}

// StatusCode represents file status codes
type StatusCode string

const (
	StatusUnmodified StatusCode = " " // No changes
	StatusModified   StatusCode = "M" // Modified
	StatusAdded      StatusCode = "A" // Added/new file
	StatusDeleted    StatusCode = "D" // Deleted
	StatusRenamed    StatusCode = "R" // Renamed
	StatusCopied     StatusCode = "C" // Copied
	StatusUntracked  StatusCode = "?" // Untracked
	StatusIgnored    StatusCode = "!" // Ignored
	StatusConflict   StatusCode = "U" // Unmerged/conflict
)

// CommitOptions configures a commit operation
type CommitOptions struct {
	// Message is the commit message (required)
	Message string

	// Paths limits the commit to these files. Empty commits the index.
	Paths []string
}

// PushOptions configures a push operation
type PushOptions struct {
	// Remote is the remote name (required)
	Remote string

	// Ref is the reference to push. Empty uses current branch.
	Ref string
}
