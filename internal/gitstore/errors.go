package gitstore

import (
	"errors"
	"fmt"
)

var (
	// ErrSimultaneousTransaction is returned by Begin while the lock file
	// of another transaction exists.
	ErrSimultaneousTransaction = errors.New("another sync is in progress")

	// ErrPush is matched by every *PushError.
	ErrPush = errors.New("git push failed")

	// ErrRepoDirMissing is returned when the repository directory does not exist.
	ErrRepoDirMissing = errors.New("repository directory does not exist")

	// ErrNotARepo is returned for a non-empty directory which is not a git repository.
	ErrNotARepo = errors.New("directory is not a git repository and is not empty")

	// ErrNestedRepo is returned when the directory is inside another repository
	// instead of being the top level of its own.
	ErrNestedRepo = errors.New("directory is not the top level of a git repository")

	// ErrBranchMismatch is returned when HEAD points to another branch.
	ErrBranchMismatch = errors.New("checked out branch does not match")

	// ErrEmptyBranch is returned when the branch has no commits.
	ErrEmptyBranch = errors.New("branch has no commits")

	// ErrRemoteMismatch is returned when the configured remote points elsewhere.
	ErrRemoteMismatch = errors.New("git remote does not match")

	// ErrDirtyGitignore is returned when .gitignore has to be updated but
	// has uncommitted changes.
	ErrDirtyGitignore = errors.New(".gitignore has uncommitted changes")

	// ErrOutsideRepo is returned for paths outside of the repository root.
	ErrOutsideRepo = errors.New("path is outside of the repository")
)

// PushError is returned by Transaction.End when the local commit succeeded
// but pushing it failed. The commit is kept. Rejected is set when the remote
// refused a non-fast-forward push.
type PushError struct {
	Remote   string
	Branch   string
	Rejected bool
	Err      error
}

func (e *PushError) Error() string {
	if e.Rejected {
		return fmt.Sprintf("%s rejected push of %s, merge the remote changes manually: %v", e.Remote, e.Branch, e.Err)
	}
	return fmt.Sprintf("unable to push %s to %s: %v", e.Branch, e.Remote, e.Err)
}

func (e *PushError) Unwrap() error { return e.Err }

func (e *PushError) Is(target error) bool { return target == ErrPush }

// CommitError is returned by Transaction.End when staging or committing the
// changes of a successful pass failed.
type CommitError struct {
	Err error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("unable to commit changes: %v", e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }
