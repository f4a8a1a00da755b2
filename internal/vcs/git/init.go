package git

import (
	"context"
	"fmt"

	"github.com/synctogit/synctogit/internal/vcs"
)

// Init creates a new repository in dir with HEAD on an unborn branch.
// The first commit creates the branch.
func Init(ctx context.Context, dir, branch string) (*Git, error) {
	if branch == "" {
		return nil, fmt.Errorf("branch name is required")
	}

	if _, err := vcs.ExecContext(ctx, DefaultTimeout, dir, "git", "init"); err != nil {
		return nil, fmt.Errorf("git init failed: %w", err)
	}

	// Works on every git version, unlike "init -b" or "checkout --orphan"
	// on an unborn HEAD.
	if _, err := vcs.ExecContext(ctx, DefaultTimeout, dir, "git", "symbolic-ref", "HEAD", "refs/heads/"+branch); err != nil {
		return nil, fmt.Errorf("failed to set initial branch %s: %w", branch, err)
	}

	return Open(dir)
}
