package git

import (
	"context"
	"fmt"

	"github.com/synctogit/synctogit/internal/vcs"
)

// CurrentBranch returns the current branch name.
// Returns empty string if in detached HEAD state. An unborn branch (a fresh
// repository without commits) is still reported by name.
func (g *Git) CurrentBranch(ctx context.Context) (string, error) {
	output, err := vcs.ExecContext(ctx, DefaultTimeout, g.repoRoot, "git", "symbolic-ref", "--quiet", "--short", "HEAD")
	if err != nil {
		// Exit status 1 with --quiet means HEAD is detached
		if vcs.GetExitCode(err) == 1 {
			return "", nil
		}
		return "", fmt.Errorf("failed to get current branch: %w", err)
	}

	return vcs.TrimOutput(output), nil
}

// HasCommits reports whether HEAD resolves to a commit
func (g *Git) HasCommits(ctx context.Context) (bool, error) {
	_, err := vcs.ExecContext(ctx, DefaultTimeout, g.repoRoot, "git", "rev-parse", "--verify", "--quiet", "HEAD^{commit}")
	if err == nil {
		return true, nil
	}
	if vcs.GetExitCode(err) == 1 {
		return false, nil
	}
	return false, fmt.Errorf("git rev-parse HEAD failed: %w", err)
}
