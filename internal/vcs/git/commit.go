package git

import (
	"context"
	"fmt"
	"strings"

	"github.com/synctogit/synctogit/internal/vcs"
)

// Status returns the status of files in the working directory, untracked
// files included
func (g *Git) Status(ctx context.Context, paths ...string) ([]vcs.FileStatus, error) {
	args := []string{"-c", "core.quotepath=false", "status", "--porcelain", "--untracked-files=all"}
	if len(paths) > 0 {
		args = append(args, "--")
		args = append(args, paths...)
	}

	output, err := g.run(ctx, DefaultTimeout, args...)
	if err != nil {
		return nil, err
	}

	var statuses []vcs.FileStatus
	for _, line := range strings.Split(string(output), "\n") {
		if len(line) < 4 {
			continue
		}

		// Parse status format: XY filename
		// X = staged status, Y = unstaged status
		statuses = append(statuses, vcs.FileStatus{
			Path:       unquotePath(line[3:]),
			Status:     parseStatusCode(line[1:2]),
			StagedCode: parseStatusCode(line[0:1]),
		})
	}

	return statuses, nil
}

// unquotePath strips the quotes git puts around paths with special
// characters. Renames keep only the new path.
func unquotePath(p string) string {
	if i := strings.Index(p, " -> "); i >= 0 {
		p = p[i+4:]
	}
	return strings.Trim(p, `"`)
}

// parseStatusCode converts git status code to vcs.StatusCode
func parseStatusCode(code string) vcs.StatusCode {
	switch code {
	case "M":
		return vcs.StatusModified
	case "A":
		return vcs.StatusAdded
	case "D":
		return vcs.StatusDeleted
	case "R":
		return vcs.StatusRenamed
	case "C":
		return vcs.StatusCopied
	case "?":
		return vcs.StatusUntracked
	case "!":
		return vcs.StatusIgnored
	case "U":
		return vcs.StatusConflict
	default:
		return vcs.StatusUnmodified
	}
}

// IsDirty returns true if there are uncommitted changes or untracked files
func (g *Git) IsDirty(ctx context.Context) (bool, error) {
	output, err := g.run(ctx, DefaultTimeout, "status", "--porcelain", "--untracked-files=normal")
	if err != nil {
		return false, err
	}
	return len(strings.TrimSpace(string(output))) > 0, nil
}

// AddAll stages all changes in the working tree
func (g *Git) AddAll(ctx context.Context) error {
	_, err := g.run(ctx, DefaultTimeout, "add", "-A", ".")
	return err
}

// Commit creates a commit with the specified options
func (g *Git) Commit(ctx context.Context, opts vcs.CommitOptions) error {
	if opts.Message == "" {
		return fmt.Errorf("commit message is required")
	}

	args := []string{"commit", "-m", opts.Message}

	// Add paths with -- to ensure they're treated as paths
	if len(opts.Paths) > 0 {
		args = append(args, "--")
		args = append(args, opts.Paths...)
	}

	_, err := g.run(ctx, DefaultTimeout, args...)
	return err
}

// Stash stashes local changes, untracked files included
func (g *Git) Stash(ctx context.Context, message string) error {
	args := []string{"stash", "push", "--include-untracked"}
	if message != "" {
		args = append(args, "-m", message)
	}
	_, err := g.run(ctx, DefaultTimeout, args...)
	return err
}

// StashPop restores the most recent stash
func (g *Git) StashPop(ctx context.Context) error {
	_, err := g.run(ctx, DefaultTimeout, "stash", "pop")
	return err
}
