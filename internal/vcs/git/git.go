// Package git implements vcs.Repository on top of the git command line tool.
//
// Every operation runs git in the repository root with a timeout, so a
// hanging remote cannot block a sync pass forever.
package git

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/synctogit/synctogit/internal/vcs"
)

// DefaultTimeout bounds local git commands. Push uses PushTimeout.
const (
	DefaultTimeout = 2 * time.Minute
	PushTimeout    = 10 * time.Minute
)

// Git implements vcs.Repository for git repositories.
type Git struct {
	// repoRoot is the repository root directory path
	repoRoot string
}

var _ vcs.Repository = (*Git)(nil)

// Open returns the repository containing path.
// The path should be somewhere within a git repository.
func Open(path string) (*Git, error) {
	g := &Git{}

	// Detect repository information
	if err := g.detect(path); err != nil {
		return nil, err
	}

	return g, nil
}

// Version returns the git version string
func Version(ctx context.Context) (string, error) {
	output, err := vcs.ExecContext(ctx, DefaultTimeout, "", "git", "--version")
	if err != nil {
		return "", fmt.Errorf("failed to get git version: %w", err)
	}

	// Output format: "git version 2.39.0"
	return strings.TrimPrefix(vcs.TrimOutput(output), "git version "), nil
}

// RepoRoot returns the repository root directory path
func (g *Git) RepoRoot() string {
	return g.repoRoot
}

// Exec executes a raw git command in the repository root
func (g *Git) Exec(ctx context.Context, args ...string) ([]byte, error) {
	return g.run(ctx, DefaultTimeout, args...)
}

func (g *Git) run(ctx context.Context, timeout time.Duration, args ...string) ([]byte, error) {
	output, err := vcs.ExecContext(ctx, timeout, g.repoRoot, "git", args...)
	if err != nil {
		return output, fmt.Errorf("git %s failed: %w", strings.Join(args, " "), err)
	}
	return output, nil
}
