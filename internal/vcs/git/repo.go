package git

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/synctogit/synctogit/internal/vcs"
)

// detect populates git repository information
func (g *Git) detect(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	cmd.Dir = absPath

	output, err := cmd.Output()
	if err != nil {
		if _, lookErr := exec.LookPath("git"); lookErr != nil {
			return vcs.ErrVCSNotAvailable
		}
		return vcs.ErrNotInVCS
	}

	g.repoRoot = normalizeRepoRoot(strings.TrimSpace(string(output)))

	return nil
}

// normalizeRepoRoot normalizes the repository root path
// Resolves symlinks and canonicalizes case on case-insensitive filesystems
func normalizeRepoRoot(path string) string {
	// Normalize Windows paths
	path = filepath.FromSlash(path)

	// Resolve symlinks
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}

	return path
}

// RemoteURL returns the fetch URL of the named remote
func (g *Git) RemoteURL(ctx context.Context, name string) (string, error) {
	output, err := g.run(ctx, DefaultTimeout, "remote")
	if err != nil {
		return "", err
	}

	found := false
	for _, r := range vcs.ParseLines(output) {
		if r == name {
			found = true
			break
		}
	}
	if !found {
		return "", fmt.Errorf("%w: %s", vcs.ErrNoRemote, name)
	}

	output, err = g.run(ctx, DefaultTimeout, "remote", "get-url", name)
	if err != nil {
		return "", err
	}
	return vcs.TrimOutput(output), nil
}

// AddRemote configures a new remote
func (g *Git) AddRemote(ctx context.Context, name, url string) error {
	_, err := g.run(ctx, DefaultTimeout, "remote", "add", name, url)
	return err
}
