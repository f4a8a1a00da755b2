package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ===================
// Command Execution Utilities
// ===================

// ExecContext executes a VCS command with timeout and context support.
// Stdout is returned; stderr is attached to the error.
//
// Example:
//
//	output, err := ExecContext(ctx, 30*time.Second, repoRoot, "git", "status", "--porcelain")
func ExecContext(ctx context.Context, timeout time.Duration, workDir string, name string, args ...string) ([]byte, error) {
	// Create context with timeout if specified
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = workDir
	// Never block on an interactive credential prompt.
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "LC_ALL=C")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrVCSNotAvailable, name)
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s %s", ErrTimeout, name, strings.Join(args, " "))
		}
		// Include stderr in error message for debugging
		if stderr.Len() > 0 {
			return stdout.Bytes(), fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return stdout.Bytes(), err
	}

	return stdout.Bytes(), nil
}

// ===================
// Output Parsing Utilities
// ===================

// ParseLines splits command output into non-empty lines.
func ParseLines(output []byte) []string {
	if len(output) == 0 {
		return nil
	}

	lines := strings.Split(string(output), "\n")
	result := make([]string, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			result = append(result, line)
		}
	}

	return result
}

// TrimOutput trims whitespace and trailing newlines from command output.
func TrimOutput(output []byte) string {
	return strings.TrimSpace(string(output))
}

// ===================
// Path Utilities
// ===================

// IsSubPath returns true if target is inside base directory.
func IsSubPath(base, target string) bool {
	base = filepath.Clean(base)
	target = filepath.Clean(target)

	relPath, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}

	// If relative path starts with "..", it's outside base
	return relPath != ".." && !strings.HasPrefix(relPath, ".."+string(filepath.Separator))
}

// SamePath reports whether a and b resolve to the same directory, following
// symlinks (/var -> /private/var on macOS).
func SamePath(a, b string) bool {
	ra, err := filepath.EvalSymlinks(a)
	if err != nil {
		ra = filepath.Clean(a)
	}
	rb, err := filepath.EvalSymlinks(b)
	if err != nil {
		rb = filepath.Clean(b)
	}
	return ra == rb
}

// ===================
// Error Utilities
// ===================

// GetExitCode returns the exit code from an error, or -1 if not an exit error.
func GetExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}

	return -1
}
