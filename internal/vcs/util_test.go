package vcs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLines(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"empty input", "", nil},
		{"porcelain", " M a.txt\n?? b.txt\n", []string{"M a.txt", "?? b.txt"}},
		{"blank lines filtered", "one\n\n\ntwo", []string{"one", "two"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseLines([]byte(tt.input))
			if strings.Join(result, "|") != strings.Join(tt.expected, "|") {
				t.Errorf("ParseLines(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestIsSubPath(t *testing.T) {
	tests := []struct {
		base, target string
		expected     bool
	}{
		{"/repo", "/repo", true},
		{"/repo", "/repo/Notes/a", true},
		{"/repo/Notes", "/repo", false},
		{"/repo", "/other", false},
		{"/repo", "/repo/../repo2", false},
		{"/repo", "/repo/..hidden", true},
	}

	for _, tt := range tests {
		if got := IsSubPath(tt.base, tt.target); got != tt.expected {
			t.Errorf("IsSubPath(%q, %q) = %v, want %v", tt.base, tt.target, got, tt.expected)
		}
	}
}

func TestSamePath(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(t.TempDir(), "link")
	if err := os.Symlink(dir, link); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	if !SamePath(dir, link) {
		t.Errorf("SamePath(%q, %q) = false, want true", dir, link)
	}
	if SamePath(dir, filepath.Dir(dir)) {
		t.Error("SamePath() of parent and child = true, want false")
	}
}

func TestExecContext(t *testing.T) {
	output, err := ExecContext(context.Background(), 5*time.Second, t.TempDir(), "echo", "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := TrimOutput(output); got != "test" {
		t.Errorf("expected 'test', got '%s'", got)
	}
}

func TestExecContextErrors(t *testing.T) {
	_, err := ExecContext(context.Background(), 100*time.Millisecond, t.TempDir(), "sleep", "2")
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}

	_, err = ExecContext(context.Background(), time.Second, t.TempDir(), "synctogit-no-such-binary")
	if !errors.Is(err, ErrVCSNotAvailable) {
		t.Errorf("expected ErrVCSNotAvailable, got %v", err)
	}
	if !IsFatal(err) {
		t.Error("missing binary should be fatal")
	}

	_, err = ExecContext(context.Background(), time.Second, t.TempDir(), "sh", "-c", "echo oops >&2; exit 3")
	if err == nil || !strings.Contains(err.Error(), "oops") {
		t.Errorf("expected stderr in error, got %v", err)
	}
	if code := GetExitCode(err); code != 3 {
		t.Errorf("expected exit code 3, got %d", code)
	}
}
