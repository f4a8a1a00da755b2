package git

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/synctogit/synctogit/internal/vcs"
)

// setupTestRepo creates a temporary git repository for testing
func setupTestRepo(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	if _, err := Init(context.Background(), dir, "master"); err != nil {
		t.Fatalf("failed to init git repo: %v", err)
	}
	configureUser(t, dir)
	return dir
}

// configureUser sets a local identity so commits work on CI machines
func configureUser(t *testing.T, dir string) {
	t.Helper()
	for _, kv := range [][2]string{
		{"user.name", "Test User"},
		{"user.email", "test@example.com"},
		{"commit.gpgsign", "false"},
	} {
		if err := exec.Command("git", "-C", dir, "config", kv[0], kv[1]).Run(); err != nil {
			t.Fatalf("git config %s failed: %v", kv[0], err)
		}
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func commitAll(t *testing.T, g *Git, msg string) {
	t.Helper()
	ctx := context.Background()
	if err := g.AddAll(ctx); err != nil {
		t.Fatalf("AddAll() failed: %v", err)
	}
	if err := g.Commit(ctx, vcs.CommitOptions{Message: msg}); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
}

func TestOpen(t *testing.T) {
	repoPath := setupTestRepo(t)

	g, err := Open(repoPath)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	if !vcs.SamePath(g.RepoRoot(), repoPath) {
		t.Errorf("RepoRoot() = %v, want %v", g.RepoRoot(), repoPath)
	}

	if _, err := Open(t.TempDir()); !errors.Is(err, vcs.ErrNotInVCS) {
		t.Errorf("Open() outside a repo = %v, want ErrNotInVCS", err)
	}
}

func TestVersion(t *testing.T) {
	version, err := Version(context.Background())
	if err != nil {
		t.Fatalf("Version() failed: %v", err)
	}
	if version == "" {
		t.Error("Version() returned empty string")
	}
}

func TestInitUnbornBranch(t *testing.T) {
	ctx := context.Background()
	repoPath := setupTestRepo(t)
	g, err := Open(repoPath)
	if err != nil {
		t.Fatal(err)
	}

	branch, err := g.CurrentBranch(ctx)
	if err != nil {
		t.Fatalf("CurrentBranch() failed: %v", err)
	}
	if branch != "master" {
		t.Errorf("CurrentBranch() = %q, want master", branch)
	}

	has, err := g.HasCommits(ctx)
	if err != nil {
		t.Fatalf("HasCommits() failed: %v", err)
	}
	if has {
		t.Error("HasCommits() = true on a fresh repository")
	}

	writeFile(t, filepath.Join(repoPath, "a.txt"), "a")
	commitAll(t, g, "initial")

	if has, _ := g.HasCommits(ctx); !has {
		t.Error("HasCommits() = false after a commit")
	}
}

func TestStatusAndDirty(t *testing.T) {
	ctx := context.Background()
	repoPath := setupTestRepo(t)
	g, _ := Open(repoPath)

	writeFile(t, filepath.Join(repoPath, "tracked.txt"), "v1")
	commitAll(t, g, "initial")

	dirty, err := g.IsDirty(ctx)
	if err != nil {
		t.Fatalf("IsDirty() failed: %v", err)
	}
	if dirty {
		t.Error("IsDirty() = true right after commit")
	}

	writeFile(t, filepath.Join(repoPath, "tracked.txt"), "v2")
	writeFile(t, filepath.Join(repoPath, "Notes", "новая.html"), "new")

	statuses, err := g.Status(ctx)
	if err != nil {
		t.Fatalf("Status() failed: %v", err)
	}

	got := map[string]vcs.StatusCode{}
	for _, s := range statuses {
		got[s.Path] = s.Status
	}
	if got["tracked.txt"] != vcs.StatusModified {
		t.Errorf("tracked.txt status = %q, want M", got["tracked.txt"])
	}
	if got["Notes/новая.html"] != vcs.StatusUntracked {
		t.Errorf("untracked status = %q, want ?; all: %v", got["Notes/новая.html"], got)
	}

	statuses, err = g.Status(ctx, "tracked.txt")
	if err != nil {
		t.Fatal(err)
	}
	if len(statuses) != 1 {
		t.Errorf("Status(tracked.txt) returned %d entries, want 1", len(statuses))
	}

	if dirty, _ := g.IsDirty(ctx); !dirty {
		t.Error("IsDirty() = false with local changes")
	}
}

func TestStashIncludesUntracked(t *testing.T) {
	ctx := context.Background()
	repoPath := setupTestRepo(t)
	g, _ := Open(repoPath)

	writeFile(t, filepath.Join(repoPath, "tracked.txt"), "v1")
	commitAll(t, g, "initial")

	untracked := filepath.Join(repoPath, "untracked.txt")
	writeFile(t, untracked, "x")
	writeFile(t, filepath.Join(repoPath, "tracked.txt"), "v2")

	if err := g.Stash(ctx, "test stash"); err != nil {
		t.Fatalf("Stash() failed: %v", err)
	}
	if dirty, _ := g.IsDirty(ctx); dirty {
		t.Error("IsDirty() = true after stash")
	}
	if _, err := os.Stat(untracked); !os.IsNotExist(err) {
		t.Error("untracked file survived the stash")
	}

	if err := g.StashPop(ctx); err != nil {
		t.Fatalf("StashPop() failed: %v", err)
	}
	if _, err := os.Stat(untracked); err != nil {
		t.Errorf("untracked file not restored: %v", err)
	}
}

func TestRemotes(t *testing.T) {
	ctx := context.Background()
	repoPath := setupTestRepo(t)
	g, _ := Open(repoPath)

	if _, err := g.RemoteURL(ctx, "origin"); !errors.Is(err, vcs.ErrNoRemote) {
		t.Errorf("RemoteURL() = %v, want ErrNoRemote", err)
	}

	if err := g.AddRemote(ctx, "origin", "https://example.com/notes.git"); err != nil {
		t.Fatalf("AddRemote() failed: %v", err)
	}
	url, err := g.RemoteURL(ctx, "origin")
	if err != nil {
		t.Fatalf("RemoteURL() failed: %v", err)
	}
	if url != "https://example.com/notes.git" {
		t.Errorf("RemoteURL() = %q", url)
	}
}

func TestPush(t *testing.T) {
	ctx := context.Background()
	repoPath := setupTestRepo(t)
	g, _ := Open(repoPath)

	bare := t.TempDir()
	if out, err := exec.Command("git", "init", "--bare", bare).CombinedOutput(); err != nil {
		t.Fatalf("git init --bare failed: %v\n%s", err, out)
	}
	if err := g.AddRemote(ctx, "origin", bare); err != nil {
		t.Fatal(err)
	}

	writeFile(t, filepath.Join(repoPath, "a.txt"), "a")
	commitAll(t, g, "initial")

	if err := g.Push(ctx, vcs.PushOptions{Remote: "origin"}); err != nil {
		t.Fatalf("Push() failed: %v", err)
	}

	local, err := exec.Command("git", "-C", repoPath, "rev-parse", "HEAD").Output()
	if err != nil {
		t.Fatal(err)
	}
	remote, err := exec.Command("git", "-C", bare, "rev-parse", "master").Output()
	if err != nil {
		t.Fatalf("remote branch missing: %v", err)
	}
	if vcs.TrimOutput(remote) != vcs.TrimOutput(local) {
		t.Errorf("remote master = %s, want %s", remote, local)
	}

	if err := g.Push(ctx, vcs.PushOptions{}); !errors.Is(err, vcs.ErrNoRemote) {
		t.Errorf("Push() without remote = %v, want ErrNoRemote", err)
	}
}

func TestPushRejected(t *testing.T) {
	ctx := context.Background()
	bare := t.TempDir()
	if out, err := exec.Command("git", "init", "--bare", bare).CombinedOutput(); err != nil {
		t.Fatalf("git init --bare failed: %v\n%s", err, out)
	}

	var clones []*Git
	for _, name := range []string{"first", "second"} {
		repoPath := setupTestRepo(t)
		g, _ := Open(repoPath)
		if err := g.AddRemote(ctx, "origin", bare); err != nil {
			t.Fatal(err)
		}
		writeFile(t, filepath.Join(repoPath, name+".txt"), name)
		commitAll(t, g, name)
		clones = append(clones, g)
	}

	if err := clones[0].Push(ctx, vcs.PushOptions{Remote: "origin"}); err != nil {
		t.Fatalf("Push() failed: %v", err)
	}
	err := clones[1].Push(ctx, vcs.PushOptions{Remote: "origin"})
	if !errors.Is(err, vcs.ErrPushRejected) {
		t.Fatalf("Push() of a diverged branch = %v, want ErrPushRejected", err)
	}
	if !vcs.IsFatal(err) {
		t.Error("rejected push should be fatal")
	}
}

func TestCommitRequiresMessage(t *testing.T) {
	g, _ := Open(setupTestRepo(t))
	if err := g.Commit(context.Background(), vcs.CommitOptions{}); err == nil {
		t.Error("Commit() without message should fail")
	}
}
