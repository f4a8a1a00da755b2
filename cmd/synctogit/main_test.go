package main

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synctogit/synctogit/internal/backend/markdown"
	"github.com/synctogit/synctogit/internal/config"
	"github.com/synctogit/synctogit/internal/gitstore"
	"github.com/synctogit/synctogit/internal/journal"
	"github.com/synctogit/synctogit/internal/service"
	"github.com/synctogit/synctogit/internal/syncer"
	"github.com/synctogit/synctogit/internal/vcs"
)

func isolateGit(t *testing.T) {
	t.Helper()
	global := filepath.Join(t.TempDir(), "gitconfig")
	require.NoError(t, os.WriteFile(global, nil, 0o644))
	t.Setenv("GIT_CONFIG_GLOBAL", global)
	t.Setenv("GIT_CONFIG_NOSYSTEM", "1")
}

func gitOutput(t *testing.T, dir string, args ...string) string {
	t.Helper()
	out, err := exec.Command("git", append([]string{"-C", dir}, args...)...).CombinedOutput()
	require.NoError(t, err, "git %s: %s", strings.Join(args, " "), out)
	return strings.TrimSpace(string(out))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestApp(t *testing.T, vaultDir string) *app {
	t.Helper()
	return &app{
		cfg: &config.Config{
			Git: config.GitConfig{RepoDir: t.TempDir(), Branch: "master", RemoteName: "origin"},
			Service: config.ServiceConfig{
				Name:            "vault",
				CredentialsFile: filepath.Join(t.TempDir(), "credentials.toml"),
			},
			Internals: config.InternalsConfig{NotesDownloadThreads: 4, MetadataTimeout: time.Minute},
			Vault:     config.VaultConfig{Path: vaultDir},
		},
		logger: zerolog.Nop(),
		loc:    time.UTC,
	}
}

func TestSyncVaultEndToEnd(t *testing.T) {
	isolateGit(t)
	vaultDir := t.TempDir()
	writeFile(t, filepath.Join(vaultDir, "Work", "plan.md"), "---\nid: plan\n---\n# Plan\n\n![chart](chart.png)\n")
	writeFile(t, filepath.Join(vaultDir, "Work", "chart.png"), "png")
	writeFile(t, filepath.Join(vaultDir, "todo.md"), "- [ ] call")

	a := newTestApp(t, vaultDir)
	ctx := context.Background()
	ws, err := a.openWorkspace(ctx)
	require.NoError(t, err)
	defer ws.Close()

	summary, err := a.sync(ctx, ws, false)
	require.NoError(t, err)
	require.Len(t, summary.Passes, 1)
	assert.Len(t, summary.Last().Saved, 2)

	root := ws.repo.Root()
	assert.FileExists(t, filepath.Join(root, "Notes", "Work", "Plan.plan.html"))
	assert.FileExists(t, filepath.Join(root, "Notes", "todo."+string(markdown.PathKey("todo.md"))+".html"))
	assert.FileExists(t, filepath.Join(root, "Resources", "plan", "chart.png"))
	assert.FileExists(t, filepath.Join(root, "index.html"))
	assert.True(t, strings.HasPrefix(gitOutput(t, root, "log", "-1", "--format=%s"), "Sync at "))
	assert.Empty(t, gitOutput(t, root, "status", "--porcelain"))

	// A second run finds nothing to do.
	summary, err = a.sync(ctx, ws, false)
	require.NoError(t, err)
	assert.True(t, summary.Last().Changeset.Empty())

	require.NoError(t, os.Remove(filepath.Join(vaultDir, "Work", "plan.md")))
	_, err = a.sync(ctx, ws, false)
	require.NoError(t, err)
	assert.NoDirExists(t, filepath.Join(root, "Notes", "Work"))
	assert.NoDirExists(t, filepath.Join(root, "Resources", "plan"))

	passes, err := ws.journal.List(ctx, journal.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, passes, 3)
}

func TestSyncUnknownBackend(t *testing.T) {
	isolateGit(t)
	a := newTestApp(t, t.TempDir())
	a.cfg.Service.Name = "nope"

	ws, err := a.openWorkspace(context.Background())
	require.NoError(t, err)
	defer ws.Close()

	_, err = a.sync(context.Background(), ws, false)
	assert.ErrorIs(t, err, service.ErrUnknownBackend)
}

func TestFatalDaemonError(t *testing.T) {
	assert.True(t, fatalDaemonError(service.ErrTokenExpired))
	assert.True(t, fatalDaemonError(service.ErrUserCancelled))
	assert.True(t, fatalDaemonError(gitstore.ErrSimultaneousTransaction))
	assert.True(t, fatalDaemonError(vcs.ErrVCSNotAvailable))
	assert.True(t, fatalDaemonError(&gitstore.PushError{Rejected: true, Err: vcs.ErrPushRejected}))
	assert.False(t, fatalDaemonError(&gitstore.PushError{Err: errors.New("connection reset")}))
	assert.False(t, fatalDaemonError(syncer.ErrSyncFailed))
	assert.False(t, fatalDaemonError(errors.New("network down")))
}

func TestParseSince(t *testing.T) {
	now := time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC)

	got, err := parseSince("", now)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	got, err = parseSince("36h", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-36*time.Hour), got)

	got, err = parseSince("yesterday", now)
	require.NoError(t, err)
	assert.Equal(t, 9, got.Day())

	_, err = parseSince("no idea", now)
	assert.Error(t, err)
}
