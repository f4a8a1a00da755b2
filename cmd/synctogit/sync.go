package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/synctogit/synctogit/internal/gitstore"
	"github.com/synctogit/synctogit/internal/journal"
	"github.com/synctogit/synctogit/internal/retry"
	"github.com/synctogit/synctogit/internal/service"
	"github.com/synctogit/synctogit/internal/syncer"
	"github.com/synctogit/synctogit/internal/ui"
)

var (
	forceUpdate   bool
	commitMessage string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a single sync",
	Long: `Download every changed note into the git working tree and commit.

A sync repeats until the remote store stopped changing while it ran. Notes
that failed to download are reported and keep their previous version.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		return a.finish(a.syncCommand(cmd.Context()))
	},
}

func init() {
	syncCmd.Flags().BoolVarP(&forceUpdate, "force-update", "f", false, "download every note even if it did not change")
	syncCmd.Flags().StringVarP(&commitMessage, "message", "m", "", "commit message (default is \"Sync at <time>\")")
	rootCmd.AddCommand(syncCmd)
}

// workspace is an opened repository with its journal.
type workspace struct {
	repo    *gitstore.Repo
	journal *journal.Journal
}

func (a *app) openWorkspace(ctx context.Context) (*workspace, error) {
	g := a.cfg.Git
	repo, err := gitstore.Open(ctx, gitstore.Options{
		Dir:        g.RepoDir,
		Branch:     g.Branch,
		Remote:     g.Remote,
		RemoteName: g.RemoteName,
		Push:       g.Push,
		Logger:     a.logger,
	})
	if err != nil {
		return nil, err
	}
	cache, err := repo.CacheDir()
	if err != nil {
		return nil, err
	}
	j, err := journal.Open(filepath.Join(cache, journal.FileName))
	if err != nil {
		return nil, err
	}
	return &workspace{repo: repo, journal: j}, nil
}

func (w *workspace) Close() error {
	return w.journal.Close()
}

func (a *app) syncCommand(ctx context.Context) error {
	ws, err := a.openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer ws.Close()

	summary, err := a.sync(ctx, ws, forceUpdate)
	if errors.Is(err, service.ErrUserCancelled) {
		a.logger.Info().Msg("Cancelled by user")
		return nil
	}
	if quiet && err == nil {
		return nil
	}
	fmt.Fprint(os.Stdout, ui.NewRenderer(os.Stdout).Summary(summary, err))
	if err != nil {
		return errors.Join(errReported, err)
	}
	return nil
}

// sync runs the syncer until it finishes without an expired token. An
// expired token is forgotten and requested again.
func (a *app) sync(ctx context.Context, ws *workspace, force bool) (syncer.Summary, error) {
	desc, err := service.Lookup(a.cfg.Service.Name)
	if err != nil {
		return syncer.Summary{}, err
	}
	session := a.session()

	for {
		token, err := session.Token(ctx, desc)
		if err != nil {
			return syncer.Summary{}, err
		}
		a.logger.Info().Str("backend", desc.Name).Msg("Authenticating...")
		backend, err := desc.New(service.Options{Config: a.cfg, Token: token, Logger: a.logger})
		if err != nil {
			return syncer.Summary{}, err
		}

		run := ws.journal.NewRun()
		logger := a.logger.With().Str("run", run.ID).Logger()
		s := &syncer.Syncer{
			Store:           syncer.GitStore(ws.repo),
			Backend:         backend,
			Retry:           retry.Default(logger),
			Workers:         a.cfg.Internals.NotesDownloadThreads,
			MetadataTimeout: a.cfg.Internals.MetadataTimeout,
			MinDepth:        desc.MinDepth,
			MaxDepth:        desc.MaxDepth,
			Location:        a.loc,
			Force:           force,
			Message:         commitMessage,
			Recorder:        run,
			Logger:          logger,
		}
		summary, err := s.Run(ctx)
		if errors.Is(err, service.ErrTokenExpired) {
			logger.Warn().Msg("Auth token expired")
			if ferr := session.Forget(ctx, desc); ferr != nil {
				return summary, ferr
			}
			continue
		}
		return summary, err
	}
}
