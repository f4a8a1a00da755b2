package main

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/synctogit/synctogit/internal/daemon"
	"github.com/synctogit/synctogit/internal/gitstore"
	"github.com/synctogit/synctogit/internal/notes"
	"github.com/synctogit/synctogit/internal/service"
	"github.com/synctogit/synctogit/internal/syncer"
	"github.com/synctogit/synctogit/internal/vcs"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Sync periodically until interrupted",
	Long: `Run a sync every daemon.interval. With daemon.watch_local enabled, local
edits under Notes/ trigger an early sync which restores the synced version
and stashes the edits.

The daemon stops on authentication failures and when another sync holds the
repository lock. Other failures are logged and retried on the next tick.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		return a.finish(a.daemonCommand(cmd.Context()))
	},
}

func init() {
	daemonCmd.Flags().BoolVarP(&forceUpdate, "force-update", "f", false, "download every note in the first sync")
	daemonCmd.Flags().StringVarP(&commitMessage, "message", "m", "", "commit message (default is \"Sync at <time>\")")
	rootCmd.AddCommand(daemonCmd)
}

func fatalDaemonError(err error) bool {
	return service.IsAuthError(err) ||
		errors.Is(err, gitstore.ErrSimultaneousTransaction) ||
		vcs.IsFatal(err)
}

func (a *app) daemonCommand(ctx context.Context) error {
	ws, err := a.openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer ws.Close()

	cfg := daemon.DefaultConfig()
	cfg.Interval = a.cfg.Daemon.Interval
	cfg.Fatal = fatalDaemonError
	cfg.Logger = a.logger
	if a.cfg.Daemon.WatchLocal {
		cfg.WatchDir = filepath.Join(ws.repo.Root(), notes.NotesDirName)
	}

	force := forceUpdate
	d, err := daemon.New(func(ctx context.Context) error {
		_, err := a.sync(ctx, ws, force)
		force = false
		if errors.Is(err, syncer.ErrSyncFailed) {
			a.logger.Warn().Err(err).Msg("Some notes were not synced")
			return nil
		}
		return err
	}, cfg)
	if err != nil {
		return err
	}

	return d.Start(ctx)
}
