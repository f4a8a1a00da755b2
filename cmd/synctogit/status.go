package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/synctogit/synctogit/internal/gitstore"
	"github.com/synctogit/synctogit/internal/journal"
	"github.com/synctogit/synctogit/internal/ui"
)

var (
	statusSince string
	statusLimit int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent sync passes",
	Long: `Show the sync passes recorded in the repository journal, newest first.

--since accepts durations ("36h") and natural language ("yesterday",
"last monday 9am").`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		return a.finish(a.statusCommand(cmd))
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusSince, "since", "", "only show passes started after this time")
	statusCmd.Flags().IntVarP(&statusLimit, "limit", "n", 20, "maximum number of passes to show, 0 for all")
	rootCmd.AddCommand(statusCmd)
}

// parseSince resolves a duration or a natural language time relative to now.
func parseSince(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d), nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: not a time", s)
	}
	return r.Time, nil
}

func (a *app) statusCommand(cmd *cobra.Command) error {
	since, err := parseSince(statusSince, time.Now().In(a.loc))
	if err != nil {
		return err
	}

	path := filepath.Join(a.cfg.Git.RepoDir, gitstore.CacheDirName, journal.FileName)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(cmd.OutOrStdout(), "No sync passes recorded yet")
		return nil
	}
	j, err := journal.Open(path)
	if err != nil {
		return err
	}
	defer j.Close()

	passes, err := j.List(cmd.Context(), journal.ListFilter{Since: since, Limit: statusLimit})
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), ui.NewRenderer(cmd.OutOrStdout()).Passes(passes, a.loc))
	return nil
}
