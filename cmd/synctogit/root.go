package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/synctogit/synctogit/internal/auth"
	"github.com/synctogit/synctogit/internal/config"
	"github.com/synctogit/synctogit/internal/logging"
)

var version = "dev"

// errReported is returned once the failure was already shown to the user.
var errReported = errors.New("reported")

var (
	configPath string
	logLevel   string
	quiet      bool
	batch      bool
)

var rootCmd = &cobra.Command{
	Use:   "synctogit",
	Short: "Sync a note store into a git repository",
	Long: `synctogit downloads every note of a remote store into a git working tree,
commits the result and optionally pushes it.

Notes are stored as standalone HTML documents under Notes/, attachments under
Resources/, and index.html lists everything. Local edits to synced files are
stashed, never lost.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default is $XDG_CONFIG_HOME/"+config.DefaultFile+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "do not print anything unless the command fails")
	rootCmd.PersistentFlags().BoolVarP(&batch, "batch", "b", false, "non-interactive mode, never prompt for credentials")
}

// app holds what every command needs after the config was loaded.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	sink   *logging.Sink
	loc    *time.Location
}

func newApp() (*app, error) {
	v := config.New()
	if logLevel != "" {
		v.Set("log.level", logLevel)
	}
	cfg, err := config.Load(v, configPath)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.General.Location()
	if err != nil {
		return nil, err
	}

	logger, sink, err := logging.Setup(logging.Options{
		Level: cfg.Log.Level,
		File:  cfg.Log.File,
		JSON:  cfg.Log.JSON,
		Quiet: quiet,
	})
	if err != nil {
		return nil, err
	}
	if cfg.File != "" {
		logger.Debug().Str("config", cfg.File).Msg("Loaded config")
	}
	return &app{cfg: cfg, logger: logger, sink: sink, loc: loc}, nil
}

// finish flushes quiet-mode logs when the command failed.
func (a *app) finish(err error) error {
	if err != nil {
		a.sink.Flush()
	}
	if cerr := a.sink.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("failed to close log file: %w", cerr)
	}
	return err
}

func interactive() bool {
	return !batch && term.IsTerminal(int(os.Stdin.Fd()))
}

func (a *app) session() *auth.Session {
	s := &auth.Session{
		Store:  auth.NewStore(a.cfg.Service.CredentialsFile),
		Batch:  !interactive(),
		Logger: a.logger,
	}
	if !s.Batch {
		s.Prompter = auth.FormPrompter{Accessible: os.Getenv("ACCESSIBLE") != ""}
	}
	return s
}
