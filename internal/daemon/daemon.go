// Package daemon runs sync passes periodically. When watching is enabled,
// a local edit of a stored document triggers an early pass, which stashes
// the edit and restores the remote state.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Config holds configuration for the daemon.
type Config struct {
	// Interval is the time between the end of a pass and the next one.
	Interval time.Duration

	// WatchDir is watched for local edits. Empty disables watching.
	WatchDir string

	// Debounce is how long local edits must settle before a pass starts.
	// Events arriving within Debounce after a pass are attributed to the
	// pass itself and ignored.
	Debounce time.Duration

	// Fatal reports whether a pass error must stop the daemon. By default
	// every error is logged and the daemon keeps going.
	Fatal func(err error) bool

	Logger zerolog.Logger
}

// DefaultConfig returns the defaults for a daemon without watching.
func DefaultConfig() Config {
	return Config{
		Interval: 15 * time.Minute,
		Debounce: 2 * time.Second,
		Logger:   zerolog.Nop(),
	}
}

// RunFunc performs a single sync run.
type RunFunc func(ctx context.Context) error

// Daemon repeats a RunFunc.
type Daemon struct {
	cfg     Config
	run     RunFunc
	watcher *FileWatcher
}

// New creates a daemon for run.
func New(run RunFunc, cfg Config) (*Daemon, error) {
	if run == nil {
		return nil, errors.New("run func cannot be nil")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("invalid interval %s", cfg.Interval)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultConfig().Debounce
	}
	return &Daemon{cfg: cfg, run: run}, nil
}

// Start runs a pass immediately and then after every interval or settled
// local edit. It blocks until ctx is done or a fatal error occurs.
func (d *Daemon) Start(ctx context.Context) error {
	log := d.cfg.Logger
	log.Info().Dur("interval", d.cfg.Interval).Str("watch", d.cfg.WatchDir).Msg("Starting daemon")

	var events <-chan FileEvent
	var watchErrs <-chan error
	if d.cfg.WatchDir != "" {
		w, err := NewFileWatcher()
		if err != nil {
			return err
		}
		if err := w.Start(d.cfg.WatchDir); err != nil {
			return err
		}
		defer func() {
			if err := w.Stop(); err != nil {
				log.Warn().Err(err).Msg("Error closing watcher")
			}
		}()
		d.watcher = w
		events, watchErrs = w.Events(), w.Errors()
	}

	for {
		if err := d.runOnce(ctx); err != nil {
			return err
		}
		quietUntil := time.Now().Add(d.cfg.Debounce)

		if err := d.wait(ctx, events, watchErrs, quietUntil); err != nil {
			log.Info().Msg("Daemon stopped")
			return nil
		}
	}
}

func (d *Daemon) runOnce(ctx context.Context) error {
	log := d.cfg.Logger
	err := d.run(ctx)
	if d.watcher != nil {
		if rerr := d.watcher.Refresh(); rerr != nil {
			log.Warn().Err(rerr).Msg("Unable to watch new directories")
		}
	}
	if err == nil || ctx.Err() != nil {
		return nil
	}
	if d.cfg.Fatal != nil && d.cfg.Fatal(err) {
		return err
	}
	log.Error().Err(err).Msg("Sync failed, retrying on the next interval")
	return nil
}

// wait blocks until the next pass is due. It returns ctx.Err() when the
// daemon must stop.
func (d *Daemon) wait(ctx context.Context, events <-chan FileEvent, errs <-chan error, quietUntil time.Time) error {
	log := d.cfg.Logger

	interval := time.NewTimer(d.cfg.Interval)
	defer interval.Stop()

	var settle <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-interval.C:
			return nil

		case <-settle:
			log.Info().Msg("Local changes detected, syncing early")
			return nil

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if time.Now().Before(quietUntil) {
				continue
			}
			log.Debug().Str("path", ev.Path).Stringer("op", ev.Op).Msg("File event")
			settle = time.After(d.cfg.Debounce)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			log.Warn().Err(err).Msg("Watcher error")
		}
	}
}
