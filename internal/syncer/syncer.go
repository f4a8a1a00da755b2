package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/synctogit/synctogit/internal/gitstore"
	"github.com/synctogit/synctogit/internal/notes"
	"github.com/synctogit/synctogit/internal/retry"
	"github.com/synctogit/synctogit/internal/service"
)

// ErrSyncFailed is returned by Syncer.Run when the final pass converged but
// some notes could not be updated. Everything else was committed.
var ErrSyncFailed = errors.New("sync done with failures")

// ErrEmptyFetch is recorded when a backend returns neither a note nor an error.
var ErrEmptyFetch = errors.New("backend returned no note")

// Transaction is a single pass over the working tree.
type Transaction interface {
	Root() string
	SetMessage(msg string)
	RemoveEmptyAncestors(path string) error
	End(ctx context.Context, passErr error) error
}

// Store opens transactions.
type Store interface {
	Begin(ctx context.Context) (Transaction, error)
}

var _ Transaction = (*gitstore.Transaction)(nil)

type gitStore struct {
	repo *gitstore.Repo
}

// GitStore adapts a git repository to Store.
func GitStore(repo *gitstore.Repo) Store {
	return gitStore{repo: repo}
}

func (s gitStore) Begin(ctx context.Context) (Transaction, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// Recorder receives every finished pass, successful or not.
type Recorder interface {
	Record(ctx context.Context, report Report, passErr error) error
}

// Syncer runs passes until the working tree converges with the backend.
type Syncer struct {
	Store   Store
	Backend service.Backend

	// Retry wraps every backend call. Defaults to retry.Default.
	Retry retry.Runner

	Workers         int
	MetadataTimeout time.Duration

	// MinDepth and MaxDepth bound the directory depth of stored notes.
	MinDepth int
	MaxDepth int

	// Location is used for timestamps in document headers.
	Location *time.Location

	// Force re-downloads every note in the first pass.
	Force bool

	// Message overrides the default commit message.
	Message string

	// Recorder is optional.
	Recorder Recorder

	Logger zerolog.Logger
	Now    func() time.Time
}

// Run repeats passes until one converges. Authentication errors and
// transaction errors end the run immediately. After convergence
// ErrSyncFailed is returned if the last pass had failed notes.
func (s *Syncer) Run(ctx context.Context) (Summary, error) {
	var summary Summary

	for pass := 1; ; pass++ {
		log := s.Logger.With().Int("pass", pass).Logger()
		log.Info().Msg("Starting sync iteration...")

		report, err := s.runPass(ctx, pass, log)
		if !report.Started.IsZero() {
			summary.Passes = append(summary.Passes, report)
		}
		if err != nil {
			return summary, err
		}
		report.Log(log)

		if !report.Converged {
			log.Info().Int("changed", len(report.Changed)).Msg("Notes changed during sync, starting another pass")
			continue
		}
		if n := len(report.Failed); n > 0 {
			return summary, fmt.Errorf("%w: %d of %d notes failed", ErrSyncFailed, n, len(report.Changeset.Targets()))
		}
		log.Info().Msg("Done")
		return summary, nil
	}
}

func (s *Syncer) runPass(ctx context.Context, pass int, log zerolog.Logger) (Report, error) {
	tx, err := s.Store.Begin(ctx)
	if err != nil {
		return Report{}, err
	}
	if s.Message != "" {
		tx.SetMessage(s.Message)
	}

	it := &Iteration{
		Backend: s.Backend,
		WorkingCopy: &notes.WorkingCopy{
			Root:     tx.Root(),
			MinDepth: s.MinDepth,
			MaxDepth: s.MaxDepth,
			Location: s.Location,
			Pruner:   tx,
			Logger:   log,
		},
		Retry:           s.Retry,
		Workers:         s.Workers,
		MetadataTimeout: s.MetadataTimeout,
		Force:           s.Force && pass == 1,
		Logger:          log,
		Now:             s.Now,
	}

	report, passErr := it.Run(ctx)

	log.Info().Msg("Closing the git transaction...")
	err = tx.End(ctx, passErr)

	if s.Recorder != nil {
		if rerr := s.Recorder.Record(ctx, report, err); rerr != nil {
			log.Warn().Err(rerr).Msg("Unable to record sync pass")
		}
	}
	return report, err
}
