package syncer

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/synctogit/synctogit/internal/index"
	"github.com/synctogit/synctogit/internal/notes"
	"github.com/synctogit/synctogit/internal/retry"
	"github.com/synctogit/synctogit/internal/service"
)

const (
	DefaultWorkers         = 30
	DefaultMetadataTimeout = time.Hour
)

// Iteration is a single reconciliation pass over a working copy.
type Iteration struct {
	Backend     service.Backend
	WorkingCopy *notes.WorkingCopy

	// Retry wraps every backend call. Defaults to retry.Default.
	Retry retry.Runner

	// Workers bounds concurrent note fetches.
	Workers int

	// MetadataTimeout bounds gathering of local and remote metadata.
	MetadataTimeout time.Duration

	// Force updates every note present on both sides.
	Force bool

	Logger zerolog.Logger
	Now    func() time.Time
}

// Run executes the pass. Failures of single notes are collected in the
// report. Only errors which make the whole pass meaningless are returned:
// gathering failures, authentication errors and local write failures
// outside of a single note.
func (it *Iteration) Run(ctx context.Context) (Report, error) {
	now := it.Now
	if now == nil {
		now = time.Now
	}
	runner := it.Retry
	if runner == nil {
		runner = retry.Default(it.Logger)
	}

	report := Report{Started: now(), Converged: true}

	it.Logger.Info().Msg("Retrieving actual metadata...")
	local, remote, err := it.gather(ctx, runner)
	if err != nil {
		return report, err
	}

	it.Logger.Info().Msg("Calculating changes...")
	cs := notes.CalculateChanges(remote, local, it.Force)
	report.Changeset = cs

	it.Logger.Info().Msg("Applying changes...")
	if err := it.WorkingCopy.Delete(cs.Delete); err != nil {
		return report, err
	}
	if err := it.update(ctx, runner, cs.Targets(), &report); err != nil {
		return report, err
	}

	it.Logger.Info().Msg("Updating index...")
	links := make([]index.Link, 0, len(remote))
	for _, meta := range remote {
		links = append(links, index.LinkFor(meta))
	}
	if err := index.WriteFile(it.WorkingCopy.Root, links); err != nil {
		return report, err
	}

	report.sort()
	report.Finished = now()
	return report, nil
}

func (it *Iteration) gather(ctx context.Context, runner retry.Runner) (local, remote map[notes.Key]notes.Metadata, err error) {
	timeout := it.MetadataTimeout
	if timeout <= 0 {
		timeout = DefaultMetadataTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		local, err = it.WorkingCopy.Scan(gctx)
		if err != nil {
			return fmt.Errorf("failed to scan working copy: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		remote, err = retry.Do(gctx, runner, it.Backend.ListMetadata)
		if err != nil {
			return fmt.Errorf("failed to list remote notes: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return local, remote, nil
}

// update fetches and saves targets in a bounded pool. Workers report over
// a channel to a single aggregator which owns the report.
func (it *Iteration) update(ctx context.Context, runner retry.Runner, targets map[notes.Key]notes.Metadata, report *Report) error {
	workers := it.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	outcomes := make(chan Outcome)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for o := range outcomes {
			report.add(o)
		}
	}()

	total := len(targets)
	var started atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for key, meta := range targets {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			n := started.Add(1)
			log := it.Logger.With().Str("key", string(key)).Logger()
			log.Info().Msgf("Getting note (%d/%d) contents...", n, total)

			o, err := it.updateNote(gctx, runner, key, meta, log)
			if err != nil {
				return err
			}
			outcomes <- o
			return nil
		})
	}
	err := g.Wait()
	close(outcomes)
	<-done

	if err != nil {
		return err
	}
	return ctx.Err()
}

func (it *Iteration) updateNote(ctx context.Context, runner retry.Runner, key notes.Key, meta notes.Metadata, log zerolog.Logger) (Outcome, error) {
	o := Outcome{Key: key, Meta: meta}

	note, err := retry.Do(ctx, runner, func(ctx context.Context) (*notes.Note, error) {
		return it.Backend.Fetch(ctx, key, meta, notes.ResourcesURL(key, meta))
	})
	if err != nil {
		if service.IsAuthError(err) {
			return o, err
		}
		log.Warn().Err(err).Msg("Unable to get the note")
		o.Kind, o.Err = Failed, err
		return o, nil
	}
	if note == nil {
		log.Warn().Msg("Backend returned no note")
		o.Kind, o.Err = Failed, ErrEmptyFetch
		return o, nil
	}

	if note.Version != meta.Version {
		log.Info().Str("listed", meta.Version).Str("fetched", note.Version).
			Msg("Skipping note because it has changed during sync")
		o.Kind = Changed
		return o, nil
	}

	if note.Key == "" {
		note.Key = key
	}
	if err := it.WorkingCopy.Save(note, meta); err != nil {
		log.Warn().Err(err).Msg("Unable to save the note")
		o.Kind, o.Err = Failed, err
		return o, nil
	}
	o.Kind = Saved
	return o, nil
}
