package syncer

import (
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/synctogit/synctogit/internal/notes"
)

// OutcomeKind classifies the result of a single note update.
type OutcomeKind int

const (
	// Saved means the note was fetched and written.
	Saved OutcomeKind = iota
	// Failed means fetching or writing the note failed.
	Failed
	// Changed means the note changed remotely while the pass was running.
	Changed
)

func (k OutcomeKind) String() string {
	switch k {
	case Saved:
		return "saved"
	case Failed:
		return "failed"
	case Changed:
		return "changed"
	default:
		return "unknown"
	}
}

// Outcome is reported by a worker for every note it processed.
type Outcome struct {
	Key  notes.Key
	Meta notes.Metadata
	Kind OutcomeKind
	Err  error
}

// Report describes a single pass.
type Report struct {
	Changeset notes.Changeset

	Saved   []notes.Key
	Failed  []notes.Key
	Changed []notes.Key

	// Converged is false when a note changed remotely during the pass.
	Converged bool

	Started  time.Time
	Finished time.Time
}

func (r *Report) add(o Outcome) {
	switch o.Kind {
	case Saved:
		r.Saved = append(r.Saved, o.Key)
	case Failed:
		r.Failed = append(r.Failed, o.Key)
	case Changed:
		r.Changed = append(r.Changed, o.Key)
		r.Converged = false
	}
}

func (r *Report) sort() {
	slices.Sort(r.Saved)
	slices.Sort(r.Failed)
	slices.Sort(r.Changed)
}

// Log prints the targets of the pass and its results.
func (r Report) Log(logger zerolog.Logger) {
	logger.Info().
		Int("delete", len(r.Changeset.Delete)).
		Int("create", len(r.Changeset.New)).
		Int("update", len(r.Changeset.Update)).
		Msgf("Target was: delete: %d, create: %d, update: %d",
			len(r.Changeset.Delete), len(r.Changeset.New), len(r.Changeset.Update))
	logger.Info().
		Int("saved", len(r.Saved)).
		Int("failed", len(r.Failed)).
		Msgf("Result: saved: %d, failed: %d", len(r.Saved), len(r.Failed))
}

// Summary describes a whole run.
type Summary struct {
	// Passes holds the report of every pass that got past Begin.
	Passes []Report
}

// Last returns the report of the final pass.
func (s Summary) Last() Report {
	if len(s.Passes) == 0 {
		return Report{}
	}
	return s.Passes[len(s.Passes)-1]
}
