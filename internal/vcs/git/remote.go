package git

import (
	"context"
	"fmt"
	"strings"

	"github.com/synctogit/synctogit/internal/vcs"
)

// Push pushes a branch to the remote
func (g *Git) Push(ctx context.Context, opts vcs.PushOptions) error {
	if opts.Remote == "" {
		return vcs.ErrNoRemote
	}

	// Determine ref
	ref := opts.Ref
	if ref == "" {
		// Use current branch
		var err error
		ref, err = g.CurrentBranch(ctx)
		if err != nil {
			return err
		}
		if ref == "" {
			return vcs.ErrDetached
		}
	}

	_, err := g.run(ctx, PushTimeout, "push", opts.Remote, ref)
	if err != nil {
		msg := err.Error()

		// Check for push rejection
		if strings.Contains(msg, "rejected") || strings.Contains(msg, "non-fast-forward") {
			return fmt.Errorf("%w: %v", vcs.ErrPushRejected, err)
		}

		return err
	}

	return nil
}
