// Package syncer reconciles a remote note store with the working tree.
//
// Overview
//
// Every pass runs inside one git transaction:
//
//	  Backend.ListMetadata      WorkingCopy.Scan
//	           \                    /
//	            +--- CalculateChanges ---+
//	                       |
//	            WorkingCopy.Delete (removed and moved notes)
//	                       |
//	       worker pool: Fetch (retried) -> version check -> Save
//	                       |
//	                 index.html rebuild
//	                       |
//	            Transaction.End (commit, push)
//
// A note which changed remotely while the pass was running is not saved
// and the pass is reported as not converged. Syncer.Run repeats passes
// until one converges.
//
// Usage
//
//	s := &syncer.Syncer{
//	    Store:   syncer.GitStore(repo),
//	    Backend: backend,
//	    Logger:  logger,
//	}
//	summary, err := s.Run(ctx)
//	if errors.Is(err, syncer.ErrSyncFailed) {
//	    // some notes could not be fetched, the rest was committed
//	}
package syncer
