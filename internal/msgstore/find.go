package msgstore

import (
	"github.com/hashicorp/go-multierror"

	"github.com/sdrees/vernemq/pkg/id"
)

// FindMode selects the find strategy.
type FindMode int

const (
	// FindOther always performs a full cross-bucket scan.
	FindOther FindMode = iota
	// FindQueueInit first harvests the entries staged by startup recovery;
	// the full scan runs only when that fast path comes back empty. The mode
	// is callable repeatedly: once the recovery entries are consumed, later
	// calls behave exactly like FindOther.
	FindQueueInit
)

// find runs one find operation for a subscriber: harvest the recovery
// staging on the queue-init fast path, otherwise fan out to every
// registered bucket under a fresh scan-id and harvest the result.
// Unregistered buckets are skipped; storage errors from reachable buckets
// aggregate and fail the call.
func (s *Store) find(sub SubscriberID, mode FindMode) ([]id.Ref, error) {
	if mode == FindQueueInit {
		if refs := s.staging.Harvest(InitScanID, sub); len(refs) > 0 {
			return refs, nil
		}
	}

	scanID := s.scanIDs.Next()
	var errs *multierror.Error
	for _, b := range s.registry.Buckets() {
		if err := b.scanSubscriber(scanID, sub); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		// Drop partial results; callers must never see an incomplete backlog.
		_ = s.staging.Harvest(scanID, sub)
		return nil, err
	}
	return s.staging.Harvest(scanID, sub), nil
}
