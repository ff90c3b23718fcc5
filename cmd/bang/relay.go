package main

import "github.com/linuxmatters/bang/internal/processor"

// snapshotRelay hands progress from the detection loop to the monitor without
// ever blocking the loop. At most one snapshot is pending; a newer one
// replaces it and keeps its fire flags.
type snapshotRelay struct {
	pending chan processor.Snapshot
}

func newSnapshotRelay() *snapshotRelay {
	return &snapshotRelay{pending: make(chan processor.Snapshot, 1)}
}

// Offer queues s. It must only be called from one goroutine.
func (r *snapshotRelay) Offer(s processor.Snapshot) {
	select {
	case r.pending <- s:
		return
	default:
	}

	select {
	case old := <-r.pending:
		for i := range s.Fired {
			if i < len(old.Fired) && old.Fired[i] {
				s.Fired[i] = true
			}
		}
	default:
	}

	select {
	case r.pending <- s:
	default:
	}
}

// Close ends Snapshots once the pending snapshot has been taken
func (r *snapshotRelay) Close() { close(r.pending) }

// Snapshots yields queued snapshots until Close
func (r *snapshotRelay) Snapshots() <-chan processor.Snapshot { return r.pending }
