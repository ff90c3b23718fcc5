package ui

import (
	"github.com/linuxmatters/bang/internal/processor"
)

// SnapshotMsg carries a progress snapshot from the detection loop
type SnapshotMsg processor.Snapshot

// DoneMsg signals that the detection loop has stopped
type DoneMsg struct {
	Stats *processor.Stats
	Err   error
}
