// Package ledger is the Cycle Ledger: a tamper-evident, hash-chained record
// of every poll cycle's watermark transition, built on the audit package's
// generic hash-chained log.
package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/zenjabba/cephgeorep/internal/audit"
	"github.com/zenjabba/cephgeorep/internal/rctime"
)

// Outcome classifies how a poll cycle ended.
type Outcome string

const (
	// OutcomeNoChange means no file was handed off: the tree's rctime did
	// not exceed the watermark, the snapshot could not be created, or the
	// walk found no new files. Only in the last case does the watermark
	// advance.
	OutcomeNoChange Outcome = "no_change"
	// OutcomeSynced means the Syncer ran and reported success; the
	// watermark advanced.
	OutcomeSynced Outcome = "synced"
	// OutcomeSyncFailed means the Syncer reported failure; the watermark
	// did not advance.
	OutcomeSyncFailed Outcome = "sync_failed"
	// OutcomeDryRun means the cycle ran in dry-run mode; no Syncer was
	// invoked and the watermark was not advanced.
	OutcomeDryRun Outcome = "dry_run"
)

// CycleEntry is the payload recorded for one poll cycle.
type CycleEntry struct {
	OldRctime  rctime.Time `json:"old_rctime"`
	NewRctime  rctime.Time `json:"new_rctime"`
	FileCount  int         `json:"file_count"`
	TotalBytes uint64      `json:"total_bytes"`
	Outcome    Outcome     `json:"outcome"`
}

// Ledger is the Cycle Ledger, backed by an [audit.Logger].
type Ledger struct {
	logger *audit.Logger
}

// Open opens (or creates and extends) the hash chain at path.
func Open(path string) (*Ledger, error) {
	l, err := audit.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	return &Ledger{logger: l}, nil
}

// Record appends one cycle's outcome to the ledger.
func (l *Ledger) Record(c CycleEntry) (audit.Entry, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return audit.Entry{}, fmt.Errorf("ledger: marshal cycle entry: %w", err)
	}
	e, err := l.logger.Append(payload)
	if err != nil {
		return audit.Entry{}, fmt.Errorf("ledger: record: %w", err)
	}
	return e, nil
}

// Close releases the underlying log file.
func (l *Ledger) Close() error {
	return l.logger.Close()
}

// Verify checks the full hash chain at path and decodes each entry's payload
// back into a CycleEntry.
func Verify(path string) ([]CycleEntry, error) {
	entries, err := audit.Verify(path)
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	out := make([]CycleEntry, len(entries))
	for i, e := range entries {
		if err := json.Unmarshal(e.Payload, &out[i]); err != nil {
			return nil, fmt.Errorf("ledger: decode entry at seq %d: %w", e.Seq, err)
		}
	}
	return out, nil
}
