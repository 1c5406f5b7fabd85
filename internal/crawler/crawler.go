// Package crawler contains the cephgeorep Poll Loop orchestrator. It wires
// together the Watermark Cell, Snapshot Manager, Filter, Walker, and Syncer,
// managing their lifecycle through a shared context. See spec.md §4.6.
package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	humanize "github.com/dustin/go-humanize"

	"github.com/zenjabba/cephgeorep/internal/config"
	"github.com/zenjabba/cephgeorep/internal/filter"
	"github.com/zenjabba/cephgeorep/internal/ledger"
	"github.com/zenjabba/cephgeorep/internal/metrics"
	"github.com/zenjabba/cephgeorep/internal/rctime"
	"github.com/zenjabba/cephgeorep/internal/snapshot"
	"github.com/zenjabba/cephgeorep/internal/syncer"
	"github.com/zenjabba/cephgeorep/internal/walker"
	"github.com/zenjabba/cephgeorep/internal/watermark"
)

// Cell is the subset of *watermark.Cell the Poll Loop depends on.
type Cell interface {
	Rctime() rctime.Time
	Update(rctime.Time)
	Flush() error
	MaybeFlush() (bool, error)
	CheckForChange(root string) (rctime.Time, bool, error)
	IsNewer(path string, isSymlink bool) bool
}

var _ Cell = (*watermark.Cell)(nil)

// CycleStatus is an in-memory snapshot of the most recent cycle's outcome,
// served by the Status Server.
type CycleStatus struct {
	LastCycleAt   time.Time      `json:"last_cycle_at,omitempty"`
	LastOutcome   ledger.Outcome `json:"last_outcome,omitempty"`
	LastWatermark string         `json:"last_watermark,omitempty"`
	FileCount     int            `json:"file_count"`
	TotalBytes    uint64         `json:"total_bytes"`
	CyclesRun     int64          `json:"cycles_run"`
}

// Crawler is the central orchestrator of the crawl daemon: it drives the
// Poll Loop and supervises the Syncer, Cycle Ledger, and cycle metrics.
type Crawler struct {
	cfg    *config.Config
	logger *slog.Logger
	cell   Cell
	syncer syncer.Syncer
	ledger *ledger.Ledger
	metric *metrics.Registry

	startTime time.Time

	mu     sync.RWMutex
	status CycleStatus
}

// Option is a functional option for Crawler construction.
type Option func(*Crawler)

// WithSyncer registers the Syncer implementation used to hand off file
// lists. Required for any run that isn't dry-run only.
func WithSyncer(s syncer.Syncer) Option {
	return func(c *Crawler) { c.syncer = s }
}

// WithLedger registers a Cycle Ledger; if omitted, cycles are not recorded.
func WithLedger(l *ledger.Ledger) Option {
	return func(c *Crawler) { c.ledger = l }
}

// WithMetrics registers a metrics.Registry; if omitted, metrics are not
// recorded.
func WithMetrics(m *metrics.Registry) Option {
	return func(c *Crawler) { c.metric = m }
}

// New creates a Crawler from cfg, cell, and logger. Components beyond the
// required Watermark Cell are supplied via options.
func New(cfg *config.Config, cell Cell, logger *slog.Logger, opts ...Option) *Crawler {
	c := &Crawler{
		cfg:    cfg,
		cell:   cell,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run drives the Poll Loop. If seed or dryRun is true, it executes exactly
// one cycle and returns; otherwise it loops until ctx is cancelled.
//
// Steps follow spec.md §4.6 exactly; see runOneCycle for the per-cycle body.
func (c *Crawler) Run(ctx context.Context, seed, dryRun bool) error {
	c.startTime = time.Now()

	var seedDryRunCache rctime.Time
	if seed && dryRun {
		seedDryRunCache = c.cell.Rctime()
	}
	if seed {
		c.cell.Update(rctime.Seed)
	}

	c.logger.Info("watching tree", slog.String("base_path", c.cfg.BasePath))

	for {
		cycleStart := time.Now()
		if err := c.runOneCycle(ctx, dryRun); err != nil {
			if ctx.Err() != nil {
				break
			}
			return err
		}

		if seed || dryRun {
			break
		}
		if ctx.Err() != nil {
			break
		}

		elapsed := time.Since(cycleStart)
		remaining := c.cfg.SyncPeriod() - elapsed
		if remaining > 0 {
			select {
			case <-time.After(remaining):
			case <-ctx.Done():
				return nil
			}
		}
	}

	if seed && dryRun {
		c.cell.Update(seedDryRunCache)
	}
	return nil
}

// runOneCycle executes steps 4 through 10 of the Poll Loop for a single
// cycle.
func (c *Crawler) runOneCycle(ctx context.Context, dryRun bool) error {
	cycleStart := time.Now()
	oldWatermark := c.cell.Rctime()

	c.logger.Debug("checking for change")
	newRctime, changed, err := c.cell.CheckForChange(c.cfg.BasePath)
	if err != nil {
		return fmt.Errorf("crawler: %w", err)
	}
	if !changed {
		c.recordCycle(ledger.CycleEntry{
			OldRctime: oldWatermark,
			NewRctime: oldWatermark,
			Outcome:   ledger.OutcomeNoChange,
		}, cycleStart)
		return nil
	}

	c.logger.Info("change detected", slog.String("base_path", c.cfg.BasePath))

	h, err := snapshot.Create(c.cfg.BasePath, newRctime, c.logger)
	if err != nil {
		c.logger.Error("snapshot creation failed, proceeding with empty walk", slog.Any("error", err))
		c.recordCycle(ledger.CycleEntry{
			OldRctime: oldWatermark,
			NewRctime: oldWatermark,
			Outcome:   ledger.OutcomeNoChange,
		}, cycleStart)
		return nil
	}

	select {
	case <-time.After(c.cfg.PropDelay()):
	case <-ctx.Done():
		_ = snapshot.Destroy(h, c.logger)
		return nil
	}

	fresh := filter.New(c.cfg.IgnoreHidden, c.cfg.IgnoreWinLock, c.cfg.IgnoreVimSwap, c.cell)

	var res walker.Result
	if c.cfg.Threads <= 1 {
		res, err = walker.WalkDFS(ctx, h.Path, fresh, c.logger)
	} else {
		res, err = walker.WalkBFS(ctx, h.Path, c.cfg.Threads, fresh, c.logger)
	}
	if err != nil {
		_ = snapshot.Destroy(h, c.logger)
		return fmt.Errorf("crawler: walk: %w", err)
	}

	c.logger.Info("files to sync",
		slog.Int("count", len(res.Files)),
		slog.Uint64("total_bytes", res.TotalBytes),
		slog.String("total_size", humanize.Bytes(res.TotalBytes)))

	outcome := ledger.OutcomeNoChange
	if len(res.Files) > 0 {
		if dryRun {
			dest := "<none>"
			if c.syncer != nil {
				dest = c.syncer.Destination()
			}
			c.logger.Info("dry run: would invoke syncer",
				slog.String("exec_bin", c.cfg.ExecBin),
				slog.String("exec_flags", c.cfg.ExecFlags),
				slog.String("destination", dest))
			outcome = ledger.OutcomeDryRun
		} else if c.syncer != nil {
			if err := c.syncer.Sync(ctx, res.Files, res.TotalBytes); err != nil {
				c.logger.Error("syncer failed, watermark will not advance", slog.Any("error", err))
				if c.metric != nil {
					c.metric.SyncFailuresTotal.Add(1)
				}
				_ = snapshot.Destroy(h, c.logger)
				c.recordCycle(ledger.CycleEntry{
					OldRctime:  oldWatermark,
					NewRctime:  oldWatermark,
					FileCount:  len(res.Files),
					TotalBytes: res.TotalBytes,
					Outcome:    ledger.OutcomeSyncFailed,
				}, cycleStart)
				return nil
			}
			outcome = ledger.OutcomeSynced
		} else {
			_ = snapshot.Destroy(h, c.logger)
			return fmt.Errorf("crawler: no syncer configured, watermark not advanced")
		}
	}

	if err := snapshot.Destroy(h, c.logger); err != nil {
		c.logger.Error("snapshot deletion failed", slog.Any("error", err))
	}

	newWatermark := oldWatermark
	if !dryRun {
		c.cell.Update(newRctime)
		newWatermark = newRctime
		if _, err := c.cell.MaybeFlush(); err != nil {
			c.logger.Error("watermark flush failed", slog.Any("error", err))
		}
	}

	c.recordCycle(ledger.CycleEntry{
		OldRctime:  oldWatermark,
		NewRctime:  newWatermark,
		FileCount:  len(res.Files),
		TotalBytes: res.TotalBytes,
		Outcome:    outcome,
	}, cycleStart)

	return nil
}

// recordCycle appends a ledger entry (if a ledger is configured), updates
// cycle metrics (if a registry is configured), and refreshes the in-memory
// CycleStatus served by the Status Server.
func (c *Crawler) recordCycle(entry ledger.CycleEntry, cycleStart time.Time) {
	duration := time.Since(cycleStart)

	if c.ledger != nil {
		if _, err := c.ledger.Record(entry); err != nil {
			c.logger.Error("failed to record cycle in ledger", slog.Any("error", err))
		}
	}

	if c.metric != nil {
		c.metric.CyclesTotal.Add(1)
		if entry.Outcome != ledger.OutcomeNoChange {
			c.metric.CyclesWithChangeTotal.Add(1)
		}
		if entry.Outcome != ledger.OutcomeDryRun {
			c.metric.FilesSyncedTotal.Add(int64(entry.FileCount))
			c.metric.BytesSyncedTotal.Add(int64(entry.TotalBytes))
		}
		c.metric.LastCycleDurationMillis.Store(duration.Milliseconds())
	}

	c.mu.Lock()
	c.status = CycleStatus{
		LastCycleAt:   time.Now(),
		LastOutcome:   entry.Outcome,
		LastWatermark: entry.NewRctime.String(),
		FileCount:     entry.FileCount,
		TotalBytes:    entry.TotalBytes,
		CyclesRun:     c.status.CyclesRun + 1,
	}
	c.mu.Unlock()
}

// Status returns a snapshot of the most recently completed cycle.
func (c *Crawler) Status() CycleStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// HealthzHandler responds 200 OK with a minimal liveness payload.
func (c *Crawler) HealthzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// StatusHandler responds 200 OK with the current CycleStatus as JSON.
func (c *Crawler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(c.Status()); err != nil {
		c.logger.Warn("status: failed to encode response", slog.Any("error", err))
	}
}
