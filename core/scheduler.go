package core

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// jobRunner is one named, independently-ticking background job. Each job
// tracks its own busy flag so a slow run of one job never delays or skips
// another — the same per-loop ticker/ctx.Done shape as
// HealthLogger.RunMetricsCollector, just with a skip-if-busy guard layered
// on for jobs whose work can occasionally outlast their interval.
type jobRunner struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context)
	busy     atomic.Bool
	metrics  *Metrics
	log      *zap.SugaredLogger
}

func (j *jobRunner) start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			j.tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (j *jobRunner) tick(ctx context.Context) {
	if !j.busy.CompareAndSwap(false, true) {
		j.metrics.SchedulerSkips.WithLabelValues(j.name).Inc()
		j.log.Debugw("skipped scheduled run, previous run still in progress", "job", j.name)
		return
	}
	defer j.busy.Store(false)

	start := time.Now()
	j.run(ctx)
	j.log.Debugw("scheduled job completed", "job", j.name, "duration", time.Since(start))
}

// Scheduler owns seven periodic jobs: market sync, stale-market sync,
// market discovery, dispute-window sweep, finalization sweep,
// stale-proposal check, and sync-log cleanup.
type Scheduler struct {
	jobs []*jobRunner
}

// SchedulerConfig bundles the intervals and dependent services a Scheduler
// needs to build its job set.
type SchedulerConfig struct {
	MarketSyncInterval    time.Duration
	DisputeWindowInterval time.Duration
	FinalizationInterval  time.Duration
	StaleProposalInterval time.Duration
	LogCleanupInterval    time.Duration
	StaleMarketAfter      time.Duration
	SyncLogRetention      time.Duration
}

// NewScheduler builds the full job set, wiring each job's run function to
// the relevant service and recording its metrics through m.
func NewScheduler(cfg SchedulerConfig, store Store, sync *SyncService, fin *FinalizationService, m *Metrics, log *zap.SugaredLogger) *Scheduler {
	sugared := log

	jobs := []*jobRunner{
		{
			name:     "market_sync",
			interval: cfg.MarketSyncInterval,
			metrics:  m,
			log:      sugared,
			run: func(ctx context.Context) {
				synced, failed := sync.SyncAll(ctx)
				if failed > 0 {
					m.SyncErrorsTotal.Add(float64(failed))
				}
				sugared.Infow("market sync sweep complete", "synced", synced, "failed", failed)
			},
		},
		{
			name:     "stale_market_sync",
			interval: cfg.StaleProposalInterval,
			metrics:  m,
			log:      sugared,
			run: func(ctx context.Context) {
				cutoff := time.Now().Add(-cfg.StaleMarketAfter).UTC()
				synced, failed := sync.StaleMarkets(ctx, cutoff)
				if failed > 0 {
					m.SyncErrorsTotal.Add(float64(failed))
				}
				sugared.Infow("stale market sync complete", "synced", synced, "failed", failed)
			},
		},
		{
			name:     "discover_markets",
			interval: cfg.MarketSyncInterval,
			metrics:  m,
			log:      sugared,
			run: func(ctx context.Context) {
				discovered, err := sync.DiscoverNewMarkets(ctx)
				if err != nil {
					sugared.Errorw("discover new markets failed", "error", err)
					return
				}
				if discovered > 0 {
					sugared.Infow("discovered new markets", "count", discovered)
				}
			},
		},
		{
			name:     "dispute_window_sweep",
			interval: cfg.DisputeWindowInterval,
			metrics:  m,
			log:      sugared,
			run: func(ctx context.Context) {
				enqueued := fin.CheckDisputeWindows(ctx)
				if enqueued > 0 {
					sugared.Infow("dispute windows closed, enqueued for finalization", "count", enqueued)
				}
			},
		},
		{
			name:     "finalization_sweep",
			interval: cfg.FinalizationInterval,
			metrics:  m,
			log:      sugared,
			run: func(ctx context.Context) {
				finalized, failed := fin.ProcessQueue(ctx)
				m.FinalizationsOK.Add(float64(finalized))
				m.FinalizationsFail.Add(float64(failed))
				if finalized > 0 || failed > 0 {
					sugared.Infow("finalization sweep complete", "finalized", finalized, "failed", failed)
				}
			},
		},
		{
			name:     "stale_proposal_check",
			interval: cfg.StaleProposalInterval,
			metrics:  m,
			log:      sugared,
			run: func(ctx context.Context) {
				flagged := fin.CheckOldProposals(ctx)
				if flagged > 0 {
					sugared.Warnw("stale proposals flagged", "count", flagged)
				}
			},
		},
		{
			name:     "sync_log_cleanup",
			interval: cfg.LogCleanupInterval,
			metrics:  m,
			log:      sugared,
			run: func(ctx context.Context) {
				cutoff := time.Now().Add(-cfg.SyncLogRetention).UTC()
				deleted, err := store.DeleteOldSyncLogs(ctx, cutoff)
				if err != nil {
					sugared.Errorw("sync log cleanup failed", "error", err)
					return
				}
				if deleted > 0 {
					sugared.Infow("sync log cleanup complete", "deleted", deleted)
				}
			},
		},
	}

	return &Scheduler{jobs: jobs}
}

// Start launches every job on its own goroutine; they all stop when ctx is
// canceled.
func (s *Scheduler) Start(ctx context.Context) {
	for _, j := range s.jobs {
		go j.start(ctx)
	}
}
