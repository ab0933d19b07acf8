package worker

import (
	"context"
	"time"

	"github.com/secmon-lab/punchcard/pkg/usecase"
	"github.com/secmon-lab/punchcard/pkg/utils/logging"
)

// Sweeper runs one sweep over every organization
type Sweeper interface {
	Run(ctx context.Context, opts usecase.SweepOptions) (*usecase.SweepReport, error)
}

// StaleSessionWorker periodically reports abandoned sessions and reconciles
// the session store against the ledger.
//
// Architecture assumptions:
// - Sweeps are idempotent, so several instances may run it concurrently
// - Marking rows is opt-in because it rewrites ledger cells
type StaleSessionWorker struct {
	sweeper  Sweeper
	interval time.Duration
	opts     usecase.SweepOptions
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewStaleSessionWorker creates a worker that sweeps every interval
func NewStaleSessionWorker(sweeper Sweeper, interval time.Duration, opts usecase.SweepOptions) *StaleSessionWorker {
	return &StaleSessionWorker{
		sweeper:  sweeper,
		interval: interval,
		opts:     opts,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background sweep loop without blocking server startup
func (w *StaleSessionWorker) Start(ctx context.Context) error {
	logging.Default().Info("stale session worker starting",
		"interval", w.interval.String(),
		"mark_abandoned", w.opts.MarkAbandoned)

	go w.run(ctx)

	return nil
}

// Stop signals the worker to stop and waits for the running sweep
func (w *StaleSessionWorker) Stop() {
	logging.Default().Info("stale session worker stopping")
	close(w.stopCh)
	<-w.doneCh
	logging.Default().Info("stale session worker stopped")
}

func (w *StaleSessionWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	w.sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.sweep(ctx)

		case <-w.stopCh:
			logging.Default().Info("stale session worker received stop signal")
			return

		case <-ctx.Done():
			logging.Default().Info("stale session worker context cancelled")
			return
		}
	}
}

func (w *StaleSessionWorker) sweep(ctx context.Context) {
	startTime := time.Now()
	report, err := w.sweeper.Run(ctx, w.opts)
	if err != nil {
		// next tick retries
		logging.Default().Error("stale session sweep failed (will retry next interval)",
			"error", err.Error())
		return
	}

	logging.Default().Info("stale session sweep completed",
		"stale", len(report.Stale),
		"released", report.Released,
		"duration", time.Since(startTime).String())
}
