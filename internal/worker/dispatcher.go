package worker

import (
	"context"
	"time"

	"github.com/fibhq/outbox-bridge/internal/dispatcher"
	"github.com/fibhq/outbox-bridge/internal/service/outbox"
	"go.uber.org/zap"
)

// DispatcherWorker runs the dispatch loop: every poll interval it drains one
// batch, and every sweep interval it releases expired claims left behind by
// crashed workers.
type DispatcherWorker struct {
	Dispatch *dispatcher.Dispatcher
	Outbox   *outbox.Service
	Log      *zap.Logger

	PollInterval  time.Duration
	SweepInterval time.Duration
}

func NewDispatcherWorker(d *dispatcher.Dispatcher, svc *outbox.Service, log *zap.Logger, poll, sweep time.Duration) *DispatcherWorker {
	if log == nil {
		log = zap.NewNop()
	}
	if poll <= 0 {
		poll = 5 * time.Second
	}
	if sweep <= 0 {
		sweep = time.Minute
	}
	return &DispatcherWorker{
		Dispatch:      d,
		Outbox:        svc,
		Log:           log,
		PollInterval:  poll,
		SweepInterval: sweep,
	}
}

// Run blocks until ctx is cancelled. A failing cycle is logged and retried
// on the next tick; the loop never exits on a transient error.
func (w *DispatcherWorker) Run(ctx context.Context) error {
	w.Log.Info("dispatcher worker started",
		zap.Duration("poll_interval", w.PollInterval),
		zap.Duration("sweep_interval", w.SweepInterval))

	poll := time.NewTicker(w.PollInterval)
	defer poll.Stop()

	sweep := time.NewTicker(w.SweepInterval)
	defer sweep.Stop()

	// drain immediately on startup instead of waiting one interval
	w.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			w.Log.Info("dispatcher worker stopping")
			return ctx.Err()
		case <-poll.C:
			w.runCycle(ctx)
		case <-sweep.C:
			if _, err := w.Outbox.ResetExpiredLocks(ctx); err != nil && ctx.Err() == nil {
				w.Log.Error("lock sweep failed", zap.Error(err))
			}
		}
	}
}

func (w *DispatcherWorker) runCycle(ctx context.Context) {
	res, err := w.Dispatch.DispatchBatch(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.Log.Error("dispatch cycle failed", zap.Error(err))
		}
		return
	}

	if res.Claimed > 0 || res.Seeded > 0 {
		w.Log.Info("dispatch cycle done",
			zap.Int("seeded", res.Seeded),
			zap.Int("claimed", res.Claimed),
			zap.Int("published", res.Published),
			zap.Int("retried", res.Retried),
			zap.Int("dead", res.Dead))
	}
}
