package metadata

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/solatis/metasync/internal/rules"
)

// settleTimeout bounds the queue update that records an item's result once
// the worker context is gone.
const settleTimeout = 5 * time.Second

// WorkerConfig bounds how the worker drains the queue.
type WorkerConfig struct {
	Concurrency  int           // items processed in parallel, default 4
	BatchSize    int           // items fetched per poll, default 32
	PollInterval time.Duration // wait between empty polls, default 2s
}

// Worker drains deferred work through a Service.
type Worker struct {
	svc    *Service
	cfg    WorkerConfig
	logger *slog.Logger
}

// NewWorker creates a worker.
func NewWorker(svc *Service, cfg WorkerConfig, logger *slog.Logger) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{svc: svc, cfg: cfg, logger: logger}
}

// Run polls the queue until ctx is cancelled. A full batch is followed
// immediately by the next poll.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker: started",
		slog.Int("concurrency", w.cfg.Concurrency),
		slog.Int("batch_size", w.cfg.BatchSize),
		slog.Duration("poll_interval", w.cfg.PollInterval))

	for {
		n, err := w.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Error("worker: poll failed", slog.String("error", err.Error()))
		}
		if n == w.cfg.BatchSize && err == nil {
			continue
		}

		select {
		case <-ctx.Done():
			w.logger.Info("worker: stopped")
			return nil
		case <-time.After(w.cfg.PollInterval):
		}
	}
}

// RunOnce fetches one batch and processes it. It returns the number of items
// fetched. Failing items are marked failed and do not fail the batch. Items
// interrupted by cancellation go back to pending and the context error is
// returned, as are queue errors.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	items, err := w.svc.queue.Pending(ctx, w.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Concurrency)
	for _, item := range items {
		item := item
		g.Go(func() error {
			return w.process(gctx, item)
		})
	}
	return len(items), g.Wait()
}

func (w *Worker) process(ctx context.Context, item WorkItem) error {
	claimed, err := w.svc.queue.Claim(ctx, item.ID)
	if err != nil || !claimed {
		return err
	}

	logger := w.logger.With(
		slog.String("work_id", string(item.ID)),
		slog.String("document_id", string(item.Payload.DocumentID)))

	if item.Payload.Marker != rules.DeferredMarker {
		cause := errors.New("unknown deferred marker " + item.Payload.Marker)
		logger.Error("worker: rejected item", slog.String("error", cause.Error()))
		return settle(ctx, func(ctx context.Context) error {
			return w.svc.queue.Fail(ctx, item.ID, cause)
		})
	}

	start := time.Now()
	outcomes, err := w.svc.ProcessDeferred(ctx, item.Payload)
	if err != nil && ctx.Err() != nil {
		logger.Info("worker: item interrupted, released", slog.String("error", err.Error()))
		if rerr := settle(ctx, func(ctx context.Context) error {
			return w.svc.queue.Release(ctx, item.ID, err)
		}); rerr != nil {
			return rerr
		}
		return ctx.Err()
	}
	if err != nil {
		logger.Error("worker: item failed", slog.String("error", err.Error()))
		return settle(ctx, func(ctx context.Context) error {
			return w.svc.queue.Fail(ctx, item.ID, err)
		})
	}

	logger.Debug("worker: item done",
		slog.Int("mappings", len(outcomes)),
		slog.Duration("elapsed", time.Since(start)))
	return settle(ctx, func(ctx context.Context) error {
		return w.svc.queue.Complete(ctx, item.ID)
	})
}

// settle runs a queue result update on a context that outlives
// cancellation of ctx, so no item is left running.
func settle(ctx context.Context, update func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()
	return update(ctx)
}
