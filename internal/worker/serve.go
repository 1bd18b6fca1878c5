package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/council-scraper/internal/monitoring"
	"github.com/sells-group/council-scraper/internal/queue"
)

// settleTimeout bounds acks and nacks issued after ctx is cancelled.
const settleTimeout = 5 * time.Second

// Serve consumes tasks until ctx is cancelled, processing up to
// Concurrency tasks at once and reaping expired deliveries in the
// background. A failing task is nacked; it never stops the loop. Tasks cut
// short by cancellation stay in flight until their visibility timeout.
func (w *Worker) Serve(ctx context.Context, q queue.Consumer) error {
	log := zap.L().With(zap.String("component", "worker.serve"))
	log.Info("worker started",
		zap.Int("concurrency", w.opts.Concurrency),
		zap.Duration("poll_interval", w.opts.PollInterval),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.opts.Concurrency + 1)

	g.Go(func() error {
		w.reapLoop(gctx, q, log)
		return nil
	})
	for range w.opts.Concurrency {
		g.Go(func() error {
			for gctx.Err() == nil {
				processed, err := w.ProcessOne(gctx, q)
				if err != nil {
					log.Warn("receive failed", zap.Error(err))
				}
				if !processed {
					sleep(gctx, w.opts.PollInterval)
				}
			}
			return nil
		})
	}

	err := g.Wait()
	log.Info("worker stopped")
	return err
}

// ProcessOne receives and settles at most one task. It reports whether a
// task was processed; an empty queue is not an error.
func (w *Worker) ProcessOne(ctx context.Context, q queue.Consumer) (bool, error) {
	d, err := q.Receive(ctx)
	if errors.Is(err, queue.ErrEmpty) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	rep := w.Handle(ctx, d.Task)
	w.settle(ctx, q, d, rep)
	return true, nil
}

func (w *Worker) settle(ctx context.Context, q queue.Consumer, d *queue.Delivery, rep Report) {
	log := zap.L().With(
		zap.String("component", "worker"),
		zap.String("task_id", d.Task.ID),
		zap.String("council", d.Task.Council),
		zap.Int("attempt", d.Attempt),
		zap.String("status", string(rep.Status)),
	)

	if rep.Interrupted {
		monitoring.ObserveTask("interrupted")
		log.Warn("task interrupted, leaving delivery in flight")
		return
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	if rep.Status != StatusFailure {
		if err := q.Ack(sctx, d); err != nil {
			log.Error("ack failed", zap.Error(err))
			return
		}
		monitoring.ObserveTask("acked")
		log.Info("task done")
		return
	}

	dead, err := q.Nack(sctx, d)
	if err != nil {
		log.Error("nack failed", zap.Error(err))
		return
	}
	if dead {
		monitoring.ObserveTask("dead_lettered")
		log.Warn("task dead-lettered", zap.String("error", rep.Error))
		return
	}
	monitoring.ObserveTask("retried")
	log.Warn("task failed, will be redelivered", zap.String("error", rep.Error))
}

func (w *Worker) reapLoop(ctx context.Context, q queue.Consumer, log *zap.Logger) {
	ticker := time.NewTicker(w.opts.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := q.Reap(ctx)
			if err != nil {
				log.Warn("reap failed", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Info("reaped expired deliveries", zap.Int("count", n))
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
