package worker

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"forge/internal/pkg/logger"
	"forge/internal/renderer"
)

// Run pops renderer ids off the poll queue and follows each render to its
// terminal state, reporting the outcome to the orchestrator. Concurrent
// renders are bounded by Deps.Concurrency.
func Run(ctx context.Context, d Deps) error {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("worker")

	if d.PollInterval <= 0 {
		d.PollInterval = 2 * time.Second
	}
	if d.PollTimeout <= 0 {
		d.PollTimeout = 30 * time.Minute
	}
	if d.Concurrency <= 0 {
		d.Concurrency = 4
	}

	q := NewRedisQueue(d.RDB, d.QueueName)
	sem := make(chan struct{}, d.Concurrency)

	for {
		select {
		case <-ctx.Done():
			log.Info("worker context canceled, stopping")
			return ctx.Err()
		default:
		}

		// Use a separate context with timeout for queue operations
		popCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		rendererID, err := q.Pop(popCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				log.Info("worker stopping due to context cancellation")
				return ctx.Err()
			}
			// An idle queue is normal: the pop deadline expires (or BRPOP
			// reports no element) and the loop goes around again.
			if idlePopErr(err) {
				continue
			}
			log.Warn("queue pop error, retrying", "error", err.Error())
			time.Sleep(1 * time.Second)
			continue
		}

		if rendererID == "" {
			continue
		}

		sem <- struct{}{}
		go func(rendererID string) {
			defer func() { <-sem }()
			followRender(ctx, d, log, rendererID)
		}(rendererID)
	}
}

// idlePopErr reports whether a queue pop failed only because nothing was
// queued within the pop window.
func idlePopErr(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, redis.Nil)
}

// followRender polls the renderer until the request reaches a terminal
// state or the poll window closes, then records the outcome.
func followRender(ctx context.Context, d Deps, log *logger.Logger, rendererID string) {
	log = &logger.Logger{Logger: log.Logger.With("renderer_id", rendererID)}
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, d.PollTimeout)
	defer cancel()

	ticker := time.NewTicker(d.PollInterval)
	defer ticker.Stop()

	markedProcessing := false

	for {
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				if _, err := d.Orchestrator.Complete(context.WithoutCancel(ctx), rendererID, false, nil, "render timed out"); err != nil {
					log.Error("recording render timeout failed", "error", err.Error())
				}
				log.Warn("render timed out", "duration_ms", time.Since(start).Milliseconds())
			}
			return
		case <-ticker.C:
		}

		st, err := d.Renderer.PollStatus(ctx, d.RendererBaseURL, rendererID)
		if err != nil {
			log.Warn("status poll failed, retrying", "error", err.Error())
			continue
		}

		switch st.State {
		case renderer.StateQueued:
			continue

		case renderer.StateRunning:
			if !markedProcessing {
				if _, err := d.Orchestrator.MarkProcessingByRendererID(ctx, rendererID); err != nil {
					log.Warn("marking processing failed", "error", err.Error())
				} else {
					markedProcessing = true
				}
			}

		case renderer.StateDone:
			if _, err := d.Orchestrator.Complete(ctx, rendererID, true, st.OutputRefs, ""); err != nil {
				log.Error("completion failed", "error", err.Error())
			} else {
				log.Info("render completed",
					"outputs", len(st.OutputRefs),
					"duration_ms", time.Since(start).Milliseconds(),
				)
			}
			return

		case renderer.StateError:
			if _, err := d.Orchestrator.Complete(ctx, rendererID, false, nil, st.Message); err != nil {
				log.Error("recording render failure failed", "error", err.Error())
			} else {
				log.Info("render failed",
					"duration_ms", time.Since(start).Milliseconds(),
				)
			}
			return
		}
	}
}
