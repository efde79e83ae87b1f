// Package tasks runs best-effort background work that must not fail the request that scheduled it.
package tasks

import (
	"context"
	"fmt"
	"github.com/myrjola/casefile/internal/errors"
	"log/slog"
	"sync"
	"time"
)

// Task is a unit of background work.
type Task func(ctx context.Context) error

// Runner executes scheduled tasks on their own goroutines.
//
// Tasks run detached from the scheduling request's cancellation but keep its context values, and each gets its own
// timeout. Failures and panics are logged, never propagated.
type Runner struct {
	wg      sync.WaitGroup
	timeout time.Duration
	logger  *slog.Logger
}

func NewRunner(timeout time.Duration, logger *slog.Logger) *Runner {
	return &Runner{
		wg:      sync.WaitGroup{},
		timeout: timeout,
		logger:  logger.With(slog.String("source", "tasks.Runner")),
	}
}

// Schedule starts task in the background.
func (r *Runner) Schedule(ctx context.Context, name string, task Task) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		r.run(taskCtx, name, task)
	}()
}

func (r *Runner) run(ctx context.Context, name string, task Task) {
	start := time.Now()
	defer func() {
		if recovered := recover(); recovered != nil {
			err := errors.New("task panicked", slog.String("panic", fmt.Sprint(recovered)))
			r.logger.LogAttrs(ctx, slog.LevelError, "background task failed", slog.String("task", name),
				errors.SlogError(err))
		}
	}()
	if err := task(ctx); err != nil {
		r.logger.LogAttrs(ctx, slog.LevelError, "background task failed", slog.String("task", name),
			errors.SlogError(err))
		return
	}
	r.logger.LogAttrs(ctx, slog.LevelDebug, "background task done", slog.String("task", name),
		slog.Duration("duration", time.Since(start)))
}

// Wait blocks until all scheduled tasks have finished or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "wait for background tasks")
	}
}
