package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voicelingua/voicelingua/internal/logger"
	"github.com/voicelingua/voicelingua/internal/service"
)

// Inproc is a Dispatcher that executes tasks on an in-process worker pool
// with the same retry and abandonment semantics as the Redis-backed server.
// It backs single-binary deployments and tests.
//
// Each enqueue starts a goroutine that waits for a pool slot, so a handler
// enqueuing follow-up work (fan-out, packaging) never deadlocks the pool.
type Inproc struct {
	handlers Handlers
	slots    chan struct{}
	maxRetry int
	base     time.Duration
	cap      time.Duration

	wg        sync.WaitGroup
	processed atomic.Int64
	abandoned atomic.Int64
}

// NewInproc creates an in-process dispatcher.
// Parameters:
//   - handlers: pipeline stage handlers, usually the coordinator.
//   - workers: maximum number of concurrently executing tasks.
//   - maxRetry: retries per task after the first attempt.
//   - base: backoff before the first retry; 0 retries immediately.
//   - cap: upper bound on the backoff.
// Returns:
//   - *Inproc: ready dispatcher.
func NewInproc(handlers Handlers, workers, maxRetry int, base, cap time.Duration) *Inproc {
	if workers < 1 {
		workers = 1
	}
	return &Inproc{
		handlers: handlers,
		slots:    make(chan struct{}, workers),
		maxRetry: maxRetry,
		base:     base,
		cap:      cap,
	}
}

// Wait blocks until every task enqueued so far has finished, including
// retries and abandonment hooks.
func (d *Inproc) Wait() {
	d.wg.Wait()
}

// Processed returns the number of tasks that finished, successfully or not.
func (d *Inproc) Processed() int64 { return d.processed.Load() }

// Abandoned returns the number of tasks that exhausted their attempts.
func (d *Inproc) Abandoned() int64 { return d.abandoned.Load() }

// run executes one task with retry, then fires abandon on final failure.
func (d *Inproc) run(ctx context.Context, handle func(context.Context) error, abandon func(context.Context, error)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.slots <- struct{}{}
		defer func() { <-d.slots }()
		defer d.processed.Add(1)

		var err error
		for attempt := 0; ; attempt++ {
			err = handle(ctx)
			if err == nil {
				return
			}
			if !service.IsTransient(err) || attempt >= d.maxRetry {
				break
			}
			delay := Backoff(d.base, d.cap, attempt)
			logger.With(logger.Fields{logger.FieldCount: attempt + 1}).
				Warn(ctx, "Task attempt failed, retrying in %s: %v", delay, err)
			time.Sleep(delay)
		}
		d.abandoned.Add(1)
		abandon(ctx, err)
	}()
}

// EnqueueTranscription schedules a transcription task on the pool.
func (d *Inproc) EnqueueTranscription(ctx context.Context, task TranscriptionTask) error {
	runCtx := logger.SetJobID(context.Background(), task.JobID)
	d.run(runCtx,
		func(c context.Context) error { return d.handlers.HandleTranscription(c, task) },
		func(c context.Context, err error) { d.handlers.TranscriptionAbandoned(c, task, err) },
	)
	return nil
}

// EnqueueTranslation schedules a translation sub-job on the pool.
func (d *Inproc) EnqueueTranslation(ctx context.Context, task TranslationTask) error {
	runCtx := logger.WithFields(context.Background(), logger.Fields{
		logger.FieldJobID:      task.JobID,
		logger.FieldLanguage:   task.TargetLanguage,
		logger.FieldSourceType: string(task.SourceType),
	})
	d.run(runCtx,
		func(c context.Context) error { return d.handlers.HandleTranslation(c, task) },
		func(c context.Context, err error) { d.handlers.TranslationAbandoned(c, task, err) },
	)
	return nil
}

// EnqueuePackaging schedules a packaging task on the pool.
func (d *Inproc) EnqueuePackaging(ctx context.Context, task PackagingTask) error {
	runCtx := logger.SetJobID(context.Background(), task.JobID)
	d.run(runCtx,
		func(c context.Context) error { return d.handlers.HandlePackaging(c, task) },
		func(c context.Context, err error) { d.handlers.PackagingAbandoned(c, task, err) },
	)
	return nil
}
