package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/voicelingua/voicelingua/internal/config"
	"github.com/voicelingua/voicelingua/internal/logger"
	"github.com/voicelingua/voicelingua/internal/service"
)

// AsynqDispatcher enqueues tasks onto Redis-backed asynq queues.
type AsynqDispatcher struct {
	client   *asynq.Client
	maxRetry int
	timeout  time.Duration
}

// NewAsynqDispatcher creates a Redis-backed dispatcher.
// Parameters:
//   - redisCfg: Redis connection settings shared with the cache.
//   - queueCfg: retry limits and task timeout.
// Returns:
//   - *AsynqDispatcher: connected dispatcher.
func NewAsynqDispatcher(redisCfg *config.RedisConfig, queueCfg *config.QueueConfig) *AsynqDispatcher {
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})
	return &AsynqDispatcher{
		client:   client,
		maxRetry: queueCfg.MaxRetry,
		timeout:  queueCfg.TaskTimeout,
	}
}

// Close releases the underlying Redis connection.
func (d *AsynqDispatcher) Close() error {
	return d.client.Close()
}

func (d *AsynqDispatcher) enqueue(ctx context.Context, taskType, queue string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", taskType, err)
	}
	_, err = d.client.EnqueueContext(ctx, asynq.NewTask(taskType, data),
		asynq.Queue(queue),
		asynq.MaxRetry(d.maxRetry),
		asynq.Timeout(d.timeout),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue %s task: %w", taskType, err)
	}
	return nil
}

// EnqueueTranscription puts a transcription task on its queue.
func (d *AsynqDispatcher) EnqueueTranscription(ctx context.Context, task TranscriptionTask) error {
	return d.enqueue(ctx, TypeTranscription, QueueTranscription, task)
}

// EnqueueTranslation puts a translation sub-job on its queue.
func (d *AsynqDispatcher) EnqueueTranslation(ctx context.Context, task TranslationTask) error {
	return d.enqueue(ctx, TypeTranslation, QueueTranslation, task)
}

// EnqueuePackaging puts a packaging task on its queue.
func (d *AsynqDispatcher) EnqueuePackaging(ctx context.Context, task PackagingTask) error {
	return d.enqueue(ctx, TypePackaging, QueuePackaging, task)
}

// Server runs asynq workers over the three stage queues, translating asynq's
// retry machinery into the Handlers contract: transient errors are retried
// with exponential backoff, everything else (and exhausted retries) fires
// the matching *Abandoned hook exactly once.
type Server struct {
	srv      *asynq.Server
	mux      *asynq.ServeMux
	handlers Handlers
}

// NewServer creates the worker server.
// Parameters:
//   - redisCfg: Redis connection settings.
//   - queueCfg: concurrency, retry limits, backoff bounds.
//   - handlers: pipeline stage handlers, usually the coordinator.
// Returns:
//   - *Server: configured server; call Run to start processing.
func NewServer(redisCfg *config.RedisConfig, queueCfg *config.QueueConfig, handlers Handlers) *Server {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     redisCfg.Addr,
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		},
		asynq.Config{
			Concurrency: queueCfg.Concurrency,
			Queues: map[string]int{
				QueueTranscription: 3,
				QueueTranslation:   5,
				QueuePackaging:     2,
			},
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return Backoff(queueCfg.RetryBase, queueCfg.RetryCap, n)
			},
			Logger: asynqLogger{},
		},
	)

	s := &Server{srv: srv, mux: asynq.NewServeMux(), handlers: handlers}
	s.mux.HandleFunc(TypeTranscription, s.handleTranscription)
	s.mux.HandleFunc(TypeTranslation, s.handleTranslation)
	s.mux.HandleFunc(TypePackaging, s.handlePackaging)
	return s
}

// Run starts processing tasks and blocks until Shutdown.
func (s *Server) Run() error {
	return s.srv.Run(s.mux)
}

// Shutdown stops the server, waiting for in-flight tasks.
func (s *Server) Shutdown() {
	s.srv.Shutdown()
}

// finalAttempt reports whether the current delivery is the task's last.
func finalAttempt(ctx context.Context) bool {
	n, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	max, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return true
	}
	return n >= max
}

func (s *Server) handleTranscription(ctx context.Context, t *asynq.Task) error {
	var task TranscriptionTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		return fmt.Errorf("bad transcription payload: %v: %w", err, asynq.SkipRetry)
	}
	ctx = logger.SetJobID(ctx, task.JobID)

	err := s.handlers.HandleTranscription(ctx, task)
	if err == nil {
		return nil
	}
	if service.IsTransient(err) && !finalAttempt(ctx) {
		return err
	}
	s.handlers.TranscriptionAbandoned(ctx, task, err)
	return fmt.Errorf("transcription abandoned: %v: %w", err, asynq.SkipRetry)
}

func (s *Server) handleTranslation(ctx context.Context, t *asynq.Task) error {
	var task TranslationTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		return fmt.Errorf("bad translation payload: %v: %w", err, asynq.SkipRetry)
	}
	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldJobID:      task.JobID,
		logger.FieldLanguage:   task.TargetLanguage,
		logger.FieldSourceType: string(task.SourceType),
	})

	err := s.handlers.HandleTranslation(ctx, task)
	if err == nil {
		return nil
	}
	if service.IsTransient(err) && !finalAttempt(ctx) {
		return err
	}
	s.handlers.TranslationAbandoned(ctx, task, err)
	return fmt.Errorf("translation abandoned: %v: %w", err, asynq.SkipRetry)
}

func (s *Server) handlePackaging(ctx context.Context, t *asynq.Task) error {
	var task PackagingTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		return fmt.Errorf("bad packaging payload: %v: %w", err, asynq.SkipRetry)
	}
	ctx = logger.SetJobID(ctx, task.JobID)

	err := s.handlers.HandlePackaging(ctx, task)
	if err == nil {
		return nil
	}
	if service.IsTransient(err) && !finalAttempt(ctx) {
		return err
	}
	s.handlers.PackagingAbandoned(ctx, task, err)
	return fmt.Errorf("packaging abandoned: %v: %w", err, asynq.SkipRetry)
}

// asynqLogger routes asynq's internal logging through the structured logger.
type asynqLogger struct{}

func (asynqLogger) Debug(args ...interface{}) { logger.GetDefault().Debug(args...) }
func (asynqLogger) Info(args ...interface{})  { logger.GetDefault().Info(args...) }
func (asynqLogger) Warn(args ...interface{})  { logger.GetDefault().Warn(args...) }
func (asynqLogger) Error(args ...interface{}) { logger.GetDefault().Error(args...) }
func (asynqLogger) Fatal(args ...interface{}) { logger.GetDefault().Fatal(args...) }
