package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/voicelingua/voicelingua/internal/cache"
	"github.com/voicelingua/voicelingua/internal/config"
	"github.com/voicelingua/voicelingua/internal/coordinator"
	"github.com/voicelingua/voicelingua/internal/dispatch"
	"github.com/voicelingua/voicelingua/internal/logger"
	"github.com/voicelingua/voicelingua/internal/repository"
	"github.com/voicelingua/voicelingua/internal/service"
	"github.com/voicelingua/voicelingua/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	log := logger.NewDefault()
	logger.SetDefaultLogger(log)
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}

	var statusCache cache.Cache
	if cfg.Redis.CacheEnabled {
		statusCache = cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	} else {
		statusCache = cache.NewNoop()
	}

	store, err := storage.NewS3Storage(&storage.S3Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		PublicURL: cfg.Storage.PublicURL,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize object storage")
	}
	if err := store.EnsureBucket(context.Background()); err != nil {
		log.WithError(err).Warn("Failed to ensure storage bucket; uploads may fail")
	}

	coord := coordinator.New(
		repository.NewJobRepository(db),
		repository.NewTranslationResultRepository(db),
		repository.NewJobEventRepository(db),
		statusCache,
		cfg.Redis.CacheTTL,
		store,
		service.NewWhisperTranscriber(&cfg.Transcription),
		service.NewLLMTranslator(&cfg.Translation),
	)

	// Workers enqueue follow-up tasks (fan-out, packaging) through the same
	// Redis queues they consume from.
	dispatcher := dispatch.NewAsynqDispatcher(&cfg.Redis, &cfg.Queue)
	defer dispatcher.Close()
	coord.SetDispatcher(dispatcher)

	srv := dispatch.NewServer(&cfg.Redis, &cfg.Queue, coord)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info("Shutting down worker")
		srv.Shutdown()
	}()

	log.WithField("concurrency", cfg.Queue.Concurrency).Info("Worker starting")
	if err := srv.Run(); err != nil {
		log.WithError(err).Fatal("Worker failed")
	}
	log.Info("Worker stopped")
}
