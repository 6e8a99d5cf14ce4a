package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voicelingua/voicelingua/internal/api"
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
	dispatcher := dispatch.NewAsynqDispatcher(&cfg.Redis, &cfg.Queue)
	defer dispatcher.Close()
	coord.SetDispatcher(dispatcher)

	router := api.SetupRouter(cfg, coord, db, statusCache)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.WithField("port", cfg.Server.Port).Info("API server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("API server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down API server")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Forced shutdown")
	}
	log.Info("API server stopped")
}
