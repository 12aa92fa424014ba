package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/snappy-loop/storybook/internal/agents"
	"github.com/snappy-loop/storybook/internal/auth"
	"github.com/snappy-loop/storybook/internal/config"
	"github.com/snappy-loop/storybook/internal/handlers"
	"github.com/snappy-loop/storybook/internal/kafka"
	"github.com/snappy-loop/storybook/internal/mcpserver"
	"github.com/snappy-loop/storybook/internal/processor"
	"github.com/snappy-loop/storybook/internal/services"
	"github.com/snappy-loop/storybook/internal/session"
	"github.com/snappy-loop/storybook/internal/storage"
	"github.com/snappy-loop/storybook/internal/webhook"
)

func main() {
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("Loaded .env")
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg := config.Load()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().Str("image_provider", cfg.ImageProvider).Msg("Starting Storybook API")

	ctx := context.Background()

	imageAgent, err := agents.NewImageAgent(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize image provider")
	}
	storyAgent := agents.NewStoryAgent(ctx, cfg)

	var publishers processor.Publishers
	if cfg.EventsEnabled() {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopicEvents)
		defer producer.Close()
		publishers = append(publishers, producer)
		log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopicEvents).Msg("Publishing story events")
	}
	if cfg.WebhookEnabled() {
		notifier := webhook.NewNotifier(cfg)
		defer notifier.Close()
		publishers = append(publishers, notifier)
		log.Info().Msg("Posting story events to webhook")
	}
	var publisher processor.EventPublisher
	if len(publishers) > 0 {
		publisher = publishers
	}

	var assets services.AssetStorage
	if cfg.StorageEnabled() {
		storageClient, err := storage.NewClient(ctx,
			cfg.S3Endpoint, cfg.S3Region, cfg.S3Bucket,
			cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3PublicURL, cfg.S3PresignTTL,
		)
		if err != nil {
			log.Warn().Err(err).Msg("S3 not available; story export disabled")
		} else {
			assets = storageClient
		}
	}

	authService, err := auth.NewService(cfg.AccessKeyHash)
	if err != nil {
		log.Fatal().Err(err).Msg("ACCESS_KEY_HASH is not a bcrypt hash")
	}

	storyProcessor := processor.NewStoryProcessor(imageAgent, publisher, cfg)
	store := session.NewStore(cfg.StoryTTL)
	storyService := services.NewStoryService(imageAgent, storyAgent, storyProcessor, store, assets, cfg)

	h := handlers.NewHandler(storyService)
	mcpSrv := mcpserver.NewServer(storyService)

	r := mux.NewRouter()
	r.HandleFunc("/", h.Index).Methods("GET")
	r.HandleFunc("/healthz", h.Health).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.Handle("/mcp", authService.Middleware(mcpSrv.Handler())).Methods("POST", "GET")

	// Registered ahead of the /api subrouter so WebSocket frames bypass gzip.
	r.Handle("/api/stories/{id}/ws", authService.Middleware(http.HandlerFunc(h.StoryWS))).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(authService.Middleware)
	api.Use(func(next http.Handler) http.Handler { return gzhttp.GzipHandler(next) })
	api.HandleFunc("/services", h.ListServices).Methods("GET")
	api.HandleFunc("/generate-image", h.GenerateImage).Methods("POST")
	api.HandleFunc("/generate-story", h.GenerateStory).Methods("POST")
	api.HandleFunc("/stories", h.CreateStory).Methods("POST")
	api.HandleFunc("/stories/{id}", h.GetStory).Methods("GET")
	api.HandleFunc("/stories/{id}", h.DeleteStory).Methods("DELETE")
	api.HandleFunc("/stories/{id}/view", h.ViewStory).Methods("GET")
	api.HandleFunc("/stories/{id}/export", h.ExportStory).Methods("POST")
	api.HandleFunc("/stories/{id}/pages/{index}/retry", h.RetryPage).Methods("POST")
	api.HandleFunc("/stories/{id}/pages/{index}/image", h.PageImage).Methods("GET")

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.HTTPWriteTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Bool("auth", authService.Enabled()).Msg("API listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down API...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}
	if err := storyService.Wait(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Abandoning in-flight page illustrations")
	}
	log.Info().Msg("API exited")
}
