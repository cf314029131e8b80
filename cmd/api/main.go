package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"forge/internal/config"
	"forge/internal/feedcache"
	"forge/internal/httpapi"
	"forge/internal/jobs"
	"forge/internal/pipeline"
	"forge/internal/pkg/logger"
	"forge/internal/pkg/shutdown"
	"forge/internal/renderer"
	"forge/internal/repositories"
	"forge/internal/storage"
	"forge/internal/template"
	"forge/internal/thumbnail"
	"forge/internal/worker"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		panic(err)
	}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	log := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		ServiceName: "forge-api",
	})

	log.Info("starting forge API", "config", cfg.String())

	shutdownMgr := shutdown.NewManager(log, cfg.ShutdownTimeout)

	log.Info("connecting to PostgreSQL")
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.LogFatal("failed to connect to PostgreSQL", err)
	}
	shutdownMgr.Register("postgres", func(ctx context.Context) error {
		pool.Close()
		return nil
	})
	if err := pool.Ping(ctx); err != nil {
		log.LogFatal("failed to ping PostgreSQL", err)
	}
	log.Info("PostgreSQL connected")

	log.Info("connecting to Redis")
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	shutdownMgr.Register("redis", func(ctx context.Context) error {
		return rdb.Close()
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.LogFatal("failed to ping Redis", err)
	}
	log.Info("Redis connected")

	store, err := storage.NewObjectStore(ctx, cfg)
	if err != nil {
		log.LogFatal("failed to initialize object store", err)
	}
	log.Info("object store initialized", "provider", store.Provider())

	archiveClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	shutdownMgr.Register("asynq-client", func(ctx context.Context) error {
		return archiveClient.Close()
	})

	tplStore := template.NewStore(cfg.TemplateDir)
	engine := template.NewEngine(tplStore)
	rendererClient := renderer.NewHTTPClient()
	deriver := thumbnail.NewDeriver(store, cfg.FFmpegPath, cfg.ThumbnailTimeout)

	orch := jobs.New(jobs.Deps{
		Store:              repositories.NewJobRepository(pool),
		Categories:         repositories.NewCategoryRepository(pool),
		Builder:            engine,
		Renderer:           rendererClient,
		Pipeline:           pipeline.New(rendererClient, store, deriver, archiveClient, log),
		PollQueue:          worker.NewRedisQueue(rdb, cfg.PollQueueKey),
		Cache:              feedcache.New(cfg.FeedCacheTTL, cfg.FeedCacheEntries),
		Logger:             log,
		DefaultRendererURL: cfg.RendererURL,
	})

	router := httpapi.NewRouter(httpapi.Deps{
		Orchestrator:   orch,
		Engine:         engine,
		Store:          store,
		Pool:           pool,
		RDB:            rdb,
		Logger:         log,
		AllowedOrigins: cfg.AllowedOrigins,
		SignedURLTTL:   cfg.SignedURLTTL,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	go func() {
		log.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogFatal("HTTP server failed", err)
		}
	}()

	shutdownMgr.Wait()
}
