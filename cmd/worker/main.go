package main

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"forge/internal/adapters/archive/gdrive"
	"forge/internal/archive"
	"forge/internal/config"
	"forge/internal/feedcache"
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
		ServiceName: "forge-worker",
	})

	log.Info("starting forge worker", "config", cfg.String())

	shutdownMgr := shutdown.NewManager(log, cfg.ShutdownTimeout)

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.LogFatal("failed to connect to PostgreSQL", err)
	}
	shutdownMgr.Register("postgres", func(ctx context.Context) error {
		pool.Close()
		return nil
	})

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	shutdownMgr.Register("redis", func(ctx context.Context) error {
		return rdb.Close()
	})

	store, err := storage.NewObjectStore(ctx, cfg)
	if err != nil {
		log.LogFatal("failed to initialize object store", err)
	}

	archiveClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	shutdownMgr.Register("asynq-client", func(ctx context.Context) error {
		return archiveClient.Close()
	})

	engine := template.NewEngine(template.NewStore(cfg.TemplateDir))
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

	// The archive replication server only runs when Drive credentials are
	// configured; without them tasks stay queued until a replica comes up.
	if cfg.DriveEnabled() {
		driveSvc, err := storage.NewDriveService(ctx, cfg)
		if err != nil {
			log.LogFatal("failed to initialize Drive service", err)
		}
		handler := archive.NewHandler(gdrive.NewReplicator(driveSvc), store, log)
		srv := worker.NewArchiveServer(worker.ArchiveServerConfig{
			RedisAddr:     cfg.RedisAddr,
			RedisPassword: cfg.RedisPassword,
			RedisDB:       cfg.RedisDB,
			Concurrency:   cfg.WorkerConcurrency,
		}, handler, log)
		go func() {
			if err := srv.Start(); err != nil {
				log.LogFatal("archive server failed", err)
			}
		}()
		shutdownMgr.Register("archive-server", func(ctx context.Context) error {
			srv.Shutdown()
			return nil
		})
	} else {
		log.Info("Drive replication disabled, archive server not started")
	}

	go func() {
		err := worker.Run(shutdownMgr.Context(), worker.Deps{
			RDB:             rdb,
			QueueName:       cfg.PollQueueKey,
			Renderer:        rendererClient,
			Orchestrator:    orch,
			RendererBaseURL: cfg.RendererURL,
			PollInterval:    cfg.RendererPollInterval,
			PollTimeout:     cfg.RendererPollTimeout,
			Concurrency:     cfg.WorkerConcurrency,
			Log:             log,
		})
		if err != nil && err != context.Canceled {
			log.LogFatal("poll worker failed", err)
		}
	}()

	shutdownMgr.Wait()
}
