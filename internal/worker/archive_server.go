package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"forge/internal/archive"
	"forge/internal/pkg/logger"
)

// ArchiveServerConfig configures the background archive task server.
type ArchiveServerConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Concurrency   int
}

// ArchiveServer runs the asynq server that processes archive replication
// tasks enqueued by the materialization pipeline.
type ArchiveServer struct {
	server  *asynq.Server
	handler *archive.Handler
	log     *logger.Logger
}

func NewArchiveServer(cfg ArchiveServerConfig, handler *archive.Handler, log *logger.Logger) *ArchiveServer {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	server := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		asynq.Config{
			Concurrency: cfg.Concurrency,
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				// Exponential backoff: 1min, 2min, 4min
				return time.Duration(1<<uint(n)) * time.Minute
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Warn("archive task failed", "type", task.Type(), "error", err.Error())
			}),
			Logger: asynqLogger{log.WithComponent("asynq")},
		},
	)

	return &ArchiveServer{
		server:  server,
		handler: handler,
		log:     log.WithComponent("archive-server"),
	}
}

// Start runs the server until Shutdown. It blocks.
func (s *ArchiveServer) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(archive.TypeReplicate, s.handler.ProcessTask)

	s.log.Info("archive task server starting")
	return s.server.Run(mux)
}

// Shutdown stops the server, waiting for in-flight tasks.
func (s *ArchiveServer) Shutdown() {
	s.log.Info("archive task server stopping")
	s.server.Shutdown()
}

// asynqLogger adapts our logger to asynq's logging interface.
type asynqLogger struct {
	log *logger.Logger
}

func (a asynqLogger) Debug(args ...any) { a.log.Debug(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...any)  { a.log.Info(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...any)  { a.log.Warn(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...any) { a.log.Error(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...any) { a.log.Error(fmt.Sprint(args...)) }
