package worker

import (
	"time"

	"github.com/redis/go-redis/v9"

	"forge/internal/jobs"
	"forge/internal/pkg/logger"
	"forge/internal/renderer"
)

type Deps struct {
	RDB          *redis.Client
	QueueName    string
	Renderer     renderer.Client
	Orchestrator *jobs.Orchestrator

	RendererBaseURL string
	PollInterval    time.Duration
	PollTimeout     time.Duration
	Concurrency     int

	Log *logger.Logger
}
