// Package handlers implements the HTTP API surface over the job
// orchestrator and template engine.
package handlers

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"forge/internal/jobs"
	"forge/internal/pkg/logger"
	"forge/internal/ports"
	"forge/internal/template"
)

// OwnerIDHeader carries the opaque principal id issued by the external
// identity provider.
const OwnerIDHeader = "X-Owner-ID"

type Deps struct {
	Orchestrator *jobs.Orchestrator
	Engine       *template.Engine
	Store        ports.ObjectStore
	Pool         *pgxpool.Pool
	RDB          *redis.Client
	Logger       *logger.Logger
	SignedURLTTL time.Duration
}

type Handler struct {
	orch         *jobs.Orchestrator
	engine       *template.Engine
	store        ports.ObjectStore
	pool         *pgxpool.Pool
	rdb          *redis.Client
	log          *logger.Logger
	validate     *validator.Validate
	signedURLTTL time.Duration
}

func New(d Deps) *Handler {
	ttl := d.SignedURLTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Handler{
		orch:         d.Orchestrator,
		engine:       d.Engine,
		store:        d.Store,
		pool:         d.Pool,
		rdb:          d.RDB,
		log:          d.Logger.WithComponent("httpapi"),
		validate:     validator.New(),
		signedURLTTL: ttl,
	}
}
