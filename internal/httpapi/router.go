package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"forge/internal/httpapi/handlers"
	"forge/internal/httpkit"
	"forge/internal/jobs"
	"forge/internal/pkg/logger"
	"forge/internal/pkg/middleware"
	"forge/internal/ports"
	"forge/internal/template"
)

type Deps struct {
	Orchestrator   *jobs.Orchestrator
	Engine         *template.Engine
	Store          ports.ObjectStore
	Pool           *pgxpool.Pool
	RDB            *redis.Client
	Logger         *logger.Logger
	AllowedOrigins []string
	SignedURLTTL   time.Duration
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	// ---- CORS ----
	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID", handlers.OwnerIDHeader},
		AllowCredentials: false,
		MaxAgeSeconds:    600,
	}))

	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(d.Logger))
	r.Use(middleware.Recovery(d.Logger))

	h := handlers.New(handlers.Deps{
		Orchestrator: d.Orchestrator,
		Engine:       d.Engine,
		Store:        d.Store,
		Pool:         d.Pool,
		RDB:          d.RDB,
		Logger:       d.Logger,
		SignedURLTTL: d.SignedURLTTL,
	})

	// ---- HEALTH ----
	r.Get("/health", h.Health)

	// ---- JOBS ----
	r.Post("/jobs", h.CreateJob)
	r.Get("/jobs", h.ListJobs)
	r.Get("/jobs/{jobId}", h.GetJob)
	r.Put("/jobs/{jobId}/processing", h.MarkProcessing)
	r.Put("/jobs/{jobId}/complete", h.CompleteJob)
	r.Post("/jobs/{jobId}/cancel", h.CancelJob)
	r.Get("/jobs/{jobId}/outputs/{index}/url", h.OutputURL)

	// ---- TEMPLATES ----
	r.Get("/templates", h.ListTemplates)
	r.Get("/templates/{name}/parameters", h.TemplateParameters)

	// ---- FEED ----
	r.Get("/feed", h.Feed)

	// ---- FILES (localfs provider serves objects directly) ----
	r.Get("/files/*", h.ServeFile)

	return r
}
