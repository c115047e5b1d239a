// Package api serves the operator HTTP interface: run control, imports,
// duplicate checks, stats and endpoint pool management.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/acquisition-cli/internal/discovery"
	"github.com/sells-group/acquisition-cli/internal/model"
	"github.com/sells-group/acquisition-cli/internal/reconcile"
	"github.com/sells-group/acquisition-cli/internal/tracker"
)

// Acquisition is the service surface exposed over HTTP.
type Acquisition interface {
	StartDiscoveryRun(ctx context.Context, req model.RunConfig) (*model.Run, error)
	StartEnrichmentBatch(ctx context.Context, req discovery.EnrichmentRequest) (*model.Run, error)
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	GetRunStatus(ctx context.Context, runID string) (*model.RunStatusReport, error)
	CancelRun(ctx context.Context, runID string) error
	ListRuns(ctx context.Context, filter tracker.RunFilter) ([]model.Run, error)
	ListAttempts(ctx context.Context, runID string, limit int) ([]model.Attempt, error)
	GetStats(ctx context.Context, scope model.StatsScope) (*model.Stats, error)
	ImportHandles(ctx context.Context, req reconcile.ImportRequest) (model.ImportResult, error)
	FindDuplicates(ctx context.Context, obs model.ObservedIdentity) (*model.DuplicateSet, error)
	DetectDuplicates(ctx context.Context, origin reconcile.Origin, obs model.ObservedIdentity, auto bool) (*model.DuplicateSet, error)
}

// Pool is the endpoint pool surface exposed over HTTP.
type Pool interface {
	Snapshot() []model.Endpoint
	Reset(ctx context.Context, id int64) (model.Endpoint, error)
}

const corsMaxAge = 12 * time.Hour

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewRouter builds the HTTP handler. db may be nil, in which case /health
// does not check the database.
func NewRouter(svc Acquisition, pool Pool, db Pinger, allowedOrigins []string) http.Handler {
	h := &handlers{svc: svc, pool: pool, db: db}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         int(corsMaxAge.Seconds()),
	}))
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/runs", func(r chi.Router) {
			r.Post("/", h.startRun)
			r.Get("/", h.listRuns)
			r.Get("/{id}", h.getRun)
			r.Get("/{id}/status", h.runStatus)
			r.Get("/{id}/attempts", h.listAttempts)
			r.Post("/{id}/cancel", h.cancelRun)
		})
		r.Post("/enrichments", h.startEnrichment)
		r.Get("/stats", h.stats)
		r.Post("/imports", h.importHandles)
		r.Post("/duplicates", h.findDuplicates)
		r.Post("/detections", h.detectDuplicates)
		r.Get("/endpoints", h.listEndpoints)
		r.Post("/endpoints/{id}/reset", h.resetEndpoint)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
