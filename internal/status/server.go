// Package status serves the local debug and control endpoints: health,
// daemon status, the live event ring, per-item price lookups, and an
// on-demand backfill trigger. It binds to localhost only unless
// configured otherwise.
package status

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/sileric/mbwatch/internal/backfill"
	"github.com/sileric/mbwatch/internal/cache"
	"github.com/sileric/mbwatch/internal/feed"
)

// FeedStatus is the slice of the feed session the handlers read.
type FeedStatus interface {
	State() feed.State
	Channels() []string
	Live() *feed.LiveFeed
}

// Backfiller triggers ad-hoc passes and reports whether one is running.
type Backfiller interface {
	Running() bool
	RunItems(ctx context.Context, itemIDs []int, worldID int) (*backfill.Result, error)
}

// WorldResolver maps world names to ids for query parameters.
type WorldResolver interface {
	WorldID(name string) (int, bool)
	WorldName(id int) (string, bool)
}

type Server struct {
	listings *cache.Listings
	session  FeedStatus
	runner   Backfiller
	worlds   WorldResolver
	logger   *zap.Logger
}

func NewServer(listings *cache.Listings, session FeedStatus, runner Backfiller, worlds WorldResolver, logger *zap.Logger) *Server {
	return &Server{
		listings: listings,
		session:  session,
		runner:   runner,
		worlds:   worlds,
		logger:   logger,
	}
}

func NewRouter(server *Server, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(zapLoggerMiddleware(logger))

	r.Get("/healthz", server.handleHealth)
	r.Route("/v1", func(v1 chi.Router) {
		v1.Get("/status", server.handleStatus)
		v1.Get("/feed/recent", server.handleFeedRecent)
		v1.Get("/item/{id}", server.handleItem)
		v1.Post("/backfill", server.handleBackfill)
	})

	return r
}

func zapLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
			)
			next.ServeHTTP(w, r)
		})
	}
}
