package api

import (
	"io"
	"net/http"
	"time"

	"space-arena/internal/arena"
	"space-arena/internal/arena/spatial"
	"space-arena/internal/journal"
	"space-arena/internal/preview"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// Arena defines the simulation methods used by the API.
// Keep this minimal so tests can supply a fake without running body loops.
type Arena interface {
	DynamicSnapshot() []arena.BodySnapshot
	StaticSnapshot() []arena.BodySnapshot
	PlayerSnapshot(id string) (arena.PlayerStatus, bool)
	PlayerIDs() []string
	Counters() arena.Counters
	GridStats() spatial.Stats
	GridOccupancy() (cellsX, cellsY int, cellSize float64, counts []int)
	WorldSize() (width, height float64)
	RunState() arena.RunState
	Pause()
	Resume()

	AddDynamic(spec arena.DynamicSpec) (string, error)
	AddStatic(assetID string, size, posX, posY, angle, maxLife float64) (string, error)
	AddDecorator(assetID string, size, posX, posY, angle, maxLife float64) (string, error)
	Execute(playerID string, cmd arena.Command) error
	SelectWeapon(playerID string, index int) bool
}

// PlayerSpawner adds an armed player to the arena.
type PlayerSpawner interface {
	AddPlayer() (string, error)
}

// PNGEncoder renders a scene as PNG.
type PNGEncoder interface {
	EncodePNG(w io.Writer, scene preview.Scene) error
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
//
// Example usage in tests:
//
//	router := api.NewRouter(api.RouterConfig{
//	    Arena:   fake,
//	    Players: fake,
//	    RateLimitConfig: &api.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
//	})
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Arena is the simulation (required)
	Arena Arena

	// Players spawns armed players (required for POST /api/players)
	Players PlayerSpawner

	// Preview renders /api/preview.png. Nil disables the route.
	Preview PNGEncoder

	// JournalStats is included in diagnostics when set.
	JournalStats func() journal.Stats

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one will be created using RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is optional configuration for the rate limiter.
	// Only used if RateLimiter is nil. If both are nil, uses DefaultRateLimitConfig.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins is an optional list of allowed CORS origins.
	CORSOrigins []string

	Logger zerolog.Logger

	// DisableLogging disables the access log middleware.
	DisableLogging bool
}

type routerHandlers struct {
	arena        Arena
	players      PlayerSpawner
	preview      PNGEncoder
	journalStats func() journal.Stats
	limiter      *IPRateLimiter
	log          zerolog.Logger
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// NewRouter has no side effects beyond the rate limiter's cleanup goroutine
// when no RateLimiter is supplied: no listeners are opened and no arena
// loops are started.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(hlog.NewHandler(cfg.Logger))
	if !cfg.DisableLogging {
		r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
			hlog.FromRequest(r).Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("size", size).
				Dur("duration", d).
				Msg("request")
		}))
	}
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)

	// Rate limiting before CORS to reject early
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	h := &routerHandlers{
		arena:        cfg.Arena,
		players:      cfg.Players,
		preview:      cfg.Preview,
		journalStats: cfg.JournalStats,
		limiter:      rateLimiter,
		log:          cfg.Logger.With().Str("component", "api").Logger(),
	}

	r.Route("/api", func(r chi.Router) {
		// Snapshots
		r.Get("/snapshot/dynamic", h.handleDynamicSnapshot)
		r.Get("/snapshot/static", h.handleStaticSnapshot)

		// Players
		r.Get("/players", h.handleListPlayers)
		r.Post("/players", h.handleAddPlayer)
		r.Get("/players/{id}", h.handleGetPlayer)
		r.Post("/players/{id}/commands/{command}", h.handlePlayerCommand)
		r.Post("/players/{id}/weapon/{index}", h.handleSelectWeapon)

		// Bodies
		r.Post("/bodies", h.handleAddBody)
		r.Post("/statics", h.handleAddStatic)
		r.Post("/decorators", h.handleAddDecorator)

		// Simulation control
		r.Post("/sim/pause", h.handlePause)
		r.Post("/sim/resume", h.handleResume)

		// Diagnostics
		r.Get("/diagnostics", h.handleDiagnostics)
		if h.preview != nil {
			r.Get("/preview.png", h.handlePreview)
		}
	})

	return r
}

// metricsMiddleware records latency by route pattern, which keeps label
// cardinality bounded.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				endpoint = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RecordRequest(r.Method, endpoint, status, time.Since(start))
	})
}
