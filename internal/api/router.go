package api

import (
	"net/http"

	"robot-sim/internal/engine"
	"robot-sim/internal/sim"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// EngineInterface defines the simulation engine methods used by the API.
// This interface enables mocking for tests without spinning up the tick loop.
// Keep this minimal - only include methods the API layer actually calls.
type EngineInterface interface {
	// Snapshot returns the latest immutable world snapshot
	Snapshot() *engine.Snapshot
	// AgentView returns what one agent sees and remembers
	AgentView(id uint32) (*engine.AgentView, error)

	AddWall(x, y int) error
	RemoveWall(x, y int) error
	AddAgent(x, y int) (uint32, error)
	RemoveAgent(id uint32) error
	SetGoal(id uint32, x, y int) error
	ClearGoal(id uint32) error
	SetStrategy(id uint32, name string) error
	Strategies() []string

	// Step advances the simulation by dt outside the tick loop
	Step(dt float64) sim.StepStats
	Start()
	Stop()
	Running() bool

	Save(path string) error
	Load(path string) error
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
//
// Example usage in tests:
//
//	cfg := api.RouterConfig{
//	    Engine: mockEngine,
//	    RateLimitConfig: &api.RateLimitConfig{
//	        RequestsPerSecond: 1000, // High limit for tests
//	        Burst:             1000,
//	    },
//	}
//	router := api.NewRouter(cfg)
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Engine is the simulation engine (required)
	Engine EngineInterface

	// WorldPath is where save/load read and write. Empty disables both.
	WorldPath string

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one will be created using RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is optional configuration for the rate limiter.
	// Only used if RateLimiter is nil. If both are nil, uses DefaultRateLimitConfig.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins is an optional list of allowed CORS origins.
	// If nil, only localhost origins are allowed.
	CORSOrigins []string

	// DisableLogging disables the request logger middleware (useful for benchmarks).
	DisableLogging bool
}

// routerHandlers holds the handler functions for the router.
type routerHandlers struct {
	engine    EngineInterface
	worldPath string
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// NewRouter starts no goroutines other than the rate limiter's cleanup loop
// and opens no listeners, so it is safe to use with httptest.NewServer.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware - Order matters!
	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)

	// Rate limiting (BEFORE CORS to reject early and save CPU)
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
		corsOrigins = []string{
			"http://localhost:*",
			"http://127.0.0.1:*",
		}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	h := &routerHandlers{
		engine:    cfg.Engine,
		worldPath: cfg.WorldPath,
	}

	r.Route("/api", func(r chi.Router) {
		// World
		r.Get("/world", h.handleGetWorld)
		r.Get("/world/render.png", h.handleRenderWorld)
		r.Post("/world/save", h.handleSaveWorld)
		r.Post("/world/load", h.handleLoadWorld)

		r.Post("/walls", h.handleAddWall)
		r.Delete("/walls", h.handleRemoveWall)

		// Agents
		r.Post("/agents", h.handleAddAgent)
		r.Route("/agents/{id}", func(r chi.Router) {
			r.Delete("/", h.handleRemoveAgent)
			r.Put("/goal", h.handleSetGoal)
			r.Delete("/goal", h.handleClearGoal)
			r.Put("/strategy", h.handleSetStrategy)
			r.Get("/view", h.handleAgentView)
		})
		r.Get("/strategies", h.handleGetStrategies)

		// Simulation control
		r.Post("/sim/step", h.handleStep)
		r.Post("/sim/start", h.handleStart)
		r.Post("/sim/stop", h.handleStop)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/api/world", http.StatusFound)
	})

	return r
}
