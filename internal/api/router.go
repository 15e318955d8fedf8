package api

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	swagger "github.com/go-swagno/swagno-fiber/swagger"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/admin"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/api/docs"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/api/middleware"
)

// Dependencies of the configuration service API. A nil Dependencies serves
// only the health and documentation endpoints.
type Dependencies struct {
	ConfigService handler.ConfigServiceInterface
	ClientService handler.ClientServiceInterface
	JWTService    *admin.JWTService
	DB            handler.Pinger
}

type Router struct {
	app         *fiber.App
	logger      *slog.Logger
	deps        *Dependencies
	rateLimiter *middleware.RateLimiter
}

func NewRouter(logger *slog.Logger, deps *Dependencies) *Router {
	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(logger),
		AppName:      "Rekko Configuration API",
	})

	return &Router{
		app:    app,
		logger: logger,
		deps:   deps,
	}
}

func (r *Router) Setup() {
	// Global middlewares
	r.app.Use(requestid.New())
	r.app.Use(middleware.Recover(r.logger))
	r.app.Use(middleware.Logger(r.logger))
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Swagger documentation (no auth required)
	sw := docs.NewSwagger()
	swagger.SwaggerHandler(r.app, sw.MustToJson())

	// Health check endpoints (no auth required)
	checks := map[string]handler.Pinger{}
	if r.deps != nil && r.deps.DB != nil {
		checks["database"] = r.deps.DB
	}
	healthHandler := handler.NewHealthHandler(checks)
	r.app.Get("/health", healthHandler.Health)
	r.app.Get("/ready", healthHandler.Ready)

	if r.deps == nil {
		return
	}

	v1 := r.app.Group("/v1")
	v1.Use(middleware.AdminAuth(middleware.AdminAuthDependencies{
		JWTService: r.deps.JWTService,
		Logger:     r.logger,
	}))

	// Rate limiting (per actor) - must come after auth to have the claims
	r.rateLimiter = middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	v1.Use(r.rateLimiter.Handler())

	authHandler := handler.NewAuthHandler(r.deps.JWTService, r.logger)
	v1.Get("/auth/me", authHandler.Me)
	v1.Post("/auth/refresh", authHandler.Refresh)

	r.setupClientRoutes(v1)
	r.setupConfigRoutes(v1)
}

func (r *Router) setupClientRoutes(v1 fiber.Router) {
	h := handler.NewClientHandler(r.deps.ClientService, r.logger)
	mutate := middleware.RequireMutation()

	v1.Get("/clients", h.List)
	v1.Post("/clients", mutate, h.Create)
	v1.Get("/clients/:id", h.Get)
	v1.Put("/clients/:id/status", mutate, h.SetStatus)
}

func (r *Router) setupConfigRoutes(v1 fiber.Router) {
	h := handler.NewConfigHandler(r.deps.ConfigService, r.logger)
	mutate := middleware.RequireMutation()

	v1.Get("/configs", h.List)
	// Registered before :clientId so "validate" is not read as a client id
	v1.Post("/configs/:type/validate", h.Validate)
	v1.Get("/configs/:type/:clientId", h.Get)
	v1.Post("/configs/:type/:clientId", mutate, h.Create)
	v1.Put("/configs/:type/:clientId", mutate, h.Update)
	v1.Delete("/configs/:type/:clientId", mutate, h.Delete)
}

func (r *Router) App() *fiber.App {
	return r.app
}

func (r *Router) Listen(addr string) error {
	return r.app.Listen(addr)
}

func (r *Router) Shutdown() error {
	// Stop rate limiter cleanup goroutine
	if r.rateLimiter != nil {
		r.rateLimiter.Stop()
	}

	return r.app.Shutdown()
}
