package api

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/saturnino-fabrica-de-software/rekko-console/internal/admin"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/api/handler/console"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/ws"
)

// ConsoleDependencies wires the operator console. Hub and Gatherer are
// optional.
type ConsoleDependencies struct {
	Manager           console.Manager
	JWTService        *admin.JWTService
	Hub               *ws.Hub
	Gatherer          prometheus.Gatherer
	Checks            map[string]handler.Pinger
	CORSOrigins       string
	MutationRateLimit int
}

type ConsoleRouter struct {
	app         *fiber.App
	logger      *slog.Logger
	deps        ConsoleDependencies
	rateLimiter *middleware.RateLimiter
	cancelHub   context.CancelFunc
}

func NewConsoleRouter(logger *slog.Logger, deps ConsoleDependencies) *ConsoleRouter {
	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(logger),
		AppName:      "Rekko Console",
	})

	return &ConsoleRouter{
		app:    app,
		logger: logger,
		deps:   deps,
	}
}

func (r *ConsoleRouter) Setup() {
	origins := r.deps.CORSOrigins
	if origins == "" {
		origins = "*"
	}

	r.app.Use(requestid.New())
	r.app.Use(middleware.Recover(r.logger))
	r.app.Use(middleware.Logger(r.logger))
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	healthHandler := handler.NewHealthHandler(r.deps.Checks)
	r.app.Get("/health", healthHandler.Health)
	r.app.Get("/ready", healthHandler.Ready)

	if r.deps.Gatherer != nil {
		r.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(r.deps.Gatherer, promhttp.HandlerOpts{})))
	}

	g := r.app.Group("/console")
	g.Use(middleware.AdminAuth(middleware.AdminAuthDependencies{
		JWTService: r.deps.JWTService,
		Logger:     r.logger,
	}))

	cfg := middleware.DefaultRateLimiterConfig()
	if r.deps.MutationRateLimit > 0 {
		cfg.Max = r.deps.MutationRateLimit
	}
	cfg.PerEndpoint = middleware.ConsoleRateLimits()
	cfg.SkipSafeMethods = true
	r.rateLimiter = middleware.NewRateLimiter(cfg)
	g.Use(r.rateLimiter.Handler())

	if r.deps.Hub != nil {
		hubCtx, cancel := context.WithCancel(context.Background())
		r.cancelHub = cancel
		go r.deps.Hub.Run(hubCtx)

		g.Get("/ws", ws.UpgradeMiddleware(), ws.Handler(r.deps.Hub, middleware.LocalAdminClaims, r.deps.Manager.Collection))
	}

	h := console.NewHandler(r.deps.Manager, r.logger)
	mutate := middleware.RequireMutation()

	g.Get("/configs", h.List)
	g.Get("/clients", h.Clients)
	g.Post("/configs/:type/validate", h.Validate)
	g.Get("/configs/:type/:clientId/form", h.Form)
	g.Post("/configs/:type/:clientId/delete-intents", mutate, h.RequestDelete)
	g.Post("/configs/:type/:clientId", mutate, h.Create)
	g.Put("/configs/:type/:clientId", mutate, h.Update)
	g.Get("/configs/:id", h.View)
	g.Post("/clients/:clientId/status-intents", mutate, h.RequestClientStatus)
	g.Post("/intents/:token/confirm", mutate, h.Confirm)
	g.Post("/refresh", h.Refresh)
}

func (r *ConsoleRouter) App() *fiber.App {
	return r.app
}

func (r *ConsoleRouter) Listen(addr string) error {
	return r.app.Listen(addr)
}

func (r *ConsoleRouter) Shutdown() error {
	if r.cancelHub != nil {
		r.cancelHub()
	}
	if r.rateLimiter != nil {
		r.rateLimiter.Stop()
	}

	return r.app.Shutdown()
}
