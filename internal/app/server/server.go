package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sifan077/LinkTrace/internal/app/service"
	inthttp "github.com/sifan077/LinkTrace/internal/http/handler"
	"github.com/sifan077/LinkTrace/internal/http/middleware"
	httpUtil "github.com/sifan077/LinkTrace/internal/http/util"
	"go.uber.org/zap"
)

// Dependencies bundles everything the HTTP server needs.
type Dependencies struct {
	Logger         *zap.Logger
	Redis          *redis.Client
	Links          service.LinkService
	Analytics      service.AnalyticsService
	VisitPublisher *service.VisitPublisher
	JWTSecret      []byte
	DeleteSecret   []byte
	DeleteTokenTTL time.Duration
	BaseURL        string
}

// Server wraps the Fiber application and its dependencies.
type Server struct {
	app  *fiber.App
	deps Dependencies
}

// New creates a new HTTP server instance with default routes.
func New(deps Dependencies) *Server {
	app := fiber.New()

	s := &Server{
		app:  app,
		deps: deps,
	}

	s.registerMiddleware()
	s.registerRoutes()
	return s
}

// Listen starts the Fiber server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the Fiber server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerMiddleware() {
	s.app.Use(middleware.RequestID())
	s.app.Use(middleware.Recovery(s.deps.Logger))
	s.app.Use(middleware.Logger(s.deps.Logger))
	s.app.Use(middleware.CORS())
	if s.deps.Redis != nil {
		s.app.Use(middleware.RateLimit(s.deps.Redis, middleware.DefaultRateLimitConfig(), s.deps.Logger))
	}
	s.app.Use(middleware.Auth(s.deps.JWTSecret))
}

func (s *Server) registerRoutes() {
	deleteTokens := httpUtil.NewTokenSigner(s.deps.DeleteSecret, s.deps.DeleteTokenTTL)

	apiHandler := inthttp.NewAPIHandler(inthttp.APIDeps{
		Logger:         s.deps.Logger,
		Links:          s.deps.Links,
		Analytics:      s.deps.Analytics,
		VisitPublisher: s.deps.VisitPublisher,
		DeleteTokens:   deleteTokens,
		BaseURL:        s.deps.BaseURL,
	})
	apiHandler.Register(s.app)

	// Registered last: /:code must not shadow /api routes.
	redirectHandler := inthttp.NewRedirectHandler(inthttp.RedirectDeps{
		Logger:         s.deps.Logger,
		Links:          s.deps.Links,
		Analytics:      s.deps.Analytics,
		VisitPublisher: s.deps.VisitPublisher,
	})
	redirectHandler.Register(s.app)
}
