package server

import (
	"strings"
	"time"

	"github.com/agehcx/hiking-app-sub000/internal/apperrors"
	"github.com/agehcx/hiking-app-sub000/internal/auth"
	"github.com/agehcx/hiking-app-sub000/internal/config"
	"github.com/agehcx/hiking-app-sub000/internal/db"
	"github.com/agehcx/hiking-app-sub000/internal/logger"
	"github.com/agehcx/hiking-app-sub000/internal/routing"
	"github.com/agehcx/hiking-app-sub000/internal/storage"
	"github.com/agehcx/hiking-app-sub000/internal/stream"
	"github.com/agehcx/hiking-app-sub000/internal/trip"
	"github.com/agehcx/hiking-app-sub000/internal/user"
	"github.com/agehcx/hiking-app-sub000/internal/vector"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Database is the pool surface the API needs.
type Database interface {
	db.Querier
	db.Pinger
}

// Deps are the clients owned by the process bootstrap. DB, Photos and Log
// are required; the rest may be nil.
type Deps struct {
	DB      Database
	Redis   *redis.Client
	Hub     *stream.Hub
	Vector  *vector.Client
	Photos  *storage.Local
	Routing routing.Router
	Log     *zap.Logger
}

type Server struct {
	App    *fiber.App
	Cfg    config.Config
	DB     Database
	Redis  *redis.Client
	Stream *stream.Hub
	Vector *vector.Client
	Log    *zap.Logger

	started time.Time
}

func NewServer(cfg config.Config, deps Deps) *Server {
	app := fiber.New(fiber.Config{
		AppName:      "wildguide-api",
		BodyLimit:    cfg.Server.BodyLimit,
		ErrorHandler: ErrorHandler(cfg.IsDevelopment(), deps.Log),
	})

	s := &Server{
		App:     app,
		Cfg:     cfg,
		DB:      deps.DB,
		Redis:   deps.Redis,
		Stream:  deps.Hub,
		Vector:  deps.Vector,
		Log:     deps.Log,
		started: time.Now(),
	}

	s.registerMiddleware()
	registerRoutes(s, deps)
	return s
}

func (s *Server) registerMiddleware() {
	s.App.Use(helmet.New(helmet.Config{
		CrossOriginResourcePolicy: "cross-origin",
		ContentSecurityPolicy:     "default-src 'self'; style-src 'self' 'unsafe-inline'; script-src 'self'; img-src 'self' data: https:",
	}))

	origins := strings.Join(s.Cfg.Security.CORSOrigins, ",")
	s.App.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowCredentials: origins != "" && origins != "*",
		AllowMethods:     "GET,POST,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders:     "Content-Type,Authorization,X-API-Key,Accept,Origin,X-Requested-With",
	}))

	window := s.Cfg.Security.RateLimitWindow
	limits := limiter.Config{
		Max:               s.Cfg.Security.RateLimitMax,
		Expiration:        window,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return apperrors.RateLimited(window)
		},
	}
	if s.Redis != nil {
		limits.Storage = db.NewLimiterStorage(s.Redis)
	}
	s.App.Use("/api", limiter.New(limits))

	s.App.Use(compress.New())
	s.App.Use(requestid.New())
	if s.Cfg.Log.RequestLogging {
		s.App.Use(logger.Middleware(s.Log))
	}
	s.App.Use(recover.New(recover.Config{EnableStackTrace: s.Cfg.IsDevelopment()}))
}

func registerRoutes(s *Server, deps Deps) {
	s.App.Get("/health", s.health)

	tokens := auth.NewTokens(s.Cfg.Auth)
	jwtMiddleware := auth.JWTMiddleware(tokens)
	optionalAuth := auth.OptionalJWTMiddleware(tokens)
	users := user.NewStore(s.DB)

	api := s.App.Group(s.Cfg.APIPrefix())
	api.Get("/health", s.health)
	api.Get("/status", s.status)

	auth.RegisterRoutes(api.Group("/auth"), auth.NewService(users, tokens, s.Cfg.Auth.BcryptCost, s.Log), jwtMiddleware)
	user.RegisterRoutes(api.Group("/users"), users)
	trip.RegisterRoutes(api.Group("/trips"), trip.NewHandlers(trip.NewService(s.DB), deps.Photos, s.Log), jwtMiddleware, optionalAuth)

	router := deps.Routing
	if router == nil {
		router = routing.NewClient(s.Cfg.External, s.Cfg.Cache.APITimeout, s.Log)
	}
	routing.RegisterRoutes(api.Group("/routing"), router)

	if s.Stream != nil && s.Cfg.Websocket.Enabled {
		stream.RegisterRoutes(s.App, s.Stream, tokens, wsOrigins(s.Cfg))
	}

	s.App.Static(storage.PublicPath, deps.Photos.Dir())

	s.App.Use(notFound)
}

func wsOrigins(cfg config.Config) []string {
	if cfg.Websocket.Origin != "" {
		return strings.Split(cfg.Websocket.Origin, ",")
	}
	return cfg.Security.CORSOrigins
}

func notFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error":              "Route not found",
		"message":            "Cannot " + c.Method() + " " + c.OriginalURL(),
		"availableEndpoints": "/api/status",
	})
}
