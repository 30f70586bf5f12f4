package router

import (
	"github.com/gin-gonic/gin"

	promhandler "github.com/jwalitptl/hiring-api/internal/handler/prometheus"
	"github.com/jwalitptl/hiring-api/internal/middleware"
	"github.com/jwalitptl/hiring-api/internal/ratelimit"
	"github.com/jwalitptl/hiring-api/pkg/logger"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Router struct {
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	health   Handler
	metrics  *promhandler.Handler
	handlers []Handler
	config   RouterConfig
}

type RouterConfig struct {
	Limiter     ratelimit.Limiter
	APIClass    ratelimit.Class
	CORSConfig  middleware.CORSConfig
	MaxBodySize int64
	Logger      *logger.Logger
}

// NewRouter builds the engine. Handlers registered here sit behind
// authentication and the api rate-limit class; health and metrics do not.
func NewRouter(auth *middleware.AuthMiddleware, health Handler, metrics *promhandler.Handler, config RouterConfig, handlers ...Handler) *Router {
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = middleware.DefaultMaxBodySize
	}

	engine := gin.New()
	engine.Use(
		middleware.RequestID(),
		middleware.Logger(config.Logger),
	)
	if metrics != nil {
		engine.Use(metrics.Middleware())
	}
	engine.Use(
		middleware.Recovery(config.Logger),
		middleware.ErrorHandler(config.Logger),
		middleware.CORS(config.CORSConfig),
	)

	return &Router{
		engine:   engine,
		auth:     auth,
		health:   health,
		metrics:  metrics,
		handlers: handlers,
		config:   config,
	}
}

func (r *Router) Setup() *gin.Engine {
	root := r.engine.Group("")
	if r.health != nil {
		r.health.RegisterRoutes(root)
	}
	if r.metrics != nil {
		r.engine.GET("/metrics", r.metrics.Handler())
	}

	api := r.engine.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})
	api.Use(middleware.SizeLimit(r.config.MaxBodySize))
	api.Use(r.auth.Authenticate())
	if r.config.Limiter != nil {
		api.Use(middleware.RateLimit(r.config.Limiter, r.config.APIClass))
	}

	for _, h := range r.handlers {
		h.RegisterRoutes(api)
	}
	return r.engine
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
