package http

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/fibhq/outbox-bridge/internal/config"
	"github.com/fibhq/outbox-bridge/internal/dispatcher"
	"github.com/fibhq/outbox-bridge/internal/http/middleware"
	"github.com/fibhq/outbox-bridge/internal/metrics"
	"github.com/fibhq/outbox-bridge/internal/repository"
	"github.com/fibhq/outbox-bridge/internal/service/outbox"
	"github.com/fibhq/outbox-bridge/internal/strategy"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// Deps carries the wired components the HTTP surface exposes.
type Deps struct {
	Outbox       *outbox.Service
	Dispatcher   *dispatcher.Dispatcher
	Events       repository.EventsRepository
	Destinations repository.DestinationsRepository
	DeliveryLog  repository.DeliveryLogRepository // nil when ClickHouse is disabled
	Registry     *strategy.Registry
	Redis        *redis.Client // nil disables rate limiting
}

type Server struct{ e *echo.Echo }

func NewServer(cfg config.Config, deps Deps) *Server {
	// echo
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	authMW := middleware.APIKeyMiddleware(cfg.APIKeys)
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          deps.Redis,
		DefaultRPS:     cfg.RateLimit.RPS,
		KeyPrefix:      "rl:client:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	// routes
	v1 := e.Group("/v1", authMW, rlMW)
	v1.POST("/events", appendEventHandler(deps.Outbox))
	v1.GET("/events/:id", getEventHandler(deps.Events))
	v1.GET("/stats", statsHandler(deps.Outbox))
	v1.GET("/destinations", listDestinationsHandler(deps.Destinations))
	v1.GET("/destination-types", destinationTypesHandler(deps.Registry))
	v1.POST("/actions/dispatch", dispatchHandler(deps.Dispatcher))
	v1.POST("/actions/requeue-dead", requeueDeadHandler(deps.Outbox))
	v1.POST("/actions/reset-locks", resetLocksHandler(deps.Outbox))
	v1.GET("/reports/deliveries", listDeliveriesHandler(deps.DeliveryLog))

	return &Server{e: e}
}

func (s *Server) Start(addr string) error {
	log.Printf("http: listening on %s", addr)
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
