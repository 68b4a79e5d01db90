// Package server exposes the enrichment pipeline over HTTP.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	glog "github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tunescope/enricher/config"
	"github.com/tunescope/enricher/internal/budget"
	"github.com/tunescope/enricher/internal/cache"
	"github.com/tunescope/enricher/internal/enrich"
	"github.com/tunescope/enricher/internal/llm"
	"github.com/tunescope/enricher/internal/ratelimit"
	"github.com/tunescope/enricher/internal/search"
	"github.com/tunescope/enricher/internal/telemetry"
)

// Run wires the full pipeline from config and serves it until the
// process exits.
func Run(cfg *config.Config) error {
	ctx := context.Background()

	client := llm.NewAnthropicClient(cfg.LLM)
	quota := search.NewQuotaTracker(cfg.Search.DailyLimit)
	searcher := search.NewGoogleClient(cfg.Search, quota)

	var store cache.Store
	switch cfg.Cache.Backend {
	case "redis":
		rdb, err := cache.NewRedis(ctx, fmt.Sprintf("%s:%d", cfg.Cache.Redis.Host, cfg.Cache.Redis.Port),
			cfg.Cache.Redis.Password, cfg.Cache.Redis.DB, cfg.Cache.TTL)
		if err != nil {
			return fmt.Errorf("redis cache: %w", err)
		}
		store = rdb
	default:
		store = cache.NewMemory(cfg.Cache.TTL)
	}

	costs := budget.NewCostTracker(budget.Limits{
		DailyLimit:     cfg.Budget.DailyLimit,
		RequestLimit:   cfg.Budget.RequestLimit,
		CheaperAtShare: cfg.Budget.CheaperAtShare,
	})
	enrichLimiter := ratelimit.New(cfg.RateLimit.EnrichmentPerMinute, time.Minute)
	apiLimiter := ratelimit.New(cfg.RateLimit.APIPerMinute, time.Minute)
	metrics := telemetry.New(prometheus.DefaultRegisterer, cfg.Telemetry.PeriodicLogs)

	svc := enrich.NewService(cfg, client, searcher, store, costs, enrichLimiter, metrics)

	sched := &Scheduler{
		CronSpec: cfg.Server.CleanupCron,
		Limiters: []*ratelimit.Limiter{enrichLimiter, apiLimiter},
		Stop:     make(chan struct{}),
	}
	if mem, ok := store.(*cache.Memory); ok {
		sched.Cache = mem
	}
	sched.Start()
	defer close(sched.Stop)

	h := &EnrichHandler{Service: svc, Quota: searcher.Quota()}
	e := newEcho(h, apiLimiter)
	e.Debug = cfg.General.Debug
	e.Logger.SetLevel(logLevel(cfg.General.LogLevel))
	if cfg.General.DefaultTimeout > 0 {
		e.Server.ReadTimeout = cfg.General.DefaultTimeout
		e.Server.WriteTimeout = cfg.General.DefaultTimeout
	}

	addr := cfg.Server.Addr
	if addr == "" {
		addr = ":8080"
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}

// newEcho assembles routes and middleware around the handler. Split out
// of Run so tests can drive the router without real collaborators.
func newEcho(h *EnrichHandler, apiLimiter *ratelimit.Limiter) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")
	if apiLimiter != nil {
		api.Use(rateLimitMiddleware(apiLimiter))
	}
	h.Register(api)

	return e
}

// logLevel maps the configured general.log_level to the echo logger's
// scale. Unknown values land on INFO.
func logLevel(level string) glog.Lvl {
	switch level {
	case "debug":
		return glog.DEBUG
	case "warn", "warning":
		return glog.WARN
	case "error":
		return glog.ERROR
	case "off":
		return glog.OFF
	default:
		return glog.INFO
	}
}

// rateLimitMiddleware applies a per-client request budget to the API
// group. The limiter window resets itself, keys are client IPs.
func rateLimitMiddleware(l *ratelimit.Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !l.IsAllowed(c.RealIP()) {
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
