package main

import (
	"context"
	"time"

	"github.com/fasthttp/router"
	"github.com/joho/godotenv"
	"github.com/valyala/fasthttp"

	"surveycache/internal/cache"
	"surveycache/internal/config"
	"surveycache/internal/db"
	"surveycache/internal/http/handlers"
	appmw "surveycache/internal/http/middleware"
	"surveycache/internal/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger := logging.NewLogger()
	defer func() { _ = logger.Sync() }()

	sqlDB, err := db.Connect(cfg)
	if err != nil {
		logger.Fatalf("failed to connect database: %v", err)
	}

	if err := db.EnsureBootstrapAdmin(sqlDB, cfg); err != nil {
		logger.Fatalf("failed to ensure bootstrap admin: %v", err)
	}

	if cfg.InternalAPIKey != "" {
		if err := db.EnsureBootstrapAPIKey(sqlDB, cfg); err != nil {
			logger.Warnf("failed to ensure bootstrap API key: %v", err)
		} else {
			logger.Infof("internal API key configured and associated with admin user")
		}
	}

	cache.InitMetrics()
	handlers.InitPrometheusMetrics()

	store := db.NewStore(sqlDB)
	interval := time.Duration(cfg.WindowMinutes) * time.Minute

	var alerter cache.Alerter = cache.LogAlerter{}
	if cfg.AlertWebhookURL != "" {
		alerter = cache.WebhookAlerter{URL: cfg.AlertWebhookURL}
	}

	engine := cache.NewEngine(store, store, alerter, interval, cfg.MergeWorkers)

	workerCtx := logging.WithLogger(context.Background(), logger)
	cache.StartWorker(workerCtx, engine, interval)

	r := router.New()

	r.GET("/healthz", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
	})

	r.GET("/metrics", handlers.MetricsHandler())

	r.POST("/v1/events", appmw.BearerAuth(sqlDB)(handlers.IngestHandler(sqlDB)))
	r.POST("/v1/events/{id}/answers", appmw.BearerAuth(sqlDB)(handlers.RecordAnswer(store)))
	r.POST("/v1/events/{id}/viewed", appmw.BearerAuth(sqlDB)(handlers.MarkViewed(store)))

	r.GET("/v1/caches", appmw.BearerAuth(sqlDB)(handlers.CacheRecords(store)))
	r.POST("/v1/runs", appmw.BearerAuth(sqlDB)(appmw.AdminOnly(handlers.TriggerRun(engine, logger))))

	logger.Infof("surveycache listening on %s", cfg.ListenAddr)
	if err := fasthttp.ListenAndServe(cfg.ListenAddr, r.Handler); err != nil {
		logger.Fatalf("server error: %v", err)
	}
}
