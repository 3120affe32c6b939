package main

import (
	"github.com/fasthttp/router"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"priceintel/internal/cache"
	"priceintel/internal/config"
	"priceintel/internal/db"
	"priceintel/internal/engine"
	"priceintel/internal/http/handlers"
	appmw "priceintel/internal/http/middleware"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log := logrus.New()
	if cfg.LogJSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	sqlDB, err := db.Connect(cfg)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	if err := db.EnsureBootstrapAPIKey(sqlDB, cfg); err != nil {
		log.Fatalf("failed to ensure bootstrap API key: %v", err)
	}

	readCache, err := cache.New(cfg.RedisAddr)
	if err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	if readCache != nil {
		log.Infof("redis read cache enabled at %s", cfg.RedisAddr)
	}

	engine.InitPrometheusMetrics()

	eng := engine.New(
		db.NewCatalogStore(sqlDB),
		db.NewRollupStore(sqlDB),
		db.NewStatsStore(sqlDB),
		engine.DefaultMatcherConfig(cfg.MatchSearchFloor, cfg.MatchAcceptThreshold),
		log,
	)

	db.StartFanoutRefreshWorker(sqlDB, eng, log, cfg.FanoutRefreshInterval)

	r := router.New()

	r.GET("/healthz", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
	})

	r.POST("/v1/invoice-lines", appmw.BearerAuth(sqlDB)(handlers.IngestHandler(sqlDB, eng, readCache)))
	r.GET("/v1/price-intelligence", appmw.BearerAuth(sqlDB)(handlers.PriceIntelligenceHandler(sqlDB, readCache)))
	r.GET("/v1/price-intelligence/compare", appmw.BearerAuth(sqlDB)(handlers.CompareVendorsHandler(sqlDB)))

	r.GET("/v1/metrics", handlers.TenantMetricsHandler(sqlDB))
	r.GET("/metrics", handlers.MetricsHandler())

	handler := handlers.RequestLogger(log, r.Handler)

	log.Infof("priceintel listening on %s", cfg.ListenAddr)
	if err := fasthttp.ListenAndServe(cfg.ListenAddr, handler); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
