package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/jaevor/go-nanoid"
	"github.com/sifan077/LinkTrace/config"
	appmodel "github.com/sifan077/LinkTrace/internal/app/model"
	apprepository "github.com/sifan077/LinkTrace/internal/app/repository"
	appserver "github.com/sifan077/LinkTrace/internal/app/server"
	appservice "github.com/sifan077/LinkTrace/internal/app/service"
	"github.com/sifan077/LinkTrace/internal/infra/geoip"
	"github.com/sifan077/LinkTrace/internal/infra/logger"
	infraNATS "github.com/sifan077/LinkTrace/internal/infra/nats"
	infraPostgres "github.com/sifan077/LinkTrace/internal/infra/postgres"
	infraPrometheus "github.com/sifan077/LinkTrace/internal/infra/prometheus"
	infraRedis "github.com/sifan077/LinkTrace/internal/infra/redis"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	isDev := os.Getenv("APP_ENV") != "production"
	log := logger.MustInit(logger.Config{
		Development: isDev,
		Level:       os.Getenv("LOG_LEVEL"),
	})
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	log.Info("Configuration loaded successfully",
		zap.String("postgres_host", cfg.Postgres.Host),
		zap.Int("postgres_port", cfg.Postgres.Port),
		zap.String("postgres_db", cfg.Postgres.Database),
		zap.String("redis_host", cfg.Redis.Host),
		zap.String("nats_host", cfg.NATS.Host),
		zap.Duration("grace_period", cfg.Link.GracePeriod),
		zap.Duration("reaper_interval", cfg.Link.ReaperInterval),
	)

	gormDB, err := infraPostgres.NewGorm(cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to open GORM connection", zap.Error(err))
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Fatal("Failed to access underlying SQL DB", zap.Error(err))
	}
	defer sqlDB.Close()

	if err := infraPostgres.AutoMigrate(ctx, gormDB, &appmodel.Link{}); err != nil {
		log.Fatal("Failed to run database migrations", zap.Error(err))
	}

	pool, err := infraPostgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := apprepository.EnsureVisitSchema(ctx, pool); err != nil {
		log.Fatal("Failed to ensure visit schema", zap.Error(err))
	}

	log.Info("Connected to Postgres successfully")

	redisClient, err := infraRedis.NewClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	log.Info("Connected to Redis successfully")

	natsConn, js, err := infraNATS.Connect(cfg.NATS)
	if err != nil {
		log.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer natsConn.Drain()
	log.Info("Connected to NATS successfully", zap.Bool("jetstream_ready", js != nil))

	if !isDev {
		promServer := infraPrometheus.NewServer(cfg.Prometheus)
		go func() {
			log.Info("Starting Prometheus metrics server",
				zap.Int("port", cfg.Prometheus.Port))
			if err := promServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Prometheus metrics server stopped unexpectedly", zap.Error(err))
			}
		}()
		defer func() {
			if err := promServer.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("Failed to close Prometheus server", zap.Error(err))
			}
		}()
	} else {
		log.Info("Skipping Prometheus metrics server in development mode")
	}

	generate, err := nanoid.Standard(cfg.Link.CodeLength)
	if err != nil {
		log.Fatal("Failed to build code generator", zap.Error(err))
	}

	linkRepo := apprepository.NewCachedLinkRepository(
		apprepository.NewLinkRepository(gormDB),
		redisClient,
		cfg.Link.CacheTTL,
	)
	visitRepo := apprepository.NewVisitRepository(pool)

	linkService := appservice.NewLinkService(linkRepo, generate, appservice.Options{
		GracePeriod:     cfg.Link.GracePeriod,
		GenerateRetries: cfg.Link.GenerateRetries,
	})
	if err := linkService.SeedCodeFilter(ctx); err != nil {
		log.Warn("Failed to seed code filter", zap.Error(err))
	}

	analyticsService := appservice.NewAnalyticsService(linkRepo, visitRepo, cfg.Link.RecentVisitLimit)

	enricher := geoip.NewClient(cfg.Geo)
	recorder := appservice.NewVisitRecorder(log, visitRepo, enricher)

	consumer := appservice.NewVisitConsumer(js, log, recorder)
	if err := consumer.Start(); err != nil {
		log.Fatal("Failed to start visit consumer", zap.Error(err))
	}

	reaper := appservice.NewReaper(log, linkRepo, cfg.Link.ReaperInterval, cfg.Link.ReaperBatchSize)
	reaper.Start()
	defer reaper.Stop()

	server := appserver.New(appserver.Dependencies{
		Logger:         log,
		Redis:          redisClient,
		Links:          linkService,
		Analytics:      analyticsService,
		VisitPublisher: appservice.NewVisitPublisher(js),
		JWTSecret:      []byte(cfg.Auth.JWTSecret),
		DeleteSecret:   []byte(cfg.Auth.DeleteSecret),
		DeleteTokenTTL: cfg.Link.GracePeriod,
		BaseURL:        cfg.Link.BaseURL,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info("Starting HTTP server", zap.String("addr", addr))
	if err := server.Listen(addr); err != nil {
		log.Fatal("Fiber server exited", zap.Error(err))
	}
}
