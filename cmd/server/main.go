package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/olyamironova/trade-gateway/internal/adapter/in_memory"
	"github.com/olyamironova/trade-gateway/internal/adapter/kafka"
	"github.com/olyamironova/trade-gateway/internal/adapter/pg"
	"github.com/olyamironova/trade-gateway/internal/adapter/redisstore"
	"github.com/olyamironova/trade-gateway/internal/api/grpc"
	"github.com/olyamironova/trade-gateway/internal/api/http"
	"github.com/olyamironova/trade-gateway/internal/api/ws"
	"github.com/olyamironova/trade-gateway/internal/config"
	"github.com/olyamironova/trade-gateway/internal/core"
	"github.com/olyamironova/trade-gateway/internal/gateway"
	"github.com/olyamironova/trade-gateway/internal/logging"
	"github.com/olyamironova/trade-gateway/internal/middleware"
	"github.com/olyamironova/trade-gateway/internal/port"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store port.Store
	switch cfg.Store {
	case config.StoreMemory:
		store = in_memory.NewStore()
	default:
		store = redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := store.Ping(ctx); err != nil {
			log.Fatalf("failed to connect to Redis at %s: %v", cfg.RedisAddr, err)
		}
	}
	defer store.Close()

	opts := gateway.Options{MatchOnCreate: cfg.MatchOnCreate}
	if cfg.KafkaBrokers != "" {
		pub := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		defer pub.Close()
		opts.Publisher = pub
		log.WithField("topic", cfg.KafkaTopic).Info("kafka relay enabled")
	}
	if cfg.PostgresDSN != "" {
		archive, err := pg.NewPgArchive(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("failed to connect to Postgres: %v", err)
		}
		defer archive.Close(context.Background())
		if cfg.MigrateOnStart {
			if err := archive.Migrate(ctx); err != nil {
				log.Fatalf("migrations failed: %v", err)
			}
		}
		opts.Archive = archive
		log.Info("postgres archive enabled")
	}

	engine := core.NewEngine(store, log)
	hub := gateway.NewHub(engine.Orders, cfg.BroadcastInterval, log)
	dispatcher := gateway.NewDispatcher(engine, hub, log, opts)

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	httpServer := http.NewHTTPServer(engine, dispatcher, ws.NewHandler(dispatcher, hub, limiter, log), limiter, store.Ping, log)
	grpcServer := grpc.NewGRPCServer(store.Ping, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return httpServer.Run(gctx, cfg.HTTPAddr) })
	g.Go(func() error { return grpcServer.Run(gctx, cfg.GRPCAddr) })

	log.WithFields(logrus.Fields{"env": cfg.AppEnv, "store": cfg.Store}).Info("trade gateway started")
	if err := g.Wait(); err != nil {
		log.WithError(err).Error("server stopped with error")
		os.Exit(1)
	}
	log.Info("trade gateway stopped")
}
