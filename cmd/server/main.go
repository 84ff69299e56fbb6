package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/cafezinho/discovery/internal/api"
	"github.com/cafezinho/discovery/internal/app"
	"github.com/cafezinho/discovery/internal/cache"
	"github.com/cafezinho/discovery/internal/config"
	"github.com/cafezinho/discovery/internal/db"
	svcErr "github.com/cafezinho/discovery/internal/errors"
	"github.com/cafezinho/discovery/internal/logger"
	"github.com/cafezinho/discovery/internal/repository"
	"github.com/cafezinho/discovery/internal/server"
	"github.com/cafezinho/discovery/internal/service/discovery"
	"github.com/cafezinho/discovery/internal/session"
)

func main() {
	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Init local preference store
	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		os.Exit(1)
	}
	store, err := session.NewStore(repository.NewPreferenceRepository(database), cfg.Session.Secret)
	if err != nil {
		log.Error("failed to init session store", "err", err)
		os.Exit(1)
	}

	// Redis is optional: without it viewed markers are not deduplicated
	// and top users are not cached.
	var redisCache *cache.RedisCache
	if cfg.Redis.Addr != "" {
		redisCache = cache.NewRedisCache(cfg)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn("redis unavailable, continuing without cache", "addr", cfg.Redis.Addr, "err", err)
			_ = redisCache.Close()
			redisCache = nil
		}
	}

	client, err := api.NewClient(cfg.API.BaseURL, cfg.API.Timeout, session.TokenFromContext)
	if err != nil {
		log.Error("failed to init api client", "err", err)
		os.Exit(1)
	}
	repo := repository.NewDiscoveryRepository(client, redisCache, log)

	opts := discovery.Options{
		MaxStack: cfg.Discovery.MaxStack,
		LowWater: cfg.Discovery.LowWater,
		TopSeed:  cfg.Discovery.TopSeed,
		TopUsers: cfg.Discovery.TopUsers,
		Logger:   log,
	}
	sessions := discovery.NewManager(repo, store, opts)

	appCtx := app.New(cfg, database, redisCache, log, store, sessions)
	defer func() {
		if err := appCtx.Close(); err != nil {
			log.Warn("shutdown cleanup failed", "err", err)
		}
	}()

	if cfg.App.Env == "development" {
		seedDevSession(ctx, appCtx)
	}

	registrars := []server.Registrar{
		discovery.NewRegistrar(appCtx.Sessions, appCtx.Logger),
	}

	if err := server.StartGRPCServer(ctx, cfg, log, registrars...); err != nil {
		log.Error("gRPC server failed", "err", err)
		os.Exit(1)
	}
}

func seedDevSession(ctx context.Context, appCtx *app.AppContext) {
	log := appCtx.Logger
	if appCtx.Config.Dev.UserID == "" {
		if _, err := appCtx.Store.Current(ctx); errors.Is(err, svcErr.ErrSessionNotFound) {
			log.Warn("development mode without DEV_USER_ID and no stored session")
		}
		return
	}
	sc, err := session.SeedDev(ctx, appCtx.Store, appCtx.Config)
	if err != nil {
		log.Error("failed to seed dev session", "err", err)
		return
	}
	log.Info("dev session seeded", "user_id", sc.UserID)
}
