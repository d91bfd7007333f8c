// Package main wires together the scraper service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/PatchyVideo/thvote-scraper/internal/api"
	"github.com/PatchyVideo/thvote-scraper/internal/cache"
	"github.com/PatchyVideo/thvote-scraper/internal/config"
	"github.com/PatchyVideo/thvote-scraper/internal/fetch"
	"github.com/PatchyVideo/thvote-scraper/internal/logging"
	"github.com/PatchyVideo/thvote-scraper/internal/resolver"
	"github.com/PatchyVideo/thvote-scraper/internal/sites"
	"github.com/PatchyVideo/thvote-scraper/internal/telemetry"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.InitTracerProvider(ctx, "thvote-scraper")
	if err != nil {
		logger.Warn("tracer init failed", zap.Error(err))
	} else {
		defer func() {
			if shutdownErr := tp.Shutdown(context.Background()); shutdownErr != nil {
				logger.Warn("tracer shutdown failed", zap.Error(shutdownErr))
			}
		}()
	}

	var store cache.Store
	switch cfg.Cache.Backend {
	case "redis":
		redisStore, err := cache.NewRedis(cache.RedisConfig{
			Address:  cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		if err != nil {
			logger.Fatal("redis connect failed", zap.Error(err))
		}
		defer func() {
			if closeErr := redisStore.Close(); closeErr != nil {
				logger.Warn("redis close failed", zap.Error(closeErr))
			}
		}()
		store = redisStore
	default:
		store = cache.NewMemory()
	}

	client, err := fetch.New(fetch.Config{
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   cfg.RequestTimeout(),
		ProxyURL:  cfg.HTTP.ProxyURL,
	})
	if err != nil {
		logger.Fatal("http client init failed", zap.Error(err))
	}

	env := sites.NewEnv(client, store, sites.Config{
		YoutubeAPIKey:     cfg.Sources.YoutubeAPIKey,
		TwitterAuth:       cfg.Sources.TwitterAuth,
		PixivRefreshToken: cfg.Sources.PixivRefreshToken,
		PixivBadTags:      cfg.Sources.PixivBadTags,
		MelonHost:         cfg.Sources.MelonHost,
		BiliSessData:      cfg.Sources.BiliSessData,
		Timezone:          cfg.Sources.Timezone,
	}, logging.For(logger, "sites"))

	ttls := cache.DefaultTTLs()
	ttls.Failure = cfg.FailureTTL()
	res := resolver.New(sites.Registry(env), store, ttls, logging.For(logger, "resolver"))

	apiServer := api.NewServer(res, logging.For(logger, "api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
