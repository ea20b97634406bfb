// Command orchestrator serves the Bot Orchestrator's HTTP surface:
// request-bot, stop-bot, and the tenant-scoped read API.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/meetbot/platform/internal/auth"
	"github.com/meetbot/platform/internal/circuitbreaker"
	"github.com/meetbot/platform/internal/config"
	"github.com/meetbot/platform/internal/container"
	dbpkg "github.com/meetbot/platform/internal/db"
	"github.com/meetbot/platform/internal/health"
	"github.com/meetbot/platform/internal/httpapi"
	"github.com/meetbot/platform/internal/lockstore"
	"github.com/meetbot/platform/internal/orchestrator"
	"github.com/meetbot/platform/internal/readapi"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbClient, err := dbpkg.NewClient(&dbpkg.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer dbClient.Close()
	if err := dbpkg.Migrate(ctx, dbClient.GetDB()); err != nil {
		logger.Fatal("failed to apply database migrations", zap.Error(err))
	}
	sqlxDB := sqlx.NewDb(dbClient.GetDB(), "postgres")

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisHost + ":" + strconv.Itoa(cfg.RedisPort)})
	defer redisClient.Close()
	redisWrapper := circuitbreaker.NewRedisWrapper(redisClient, logger)
	if err := redisWrapper.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to reach redis", zap.Error(err))
	}

	driver, err := container.New(ctx, cfg.DockerSocketPath, logger)
	if err != nil {
		logger.Fatal("failed to reach container control plane", zap.Error(err))
	}

	identity := auth.NewService(sqlxDB, logger)
	locks := lockstore.New(redisWrapper)
	orch := orchestrator.New(identity, locks, driver, sqlxDB, logger, orchestrator.Config{
		BotImageName:     cfg.BotImageName,
		DockerNetwork:    cfg.DockerNetwork,
		TranscriptionURL: cfg.TranscriptionURL,
		LockTTL:          cfg.LockTTL(),
	})
	reads := readapi.New(identity, sqlxDB)
	authMW := auth.NewMiddleware(identity)
	limiter := httpapi.NewTenantRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst, 10000)

	healthMgr := health.NewManager()
	_ = healthMgr.RegisterChecker(health.NewRedisHealthChecker(redisWrapper, true))
	_ = healthMgr.RegisterChecker(health.NewDatabaseHealthChecker(dbClient.Wrapper(), true))
	_ = healthMgr.RegisterChecker(health.NewContainerSocketHealthChecker(driver, true))

	if !healthMgr.IsReady(ctx) {
		logger.Fatal("startup health check failed, refusing to start")
	}

	api := httpapi.New(orch, reads, authMW, limiter, healthMgr, logger)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api.Mux(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("orchestrator listening", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("orchestrator server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("orchestrator shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("orchestrator forced shutdown", zap.Error(err))
	}
	logger.Info("orchestrator stopped")
}

func newLogger(level string) *zap.Logger {
	if level == "debug" {
		logger, _ := zap.NewDevelopment()
		return logger
	}
	logger, err := zap.NewProduction()
	if err != nil {
		logger = zap.NewNop()
	}
	return logger
}
