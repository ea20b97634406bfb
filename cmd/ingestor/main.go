// Command ingestor serves the Transcript Ingestor's duplex endpoint,
// accepting pushed segments from transcription workers.
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

	"github.com/meetbot/platform/internal/circuitbreaker"
	"github.com/meetbot/platform/internal/config"
	dbpkg "github.com/meetbot/platform/internal/db"
	"github.com/meetbot/platform/internal/health"
	"github.com/meetbot/platform/internal/ingestor"
	"github.com/meetbot/platform/internal/lockstore"
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

	locks := lockstore.New(redisWrapper)
	processor := ingestor.NewProcessor(sqlxDB, dbClient, locks, logger, ingestor.Config{
		DedupTTLCompleted: cfg.DedupTTLCompleted(),
		DedupTTLPartial:   cfg.DedupTTLPartial(),
	})
	endpoint := ingestor.NewEndpoint(processor, logger)

	healthMgr := health.NewManager()
	_ = healthMgr.RegisterChecker(health.NewRedisHealthChecker(redisWrapper, true))
	_ = healthMgr.RegisterChecker(health.NewDatabaseHealthChecker(dbClient.Wrapper(), true))

	if !healthMgr.IsReady(ctx) {
		logger.Fatal("startup health check failed, refusing to start")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", health.Handler(healthMgr))
	endpoint.Register(mux)

	server := &http.Server{
		Addr:         cfg.IngestorAddr,
		Handler:      mux,
		ReadTimeout:  0, // long-lived duplex connections
		WriteTimeout: 0,
	}

	go func() {
		logger.Info("ingestor listening", zap.String("addr", cfg.IngestorAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("ingestor server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("ingestor shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("ingestor forced shutdown", zap.Error(err))
	}
	logger.Info("ingestor stopped")
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
