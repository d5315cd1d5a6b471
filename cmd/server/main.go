package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lostfound/backend/internal/broker"
	"github.com/lostfound/backend/internal/config"
	"github.com/lostfound/backend/internal/database"
	"github.com/lostfound/backend/internal/journal"
	"github.com/lostfound/backend/internal/repository"
	"github.com/lostfound/backend/internal/router"
	"github.com/lostfound/backend/internal/service"
	"github.com/lostfound/backend/pkg/logger"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := logger.Init(!cfg.IsProduction()); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		logger.Log.Fatal("Failed to migrate database", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sinks := []broker.Sink{broker.LogSink{}}
	deps := router.Deps{Config: cfg, DB: db}

	// Redis is optional: without it there is no rate limiting or live stream
	if cfg.RedisURL != "" {
		redisBroker, err := broker.NewRedisNotificationBroker(ctx, cfg.RedisURL)
		if err != nil {
			logger.Log.Fatal("Failed to initialize Redis broker", zap.Error(err))
		}
		defer redisBroker.Close()

		sinks = append(sinks, redisBroker)
		deps.Redis = redisBroker.Client()
		deps.Subscriber = redisBroker
	} else {
		logger.Log.Warn("REDIS_URL not set, rate limiting and live notifications disabled")
	}

	if cfg.NotificationJournalPath != "" {
		j, err := journal.Open(cfg.NotificationJournalPath)
		if err != nil {
			logger.Log.Fatal("Failed to open notification journal", zap.Error(err))
		}
		defer j.Close()

		if cfg.NotificationJournalRetention > 0 {
			pruned, err := j.Prune(time.Now().Add(-cfg.NotificationJournalRetention))
			if err != nil {
				logger.Log.Warn("Failed to prune notification journal", zap.Error(err))
			} else if pruned > 0 {
				logger.Log.Info("Pruned notification journal", zap.Int("entries", pruned))
			}
		}
		sinks = append(sinks, j)
	}

	dispatcher := broker.NewDispatcher(cfg.NotificationBuffer, sinks...)
	defer dispatcher.Close()

	userRepo := repository.NewUserRepository(db)
	itemRepo := repository.NewItemRepository(db)

	deps.AuthService = service.NewAuthService(userRepo, cfg.JWTSecret, cfg.JWTExpiry)
	deps.ItemService = service.NewItemService(itemRepo, dispatcher)
	deps.QueryService = service.NewQueryService(itemRepo)

	srv := &http.Server{
		Addr:              cfg.ServerPort,
		Handler:           router.New(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.Info("Server starting", zap.String("addr", cfg.ServerPort), zap.String("environment", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Log.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Graceful shutdown failed", zap.Error(err))
	}
}
