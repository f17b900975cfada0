// Package main is the entry point for the whatsapp-relay HTTP server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mrusso/whatsapp-relay/internal/config"
	"github.com/mrusso/whatsapp-relay/internal/handler"
	"github.com/mrusso/whatsapp-relay/internal/livebus"
	"github.com/mrusso/whatsapp-relay/internal/middleware"
	"github.com/mrusso/whatsapp-relay/internal/repository"
	"github.com/mrusso/whatsapp-relay/internal/service"
	"github.com/mrusso/whatsapp-relay/internal/store"
	"github.com/mrusso/whatsapp-relay/internal/transport"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			_ = syncErr
		}
	}()

	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	db, err := sqlx.Connect("postgres", cfg.Database.GetDSN())
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database connection", zap.Error(err))
		}
	}()

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("Failed to close Redis connection", zap.Error(err))
		}
	}()

	repo := repository.NewRepository(store.NewPostgres(db))

	bus := livebus.NewBus(logger,
		time.Duration(cfg.Events.KeepAliveSeconds)*time.Second,
		time.Duration(cfg.Events.RetryMillis)*time.Millisecond)

	twilioClient := transport.NewClient(&cfg.Twilio, logger)

	svc := service.NewService(cfg, repo, twilioClient, bus, redisClient, logger)

	h := handler.NewHandler(svc, twilioClient, bus, logger)

	router := setupRouter(h)

	var corsConfig *middleware.CORSConfig
	if cfg.Middleware.EnableCORS {
		corsConfig = &middleware.CORSConfig{
			AllowedOrigins:   cfg.Middleware.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           86400,
		}
	}

	middlewareConfig := &middleware.Config{
		Logger:         logger,
		CORS:           corsConfig,
		RateLimit:      rate.Limit(cfg.Middleware.RateLimit),
		RateLimitBurst: cfg.Middleware.RateLimitBurst,
		RequestTimeout: 30 * time.Second,
		StreamingPaths: []string{"/events"},
	}

	finalHandler := middleware.Chain(middlewareConfig)(router)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      finalHandler,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		// The event stream writes for the lifetime of the connection.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	if err := svc.Retention.Start(ctx); err != nil {
		logger.Error("Failed to start retention sweep on startup", zap.Error(err))
	} else {
		logger.Info("Retention sweep started")
	}

	go func() {
		logger.Info("Starting server", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	if svc.Retention.IsRunning() {
		if err := svc.Retention.Stop(); err != nil {
			logger.Error("Failed to stop retention sweep", zap.Error(err))
		}
	}

	// Disconnect event subscribers so Shutdown does not wait on them.
	bus.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
