// ==============================================================================
// SETTLEMENT SERVICE MAIN - cmd/settlement/main.go
// ==============================================================================
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"settld/internal/events/kafka"
	"settld/internal/handler"
	"settld/internal/middleware"
	"settld/internal/notification"
	"settld/internal/repository/sqlstore"
	"settld/internal/scheduler"
	"settld/internal/settlement"
	"settld/pkg/cache"
	"settld/pkg/config"
	"settld/pkg/logger"
	"settld/pkg/validator"
)

func main() {
	cfg := config.Load()
	log := logger.NewWithLevel("settlement-service", logger.ParseLevel(cfg.Log.Level), os.Stdout)

	if err := cfg.ValidateCore(); err != nil {
		log.Fatal("Invalid configuration", map[string]interface{}{
			"error": err.Error(),
		})
	}

	log.Info("Starting Settlement Service", map[string]interface{}{
		"port":             cfg.Server.Port,
		"database_driver":  cfg.Database.Driver,
		"settlement_delay": cfg.Settlement.Delay.String(),
	})

	// Schema
	if err := sqlstore.Migrate(cfg.Database.Driver, cfg.Database.URL); err != nil {
		log.Fatal("Failed to apply migrations", map[string]interface{}{
			"error": err.Error(),
		})
	}

	// Database connection
	connectCtx, cancelConnect := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := sqlstore.Connect(connectCtx, sqlstore.OptionsFromConfig(cfg.Database))
	cancelConnect()
	if err != nil {
		log.Fatal("Failed to connect to database", map[string]interface{}{
			"error": err.Error(),
		})
	}
	defer db.Close()

	txRepo := sqlstore.NewTransactionRepository(db)

	// Event fan-out
	hub := notification.NewHub(log, notification.DefaultBuffer)
	publishers := []settlement.EventPublisher{hub}

	var kafkaPublisher *kafka.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher = kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		publishers = append(publishers, kafkaPublisher)
		log.Info("Kafka publisher enabled", map[string]interface{}{
			"brokers": cfg.Kafka.Brokers,
			"topic":   cfg.Kafka.Topic,
		})
	}

	// Engine
	sched := scheduler.NewScheduler(cfg.Settlement.Delay, log)
	settlementService := settlement.NewService(txRepo, sched, log, publishers...)
	sched.Start(settlementService.Settle)

	// Rate limiting
	var rateLimiter *middleware.RateLimiter
	var redisCache *cache.RedisCache
	if cfg.Redis.URL != "" {
		pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
		redisCache, err = cache.NewRedisCache(pingCtx, cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB)
		cancelPing()
		if err != nil {
			log.Fatal("Failed to connect to Redis", map[string]interface{}{
				"error": err.Error(),
			})
		}
		rateLimiter = middleware.NewRateLimiter(redisCache, cfg.RateLimit.Requests, cfg.RateLimit.Window, log)
		log.Info("Webhook rate limiting enabled", map[string]interface{}{
			"requests": cfg.RateLimit.Requests,
			"window":   cfg.RateLimit.Window.String(),
		})
	}

	// Setup router
	r := handler.NewRouter(handler.RouterConfig{
		Webhook:      handler.NewWebhookHandler(settlementService, validator.New(), log),
		Transactions: handler.NewTransactionHandler(settlementService, log),
		System:       handler.NewSystemHandler(txRepo, log),
		Stream:       handler.NewStreamHandler(hub, log),
		RateLimiter:  rateLimiter,
		Logger:       log,
	})

	// Start server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("Settlement service started", map[string]interface{}{
			"address": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down settlement service...", nil)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Hijacked stream connections are not tracked by Shutdown.
	hub.Close()

	// Stop intake first so nothing is scheduled after the scheduler stops.
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Settlement service forced to shutdown", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if err := sched.Stop(ctx); err != nil {
		log.Error("Settlement scheduler did not drain", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			log.Warn("Failed to close Kafka publisher", map[string]interface{}{"error": err.Error()})
		}
	}
	if redisCache != nil {
		if err := redisCache.Close(); err != nil {
			log.Warn("Failed to close Redis client", map[string]interface{}{"error": err.Error()})
		}
	}

	log.Info("Settlement service stopped gracefully", nil)
}
