package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/raximov/telegram-mini-app-project-sub000/internal/auth"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/cache"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/config"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/events"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/handlers"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/seed"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/services"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/utils"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/validator"
	"github.com/raximov/telegram-mini-app-project-sub000/pkg"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	slogLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	logger := utils.NewSlogLogger(slogLogger)

	// Initialize Redis (if configured)
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = pkg.NewRedisClient(cfg)
		if err != nil {
			logger.Warn("Redis unavailable, caching disabled", "error", err)
			redisClient = nil
		}
	}
	cacheManager := cache.NewCacheManager(redisClient)

	// Initialize repositories
	repo, err := pkg.OpenRepository(cfg, redisClient)
	if err != nil {
		log.Fatalf("Failed to initialize repositories: %v", err)
	}

	// Initialize event bus
	rawPublisher, subscriber, err := newEventBus(cfg, slogLogger)
	if err != nil {
		log.Fatalf("Failed to initialize event bus: %v", err)
	}
	publisher := events.NewWatermillPublisher(rawPublisher, slogLogger)

	// Initialize validator
	validator := validator.New()

	// Initialize services
	serviceManager := services.NewServiceManager(repo, slogLogger, validator, cacheManager, publisher, services.ServiceManagerConfig{
		MaxAttempts: cfg.MaxAttempts,
		TimerTick:   cfg.TimerTick,
	})
	if err := serviceManager.Initialize(context.Background()); err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}

	// Initialize event consumer
	consumer, err := events.NewConsumer(subscriber, slogLogger)
	if err != nil {
		log.Fatalf("Failed to initialize event consumer: %v", err)
	}
	consumer.On(events.EventAttemptSubmitted, events.SummaryInvalidator(cacheManager))
	consumer.On(events.EventAttemptSubmitted, releaseTimer(serviceManager.Timers()))
	consumer.On(events.EventAttemptExpired, releaseTimer(serviceManager.Timers()))

	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()
	go func() {
		if err := consumer.Run(consumerCtx, events.TopicAttempts); err != nil {
			logger.Error("Event consumer stopped", "error", err)
		}
	}()

	if cfg.SeedFile != "" {
		if err := seedTests(cfg.SeedFile, serviceManager.Test(), slogLogger); err != nil {
			log.Fatalf("Failed to seed tests: %v", err)
		}
	}

	// Initialize authentication
	issuer := auth.NewTokenIssuer(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL)
	verifiers := auth.Chain{issuer}
	if cfg.Casdoor.Enabled() {
		verifiers = append(verifiers, auth.NewCasdoorVerifier(cfg.Casdoor))
		logger.Info("Casdoor tokens accepted", "endpoint", cfg.Casdoor.Endpoint)
	}
	initData := auth.NewInitDataValidator(cfg.Telegram.BotToken, cfg.Telegram.InitDataMaxAge, cfg.Telegram.TeacherIDs)

	// Initialize handlers
	handlerManager := handlers.NewHandlerManager(serviceManager, initData, issuer, verifiers, logger)

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Setup middleware
	handlers.SetupMiddleware(router, logger)

	// Setup routes
	handlerManager.SetupRoutes(router)

	// Create HTTP server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Starting server",
			"port", cfg.Port,
			"environment", cfg.Environment,
			"store", cfg.StoreDriver,
			"kafka", len(cfg.Kafka.Brokers) > 0)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	// Shutdown services; this also stops every countdown and closes the store
	if err := serviceManager.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown services", "error", err)
	}

	stopConsumer()
	if err := consumer.Close(); err != nil {
		logger.Error("Failed to close event consumer", "error", err)
	}
	if err := publisher.Close(); err != nil {
		logger.Error("Failed to close event publisher", "error", err)
	}

	// Close Redis connection
	if redisClient != nil {
		redisClient.Close()
	}

	logger.Info("Server exited")
}

// newEventBus uses Kafka when brokers are configured and an in-process
// channel otherwise.
func newEventBus(cfg *config.Config, logger *slog.Logger) (message.Publisher, message.Subscriber, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		bus := events.NewGoChannelPubSub(logger)
		return bus, bus, nil
	}

	kafkaCfg := events.KafkaConfig{
		Brokers:       cfg.Kafka.Brokers,
		ConsumerGroup: cfg.Kafka.ConsumerGroup,
	}
	publisher, err := events.NewKafkaPublisher(kafkaCfg, logger)
	if err != nil {
		return nil, nil, err
	}
	subscriber, err := events.NewKafkaSubscriber(kafkaCfg, logger)
	if err != nil {
		_ = publisher.Close()
		return nil, nil, err
	}
	return publisher, subscriber, nil
}

// releaseTimer stops the countdown of an attempt that was closed by another
// path, such as an HTTP submit while a socket is still open.
func releaseTimer(timers *services.TimerCoordinator) events.Handler {
	return func(ctx context.Context, event *events.Event) error {
		var data events.AttemptEventData
		if err := event.DecodeData(&data); err != nil {
			return nil
		}
		timers.Release(data.AttemptID)
		return nil
	}
}

func seedTests(path string, tests services.TestService, logger *slog.Logger) error {
	f, err := seed.LoadFile(path)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	created, err := seed.Apply(ctx, tests, f, logger)
	if err != nil {
		return err
	}
	logger.Info("Seed applied", "file", path, "created", len(created))
	return nil
}
