package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/raximov/telegram-mini-app-project-sub000/internal/cache"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/events"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/repositories"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/validator"
)

type ServiceManager interface {
	Initialize(ctx context.Context) error

	Attempt() AttemptService
	Test() TestService
	Report() ReportService
	Timers() *TimerCoordinator

	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// ServiceManagerConfig holds configuration for the service manager
type ServiceManagerConfig struct {
	// MaxAttempts above 1 switches from the single-attempt policy.
	MaxAttempts int
	TimerTick   time.Duration
}

func DefaultServiceManagerConfig() ServiceManagerConfig {
	return ServiceManagerConfig{
		MaxAttempts: 1,
		TimerTick:   time.Second,
	}
}

// serviceManager implements ServiceManager interface
type serviceManager struct {
	// Dependencies
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	cache     *cache.CacheManager
	publisher events.EventPublisher
	config    ServiceManagerConfig

	// Service instances
	attemptService AttemptService
	testService    TestService
	reportService  ReportService
	timers         *TimerCoordinator

	// Lifecycle management
	initialized bool
	shutdown    bool
	mu          sync.RWMutex
}

func NewServiceManager(repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, cm *cache.CacheManager, publisher events.EventPublisher, config ServiceManagerConfig) ServiceManager {
	if cm == nil {
		cm = cache.NewCacheManager(nil)
	}
	return &serviceManager{
		repo:      repo,
		logger:    logger,
		validator: validator,
		cache:     cm,
		publisher: publisher,
		config:    config,
	}
}

// Initialize sets up all services and their dependencies
func (sm *serviceManager) Initialize(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.initialized {
		return nil
	}
	if sm.config.MaxAttempts < 0 {
		return fmt.Errorf("max attempts cannot be negative: %d", sm.config.MaxAttempts)
	}

	sm.logger.Info("Initializing service manager",
		"max_attempts", sm.config.MaxAttempts,
		"timer_tick", sm.config.TimerTick)

	var policy AttemptPolicy = SingleAttemptPolicy{}
	if sm.config.MaxAttempts > 1 {
		policy = MaxAttemptsPolicy{Max: sm.config.MaxAttempts}
	}

	sm.attemptService = NewAttemptService(sm.repo, sm.logger, sm.validator, sm.cache, sm.publisher, WithAttemptPolicy(policy))
	sm.testService = NewTestService(sm.repo, sm.logger, sm.validator, sm.cache, sm.publisher)
	sm.reportService = NewReportService(sm.repo, sm.logger, sm.cache)
	sm.timers = NewTimerCoordinator(sm.attemptService, sm.config.TimerTick, sm.logger)

	sm.initialized = true
	sm.logger.Info("Service manager initialized successfully")
	return nil
}

// Service getters
func (sm *serviceManager) Attempt() AttemptService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeInitialized()
	return sm.attemptService
}

func (sm *serviceManager) Test() TestService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeInitialized()
	return sm.testService
}

func (sm *serviceManager) Report() ReportService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeInitialized()
	return sm.reportService
}

func (sm *serviceManager) Timers() *TimerCoordinator {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeInitialized()
	return sm.timers
}

func (sm *serviceManager) mustBeInitialized() {
	if !sm.initialized {
		panic("service manager not initialized")
	}
}

// Health and lifecycle
func (sm *serviceManager) HealthCheck(ctx context.Context) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		return fmt.Errorf("service manager not initialized")
	}
	if sm.shutdown {
		return fmt.Errorf("service manager is shut down")
	}

	if err := sm.repo.Ping(ctx); err != nil {
		return fmt.Errorf("repository health check failed: %w", err)
	}
	// Redis is optional; an outage only degrades caching.
	if !sm.cache.Result.Available() {
		return nil
	}
	if err := sm.cache.HealthCheck(ctx); err != nil {
		sm.logger.Warn("Cache unavailable", "error", err)
	}
	return nil
}

// Shutdown stops live timer sessions before the store goes away.
func (sm *serviceManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.shutdown {
		return nil
	}

	sm.logger.Info("Shutting down service manager")

	if sm.timers != nil {
		sm.timers.Shutdown()
	}
	if err := sm.repo.Close(); err != nil {
		sm.logger.Error("Failed to close repository", "error", err)
	}

	sm.shutdown = true
	sm.logger.Info("Service manager shut down completed")
	return nil
}
