package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/SAP-F-2025/exam-service/internal/cache"
	"github.com/SAP-F-2025/exam-service/internal/events"
	"github.com/SAP-F-2025/exam-service/internal/repositories"
	"github.com/SAP-F-2025/exam-service/internal/utils"
	"github.com/SAP-F-2025/exam-service/internal/validator"
)

// ServiceManager wires the service layer together and owns its lifecycle.
type ServiceManager interface {
	Attempt() AttemptService
	Export() ExportService
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

type ServiceManagerConfig struct {
	RepositoryManager repositories.RepositoryManager
	CacheManager      *cache.CacheManager
	Validator         *validator.Validator
	Logger            utils.Logger
	Publisher         events.EventPublisher

	// DistributedIdempotency selects the Redis-backed guard so duplicate
	// submissions are detected across instances. Leave false for a single
	// instance.
	DistributedIdempotency bool
	IdempotencyTTL         time.Duration
}

type serviceManager struct {
	mu sync.RWMutex

	config  ServiceManagerConfig
	attempt AttemptService
	export  ExportService
}

func NewServiceManager(config ServiceManagerConfig) (ServiceManager, error) {
	if config.RepositoryManager == nil {
		return nil, fmt.Errorf("repository manager is required")
	}
	if config.Validator == nil {
		config.Validator = validator.New()
	}
	if config.Publisher == nil {
		config.Publisher = events.NoopEventPublisher{}
	}
	if config.CacheManager == nil {
		config.CacheManager = cache.NewCacheManager(nil)
	}

	repo := config.RepositoryManager.GetRepository()

	var guard IdempotencyGuard
	if config.DistributedIdempotency {
		guard = NewRedisIdempotencyGuard(config.CacheManager.Idempotency, config.IdempotencyTTL, config.Logger)
	} else {
		guard = NewMemoryIdempotencyGuard(config.IdempotencyTTL)
	}

	authz := NewAuthorizationService(repo.User())

	m := &serviceManager{config: config}
	m.attempt = NewAttemptService(repo, config.Validator, config.Logger, config.Publisher, guard, authz)
	m.export = NewExportService(repo, config.Logger)
	return m, nil
}

func (m *serviceManager) Attempt() AttemptService {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.attempt
}

func (m *serviceManager) Export() ExportService {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.export
}

func (m *serviceManager) HealthCheck(ctx context.Context) error {
	return m.config.RepositoryManager.HealthCheck(ctx)
}

func (m *serviceManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.config.Publisher.Close(); err != nil {
		return fmt.Errorf("failed to close event publisher: %w", err)
	}
	return m.config.RepositoryManager.Shutdown(ctx)
}
