package postgres

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/exam-service/internal/cache"
	"github.com/SAP-F-2025/exam-service/internal/repositories"
	"github.com/SAP-F-2025/exam-service/internal/repositories/casdoor"
)

// RepositoryConfig holds the dependencies for building the repository set.
type RepositoryConfig struct {
	DB            *gorm.DB
	RedisClient   *redis.Client
	CasdoorConfig casdoor.CasdoorConfig
}

type repository struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager

	attempt         repositories.AttemptRepository
	attemptQuestion repositories.AttemptQuestionRepository
	question        repositories.QuestionRepository
	template        repositories.TemplateRepository
	user            repositories.UserRepository
}

func newRepository(db *gorm.DB, cacheManager *cache.CacheManager, user repositories.UserRepository) *repository {
	return &repository{
		db:              db,
		cacheManager:    cacheManager,
		attempt:         NewAttemptPostgreSQL(db),
		attemptQuestion: NewAttemptQuestionPostgreSQL(db),
		question:        NewQuestionPostgreSQL(db, cacheManager),
		template:        NewTemplatePostgreSQL(db, cacheManager),
		user:            user,
	}
}

func (r *repository) Attempt() repositories.AttemptRepository                 { return r.attempt }
func (r *repository) AttemptQuestion() repositories.AttemptQuestionRepository { return r.attemptQuestion }
func (r *repository) Question() repositories.QuestionRepository               { return r.question }
func (r *repository) Template() repositories.TemplateRepository               { return r.template }
func (r *repository) User() repositories.UserRepository                       { return r.user }

// WithTransaction rebinds every repository to the transaction so multi-step
// mutations are atomic: either the whole fn commits or none of it does.
func (r *repository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(newRepository(tx, r.cacheManager, r.user))
	})
}

func (r *repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func (r *repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ===== MANAGER =====

type repositoryManager struct {
	config RepositoryConfig
	repo   *repository
}

func NewRepositoryManager(config RepositoryConfig) repositories.RepositoryManager {
	return &repositoryManager{config: config}
}

func (m *repositoryManager) Initialize() error {
	if m.config.DB == nil {
		return fmt.Errorf("database connection is required")
	}

	cacheManager := cache.NewCacheManager(m.config.RedisClient)
	user := casdoor.NewUserCasdoor(m.config.CasdoorConfig, m.config.RedisClient)
	m.repo = newRepository(m.config.DB, cacheManager, user)
	return nil
}

func (m *repositoryManager) GetRepository() repositories.Repository {
	return m.repo
}

func (m *repositoryManager) HealthCheck(ctx context.Context) error {
	if m.repo == nil {
		return fmt.Errorf("repositories not initialized")
	}
	return m.repo.Ping(ctx)
}

func (m *repositoryManager) Shutdown(ctx context.Context) error {
	if m.repo == nil {
		return nil
	}
	return m.repo.Close()
}
