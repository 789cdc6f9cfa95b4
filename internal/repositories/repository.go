package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Repository aggregates the per-entity repositories the exam service uses.
type Repository interface {
	Attempt() AttemptRepository
	AttemptQuestion() AttemptQuestionRepository
	Question() QuestionRepository
	Template() TemplateRepository

	// User identity is read-only for the exam service.
	User() UserRepository

	// WithTransaction runs fn against a transaction-scoped Repository.
	// Returning an error rolls the transaction back.
	WithTransaction(ctx context.Context, fn func(Repository) error) error

	Ping(ctx context.Context) error
	Close() error
}

// RepositoryManager manages repository lifecycle.
type RepositoryManager interface {
	Initialize() error
	GetRepository() Repository
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

var (
	ErrNotFound = errors.New("record not found")

	// ErrVersionConflict is returned by compare-and-swap writes when the
	// persisted version no longer matches the one the caller loaded.
	ErrVersionConflict = errors.New("version conflict")
)

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}

func IsVersionConflictError(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}
