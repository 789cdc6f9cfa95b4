package repositories

import (
	"context"
	"time"

	"github.com/SAP-F-2025/exam-service/internal/models"
)

// ===== SHARED FILTER STRUCTS =====

type AttemptFilters struct {
	Status    *models.AttemptStatus `json:"status"`
	DateFrom  *time.Time            `json:"date_from"`
	DateTo    *time.Time            `json:"date_to"`
	Limit     int                   `json:"limit"`
	Offset    int                   `json:"offset"`
	SortBy    string                `json:"sort_by"`    // "started_at", "completed_at", "score"
	SortOrder string                `json:"sort_order"` // "asc", "desc"
}

type QuestionFilters struct {
	CategoryID *uint                   `json:"category_id"`
	Difficulty *models.DifficultyLevel `json:"difficulty"`
	Type       *models.QuestionType    `json:"type"`
	Limit      int                     `json:"limit"`
}

// ===== REPOSITORY INTERFACES =====

type AttemptRepository interface {
	Create(ctx context.Context, attempt *models.ExamAttempt) error
	GetByID(ctx context.Context, id uint) (*models.ExamAttempt, error)

	// GetByIDWithQuestions loads the attempt with its questions (ordered by
	// position) and each underlying question definition in one round trip.
	GetByIDWithQuestions(ctx context.Context, id uint) (*models.ExamAttempt, error)

	// GetActiveByUser returns the user's in_progress attempt, ErrNotFound if
	// none exists.
	GetActiveByUser(ctx context.Context, userID string) (*models.ExamAttempt, error)

	ListByUser(ctx context.Context, userID string, filters AttemptFilters) ([]*models.ExamAttempt, int64, error)

	// UpdateWithVersion persists the attempt only if its stored version still
	// equals expectedVersion, bumping the version in the same statement.
	// Returns ErrVersionConflict when the compare-and-swap loses.
	UpdateWithVersion(ctx context.Context, attempt *models.ExamAttempt, expectedVersion int64) error

	// GetOverdue returns in_progress attempts whose duration has elapsed.
	GetOverdue(ctx context.Context, limit int) ([]*models.ExamAttempt, error)
}

type AttemptQuestionRepository interface {
	CreateBatch(ctx context.Context, questions []*models.AttemptQuestion) error
	GetByAttemptAndQuestion(ctx context.Context, attemptID, questionID uint) (*models.AttemptQuestion, error)
	ListByAttempt(ctx context.Context, attemptID uint) ([]*models.AttemptQuestion, error)
	Update(ctx context.Context, question *models.AttemptQuestion) error
}

type QuestionRepository interface {
	FindByIDs(ctx context.Context, ids []uint) ([]*models.Question, error)

	// FindByCategory returns all matching questions ordered by id.
	FindByCategory(ctx context.Context, categoryID uint, difficulty *models.DifficultyLevel) ([]*models.Question, error)

	// FindAll returns the whole pool ordered by id.
	FindAll(ctx context.Context) ([]*models.Question, error)
}

type TemplateRepository interface {
	GetByID(ctx context.Context, id uint) (*models.ExamTemplate, error)
	List(ctx context.Context, limit, offset int) ([]*models.ExamTemplate, int64, error)
}

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}
