package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/exam-service/internal/models"
	"github.com/SAP-F-2025/exam-service/internal/repositories"
)

type AttemptPostgreSQL struct {
	db      *gorm.DB
	helpers *SharedHelpers
}

func NewAttemptPostgreSQL(db *gorm.DB) repositories.AttemptRepository {
	return &AttemptPostgreSQL{
		db:      db,
		helpers: NewSharedHelpers(db),
	}
}

func (a *AttemptPostgreSQL) Create(ctx context.Context, attempt *models.ExamAttempt) error {
	return a.db.WithContext(ctx).Create(attempt).Error
}

func (a *AttemptPostgreSQL) GetByID(ctx context.Context, id uint) (*models.ExamAttempt, error) {
	var attempt models.ExamAttempt
	if err := a.db.WithContext(ctx).First(&attempt, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) GetByIDWithQuestions(ctx context.Context, id uint) (*models.ExamAttempt, error) {
	var attempt models.ExamAttempt
	err := a.db.WithContext(ctx).
		Preload("Template").
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("attempt_questions.position ASC")
		}).
		Preload("Questions.Question").
		First(&attempt, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get attempt with questions: %w", err)
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) GetActiveByUser(ctx context.Context, userID string) (*models.ExamAttempt, error) {
	var attempt models.ExamAttempt
	err := a.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.AttemptInProgress).
		First(&attempt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get active attempt: %w", err)
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) ListByUser(ctx context.Context, userID string, filters repositories.AttemptFilters) ([]*models.ExamAttempt, int64, error) {
	var attempts []*models.ExamAttempt
	var total int64

	query := a.db.WithContext(ctx).Model(&models.ExamAttempt{}).Where("user_id = ?", userID)
	query = a.helpers.ApplyAttemptFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count attempts: %w", err)
	}

	query = a.helpers.ApplyPaginationAndSort(query, filters)
	if err := query.Preload("Template").Find(&attempts).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list attempts: %w", err)
	}

	return attempts, total, nil
}

// UpdateWithVersion persists every mutable attempt column guarded by a
// compare-and-swap on the version column. The row is only written when the
// stored version still matches; RowsAffected == 0 means another writer won.
func (a *AttemptPostgreSQL) UpdateWithVersion(ctx context.Context, attempt *models.ExamAttempt, expectedVersion int64) error {
	newVersion := expectedVersion + 1
	result := a.db.WithContext(ctx).
		Model(&models.ExamAttempt{}).
		Where("id = ? AND version = ?", attempt.ID, expectedVersion).
		Updates(map[string]interface{}{
			"status":           attempt.Status,
			"last_activity_at": attempt.LastActivityAt,
			"completed_at":     attempt.CompletedAt,
			"score":            attempt.Score,
			"percentage":       attempt.Percentage,
			"passed":           attempt.Passed,
			"correct_count":    attempt.CorrectCount,
			"incorrect_count":  attempt.IncorrectCount,
			"skipped_count":    attempt.SkippedCount,
			"version":          newVersion,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update attempt: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.ErrVersionConflict
	}
	attempt.Version = newVersion
	return nil
}

func (a *AttemptPostgreSQL) GetOverdue(ctx context.Context, limit int) ([]*models.ExamAttempt, error) {
	var attempts []*models.ExamAttempt
	query := a.db.WithContext(ctx).
		Where("status = ?", models.AttemptInProgress).
		Where("started_at + (duration_seconds * interval '1 second') < now()")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&attempts).Error; err != nil {
		return nil, fmt.Errorf("failed to get overdue attempts: %w", err)
	}
	return attempts, nil
}
