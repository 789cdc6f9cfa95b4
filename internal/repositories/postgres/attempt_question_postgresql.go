package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/exam-service/internal/models"
	"github.com/SAP-F-2025/exam-service/internal/repositories"
)

type AttemptQuestionPostgreSQL struct {
	db *gorm.DB
}

func NewAttemptQuestionPostgreSQL(db *gorm.DB) repositories.AttemptQuestionRepository {
	return &AttemptQuestionPostgreSQL{db: db}
}

func (r *AttemptQuestionPostgreSQL) CreateBatch(ctx context.Context, questions []*models.AttemptQuestion) error {
	if len(questions) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(questions).Error
}

func (r *AttemptQuestionPostgreSQL) GetByAttemptAndQuestion(ctx context.Context, attemptID, questionID uint) (*models.AttemptQuestion, error) {
	var question models.AttemptQuestion
	err := r.db.WithContext(ctx).
		Where("attempt_id = ? AND question_id = ?", attemptID, questionID).
		Preload("Question").
		First(&question).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get attempt question: %w", err)
	}
	return &question, nil
}

func (r *AttemptQuestionPostgreSQL) ListByAttempt(ctx context.Context, attemptID uint) ([]*models.AttemptQuestion, error) {
	var questions []*models.AttemptQuestion
	err := r.db.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Order("position ASC").
		Find(&questions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list attempt questions: %w", err)
	}
	return questions, nil
}

func (r *AttemptQuestionPostgreSQL) Update(ctx context.Context, question *models.AttemptQuestion) error {
	return r.db.WithContext(ctx).Save(question).Error
}
