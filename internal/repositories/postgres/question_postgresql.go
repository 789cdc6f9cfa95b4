package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/exam-service/internal/cache"
	"github.com/SAP-F-2025/exam-service/internal/models"
	"github.com/SAP-F-2025/exam-service/internal/repositories"
)

type QuestionPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewQuestionPostgreSQL(db *gorm.DB, cacheManager *cache.CacheManager) repositories.QuestionRepository {
	return &QuestionPostgreSQL{
		db:           db,
		cacheManager: cacheManager,
	}
}

func (q *QuestionPostgreSQL) FindByIDs(ctx context.Context, ids []uint) ([]*models.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var questions []*models.Question
	if err := q.db.WithContext(ctx).Where("id IN ?", ids).Order("id ASC").Find(&questions).Error; err != nil {
		return nil, fmt.Errorf("failed to find questions by ids: %w", err)
	}
	return questions, nil
}

func (q *QuestionPostgreSQL) FindByCategory(ctx context.Context, categoryID uint, difficulty *models.DifficultyLevel) ([]*models.Question, error) {
	// The question bank changes rarely; category lookups are cached to keep
	// attempt starts off the hot path.
	cacheKey := fmt.Sprintf("category:%d", categoryID)
	if difficulty != nil {
		cacheKey = fmt.Sprintf("category:%d:%s", categoryID, *difficulty)
	}

	var questions []*models.Question
	err := q.cacheManager.Question.CacheOrExecute(ctx, cacheKey, &questions, cache.QuestionCacheConfig.TTL, func() (interface{}, error) {
		var fetched []*models.Question
		query := q.db.WithContext(ctx).Where("category_id = ?", categoryID)
		if difficulty != nil {
			query = query.Where("difficulty = ?", *difficulty)
		}
		if err := query.Order("id ASC").Find(&fetched).Error; err != nil {
			return nil, fmt.Errorf("failed to find questions by category: %w", err)
		}
		return fetched, nil
	})
	return questions, err
}

func (q *QuestionPostgreSQL) FindAll(ctx context.Context) ([]*models.Question, error) {
	var questions []*models.Question
	if err := q.db.WithContext(ctx).Order("id ASC").Find(&questions).Error; err != nil {
		return nil, fmt.Errorf("failed to load question pool: %w", err)
	}
	return questions, nil
}
