package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/exam-service/internal/cache"
	"github.com/SAP-F-2025/exam-service/internal/models"
	"github.com/SAP-F-2025/exam-service/internal/repositories"
)

type TemplatePostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewTemplatePostgreSQL(db *gorm.DB, cacheManager *cache.CacheManager) repositories.TemplateRepository {
	return &TemplatePostgreSQL{
		db:           db,
		cacheManager: cacheManager,
	}
}

func (t *TemplatePostgreSQL) GetByID(ctx context.Context, id uint) (*models.ExamTemplate, error) {
	cacheKey := fmt.Sprintf("id:%d", id)
	var template models.ExamTemplate
	err := t.cacheManager.Template.CacheOrExecute(ctx, cacheKey, &template, cache.TemplateCacheConfig.TTL, func() (interface{}, error) {
		var fetched models.ExamTemplate
		if err := t.db.WithContext(ctx).First(&fetched, id).Error; err != nil {
			return nil, err
		}
		return &fetched, nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return &template, nil
}

func (t *TemplatePostgreSQL) List(ctx context.Context, limit, offset int) ([]*models.ExamTemplate, int64, error) {
	var templates []*models.ExamTemplate
	var total int64

	query := t.db.WithContext(ctx).Model(&models.ExamTemplate{}).Where("is_active = ?", true)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count templates: %w", err)
	}

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Order("id ASC").Find(&templates).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list templates: %w", err)
	}

	return templates, total, nil
}
