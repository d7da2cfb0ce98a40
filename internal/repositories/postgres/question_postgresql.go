package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/raximov/telegram-mini-app-project-sub000/internal/cache"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/models"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/repositories"
)

type QuestionPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewQuestionPostgreSQL(db *gorm.DB, cm *cache.CacheManager) repositories.QuestionRepository {
	return &QuestionPostgreSQL{db: db, cacheManager: cm}
}

func (q *QuestionPostgreSQL) Create(ctx context.Context, question *models.Question) error {
	if err := q.db.WithContext(ctx).Create(question).Error; err != nil {
		return translateError(err)
	}
	cache.InvalidateTestCache(ctx, q.cacheManager, question.TestID)
	return nil
}

func (q *QuestionPostgreSQL) GetByID(ctx context.Context, id string) (*models.Question, error) {
	var question models.Question
	if err := q.db.WithContext(ctx).Where("id = ?", id).First(&question).Error; err != nil {
		return nil, translateError(err)
	}
	return &question, nil
}

func (q *QuestionPostgreSQL) Update(ctx context.Context, question *models.Question) error {
	res := q.db.WithContext(ctx).Save(question)
	if res.Error != nil {
		return fmt.Errorf("failed to update question: %w", res.Error)
	}
	cache.InvalidateTestCache(ctx, q.cacheManager, question.TestID)
	return nil
}

func (q *QuestionPostgreSQL) Delete(ctx context.Context, id string) error {
	var question models.Question
	if err := q.db.WithContext(ctx).Where("id = ?", id).First(&question).Error; err != nil {
		return translateError(err)
	}
	if err := q.db.WithContext(ctx).Delete(&models.Question{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete question: %w", err)
	}
	cache.InvalidateTestCache(ctx, q.cacheManager, question.TestID)
	return nil
}

func (q *QuestionPostgreSQL) ListByTest(ctx context.Context, testID string) ([]*models.Question, error) {
	var questions []*models.Question
	err := q.db.WithContext(ctx).
		Where("test_id = ?", testID).
		Order("position ASC, created_at ASC").
		Find(&questions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	return questions, nil
}

func (q *QuestionPostgreSQL) NextPosition(ctx context.Context, testID string) (int, error) {
	var maxPos *int
	err := q.db.WithContext(ctx).
		Model(&models.Question{}).
		Where("test_id = ?", testID).
		Select("MAX(position)").
		Scan(&maxPos).Error
	if err != nil {
		return 0, fmt.Errorf("failed to get max position: %w", err)
	}
	if maxPos == nil {
		return 0, nil
	}
	return *maxPos + 1, nil
}
