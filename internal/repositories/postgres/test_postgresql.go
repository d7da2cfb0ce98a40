package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/raximov/telegram-mini-app-project-sub000/internal/cache"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/models"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/repositories"
)

type TestPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewTestPostgreSQL(db *gorm.DB, cm *cache.CacheManager) repositories.TestRepository {
	return &TestPostgreSQL{db: db, cacheManager: cm}
}

func (t *TestPostgreSQL) Create(ctx context.Context, test *models.Test) error {
	// Create also inserts test.Questions through the association.
	return translateError(t.db.WithContext(ctx).Create(test).Error)
}

func (t *TestPostgreSQL) GetByID(ctx context.Context, id string) (*models.Test, error) {
	var test models.Test
	if err := t.db.WithContext(ctx).Where("id = ?", id).First(&test).Error; err != nil {
		return nil, translateError(err)
	}
	return &test, nil
}

func (t *TestPostgreSQL) GetByIDForUpdate(ctx context.Context, id string) (*models.Test, error) {
	var test models.Test
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&test).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &test, nil
}

func (t *TestPostgreSQL) GetByIDWithQuestions(ctx context.Context, id string) (*models.Test, error) {
	var test models.Test
	err := t.cacheManager.Test.CacheOrExecute(ctx, cache.TestKey(id), &test, cache.TestCacheConfig.TTL, func() (interface{}, error) {
		var dbTest models.Test
		err := t.db.WithContext(ctx).
			Preload("Questions", func(db *gorm.DB) *gorm.DB {
				return db.Order("position ASC, created_at ASC")
			}).
			Where("id = ?", id).
			First(&dbTest).Error
		if err != nil {
			return nil, translateError(err)
		}
		return &dbTest, nil
	})
	if err != nil {
		return nil, err
	}
	return &test, nil
}

func (t *TestPostgreSQL) Update(ctx context.Context, test *models.Test) error {
	res := t.db.WithContext(ctx).
		Model(&models.Test{}).
		Where("id = ?", test.ID).
		Updates(map[string]interface{}{
			"title":           test.Title,
			"description":     test.Description,
			"time_limit_sec":  test.TimeLimitSec,
			"passing_percent": test.PassingPercent,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update test: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	cache.InvalidateTestCache(ctx, t.cacheManager, test.ID)
	return nil
}

func (t *TestPostgreSQL) UpdateStatus(ctx context.Context, id string, status models.TestStatus) error {
	res := t.db.WithContext(ctx).
		Model(&models.Test{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("failed to update test status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	cache.InvalidateTestCache(ctx, t.cacheManager, id)
	return nil
}

func (t *TestPostgreSQL) List(ctx context.Context, filters repositories.TestFilters) ([]*models.Test, int64, error) {
	query := t.db.WithContext(ctx).Model(&models.Test{})
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.CreatedBy != nil {
		query = query.Where("created_by = ?", *filters.CreatedBy)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count tests: %w", err)
	}

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	var tests []*models.Test
	if err := query.Order("created_at DESC").Find(&tests).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list tests: %w", err)
	}
	return tests, total, nil
}
