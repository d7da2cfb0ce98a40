package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/raximov/telegram-mini-app-project-sub000/internal/models"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/repositories"
)

type AttemptPostgreSQL struct {
	db *gorm.DB
}

func NewAttemptPostgreSQL(db *gorm.DB) repositories.AttemptRepository {
	return &AttemptPostgreSQL{db: db}
}

// Create relies on the partial unique index idx_attempts_one_active to reject a
// second in-progress attempt for the same (test, student).
func (a *AttemptPostgreSQL) Create(ctx context.Context, attempt *models.Attempt) error {
	if attempt.Answers == nil {
		attempt.Answers = models.AnswerSet{}
	}
	return translateError(a.db.WithContext(ctx).Create(attempt).Error)
}

func (a *AttemptPostgreSQL) GetByID(ctx context.Context, id string) (*models.Attempt, error) {
	var attempt models.Attempt
	if err := a.db.WithContext(ctx).Where("id = ?", id).First(&attempt).Error; err != nil {
		return nil, translateError(err)
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) GetActive(ctx context.Context, testID, studentID string) (*models.Attempt, error) {
	var attempt models.Attempt
	err := a.db.WithContext(ctx).
		Where("test_id = ? AND student_id = ? AND status = ?", testID, studentID, models.AttemptInProgress).
		First(&attempt).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) CountCompleted(ctx context.Context, testID, studentID string) (int64, error) {
	var count int64
	err := a.db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("test_id = ? AND student_id = ? AND status IN ?", testID, studentID,
			[]models.AttemptStatus{models.AttemptSubmitted, models.AttemptGraded}).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count attempts: %w", err)
	}
	return count, nil
}

func (a *AttemptPostgreSQL) SaveAnswer(ctx context.Context, id, questionID string, answer models.Answer, now time.Time) error {
	payload, err := json.Marshal(answer)
	if err != nil {
		return fmt.Errorf("failed to encode answer: %w", err)
	}

	res := a.db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("id = ? AND status = ? AND expires_at >= ?", id, models.AttemptInProgress, now).
		Updates(map[string]interface{}{
			"answers":    gorm.Expr("jsonb_set(COALESCE(answers, '{}'::jsonb), ARRAY[?]::text[], ?::jsonb, true)", questionID, string(payload)),
			"updated_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to save answer: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return a.missOrConflict(ctx, id)
	}
	return nil
}

func (a *AttemptPostgreSQL) CompleteSubmission(ctx context.Context, id string, answers models.AnswerSet, result *models.AttemptResult, submittedAt time.Time) error {
	res := a.db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("id = ? AND status = ?", id, models.AttemptInProgress).
		Updates(map[string]interface{}{
			"status":       models.AttemptSubmitted,
			"submitted_at": submittedAt,
			"answers":      answers,
			"result":       result,
			"updated_at":   submittedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to complete submission: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return a.missOrConflict(ctx, id)
	}
	return nil
}

func (a *AttemptPostgreSQL) MarkExpired(ctx context.Context, id string) (bool, error) {
	res := a.db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("id = ? AND status = ?", id, models.AttemptInProgress).
		Updates(map[string]interface{}{
			"status":     models.AttemptExpired,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to expire attempt: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		err := a.missOrConflict(ctx, id)
		if errors.Is(err, repositories.ErrConflict) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (a *AttemptPostgreSQL) ListByTest(ctx context.Context, testID string, filters repositories.AttemptFilters) ([]*models.Attempt, error) {
	query := a.db.WithContext(ctx).Where("test_id = ?", testID)
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.StudentID != nil {
		query = query.Where("student_id = ?", *filters.StudentID)
	}
	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	var attempts []*models.Attempt
	if err := query.Order("started_at ASC").Find(&attempts).Error; err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	return attempts, nil
}

// missOrConflict explains a conditional update that touched no rows.
func (a *AttemptPostgreSQL) missOrConflict(ctx context.Context, id string) error {
	var count int64
	if err := a.db.WithContext(ctx).Model(&models.Attempt{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check attempt: %w", err)
	}
	if count == 0 {
		return repositories.ErrNotFound
	}
	return repositories.ErrConflict
}
