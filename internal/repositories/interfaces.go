package repositories

import (
	"context"
	"time"

	"github.com/raximov/telegram-mini-app-project-sub000/internal/models"
)

// ===== SHARED FILTER STRUCTS =====

type TestFilters struct {
	Status    *models.TestStatus `json:"status"`
	CreatedBy *string            `json:"created_by"`
	Limit     int                `json:"limit"`
	Offset    int                `json:"offset"`
}

type AttemptFilters struct {
	Status    *models.AttemptStatus `json:"status"`
	StudentID *string               `json:"student_id"`
	Limit     int                   `json:"limit"`
	Offset    int                   `json:"offset"`
}

// ===== REPOSITORY INTERFACES =====

type TestRepository interface {
	// Create stores the test together with any questions it carries.
	Create(ctx context.Context, test *models.Test) error
	GetByID(ctx context.Context, id string) (*models.Test, error)
	// GetByIDForUpdate locks the test row until the surrounding transaction
	// ends, serializing changes to its question set.
	GetByIDForUpdate(ctx context.Context, id string) (*models.Test, error)
	// GetByIDWithQuestions loads the test with questions ordered by position.
	GetByIDWithQuestions(ctx context.Context, id string) (*models.Test, error)
	Update(ctx context.Context, test *models.Test) error
	UpdateStatus(ctx context.Context, id string, status models.TestStatus) error
	List(ctx context.Context, filters TestFilters) ([]*models.Test, int64, error)
}

type QuestionRepository interface {
	Create(ctx context.Context, question *models.Question) error
	GetByID(ctx context.Context, id string) (*models.Question, error)
	Update(ctx context.Context, question *models.Question) error
	Delete(ctx context.Context, id string) error
	ListByTest(ctx context.Context, testID string) ([]*models.Question, error)
	// NextPosition returns the position after the last question of the test.
	NextPosition(ctx context.Context, testID string) (int, error)
}

type AttemptRepository interface {
	// Create fails with ErrConflict when the student already has an in-progress
	// attempt for the same test.
	Create(ctx context.Context, attempt *models.Attempt) error
	GetByID(ctx context.Context, id string) (*models.Attempt, error)
	// GetActive returns the in-progress attempt of the pair or ErrNotFound.
	GetActive(ctx context.Context, testID, studentID string) (*models.Attempt, error)
	CountCompleted(ctx context.Context, testID, studentID string) (int64, error)

	// SaveAnswer upserts one answer while the attempt is in progress and not
	// past now. Returns ErrConflict otherwise.
	SaveAnswer(ctx context.Context, id, questionID string, answer models.Answer, now time.Time) error
	// CompleteSubmission freezes answers and stores the result, only if the
	// attempt is still in progress. Exactly one caller can win; the rest get
	// ErrConflict.
	CompleteSubmission(ctx context.Context, id string, answers models.AnswerSet, result *models.AttemptResult, submittedAt time.Time) error
	// MarkExpired moves an in-progress attempt to expired and reports whether
	// this call made the transition.
	MarkExpired(ctx context.Context, id string) (bool, error)

	ListByTest(ctx context.Context, testID string, filters AttemptFilters) ([]*models.Attempt, error)
}
