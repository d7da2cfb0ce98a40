package services

import (
	"context"

	"github.com/raximov/telegram-mini-app-project-sub000/internal/models"
)

// ===== SERVICE INTERFACES =====

type AttemptService interface {
	// Core lifecycle
	Start(ctx context.Context, req *models.StartAttemptRequest, studentID string) (*models.StartAttemptResponse, error)
	RecordAnswer(ctx context.Context, attemptID string, req *models.RecordAnswerRequest, studentID string) error
	Submit(ctx context.Context, req *models.SubmitAttemptRequest, studentID string) (*models.AttemptResult, error)
	// SubmitRecorded submits whatever answers were recorded so far.
	SubmitRecorded(ctx context.Context, attemptID, studentID string) (*models.AttemptResult, error)
	Expire(ctx context.Context, attemptID string) error

	// Reads
	Get(ctx context.Context, attemptID, studentID string) (*models.AttemptView, error)
	GetResult(ctx context.Context, attemptID, userID string) (*models.AttemptResult, error)
	TimeRemaining(ctx context.Context, attemptID, studentID string) (*models.TimeRemainingResponse, error)
}

type TestService interface {
	Create(ctx context.Context, req *models.TestCreateRequest, teacherID string) (*models.Test, error)
	Get(ctx context.Context, testID, teacherID string) (*models.Test, error)
	Update(ctx context.Context, testID string, req *models.TestUpdateRequest, teacherID string) (*models.Test, error)
	ListMine(ctx context.Context, teacherID string) ([]*models.Test, error)
	ListPublished(ctx context.Context) ([]*models.Test, error)

	AddQuestion(ctx context.Context, testID string, req *models.QuestionCreateRequest, teacherID string) (*models.Question, error)
	UpdateQuestion(ctx context.Context, testID, questionID string, req *models.QuestionCreateRequest, teacherID string) (*models.Question, error)
	RemoveQuestion(ctx context.Context, testID, questionID, teacherID string) error

	Publish(ctx context.Context, testID, teacherID string) (*models.Test, error)
	Archive(ctx context.Context, testID, teacherID string) (*models.Test, error)
}

type ReportService interface {
	Summary(ctx context.Context, testID, teacherID string) (*models.TeacherResultsSummary, error)
	// Export renders the summary and per-attempt results as an XLSX workbook.
	Export(ctx context.Context, testID, teacherID string) ([]byte, error)
}

// AttemptPolicy decides whether a student with completed submissions may start
// another attempt at a test.
type AttemptPolicy interface {
	AllowNewAttempt(ctx context.Context, test *models.Test, studentID string, completed int) bool
}
