package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	gormpg "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/raximov/telegram-mini-app-project-sub000/internal/models"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/repositories"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/repositories/postgres"
	"github.com/raximov/telegram-mini-app-project-sub000/pkg"
)

// openTestRepository connects to TEST_DATABASE_URL or skips.
func openTestRepository(t *testing.T) repositories.Repository {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := gorm.Open(gormpg.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := pkg.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	repo := postgres.NewPostgreSQLRepository(postgres.RepositoryConfig{DB: db})
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestAttemptPostgreSQL_Lifecycle(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	test := &models.Test{
		ID:           uuid.NewString(),
		Title:        "Integration",
		Status:       models.TestPublished,
		TimeLimitSec: 60,
		CreatedBy:    "teacher-it",
		Questions: []models.Question{{
			ID:           uuid.NewString(),
			Type:         models.QuestionShort,
			Prompt:       "Capital of France?",
			Points:       4,
			ExpectedText: "Paris",
		}},
	}
	if err := repo.Test().Create(ctx, test); err != nil {
		t.Fatalf("create test: %v", err)
	}
	loaded, err := repo.Test().GetByIDWithQuestions(ctx, test.ID)
	if err != nil || len(loaded.Questions) != 1 {
		t.Fatalf("GetByIDWithQuestions() = %+v, %v", loaded, err)
	}
	qID := test.Questions[0].ID

	attempt := &models.Attempt{
		ID:        uuid.NewString(),
		TestID:    test.ID,
		StudentID: "student-it",
		Status:    models.AttemptInProgress,
		StartedAt: now,
		ExpiresAt: now.Add(time.Minute),
		Questions: loaded.Questions,
	}
	if err := repo.Attempt().Create(ctx, attempt); err != nil {
		t.Fatalf("create attempt: %v", err)
	}

	second := *attempt
	second.ID = uuid.NewString()
	if err := repo.Attempt().Create(ctx, &second); !repositories.IsConflictError(err) {
		t.Errorf("second active attempt error = %v, want conflict", err)
	}

	if err := repo.Attempt().SaveAnswer(ctx, attempt.ID, qID, models.ShortAnswer("paris"), now); err != nil {
		t.Fatalf("SaveAnswer() error = %v", err)
	}
	if err := repo.Attempt().SaveAnswer(ctx, attempt.ID, qID, models.ShortAnswer("late"), now.Add(2*time.Minute)); !errors.Is(err, repositories.ErrConflict) {
		t.Errorf("SaveAnswer() after deadline error = %v, want ErrConflict", err)
	}

	active, err := repo.Attempt().GetActive(ctx, test.ID, "student-it")
	if err != nil {
		t.Fatalf("GetActive() error = %v", err)
	}
	if active.Answers[qID].Text != "paris" {
		t.Errorf("stored answer = %+v", active.Answers[qID])
	}

	result := &models.AttemptResult{Score: 4, MaxScore: 4, Percentage: 100, Passed: true, GradedAt: now}
	if err := repo.Attempt().CompleteSubmission(ctx, attempt.ID, active.Answers, result, now); err != nil {
		t.Fatalf("CompleteSubmission() error = %v", err)
	}
	if err := repo.Attempt().CompleteSubmission(ctx, attempt.ID, active.Answers, result, now); !errors.Is(err, repositories.ErrConflict) {
		t.Errorf("second CompleteSubmission() error = %v, want ErrConflict", err)
	}
	if expired, err := repo.Attempt().MarkExpired(ctx, attempt.ID); err != nil || expired {
		t.Errorf("MarkExpired() on submitted = %v, %v", expired, err)
	}

	count, err := repo.Attempt().CountCompleted(ctx, test.ID, "student-it")
	if err != nil || count != 1 {
		t.Errorf("CountCompleted() = %d, %v", count, err)
	}
	stored, err := repo.Attempt().GetByID(ctx, attempt.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Phase() != models.AttemptGraded || stored.Result == nil || stored.Result.Score != 4 {
		t.Errorf("stored attempt = %+v", stored)
	}

	if _, err := repo.Attempt().GetByID(ctx, uuid.NewString()); !repositories.IsNotFoundError(err) {
		t.Errorf("GetByID(missing) error = %v", err)
	}
}

func TestPostgreSQLRepository_TransactionLocksTest(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	test := &models.Test{
		ID:           uuid.NewString(),
		Title:        "Locking",
		Status:       models.TestDraft,
		TimeLimitSec: 60,
		CreatedBy:    "teacher-it",
	}
	if err := repo.Test().Create(ctx, test); err != nil {
		t.Fatalf("create test: %v", err)
	}

	rollback := errors.New("rollback")
	err := repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		locked, err := tx.Test().GetByIDForUpdate(ctx, test.ID)
		if err != nil {
			return err
		}
		if locked.ID != test.ID {
			t.Errorf("locked = %s, want %s", locked.ID, test.ID)
		}
		if err := tx.Test().UpdateStatus(ctx, test.ID, models.TestPublished); err != nil {
			return err
		}
		return rollback
	})
	if !errors.Is(err, rollback) {
		t.Fatalf("WithTransaction() error = %v", err)
	}

	stored, err := repo.Test().GetByID(ctx, test.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != models.TestDraft {
		t.Errorf("status = %s after rollback, want draft", stored.Status)
	}

	if _, err := repo.Test().GetByIDForUpdate(ctx, uuid.NewString()); !repositories.IsNotFoundError(err) {
		t.Errorf("missing test error = %v, want not found", err)
	}
}
