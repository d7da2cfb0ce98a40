package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/raximov/telegram-mini-app-project-sub000/internal/cache"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/events"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/models"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/repositories"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/validator"
)

type testService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	cache     *cache.CacheManager
	publisher events.EventPublisher
}

func NewTestService(repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, cm *cache.CacheManager, publisher events.EventPublisher) TestService {
	if cm == nil {
		cm = cache.NewCacheManager(nil)
	}
	return &testService{
		repo:      repo,
		logger:    logger,
		validator: validator,
		cache:     cm,
		publisher: publisher,
	}
}

// ===== CORE CRUD OPERATIONS =====

func (s *testService) Create(ctx context.Context, req *models.TestCreateRequest, teacherID string) (*models.Test, error) {
	s.logger.Info("Creating test",
		"title", req.Title,
		"teacher_id", teacherID,
		"question_count", len(req.Questions))

	if err := s.validator.ValidateTestCreate(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	test := &models.Test{
		ID:             uuid.NewString(),
		Title:          req.Title,
		Description:    req.Description,
		Status:         models.TestDraft,
		TimeLimitSec:   req.TimeLimitSec,
		PassingPercent: req.PassingPercent,
		CreatedBy:      teacherID,
	}
	for i := range req.Questions {
		q := questionFromRequest(&req.Questions[i], test.ID, i)
		test.Questions = append(test.Questions, *q)
	}

	if err := s.repo.Test().Create(ctx, test); err != nil {
		return nil, fmt.Errorf("failed to create test: %w", err)
	}

	s.logger.Info("Test created",
		"test_id", test.ID,
		"teacher_id", teacherID)
	return test, nil
}

func (s *testService) Get(ctx context.Context, testID, teacherID string) (*models.Test, error) {
	test, err := s.getOwnedWithQuestions(ctx, testID, teacherID, "view")
	if err != nil {
		return nil, err
	}
	return test, nil
}

func (s *testService) Update(ctx context.Context, testID string, req *models.TestUpdateRequest, teacherID string) (*models.Test, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	test, err := s.getOwned(ctx, testID, teacherID, "update")
	if err != nil {
		return nil, err
	}
	if test.Status == models.TestArchived {
		return nil, ErrTestNotEditable
	}

	if req.Title != nil {
		test.Title = *req.Title
	}
	if req.Description != nil {
		test.Description = req.Description
	}
	if req.TimeLimitSec != nil {
		test.TimeLimitSec = *req.TimeLimitSec
	}
	if req.PassingPercent != nil {
		test.PassingPercent = *req.PassingPercent
	}

	if err := s.repo.Test().Update(ctx, test); err != nil {
		return nil, fmt.Errorf("failed to update test: %w", err)
	}

	cache.InvalidateTestCache(ctx, s.cache, testID)
	s.logger.Info("Test updated", "test_id", testID, "teacher_id", teacherID)
	return s.repo.Test().GetByIDWithQuestions(ctx, testID)
}

func (s *testService) ListMine(ctx context.Context, teacherID string) ([]*models.Test, error) {
	tests, _, err := s.repo.Test().List(ctx, repositories.TestFilters{CreatedBy: &teacherID})
	if err != nil {
		return nil, fmt.Errorf("failed to list tests: %w", err)
	}
	return tests, nil
}

func (s *testService) ListPublished(ctx context.Context) ([]*models.Test, error) {
	status := models.TestPublished
	tests, _, err := s.repo.Test().List(ctx, repositories.TestFilters{Status: &status})
	if err != nil {
		return nil, fmt.Errorf("failed to list tests: %w", err)
	}
	return tests, nil
}

// ===== QUESTION MANAGEMENT =====

func (s *testService) AddQuestion(ctx context.Context, testID string, req *models.QuestionCreateRequest, teacherID string) (*models.Question, error) {
	if err := s.validator.ValidateQuestion(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	var question *models.Question
	err := s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		test, err := s.lockEditable(ctx, tx, testID, teacherID, "add question")
		if err != nil {
			return err
		}

		position := 0
		if req.Position != nil {
			position = *req.Position
		} else if position, err = tx.Question().NextPosition(ctx, test.ID); err != nil {
			return fmt.Errorf("failed to get next position: %w", err)
		}

		question = questionFromRequest(req, test.ID, position)
		if err := tx.Question().Create(ctx, question); err != nil {
			return fmt.Errorf("failed to create question: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	cache.InvalidateTestCache(ctx, s.cache, testID)
	s.logger.Info("Question added",
		"test_id", testID,
		"question_id", question.ID,
		"type", question.Type,
		"position", question.Position)
	return question, nil
}

func (s *testService) UpdateQuestion(ctx context.Context, testID, questionID string, req *models.QuestionCreateRequest, teacherID string) (*models.Question, error) {
	if err := s.validator.ValidateQuestion(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	test, err := s.getEditable(ctx, testID, teacherID, "update question")
	if err != nil {
		return nil, err
	}
	existing, err := questionOf(ctx, s.repo, test.ID, questionID)
	if err != nil {
		return nil, err
	}

	position := existing.Position
	if req.Position != nil {
		position = *req.Position
	}
	updated := questionFromRequest(req, test.ID, position)
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt

	if err := s.repo.Question().Update(ctx, updated); err != nil {
		return nil, fmt.Errorf("failed to update question: %w", err)
	}

	cache.InvalidateTestCache(ctx, s.cache, test.ID)
	s.logger.Info("Question updated", "test_id", test.ID, "question_id", questionID)
	return updated, nil
}

func (s *testService) RemoveQuestion(ctx context.Context, testID, questionID, teacherID string) error {
	// The count and the delete share one locked transaction so concurrent
	// removals cannot empty a published test.
	err := s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		test, err := s.lockEditable(ctx, tx, testID, teacherID, "remove question")
		if err != nil {
			return err
		}
		if _, err := questionOf(ctx, tx, test.ID, questionID); err != nil {
			return err
		}

		if test.Status == models.TestPublished {
			remaining, err := tx.Question().ListByTest(ctx, test.ID)
			if err != nil {
				return fmt.Errorf("failed to list questions: %w", err)
			}
			if len(remaining) <= 1 {
				return fmt.Errorf("%w: a published test must keep at least one question", ErrTestNotEditable)
			}
		}

		if err := tx.Question().Delete(ctx, questionID); err != nil {
			return fmt.Errorf("failed to delete question: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	cache.InvalidateTestCache(ctx, s.cache, testID)
	s.logger.Info("Question removed", "test_id", testID, "question_id", questionID)
	return nil
}

// ===== STATUS MANAGEMENT =====

func (s *testService) Publish(ctx context.Context, testID, teacherID string) (*models.Test, error) {
	test, err := s.transition(ctx, testID, teacherID, models.TestPublished)
	if err != nil {
		return nil, err
	}

	if s.publisher != nil {
		event, err := events.NewEvent(events.EventTestPublished, events.TestEventData{
			TestID:    test.ID,
			CreatedBy: test.CreatedBy,
		})
		if err == nil {
			err = s.publisher.Publish(ctx, events.TopicAttempts, event)
		}
		if err != nil {
			s.logger.Error("Failed to publish event", "event_type", events.EventTestPublished, "test_id", test.ID, "error", err)
		}
	}
	return test, nil
}

func (s *testService) Archive(ctx context.Context, testID, teacherID string) (*models.Test, error) {
	return s.transition(ctx, testID, teacherID, models.TestArchived)
}

func (s *testService) transition(ctx context.Context, testID, teacherID string, next models.TestStatus) (*models.Test, error) {
	var test *models.Test
	err := s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		var err error
		test, err = s.lockEditable(ctx, tx, testID, teacherID, string(next))
		if err != nil {
			return err
		}
		questions, err := tx.Question().ListByTest(ctx, test.ID)
		if err != nil {
			return fmt.Errorf("failed to list questions: %w", err)
		}
		if err := s.validator.ValidateStatusTransition(test.Status, next, len(questions)); err != nil {
			return fmt.Errorf("%w: %w", ErrValidationFailed, err)
		}

		if err := tx.Test().UpdateStatus(ctx, test.ID, next); err != nil {
			return fmt.Errorf("failed to update test status: %w", err)
		}
		test.Questions = make([]models.Question, 0, len(questions))
		for _, q := range questions {
			test.Questions = append(test.Questions, *q)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	test.SortQuestions()
	cache.InvalidateTestCache(ctx, s.cache, test.ID)
	s.logger.Info("Test status changed",
		"test_id", test.ID,
		"from", test.Status,
		"to", next)
	test.Status = next
	return test, nil
}

// ===== HELPERS =====

func (s *testService) getOwned(ctx context.Context, testID, teacherID, action string) (*models.Test, error) {
	test, err := s.repo.Test().GetByID(ctx, testID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("failed to get test: %w", err)
	}
	if test.CreatedBy != teacherID {
		return nil, NewPermissionError(teacherID, testID, "test", action, "not the test author")
	}
	return test, nil
}

func (s *testService) getOwnedWithQuestions(ctx context.Context, testID, teacherID, action string) (*models.Test, error) {
	test, err := s.repo.Test().GetByIDWithQuestions(ctx, testID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("failed to get test: %w", err)
	}
	if test.CreatedBy != teacherID {
		return nil, NewPermissionError(teacherID, testID, "test", action, "not the test author")
	}
	test.SortQuestions()
	return test, nil
}

// getEditable allows question changes on draft and published tests. Running
// attempts are unaffected because they grade against their own snapshot.
func (s *testService) getEditable(ctx context.Context, testID, teacherID, action string) (*models.Test, error) {
	test, err := s.getOwned(ctx, testID, teacherID, action)
	if err != nil {
		return nil, err
	}
	if test.Status == models.TestArchived {
		return nil, ErrTestNotEditable
	}
	return test, nil
}

// lockEditable is getEditable inside a transaction, holding the test row lock.
func (s *testService) lockEditable(ctx context.Context, tx repositories.Repository, testID, teacherID, action string) (*models.Test, error) {
	test, err := tx.Test().GetByIDForUpdate(ctx, testID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("failed to get test: %w", err)
	}
	if test.CreatedBy != teacherID {
		return nil, NewPermissionError(teacherID, testID, "test", action, "not the test author")
	}
	if test.Status == models.TestArchived {
		return nil, ErrTestNotEditable
	}
	return test, nil
}

func questionOf(ctx context.Context, repo repositories.Repository, testID, questionID string) (*models.Question, error) {
	q, err := repo.Question().GetByID(ctx, questionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	if q.TestID != testID {
		return nil, ErrQuestionNotFound
	}
	return q, nil
}

func questionFromRequest(req *models.QuestionCreateRequest, testID string, position int) *models.Question {
	if req.Position != nil {
		position = *req.Position
	}
	q := &models.Question{
		ID:             uuid.NewString(),
		TestID:         testID,
		Position:       position,
		Type:           req.Type,
		Prompt:         req.Prompt,
		Points:         req.Points,
		ExpectedText:   req.ExpectedText,
		ExpectedNumber: req.ExpectedNumber,
		Tolerance:      req.Tolerance,
		Explanation:    req.Explanation,
	}
	if req.Type.IsChoice() {
		q.Options = append(q.Options, req.Options...)
		q.CorrectOptionIDs = append(q.CorrectOptionIDs, req.CorrectOptionIDs...)
	}
	return q
}
