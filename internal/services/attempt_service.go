package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/raximov/telegram-mini-app-project-sub000/internal/cache"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/events"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/models"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/repositories"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/validator"
)

type attemptService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	cache     *cache.CacheManager
	publisher events.EventPublisher
	policy    AttemptPolicy
	now       func() time.Time
}

type AttemptServiceOption func(*attemptService)

func WithAttemptPolicy(p AttemptPolicy) AttemptServiceOption {
	return func(s *attemptService) { s.policy = p }
}

// WithClock replaces time.Now; tests use it to move past deadlines.
func WithClock(now func() time.Time) AttemptServiceOption {
	return func(s *attemptService) { s.now = now }
}

func NewAttemptService(repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, cm *cache.CacheManager, publisher events.EventPublisher, opts ...AttemptServiceOption) AttemptService {
	if cm == nil {
		cm = cache.NewCacheManager(nil)
	}
	s := &attemptService{
		repo:      repo,
		logger:    logger,
		validator: validator,
		cache:     cm,
		publisher: publisher,
		policy:    SingleAttemptPolicy{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ===== CORE ATTEMPT OPERATIONS =====

func (s *attemptService) Start(ctx context.Context, req *models.StartAttemptRequest, studentID string) (*models.StartAttemptResponse, error) {
	s.logger.Info("Starting test attempt",
		"test_id", req.TestID,
		"student_id", studentID)

	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	test, err := s.repo.Test().GetByIDWithQuestions(ctx, req.TestID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("failed to get test: %w", err)
	}
	if test.Status != models.TestPublished {
		return nil, ErrTestNotPublished
	}
	test.SortQuestions()

	// A concurrent start for the same pair can win the create; the loser goes
	// round once more and resumes the winner's attempt.
	for range 2 {
		active, err := s.repo.Attempt().GetActive(ctx, test.ID, studentID)
		switch {
		case err == nil:
			now := s.now()
			if !active.IsPastDeadline(now) {
				s.logger.Info("Resuming existing attempt",
					"attempt_id", active.ID,
					"student_id", studentID)
				return s.startResponse(active, test, true, now), nil
			}
			if err := s.expire(ctx, active); err != nil {
				return nil, err
			}
		case !repositories.IsNotFoundError(err):
			return nil, fmt.Errorf("failed to get active attempt: %w", err)
		}

		completed, err := s.repo.Attempt().CountCompleted(ctx, test.ID, studentID)
		if err != nil {
			return nil, fmt.Errorf("failed to count attempts: %w", err)
		}
		if !s.policy.AllowNewAttempt(ctx, test, studentID, int(completed)) {
			return nil, ErrTestAlreadyCompleted
		}

		attempt := newAttempt(test, studentID, s.now())
		err = s.repo.Attempt().Create(ctx, attempt)
		if err == nil {
			s.logger.Info("Test attempt started",
				"attempt_id", attempt.ID,
				"test_id", test.ID,
				"student_id", studentID,
				"expires_at", attempt.ExpiresAt)
			s.publish(ctx, events.EventAttemptStarted, attemptEventData(attempt, false))
			return s.startResponse(attempt, test, false, attempt.StartedAt), nil
		}
		if !repositories.IsConflictError(err) {
			return nil, fmt.Errorf("failed to create attempt: %w", err)
		}
		s.logger.Warn("Concurrent attempt start detected", "test_id", test.ID, "student_id", studentID)
	}

	return nil, fmt.Errorf("failed to start attempt: %w", repositories.ErrConflict)
}

func (s *attemptService) RecordAnswer(ctx context.Context, attemptID string, req *models.RecordAnswerRequest, studentID string) error {
	if err := s.validator.Validate(req); err != nil {
		return fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}
	if err := s.validator.ValidateAnswer(req.Answer); err != nil {
		return fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	attempt, err := s.getOwned(ctx, attemptID, studentID, "answer")
	if err != nil {
		return err
	}
	if err := s.checkOpen(ctx, attempt); err != nil {
		return err
	}
	if attempt.Question(req.QuestionID) == nil {
		return ErrQuestionNotFound
	}

	err = s.repo.Attempt().SaveAnswer(ctx, attempt.ID, req.QuestionID, req.Answer, s.now())
	if err != nil {
		if repositories.IsConflictError(err) {
			// Lost a race with submit or the deadline; report the state that won.
			return s.closedReason(ctx, attempt.ID)
		}
		return fmt.Errorf("failed to save answer: %w", err)
	}

	s.logger.Debug("Answer recorded",
		"attempt_id", attempt.ID,
		"question_id", req.QuestionID)
	return nil
}

func (s *attemptService) Submit(ctx context.Context, req *models.SubmitAttemptRequest, studentID string) (*models.AttemptResult, error) {
	s.logger.Info("Submitting test attempt",
		"attempt_id", req.AttemptID,
		"student_id", studentID)

	for questionID, answer := range req.Answers {
		if err := s.validator.ValidateAnswer(answer); err != nil {
			return nil, fmt.Errorf("%w: answer for question %s: %w", ErrValidationFailed, questionID, err)
		}
	}

	attempt, err := s.getOwned(ctx, req.AttemptID, studentID, "submit")
	if err != nil {
		return nil, err
	}

	answers := req.Answers
	if answers == nil {
		answers = attempt.Answers
	} else if attempt.Status == models.AttemptInProgress {
		for questionID := range answers {
			if attempt.Question(questionID) == nil {
				return nil, fmt.Errorf("%w: question %s is not part of attempt %s", ErrValidationFailed, questionID, attempt.ID)
			}
		}
	}
	return s.finalize(ctx, attempt, answers, false)
}

func (s *attemptService) SubmitRecorded(ctx context.Context, attemptID, studentID string) (*models.AttemptResult, error) {
	attempt, err := s.getOwned(ctx, attemptID, studentID, "submit")
	if err != nil {
		return nil, err
	}
	return s.finalize(ctx, attempt, attempt.Answers, true)
}

func (s *attemptService) Expire(ctx context.Context, attemptID string) error {
	attempt, err := s.repo.Attempt().GetByID(ctx, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrAttemptNotFound
		}
		return fmt.Errorf("failed to get attempt: %w", err)
	}
	return s.expire(ctx, attempt)
}

// ===== READS =====

func (s *attemptService) Get(ctx context.Context, attemptID, studentID string) (*models.AttemptView, error) {
	attempt, err := s.getOwned(ctx, attemptID, studentID, "view")
	if err != nil {
		return nil, err
	}
	view := attempt.View(s.now())
	return &view, nil
}

func (s *attemptService) GetResult(ctx context.Context, attemptID, userID string) (*models.AttemptResult, error) {
	var cached cachedResult
	if err := s.cache.Result.Get(ctx, cache.ResultKey(attemptID), &cached); err == nil {
		if userID != cached.StudentID && userID != cached.AuthorID {
			return nil, NewPermissionError(userID, attemptID, "attempt", "view result", "not the student or the test author")
		}
		return cached.Result, nil
	}

	attempt, err := s.repo.Attempt().GetByID(ctx, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	authorID, err := s.canViewResult(ctx, attempt, userID)
	if err != nil {
		return nil, err
	}
	if attempt.Result == nil {
		return nil, ErrResultNotReady
	}

	entry := cachedResult{StudentID: attempt.StudentID, AuthorID: authorID, Result: attempt.Result}
	if err := s.cache.Result.Set(ctx, cache.ResultKey(attempt.ID), entry, cache.ResultCacheConfig.TTL); err != nil {
		s.logger.Warn("Failed to cache result", "attempt_id", attempt.ID, "error", err)
	}
	return attempt.Result, nil
}

func (s *attemptService) TimeRemaining(ctx context.Context, attemptID, studentID string) (*models.TimeRemainingResponse, error) {
	attempt, err := s.getOwned(ctx, attemptID, studentID, "view")
	if err != nil {
		return nil, err
	}

	resp := &models.TimeRemainingResponse{
		AttemptID: attempt.ID,
		ExpiresAt: attempt.ExpiresAt,
	}
	if attempt.Status == models.AttemptInProgress {
		resp.RemainingSeconds = attempt.RemainingSeconds(s.now())
	}
	return resp, nil
}

// finalize scores and stores the attempt. The store's conditional write is the
// only thing that decides which of several concurrent submits wins.
func (s *attemptService) finalize(ctx context.Context, attempt *models.Attempt, answers models.AnswerSet, auto bool) (*models.AttemptResult, error) {
	switch attempt.Status {
	case models.AttemptSubmitted, models.AttemptGraded:
		return nil, ErrAttemptAlreadySubmitted
	case models.AttemptExpired:
		return nil, ErrAttemptExpired
	case models.AttemptInProgress:
	default:
		return nil, fmt.Errorf("attempt %s in unexpected status %s", attempt.ID, attempt.Status)
	}

	now := s.now()
	if attempt.IsPastDeadline(now) {
		if err := s.expire(ctx, attempt); err != nil {
			return nil, err
		}
		return nil, ErrAttemptExpired
	}

	final := answers.Clone()
	result := ScoreAttempt(attempt.Questions, final, attempt.PassingPercent, now)

	err := s.repo.Attempt().CompleteSubmission(ctx, attempt.ID, final, result, now)
	if err != nil {
		if repositories.IsConflictError(err) {
			return nil, s.closedReason(ctx, attempt.ID)
		}
		return nil, fmt.Errorf("failed to store submission: %w", err)
	}

	s.logger.Info("Test attempt submitted",
		"attempt_id", attempt.ID,
		"test_id", attempt.TestID,
		"student_id", attempt.StudentID,
		"score", result.Score,
		"max_score", result.MaxScore,
		"percentage", result.Percentage,
		"passed", result.Passed,
		"auto_submitted", auto)

	attempt.Status = models.AttemptSubmitted
	attempt.Result = result
	s.publish(ctx, events.EventAttemptSubmitted, attemptEventData(attempt, auto))
	return result, nil
}

// expire moves an in-progress attempt to expired. Idempotent.
func (s *attemptService) expire(ctx context.Context, attempt *models.Attempt) error {
	changed, err := s.repo.Attempt().MarkExpired(ctx, attempt.ID)
	if err != nil {
		return fmt.Errorf("failed to expire attempt: %w", err)
	}
	if changed {
		s.logger.Info("Attempt expired",
			"attempt_id", attempt.ID,
			"student_id", attempt.StudentID,
			"expires_at", attempt.ExpiresAt)
		attempt.Status = models.AttemptExpired
		s.publish(ctx, events.EventAttemptExpired, attemptEventData(attempt, false))
	}
	return nil
}

func (s *attemptService) publish(ctx context.Context, eventType string, data events.AttemptEventData) {
	if s.publisher == nil {
		return
	}
	event, err := events.NewEvent(eventType, data)
	if err == nil {
		err = s.publisher.Publish(ctx, events.TopicAttempts, event)
	}
	if err != nil {
		s.logger.Error("Failed to publish event", "event_type", eventType, "attempt_id", data.AttemptID, "error", err)
	}
}

func newAttempt(test *models.Test, studentID string, now time.Time) *models.Attempt {
	return &models.Attempt{
		ID:             uuid.NewString(),
		TestID:         test.ID,
		StudentID:      studentID,
		Status:         models.AttemptInProgress,
		StartedAt:      now,
		ExpiresAt:      now.Add(time.Duration(test.TimeLimitSec) * time.Second),
		PassingPercent: test.PassingPercent,
		Questions:      append([]models.Question(nil), test.Questions...),
		Answers:        models.AnswerSet{},
	}
}
