package services

import (
	"context"
	"fmt"
	"time"

	"github.com/raximov/telegram-mini-app-project-sub000/internal/events"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/models"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/repositories"
)

// ===== ATTEMPT POLICIES =====

// SingleAttemptPolicy allows a new attempt only before the first submission.
type SingleAttemptPolicy struct{}

func (SingleAttemptPolicy) AllowNewAttempt(ctx context.Context, test *models.Test, studentID string, completed int) bool {
	return completed == 0
}

// MaxAttemptsPolicy grants up to Max submitted attempts per test.
type MaxAttemptsPolicy struct {
	Max int
}

func (p MaxAttemptsPolicy) AllowNewAttempt(ctx context.Context, test *models.Test, studentID string, completed int) bool {
	return completed < p.Max
}

// ===== ACCESS & STATE CHECKS =====

type cachedResult struct {
	StudentID string                `json:"student_id"`
	AuthorID  string                `json:"author_id"`
	Result    *models.AttemptResult `json:"result"`
}

func (s *attemptService) getOwned(ctx context.Context, attemptID, studentID, action string) (*models.Attempt, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	if attempt.StudentID != studentID {
		return nil, NewPermissionError(studentID, attemptID, "attempt", action, "not owned by student")
	}
	return attempt, nil
}

// checkOpen rejects writes to attempts that are finished or past their
// deadline. It never changes state; expiry on submit is handled by finalize.
func (s *attemptService) checkOpen(ctx context.Context, attempt *models.Attempt) error {
	switch attempt.Status {
	case models.AttemptSubmitted, models.AttemptGraded:
		return ErrAttemptAlreadySubmitted
	case models.AttemptExpired:
		return ErrAttemptExpired
	}
	if attempt.IsPastDeadline(s.now()) {
		return ErrAttemptExpired
	}
	return nil
}

// closedReason re-reads an attempt after a lost conditional write and names
// the state that won.
func (s *attemptService) closedReason(ctx context.Context, attemptID string) error {
	current, err := s.repo.Attempt().GetByID(ctx, attemptID)
	if err != nil {
		return fmt.Errorf("failed to re-read attempt: %w", err)
	}
	switch current.Status {
	case models.AttemptExpired:
		return ErrAttemptExpired
	case models.AttemptInProgress:
		if current.IsPastDeadline(s.now()) {
			return ErrAttemptExpired
		}
		return fmt.Errorf("attempt %s: %w", attemptID, repositories.ErrConflict)
	default:
		return ErrAttemptAlreadySubmitted
	}
}

// canViewResult allows the attempt owner and the author of the test. It
// returns the author id so the decision can be cached with the result.
func (s *attemptService) canViewResult(ctx context.Context, attempt *models.Attempt, userID string) (string, error) {
	authorID := ""
	test, err := s.repo.Test().GetByID(ctx, attempt.TestID)
	switch {
	case err == nil:
		authorID = test.CreatedBy
	case !repositories.IsNotFoundError(err):
		return "", fmt.Errorf("failed to get test: %w", err)
	}

	if userID != attempt.StudentID && userID != authorID {
		return "", NewPermissionError(userID, attempt.ID, "attempt", "view result", "not the student or the test author")
	}
	return authorID, nil
}

func (s *attemptService) startResponse(attempt *models.Attempt, test *models.Test, resumed bool, now time.Time) *models.StartAttemptResponse {
	view := models.TestView{
		ID:           test.ID,
		Title:        test.Title,
		Description:  test.Description,
		TimeLimitSec: int(attempt.ExpiresAt.Sub(attempt.StartedAt) / time.Second),
		Questions:    make([]models.QuestionView, 0, len(attempt.Questions)),
	}
	// The snapshot, not the live test, defines what this attempt shows.
	for i := range attempt.Questions {
		view.Questions = append(view.Questions, attempt.Questions[i].View())
		view.TotalPoints += attempt.Questions[i].Points
	}

	return &models.StartAttemptResponse{
		Attempt: attempt.View(now),
		Test:    view,
		Resumed: resumed,
	}
}

func attemptEventData(attempt *models.Attempt, auto bool) events.AttemptEventData {
	data := events.AttemptEventData{
		AttemptID:     attempt.ID,
		TestID:        attempt.TestID,
		StudentID:     attempt.StudentID,
		AutoSubmitted: auto,
	}
	if r := attempt.Result; r != nil {
		data.Score = &r.Score
		data.MaxScore = &r.MaxScore
		data.Percentage = &r.Percentage
		data.Passed = &r.Passed
	}
	return data
}
