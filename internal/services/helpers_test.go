package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/raximov/telegram-mini-app-project-sub000/internal/events"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/models"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/repositories/memory"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/validator"
)

const (
	teacherID = "teacher-1"
	studentID = "student-1"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	repo      *memory.MemoryRepository
	clock     *fakeClock
	publisher *events.MockEventPublisher
	attempts  AttemptService
	tests     TestService
}

func newTestEnv(t *testing.T, opts ...AttemptServiceOption) *testEnv {
	t.Helper()
	logger := discardLogger()
	env := &testEnv{
		repo:      memory.NewMemoryRepository(),
		clock:     newFakeClock(),
		publisher: events.NewMockEventPublisher(logger),
	}
	v := validator.New()
	opts = append([]AttemptServiceOption{WithClock(env.clock.Now)}, opts...)
	env.attempts = NewAttemptService(env.repo, logger, v, nil, env.publisher, opts...)
	env.tests = NewTestService(env.repo, logger, v, nil, env.publisher)
	return env
}

// sampleQuestions is worth 20 points: 5 single, 6 multiple, 4 short, 5 numeric.
func sampleQuestions() []models.Question {
	return []models.Question{
		withPosition(choiceQuestion("q1", models.QuestionSingle, 5, "b"), 0),
		withPosition(choiceQuestion("q2", models.QuestionMultiple, 6, "a", "c"), 1),
		withPosition(shortQuestion("q3", 4, "Paris"), 2),
		withPosition(numericQuestion("q4", 5, 10, 0.5), 3),
	}
}

func withPosition(q models.Question, pos int) models.Question {
	q.Position = pos
	return q
}

func correctAnswers() models.AnswerSet {
	return models.AnswerSet{
		"q1": models.SingleAnswer("b"),
		"q2": models.MultipleAnswer("a", "c"),
		"q3": models.ShortAnswer("paris"),
		"q4": models.NumericAnswer(10),
	}
}

// publishedTest stores a published 60 second test owned by teacherID.
func (e *testEnv) publishedTest(t *testing.T, id string) *models.Test {
	t.Helper()
	test := &models.Test{
		ID:             id,
		Title:          "Test " + id,
		Status:         models.TestPublished,
		TimeLimitSec:   60,
		PassingPercent: 50,
		CreatedBy:      teacherID,
		Questions:      sampleQuestions(),
	}
	// Question ids are global in the store.
	for i := range test.Questions {
		test.Questions[i].ID = id + "-" + test.Questions[i].ID
	}
	if err := e.repo.Test().Create(context.Background(), test); err != nil {
		t.Fatalf("create test: %v", err)
	}
	return test
}

func (e *testEnv) start(t *testing.T, testID, student string) *models.StartAttemptResponse {
	t.Helper()
	resp, err := e.attempts.Start(context.Background(), &models.StartAttemptRequest{TestID: testID}, student)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return resp
}

// answersFor re-keys correctAnswers onto the question ids of test.
func answersFor(test *models.Test) models.AnswerSet {
	base := correctAnswers()
	out := make(models.AnswerSet, len(base))
	for k, v := range base {
		out[test.ID+"-"+k] = v
	}
	return out
}
