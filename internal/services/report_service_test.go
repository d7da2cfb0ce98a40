package services

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/raximov/telegram-mini-app-project-sub000/internal/models"
)

func attemptWithResult(id string, percentage float64, passed bool, breakdown ...models.QuestionBreakdown) *models.Attempt {
	return &models.Attempt{
		ID:     id,
		Status: models.AttemptSubmitted,
		Result: &models.AttemptResult{Percentage: percentage, Passed: passed, Breakdown: breakdown},
	}
}

func TestSummarize(t *testing.T) {
	t.Run("zero data", func(t *testing.T) {
		inProgress := &models.Attempt{ID: "a0", Status: models.AttemptInProgress}
		expired := &models.Attempt{ID: "a1", Status: models.AttemptExpired}

		for name, attempts := range map[string][]*models.Attempt{
			"nil":             nil,
			"without results": {inProgress, expired, nil},
		} {
			t.Run(name, func(t *testing.T) {
				s := Summarize("t1", attempts)
				if s.TestID != "t1" || s.TotalAttempts != 0 || s.AverageScore != 0 || s.PassRate != 0 {
					t.Errorf("summary = %+v, want zeros", s)
				}
				if s.HighestPercentage != 0 || s.LowestPercentage != 0 {
					t.Errorf("highest/lowest = %v/%v", s.HighestPercentage, s.LowestPercentage)
				}
				if s.Questions == nil || len(s.Questions) != 0 {
					t.Errorf("questions = %v, want empty", s.Questions)
				}
			})
		}
	})

	t.Run("aggregates", func(t *testing.T) {
		attempts := []*models.Attempt{
			attemptWithResult("a1", 80, true,
				models.QuestionBreakdown{QuestionID: "q1", Prompt: "one", Correct: true, Answered: true, UserAnswerText: "x"},
				models.QuestionBreakdown{QuestionID: "q2", Prompt: "two", Correct: false, Answered: true, UserAnswerText: "y"},
			),
			{ID: "a2", Status: models.AttemptInProgress},
			attemptWithResult("a3", 100.0/3, false,
				// An empty selection is answered even though it displays as blank.
				models.QuestionBreakdown{QuestionID: "q1", Prompt: "one", Correct: false, Answered: true},
				models.QuestionBreakdown{QuestionID: "q2", Prompt: "two", Correct: true, Answered: true, UserAnswerText: "z"},
			),
			attemptWithResult("a4", 60, true,
				models.QuestionBreakdown{QuestionID: "q1", Prompt: "one", Correct: true, Answered: true, UserAnswerText: "x"},
			),
		}

		s := Summarize("t1", attempts)
		if s.TotalAttempts != 3 {
			t.Fatalf("total = %d, want 3", s.TotalAttempts)
		}
		if s.AverageScore != 57.78 {
			t.Errorf("average = %v, want 57.78", s.AverageScore)
		}
		if s.PassRate != 66.67 {
			t.Errorf("pass rate = %v, want 66.67", s.PassRate)
		}
		if s.HighestPercentage != 80 || s.LowestPercentage != 33.33 {
			t.Errorf("highest/lowest = %v/%v, want 80/33.33", s.HighestPercentage, s.LowestPercentage)
		}

		want := []models.QuestionSummary{
			{QuestionID: "q1", Prompt: "one", Answered: 3, Correct: 2, CorrectRate: 66.67},
			{QuestionID: "q2", Prompt: "two", Answered: 2, Correct: 1, CorrectRate: 33.33},
		}
		if len(s.Questions) != len(want) {
			t.Fatalf("questions = %+v", s.Questions)
		}
		for i := range want {
			if s.Questions[i] != want[i] {
				t.Errorf("questions[%d] = %+v, want %+v", i, s.Questions[i], want[i])
			}
		}
	})
}

func TestReportService(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	test := env.publishedTest(t, "t1")
	reports := NewReportService(env.repo, discardLogger(), nil)

	full := env.start(t, test.ID, "student-a").Attempt.ID
	if _, err := env.attempts.Submit(ctx, &models.SubmitAttemptRequest{AttemptID: full, Answers: answersFor(test)}, "student-a"); err != nil {
		t.Fatal(err)
	}
	partial := env.start(t, test.ID, "student-b").Attempt.ID
	env.clock.Advance(time.Second)
	if _, err := env.attempts.Submit(ctx, &models.SubmitAttemptRequest{
		AttemptID: partial,
		Answers:   models.AnswerSet{"t1-q1": models.SingleAnswer("b")},
	}, "student-b"); err != nil {
		t.Fatal(err)
	}
	env.start(t, test.ID, "student-c")

	t.Run("summary", func(t *testing.T) {
		s, err := reports.Summary(ctx, test.ID, teacherID)
		if err != nil {
			t.Fatalf("Summary() error = %v", err)
		}
		if s.TotalAttempts != 2 || s.AverageScore != 62.5 || s.PassRate != 50 {
			t.Errorf("summary = %+v", s)
		}
		if s.HighestPercentage != 100 || s.LowestPercentage != 25 {
			t.Errorf("highest/lowest = %v/%v, want 100/25", s.HighestPercentage, s.LowestPercentage)
		}
		if len(s.Questions) != 4 {
			t.Fatalf("questions = %d, want 4", len(s.Questions))
		}
		if q := s.Questions[1]; q.QuestionID != "t1-q2" || q.Answered != 1 || q.CorrectRate != 50 {
			t.Errorf("q2 summary = %+v", q)
		}
	})

	t.Run("access", func(t *testing.T) {
		if _, err := reports.Summary(ctx, test.ID, "teacher-2"); !errors.Is(err, ErrUnauthorized) {
			t.Errorf("other teacher error = %v, want ErrUnauthorized", err)
		}
		if _, err := reports.Summary(ctx, "missing", teacherID); !errors.Is(err, ErrNotFound) {
			t.Errorf("missing test error = %v, want ErrNotFound", err)
		}
		if _, err := reports.Export(ctx, test.ID, "teacher-2"); !errors.Is(err, ErrUnauthorized) {
			t.Errorf("export by other teacher error = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("export", func(t *testing.T) {
		data, err := reports.Export(ctx, test.ID, teacherID)
		if err != nil {
			t.Fatalf("Export() error = %v", err)
		}

		f, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("workbook unreadable: %v", err)
		}
		defer f.Close()

		summary, err := f.GetRows("Summary")
		if err != nil {
			t.Fatal(err)
		}
		if len(summary) < 2 || summary[1][0] != "Total attempts" || summary[1][1] != "2" {
			t.Errorf("summary rows = %v", summary)
		}

		results, err := f.GetRows("Results")
		if err != nil {
			t.Fatal(err)
		}
		// Header plus every attempt, including the one still running.
		if len(results) != 4 {
			t.Fatalf("results rows = %d, want 4", len(results))
		}
		if results[0][0] != "Attempt" || results[0][8] != "Passed" {
			t.Errorf("header = %v", results[0])
		}
	})

	t.Run("empty test", func(t *testing.T) {
		empty := env.publishedTest(t, "t2")
		s, err := reports.Summary(ctx, empty.ID, teacherID)
		if err != nil {
			t.Fatal(err)
		}
		if s.TotalAttempts != 0 || s.AverageScore != 0 || s.PassRate != 0 {
			t.Errorf("summary = %+v, want zeros", s)
		}
	})
}
